package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ametel/mnemo/pkg/memory"
)

var (
	createCategory string
	createTags     []string
	createSources  []string
	createBody     string
	createReviewed string
	createJSONFile string
)

var createCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a new memory",
	Long: `Create a new memory from flags, or from a JSON payload with --json
(use "-" to read the payload from stdin).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := createRequest(args)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		m, err := a.service.Create(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(m)
	},
}

func createRequest(args []string) (memory.CreateRequest, error) {
	var req memory.CreateRequest

	if createJSONFile != "" {
		data, err := readPayload(createJSONFile)
		if err != nil {
			return req, err
		}
		if err := ValidateCreatePayload(data); err != nil {
			return req, err
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return req, err
		}
		return req, nil
	}

	if len(args) > 0 {
		req.Title = args[0]
	}
	req.Category = createCategory
	req.Tags = createTags
	req.Sources = createSources
	req.Body = createBody
	req.LastReviewed = createReviewed
	return req, nil
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func init() {
	createCmd.Flags().StringVar(&createCategory, "category", "", "memory category")
	createCmd.Flags().StringSliceVar(&createTags, "tag", nil, "tag (repeatable)")
	createCmd.Flags().StringSliceVar(&createSources, "source", nil, "source reference (repeatable)")
	createCmd.Flags().StringVar(&createBody, "body", "", "body content")
	createCmd.Flags().StringVar(&createReviewed, "last-reviewed", "", "last reviewed timestamp (RFC 3339)")
	createCmd.Flags().StringVar(&createJSONFile, "json", "", "JSON payload file (- for stdin)")

	rootCmd.AddCommand(createCmd)
}
