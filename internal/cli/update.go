package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ametel/mnemo/pkg/memory"
)

var (
	updateTitle    string
	updateCategory string
	updateTags     []string
	updateSources  []string
	updateBody     string
	updateReviewed string
	updateJSONFile string
)

var updateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Update fields of an existing memory",
	Long: `Update an existing memory. Only the flags you pass are changed; other
fields keep their current values. A JSON payload can be supplied with --json.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := updateRequest(cmd, args)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		m, err := a.service.Update(cmd.Context(), req)
		if err != nil {
			return err
		}
		if m == nil {
			return printJSON(map[string]string{"status": "not_found"})
		}
		return printJSON(m)
	},
}

func updateRequest(cmd *cobra.Command, args []string) (memory.UpdateRequest, error) {
	var req memory.UpdateRequest

	if updateJSONFile != "" {
		data, err := readPayload(updateJSONFile)
		if err != nil {
			return req, err
		}
		if err := ValidateUpdatePayload(data); err != nil {
			return req, err
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return req, err
		}
		return req, nil
	}

	if len(args) > 0 {
		req.ID = args[0]
	}
	// Only flags the user actually set become part of the partial update.
	if cmd.Flags().Changed("title") {
		req.Title = &updateTitle
	}
	if cmd.Flags().Changed("category") {
		req.Category = &updateCategory
	}
	if cmd.Flags().Changed("tag") {
		req.Tags = &updateTags
	}
	if cmd.Flags().Changed("source") {
		req.Sources = &updateSources
	}
	if cmd.Flags().Changed("body") {
		req.Body = &updateBody
	}
	if cmd.Flags().Changed("last-reviewed") {
		req.LastReviewed = &updateReviewed
	}
	return req, nil
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a memory and detach its links",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		deleted, err := a.service.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return printJSON(map[string]string{"status": "not_found"})
		}
		return printJSON(map[string]string{"status": "deleted"})
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateTitle, "title", "", "new title")
	updateCmd.Flags().StringVar(&updateCategory, "category", "", "new category")
	updateCmd.Flags().StringSliceVar(&updateTags, "tag", nil, "replacement tag set (repeatable)")
	updateCmd.Flags().StringSliceVar(&updateSources, "source", nil, "replacement source list (repeatable)")
	updateCmd.Flags().StringVar(&updateBody, "body", "", "replacement body")
	updateCmd.Flags().StringVar(&updateReviewed, "last-reviewed", "", "last reviewed timestamp (RFC 3339)")
	updateCmd.Flags().StringVar(&updateJSONFile, "json", "", "JSON payload file (- for stdin)")

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
}
