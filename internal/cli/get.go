package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/ametel/mnemo/pkg/memory"
)

var getByTitle bool

var getCmd = &cobra.Command{
	Use:   "get [id|title]",
	Short: "Read a memory by id, or by title with --title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		var m *memory.Memory
		if getByTitle {
			m, err = a.service.GetByTitle(cmd.Context(), args[0])
		} else {
			m, err = a.service.Get(cmd.Context(), args[0])
		}
		if err != nil {
			return err
		}
		if m == nil {
			return printJSON(map[string]string{"status": "not_found"})
		}
		return printJSON(m)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored memories",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		docs, err := a.service.List(cmd.Context(), listCategory, listTag)
		if err != nil {
			return err
		}
		return printJSON(docs)
	},
}

var (
	listCategory string
	listTag      string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search memories by full-text query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		hits, err := a.service.Search(cmd.Context(), searchRequest(args))
		if err != nil {
			return err
		}
		return printJSON(hits)
	},
}

var (
	searchLimit    int
	searchCategory string
	searchTags     []string
)

func searchRequest(args []string) memory.SearchRequest {
	return memory.SearchRequest{
		Query:    strings.Join(args, " "),
		Limit:    searchLimit,
		Category: searchCategory,
		Tags:     searchTags,
	}
}

func init() {
	getCmd.Flags().BoolVar(&getByTitle, "title", false, "resolve by title instead of id")

	listCmd.Flags().StringVar(&listCategory, "category", "", "filter by category")
	listCmd.Flags().StringVar(&listTag, "tag", "", "filter by tag")

	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum number of hits")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "restrict to an exact category")
	searchCmd.Flags().StringSliceVar(&searchTags, "tag", nil, "require tag (repeatable)")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
}
