package cli

import (
	"github.com/spf13/cobra"
)

var linkLabel string

var linkCmd = &cobra.Command{
	Use:   "link [id-a] [id-b]",
	Short: "Link two memories symmetrically",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.service.Link(cmd.Context(), args[0], args[1], linkLabel); err != nil {
			return err
		}
		return printJSON(map[string]string{"status": "linked"})
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink [id-a] [id-b]",
	Short: "Remove the link between two memories",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.service.Unlink(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		return printJSON(map[string]string{"status": "unlinked"})
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair [id]",
	Short: "Repair link symmetry (all memories when no id is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		id := ""
		if len(args) > 0 {
			id = args[0]
		}
		report, err := a.service.RepairLinks(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

func init() {
	linkCmd.Flags().StringVar(&linkLabel, "label", "", "edge label (defaults to the target title)")

	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(unlinkCmd)
	rootCmd.AddCommand(repairCmd)
}
