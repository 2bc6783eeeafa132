package cli

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ametel/mnemo/pkg/maintenance"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Force a full index rebuild from the document store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		stats, err := a.service.Reindex(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store and index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		stats, err := a.service.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run the long-lived maintenance daemon",
	Long: `Run scheduled link repair and staleness sweeps, watch the store for
out-of-band edits, and optionally serve Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		runner, err := maintenance.New(maintenance.Config{
			Schedule:    a.cfg.Maintenance.Schedule,
			Watch:       a.cfg.Maintenance.Watch,
			Service:     a.service,
			Consistency: a.consistency,
			Logger:      a.log.GetZerolog(),
		})
		if err != nil {
			return err
		}
		if err := runner.Start(); err != nil {
			return err
		}
		defer runner.Stop()

		if a.cfg.Metrics.Enabled {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", a.metrics.Handler())
				if err := http.ListenAndServe(a.cfg.Metrics.Addr, mux); err != nil {
					zl := a.log.GetZerolog()
					zl.Error().Err(err).Msg("Metrics endpoint failed")
				}
			}()
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(maintainCmd)
}
