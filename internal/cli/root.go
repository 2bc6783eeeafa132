package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ametel/mnemo/internal/config"
	"github.com/ametel/mnemo/internal/logger"
	"github.com/ametel/mnemo/internal/metrics"
	"github.com/ametel/mnemo/pkg/memory"
)

const version = "0.1.0"

var (
	cfgFile   string
	logLevel  string
	storePath string
	indexPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "mnemo - file-backed memory store with full-text search",
	Long: `mnemo persists small structured documents ("memories") as individual
markdown files and maintains a derived full-text search index over them,
keeping the two consistent even when files are edited out-of-band.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mnemo/mnemo.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "document store directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&indexPath, "index", "", "search index path (overrides config)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// app bundles the collaborators a command needs. Flags take precedence over
// the config file, which takes precedence over defaults.
type app struct {
	cfg         *config.Config
	log         *logger.Logger
	metrics     *metrics.Metrics
	consistency *memory.Manager
	service     *memory.Service
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if storePath != "" {
		cfg.StorePath = storePath
	}
	if indexPath != "" {
		cfg.IndexPath = indexPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return nil, err
	}

	m := metrics.NewMetrics()
	consistency := memory.NewManager(memory.ManagerConfig{
		Tolerance: time.Duration(cfg.Consistency.ToleranceMs) * time.Millisecond,
		Logger:    log.GetZerolog(),
		Metrics:   m,
	})

	service, err := memory.NewService(memory.ServiceConfig{
		Consistency: consistency,
		Store: memory.StoreConfig{
			StorePath: cfg.StorePath,
			IndexPath: cfg.IndexPath,
		},
		AllowedCategories: cfg.Categories,
		AllowedTags:       cfg.Tags,
		Logger:            log.GetZerolog(),
		Metrics:           m,
	})
	if err != nil {
		log.Close()
		return nil, err
	}

	return &app{
		cfg:         cfg,
		log:         log,
		metrics:     m,
		consistency: consistency,
		service:     service,
	}, nil
}

func (a *app) close() {
	if err := a.consistency.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: shutdown: %v\n", err)
	}
	a.log.Close()
}

// printJSON renders a command result to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}
