// Package maintenance runs the background upkeep for a memory store:
// a cron-scheduled link repair and staleness sweep, and an optional
// filesystem watcher that invalidates the index when documents change
// out-of-band.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ametel/mnemo/pkg/memory"
)

// Config configures a maintenance runner.
type Config struct {
	// Schedule is a standard 5-field cron expression.
	Schedule string
	// Watch enables the fsnotify store watcher.
	Watch       bool
	Service     *memory.Service
	Consistency *memory.Manager
	Logger      zerolog.Logger
}

// Runner drives periodic repair and staleness sweeps.
type Runner struct {
	cron        *cron.Cron
	watcher     *memory.StoreWatcher
	service     *memory.Service
	consistency *memory.Manager
	logger      zerolog.Logger
	watch       bool
}

// New creates a maintenance runner. The schedule is validated eagerly so a
// bad expression fails at startup, not at first tick.
func New(cfg Config) (*Runner, error) {
	if cfg.Service == nil || cfg.Consistency == nil {
		return nil, fmt.Errorf("service and consistency manager are required")
	}
	if cfg.Schedule == "" {
		return nil, fmt.Errorf("maintenance schedule is required")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule: %w", err)
	}

	r := &Runner{
		cron:        cron.New(cron.WithParser(parser)),
		service:     cfg.Service,
		consistency: cfg.Consistency,
		logger:      cfg.Logger,
		watch:       cfg.Watch,
	}

	if _, err := r.cron.AddFunc(cfg.Schedule, r.sweep); err != nil {
		return nil, fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	return r, nil
}

// Start begins the scheduled sweeps and, when enabled, the store watcher.
func (r *Runner) Start() error {
	if r.watch {
		storeCfg := r.service.Config()
		watcher, err := memory.NewStoreWatcher(r.logger, func() {
			r.consistency.Invalidate(storeCfg)
		})
		if err != nil {
			return fmt.Errorf("failed to create store watcher: %w", err)
		}
		if err := watcher.Watch(storeCfg.StorePath); err != nil {
			watcher.Stop()
			return fmt.Errorf("failed to watch store: %w", err)
		}
		r.watcher = watcher
	}

	r.cron.Start()
	r.logger.Info().Msg("Maintenance runner started")
	return nil
}

// Stop halts the scheduler, waits for a running sweep, and stops the
// watcher.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()

	if r.watcher != nil {
		r.watcher.Stop()
	}
	r.logger.Info().Msg("Maintenance runner stopped")
}

// sweep repairs link symmetry and lets the consistency manager settle any
// staleness it finds.
func (r *Runner) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()

	report, err := r.service.RepairLinks(ctx, "")
	if err != nil {
		r.logger.Warn().Err(err).Msg("Maintenance repair pass failed")
		return
	}

	stats, err := r.service.Stats(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Maintenance stats pass failed")
		return
	}

	r.logger.Info().
		Int("scanned", report.Scanned).
		Int("dangling", report.Dangling).
		Int("restored", report.Restored).
		Int("documents", stats.Documents).
		Int("indexed", stats.Indexed).
		Dur("duration", time.Since(start)).
		Msg("Maintenance sweep completed")
}
