package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ametel/mnemo/pkg/memory"
)

func newTestRunnerDeps(t *testing.T) (*memory.Service, *memory.Manager, func()) {
	base, err := os.MkdirTemp("", "maintenance-test-*")
	require.NoError(t, err)

	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	manager := memory.NewManager(memory.ManagerConfig{Logger: logger})
	svc, err := memory.NewService(memory.ServiceConfig{
		Consistency: manager,
		Store: memory.StoreConfig{
			StorePath: filepath.Join(base, "memory"),
			IndexPath: filepath.Join(base, "index.db"),
		},
		Logger: logger,
	})
	require.NoError(t, err)

	cleanup := func() {
		manager.Shutdown()
		os.RemoveAll(base)
	}
	return svc, manager, cleanup
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{Schedule: "* * * * *"})
	assert.Error(t, err)
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	svc, manager, cleanup := newTestRunnerDeps(t)
	defer cleanup()

	tests := []string{"", "not a schedule", "61 * * * *", "* * * * * *"}
	for _, schedule := range tests {
		_, err := New(Config{
			Schedule:    schedule,
			Service:     svc,
			Consistency: manager,
		})
		assert.Error(t, err, "schedule %q should be rejected", schedule)
	}
}

func TestRunner_StartStop(t *testing.T) {
	svc, manager, cleanup := newTestRunnerDeps(t)
	defer cleanup()

	runner, err := New(Config{
		Schedule:    "*/15 * * * *",
		Service:     svc,
		Consistency: manager,
	})
	require.NoError(t, err)

	require.NoError(t, runner.Start())
	runner.Stop()
}

func TestRunner_WatcherInvalidatesOnChange(t *testing.T) {
	svc, manager, cleanup := newTestRunnerDeps(t)
	defer cleanup()
	ctx := context.Background()

	created, err := svc.Create(ctx, memory.CreateRequest{
		Title: "Watched Note",
		Body:  "original text",
	})
	require.NoError(t, err)

	runner, err := New(Config{
		Schedule:    "*/15 * * * *",
		Watch:       true,
		Service:     svc,
		Consistency: manager,
	})
	require.NoError(t, err)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	before := manager.RebuildCount()
	require.NoError(t, os.WriteFile(created.Path, []byte("---\nid: "+created.ID+"\ntitle: Watched Note\n---\n\nrewritten text\n"), 0o644))

	// The watcher debounces before invalidating; poll until the next acquire
	// is forced to rebuild.
	require.Eventually(t, func() bool {
		if _, err := svc.Stats(ctx); err != nil {
			return false
		}
		return manager.RebuildCount() > before
	}, 5*time.Second, 100*time.Millisecond)
}

func TestSweep_RepairsAndReports(t *testing.T) {
	svc, manager, cleanup := newTestRunnerDeps(t)
	defer cleanup()
	ctx := context.Background()

	a, err := svc.Create(ctx, memory.CreateRequest{Title: "Sweep A"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, memory.CreateRequest{Title: "Sweep B"})
	require.NoError(t, err)
	require.NoError(t, svc.Link(ctx, a.ID, b.ID, "related"))

	runner, err := New(Config{
		Schedule:    "*/15 * * * *",
		Service:     svc,
		Consistency: manager,
	})
	require.NoError(t, err)

	// Run one sweep directly rather than waiting for the schedule.
	runner.sweep()

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.Indexed)
}
