package memory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/ametel/mnemo/internal/metrics"
)

// StoreConfig identifies one logical memory store: the document directory
// plus the index artifact location.
type StoreConfig struct {
	StorePath string
	IndexPath string
}

// Key returns the configuration key the manager caches handles under.
func (c StoreConfig) Key() string {
	return c.StorePath + "\x00" + c.IndexPath
}

// Handle is a ready, internally consistent (store, index) pair. Handles are
// owned by the Manager; no other component may construct a competing pair
// for the same configuration.
type Handle struct {
	Store *DocumentStore
	Index *SearchIndex
}

// DefaultTolerance is the staleness tolerance window. Gaps between the
// newest document and the index artifact below this are filesystem
// precision and clock skew noise, not genuine staleness.
const DefaultTolerance = 5000 * time.Millisecond

// syncState is the per-configuration lifecycle: unsynced (no cached handle),
// syncing (rebuild in flight), synced (cached handle is trusted).
type syncState int

const (
	stateUnsynced syncState = iota
	stateSyncing
	stateSynced
)

func (s syncState) String() string {
	switch s {
	case stateSyncing:
		return "syncing"
	case stateSynced:
		return "synced"
	default:
		return "unsynced"
	}
}

// indexState is the process-lifetime record the manager keeps per
// configuration key. Never persisted.
type indexState struct {
	state syncState

	// knownIndexTime is the artifact modification time observed on the last
	// successful sync. A current mtime differing from it means the artifact
	// was replaced out-of-band.
	knownIndexTime time.Time

	forceRebuild bool
}

// rebuildOp represents one in-flight rebuild. Callers that find an op for
// their key wait on done and then read the cached handle instead of
// re-deriving staleness.
type rebuildOp struct {
	done chan struct{}
	err  error
}

// ManagerConfig configures a consistency manager.
type ManagerConfig struct {
	// Tolerance overrides DefaultTolerance when positive.
	Tolerance time.Duration
	Logger    zerolog.Logger
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Manager detects staleness between document stores and their search
// indexes, serializes rebuilds per configuration key, and caches one live
// handle per configuration. It is an explicitly constructed registry:
// create one at process start and pass it to every collaborator.
type Manager struct {
	mu       sync.Mutex
	handles  map[string]*Handle
	states   map[string]*indexState
	inflight map[string]*rebuildOp

	tolerance time.Duration
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	rebuilds atomic.Int64
}

// NewManager creates a consistency manager.
func NewManager(cfg ManagerConfig) *Manager {
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Manager{
		handles:   make(map[string]*Handle),
		states:    make(map[string]*indexState),
		inflight:  make(map[string]*rebuildOp),
		tolerance: tolerance,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Acquire returns a ready handle for the configuration, rebuilding the index
// first if it is stale. Concurrent callers for the same key never start a
// second rebuild: they join the in-flight one and share its outcome.
func (m *Manager) Acquire(ctx context.Context, cfg StoreConfig) (*Handle, error) {
	key := cfg.Key()

	m.mu.Lock()
	if op := m.inflight[key]; op != nil {
		m.mu.Unlock()
		// No cancellation here: a joined caller always receives the
		// rebuild's eventual success or failure, never a short-circuit.
		<-op.done
		if op.err != nil {
			return nil, op.err
		}
		m.mu.Lock()
		handle := m.handles[key]
		m.mu.Unlock()
		if handle == nil {
			return nil, fmt.Errorf("no handle cached after rebuild for %s", cfg.StorePath)
		}
		return handle, nil
	}

	st := m.states[key]
	if st == nil {
		st = &indexState{}
		m.states[key] = st
	}
	handle := m.handles[key]

	reason, err := m.staleness(cfg, st, handle)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	if reason == "" {
		if handle == nil {
			handle, err = m.newHandle(cfg)
			if err != nil {
				m.mu.Unlock()
				return nil, err
			}
			m.handles[key] = handle
		}
		if t, ok, statErr := statArtifact(cfg.IndexPath); statErr == nil && ok {
			st.knownIndexTime = t
		}
		st.state = stateSynced
		m.mu.Unlock()
		return handle, nil
	}

	// Stale: claim the rebuild before releasing the lock so every other
	// caller for this key joins instead of racing.
	op := &rebuildOp{done: make(chan struct{})}
	m.inflight[key] = op
	st.state = stateSyncing
	st.forceRebuild = false
	old := handle
	delete(m.handles, key)
	m.mu.Unlock()

	newHandle, knownTime, rebuildErr := m.doReindex(cfg, old, reason)

	m.mu.Lock()
	delete(m.inflight, key)
	if rebuildErr != nil {
		st.state = stateUnsynced
		st.knownIndexTime = time.Time{}
	} else {
		m.handles[key] = newHandle
		st.state = stateSynced
		st.knownIndexTime = knownTime
	}
	m.mu.Unlock()

	op.err = rebuildErr
	close(op.done)

	if rebuildErr != nil {
		return nil, rebuildErr
	}
	return newHandle, nil
}

// staleness applies the detection rules and returns a non-empty reason when
// a rebuild is required. Caller holds m.mu.
func (m *Manager) staleness(cfg StoreConfig, st *indexState, handle *Handle) (string, error) {
	if st.forceRebuild {
		return "invalidated", nil
	}

	idxTime, idxExists, err := statArtifact(cfg.IndexPath)
	if err != nil {
		return "", err
	}
	newestDoc, docCount, err := scanStoreTimes(cfg.StorePath)
	if err != nil {
		return "", err
	}

	// A cached handle whose artifact vanished underneath it means the index
	// was deleted externally. On first access an absent artifact is simply
	// an uninitialized store.
	if handle != nil && !idxExists && docCount > 0 {
		return "missing_artifact", nil
	}
	if idxExists && newestDoc.Sub(idxTime) > m.tolerance {
		return "stale_documents", nil
	}
	if handle != nil && !st.knownIndexTime.IsZero() && idxExists && !idxTime.Equal(st.knownIndexTime) {
		return "artifact_replaced", nil
	}
	return "", nil
}

// doReindex destroys the superseded index, if any, and rebuilds a fresh one
// from the full document set. A failure leaves no cached handle so the next
// Acquire retries from scratch.
func (m *Manager) doReindex(cfg StoreConfig, old *Handle, reason string) (*Handle, time.Time, error) {
	opID, _ := gonanoid.New(8)
	logger := m.logger.With().Str("op", opID).Str("store", cfg.StorePath).Logger()
	logger.Info().Str("reason", reason).Msg("Rebuilding search index")
	start := time.Now()

	// Best-effort destruction of the previous artifact. A replacement
	// handle is never constructed before this has been attempted.
	if old != nil {
		if err := old.Index.Destroy(); err != nil {
			logger.Warn().Err(err).Msg("Failed to destroy superseded index")
		}
	} else if err := os.Remove(cfg.IndexPath); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Msg("Failed to remove stale index artifact")
	}

	handle, err := m.newHandle(cfg)
	if err != nil {
		return nil, time.Time{}, err
	}

	docs, err := handle.Store.List()
	if err != nil {
		handle.Index.Close()
		if m.metrics != nil {
			m.metrics.RebuildErrorsTotal.Inc()
		}
		return nil, time.Time{}, fmt.Errorf("reindex enumeration failed: %w", err)
	}
	for _, doc := range docs {
		if err := handle.Index.Upsert(doc); err != nil {
			handle.Index.Close()
			if m.metrics != nil {
				m.metrics.RebuildErrorsTotal.Inc()
			}
			return nil, time.Time{}, fmt.Errorf("reindex of %s failed: %w", doc.ID, err)
		}
	}

	knownTime, _, err := statArtifact(cfg.IndexPath)
	if err != nil {
		handle.Index.Close()
		return nil, time.Time{}, err
	}

	m.rebuilds.Add(1)
	if m.metrics != nil {
		m.metrics.RebuildsTotal.WithLabelValues(reason).Inc()
		m.metrics.RebuildDuration.Observe(time.Since(start).Seconds())
		m.metrics.DocumentsIndexed.Set(float64(len(docs)))
	}
	logger.Info().Int("documents", len(docs)).Dur("duration", time.Since(start)).
		Msg("Rebuild completed")

	return handle, knownTime, nil
}

func (m *Manager) newHandle(cfg StoreConfig) (*Handle, error) {
	store, err := NewDocumentStore(cfg.StorePath, m.logger)
	if err != nil {
		return nil, err
	}
	index, err := NewSearchIndex(cfg.IndexPath, m.logger)
	if err != nil {
		return nil, err
	}
	return &Handle{Store: store, Index: index}, nil
}

// Invalidate forces the next Acquire for the configuration to rebuild.
func (m *Manager) Invalidate(cfg StoreConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cfg.Key()
	st := m.states[key]
	if st == nil {
		st = &indexState{}
		m.states[key] = st
	}
	st.forceRebuild = true
}

// RecordWrite refreshes the last-known artifact time after a write through
// an acquired handle, so the manager does not mistake its own write for an
// out-of-band artifact replacement.
func (m *Manager) RecordWrite(cfg StoreConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.states[cfg.Key()]
	if st == nil {
		return
	}
	if t, ok, err := statArtifact(cfg.IndexPath); err == nil && ok {
		st.knownIndexTime = t
	}
}

// State reports the sync state for a configuration key.
func (m *Manager) State(cfg StoreConfig) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st := m.states[cfg.Key()]; st != nil {
		return st.state.String()
	}
	return stateUnsynced.String()
}

// RebuildCount returns how many rebuilds have executed since construction.
func (m *Manager) RebuildCount() int64 {
	return m.rebuilds.Load()
}

// Shutdown waits for in-flight rebuilds to settle, then releases every
// cached handle.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	ops := make([]*rebuildOp, 0, len(m.inflight))
	for _, op := range m.inflight {
		ops = append(ops, op)
	}
	m.mu.Unlock()

	for _, op := range ops {
		<-op.done
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for key, handle := range m.handles {
		if err := handle.Index.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.handles, key)
	}
	return firstErr
}

// statArtifact returns the index artifact's modification time and whether
// it exists.
func statArtifact(path string) (time.Time, bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to stat index artifact: %w", err)
	}
	return info.ModTime(), true, nil
}

// scanStoreTimes walks the store directory and returns the maximum document
// modification time and the document count. A missing store directory means
// no documents yet.
func scanStoreTimes(root string) (time.Time, int, error) {
	var newest time.Time
	count := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		count++
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, 0, nil
		}
		return time.Time{}, 0, fmt.Errorf("failed to scan store: %w", err)
	}
	return newest, count, nil
}
