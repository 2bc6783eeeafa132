package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, categories, tags []string) (*Service, *Manager, func()) {
	base, err := os.MkdirTemp("", "service-test-*")
	require.NoError(t, err)

	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	manager := NewManager(ManagerConfig{Logger: logger})
	svc, err := NewService(ServiceConfig{
		Consistency: manager,
		Store: StoreConfig{
			StorePath: filepath.Join(base, "memory"),
			IndexPath: filepath.Join(base, "index.db"),
		},
		AllowedCategories: categories,
		AllowedTags:       tags,
		Logger:            logger,
	})
	require.NoError(t, err)

	cleanup := func() {
		manager.Shutdown()
		os.RemoveAll(base)
	}
	return svc, manager, cleanup
}

func TestService_CreateAndGet(t *testing.T) {
	svc, manager, cleanup := newTestService(t, nil, nil)
	defer cleanup()
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateRequest{
		Title:        "Deployment Checklist",
		Category:     "ops",
		Tags:         []string{"release"},
		Sources:      []string{"https://example.com/runbook"},
		Body:         "Verify migrations before rolling pods.",
		LastReviewed: "2026-08-01T09:00:00Z",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "2026-08-01T09:00:00Z", created.LastReviewed.Format(time.RFC3339))

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.Title, got.Title)
	assert.Equal(t, created.Body, got.Body)

	byTitle, err := svc.GetByTitle(ctx, "Deployment Checklist")
	require.NoError(t, err)
	require.NotNil(t, byTitle)
	assert.Equal(t, created.ID, byTitle.ID)

	// The create indexed the document in place; no rebuild was needed.
	hits, err := svc.Search(ctx, SearchRequest{Query: "migrations"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, created.ID, hits[0].ID)
	assert.Equal(t, int64(0), manager.RebuildCount())
}

func TestService_Create_Validation(t *testing.T) {
	svc, _, cleanup := newTestService(t, []string{"ops"}, []string{"release"})
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"missing title", CreateRequest{Body: "text"}},
		{"category not allowed", CreateRequest{Title: "A", Category: "random"}},
		{"tag not allowed", CreateRequest{Title: "A", Tags: []string{"surprise"}}},
		{"malformed last reviewed", CreateRequest{Title: "A", LastReviewed: "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, IsValidation(err), "expected a validation error, got %v", err)
		})
	}
}

func TestService_Create_TitleCollision(t *testing.T) {
	svc, _, cleanup := newTestService(t, nil, nil)
	defer cleanup()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Title: "Same Slot", Category: "ops"})
	require.NoError(t, err)

	// A second memory mapping to the same file path must be refused, not
	// silently overwrite the first.
	_, err = svc.Create(ctx, CreateRequest{Title: "Same Slot", Category: "ops"})
	require.Error(t, err)
	var collision *PathCollisionError
	assert.ErrorAs(t, err, &collision)
}

func TestService_Get_MalformedID(t *testing.T) {
	svc, _, cleanup := newTestService(t, nil, nil)
	defer cleanup()

	_, err := svc.Get(context.Background(), "not-a-uuid")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestService_Get_Absent(t *testing.T) {
	svc, _, cleanup := newTestService(t, nil, nil)
	defer cleanup()

	got, err := svc.Get(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestService_Update(t *testing.T) {
	svc, manager, cleanup := newTestService(t, nil, nil)
	defer cleanup()
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateRequest{
		Title: "Cache Sizing",
		Body:  "Initial guess: 512MB.",
	})
	require.NoError(t, err)

	body := "Measured working set: 2GB."
	tags := []string{"capacity"}
	updated, err := svc.Update(ctx, UpdateRequest{
		ID:   created.ID,
		Body: &body,
		Tags: &tags,
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Cache Sizing", updated.Title)
	assert.Equal(t, tags, updated.Tags)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))

	// The index reflects the new body without a rebuild.
	hits, err := svc.Search(ctx, SearchRequest{Query: "working set"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, created.ID, hits[0].ID)
	assert.Equal(t, int64(0), manager.RebuildCount())
}

func TestService_Update_Absent(t *testing.T) {
	svc, _, cleanup := newTestService(t, nil, nil)
	defer cleanup()

	title := "New Title"
	updated, err := svc.Update(context.Background(), UpdateRequest{
		ID:    uuid.NewString(),
		Title: &title,
	})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestService_Delete(t *testing.T) {
	svc, manager, cleanup := newTestService(t, nil, nil)
	defer cleanup()
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateRequest{Title: "Doomed", Body: "transient note"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, CreateRequest{Title: "Survivor"})
	require.NoError(t, err)
	require.NoError(t, svc.Link(ctx, a.ID, b.ID, ""))

	deleted, err := svc.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// The counterpart's edge is detached, not left dangling.
	gotB, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, gotB.Links)

	// Dropped from the index in place; no rebuild.
	hits, err := svc.Search(ctx, SearchRequest{Query: "transient"})
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, int64(0), manager.RebuildCount())

	// Deleting again reports absence.
	deleted, err = svc.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestService_List(t *testing.T) {
	svc, _, cleanup := newTestService(t, nil, nil)
	defer cleanup()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Title: "Ops One", Category: "ops", Tags: []string{"release"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRequest{Title: "Ops Two", Category: "ops", Tags: []string{"capacity"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRequest{Title: "Research Note", Category: "research"})
	require.NoError(t, err)

	all, err := svc.List(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ops, err := svc.List(ctx, "ops", "")
	require.NoError(t, err)
	assert.Len(t, ops, 2)

	release, err := svc.List(ctx, "", "release")
	require.NoError(t, err)
	require.Len(t, release, 1)
	assert.Equal(t, "Ops One", release[0].Title)

	none, err := svc.List(ctx, "research", "release")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestService_LinkAndUnlink(t *testing.T) {
	svc, _, cleanup := newTestService(t, nil, nil)
	defer cleanup()
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateRequest{Title: "Incident 42"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, CreateRequest{Title: "Postmortem Template"})
	require.NoError(t, err)

	require.NoError(t, svc.Link(ctx, a.ID, b.ID, "used template"))

	gotA, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, gotA.Links, 1)
	assert.Equal(t, b.ID, gotA.Links[0].ID)
	assert.Equal(t, "used template", gotA.Links[0].Label)

	gotB, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, gotB.Links, 1)
	assert.Equal(t, a.ID, gotB.Links[0].ID)

	require.NoError(t, svc.Unlink(ctx, a.ID, b.ID))

	gotA, err = svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, gotA.Links)
	gotB, err = svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, gotB.Links)
}

func TestService_RepairLinks(t *testing.T) {
	svc, manager, cleanup := newTestService(t, nil, nil)
	defer cleanup()
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateRequest{Title: "Holder"})
	require.NoError(t, err)

	// Plant a dangling reference behind the service's back.
	handle, err := manager.Acquire(ctx, svc.Config())
	require.NoError(t, err)
	stored, err := handle.Store.ReadByID(a.ID)
	require.NoError(t, err)
	stored.Links = append(stored.Links, Link{ID: uuid.NewString(), Label: "ghost"})
	_, err = handle.Store.Update(stored.Path, UpdateFields{Links: &stored.Links}, nil)
	require.NoError(t, err)
	manager.RecordWrite(svc.Config())

	report, err := svc.RepairLinks(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Dangling)
	assert.Equal(t, 0, report.Restored)

	gotA, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, gotA.Links)
}

func TestService_ReindexAndStats(t *testing.T) {
	svc, manager, cleanup := newTestService(t, nil, nil)
	defer cleanup()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Title: "First", Body: "one"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRequest{Title: "Second", Body: "two"})
	require.NoError(t, err)

	stats, err := svc.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.Indexed)
	assert.Equal(t, "synced", stats.State)
	assert.Equal(t, int64(1), manager.RebuildCount())
}

// A document edited outside the service becomes searchable once the edit is
// older than the staleness tolerance allows the index to lag.
func TestService_ExternalEditTriggersRebuild(t *testing.T) {
	svc, manager, cleanup := newTestService(t, nil, nil)
	defer cleanup()
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateRequest{
		Title: "Project Ideas",
		Body:  "Brainstorm session notes.",
	})
	require.NoError(t, err)

	hits, err := svc.Search(ctx, SearchRequest{Query: "brainstorm"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, int64(0), manager.RebuildCount())

	// Rewrite the file directly, the way an editor would.
	handle, err := manager.Acquire(ctx, svc.Config())
	require.NoError(t, err)
	onDisk, err := handle.Store.ReadByID(created.ID)
	require.NoError(t, err)
	onDisk.Body = "Brainstorm session notes.\n\nAdd a zeppelin rental marketplace."
	data, err := encodeDocument(onDisk)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(onDisk.Path, data, 0o644))

	// Age the artifact so the edit sits beyond the staleness tolerance.
	old := time.Now().Add(-10 * time.Second)
	require.NoError(t, os.Chtimes(svc.Config().IndexPath, old, old))

	hits, err = svc.Search(ctx, SearchRequest{Query: "zeppelin"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, created.ID, hits[0].ID)
	assert.Equal(t, int64(1), manager.RebuildCount())

	// Settled: repeating the search does not rebuild again.
	_, err = svc.Search(ctx, SearchRequest{Query: "zeppelin"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), manager.RebuildCount())
}
