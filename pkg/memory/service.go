package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ametel/mnemo/internal/metrics"
)

// Service is the operation surface over one configured memory store. Every
// operation goes through the consistency manager, so callers always work
// against an index that reflects the document files.
type Service struct {
	consistency *Manager
	cfg         StoreConfig
	categories  map[string]struct{}
	tags        map[string]struct{}
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Consistency *Manager
	Store       StoreConfig
	// AllowedCategories and AllowedTags constrain writes when non-empty.
	AllowedCategories []string
	AllowedTags       []string
	Logger            zerolog.Logger
	Metrics           *metrics.Metrics
}

// NewService creates a service bound to one store configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Consistency == nil {
		return nil, fmt.Errorf("consistency manager is required")
	}
	if cfg.Store.StorePath == "" || cfg.Store.IndexPath == "" {
		return nil, fmt.Errorf("store and index paths are required")
	}
	return &Service{
		consistency: cfg.Consistency,
		cfg:         cfg.Store,
		categories:  toSet(cfg.AllowedCategories),
		tags:        toSet(cfg.AllowedTags),
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}, nil
}

// Config returns the store configuration the service operates on.
func (s *Service) Config() StoreConfig {
	return s.cfg
}

// CreateRequest carries the fields for a new memory. LastReviewed is an
// RFC 3339 timestamp when provided.
type CreateRequest struct {
	Title        string   `json:"title"`
	Category     string   `json:"category,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Sources      []string `json:"sources,omitempty"`
	Body         string   `json:"body"`
	LastReviewed string   `json:"last_reviewed,omitempty"`
}

// Create validates, persists, and indexes a new memory.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Memory, error) {
	if req.Title == "" {
		return nil, newValidationError("title", "title is required")
	}
	if err := s.checkCategory(req.Category); err != nil {
		return nil, err
	}
	if err := s.checkTags(req.Tags); err != nil {
		return nil, err
	}
	reviewed, err := parseTimestamp(req.LastReviewed)
	if err != nil {
		return nil, err
	}

	handle, err := s.consistency.Acquire(ctx, s.cfg)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	m := &Memory{
		ID:           uuid.NewString(),
		Title:        req.Title,
		Category:     req.Category,
		Tags:         req.Tags,
		Sources:      req.Sources,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastReviewed: reviewed,
		Body:         req.Body,
	}

	if _, err := handle.Store.Create(m); err != nil {
		return nil, err
	}
	if err := handle.Index.Upsert(m); err != nil {
		return nil, err
	}
	s.consistency.RecordWrite(s.cfg)

	s.logger.Info().Str("id", m.ID).Str("title", m.Title).Msg("Memory created")
	return m, nil
}

// Get resolves a memory by id. Absence is (nil, nil).
func (s *Service) Get(ctx context.Context, id string) (*Memory, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	handle, err := s.consistency.Acquire(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	return handle.Store.ReadByID(id)
}

// GetByTitle resolves a memory by title slug. Absence is (nil, nil).
func (s *Service) GetByTitle(ctx context.Context, title string) (*Memory, error) {
	if title == "" {
		return nil, newValidationError("title", "title is required")
	}
	handle, err := s.consistency.Acquire(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	return handle.Store.ReadByTitle(title)
}

// UpdateRequest carries a partial update; nil fields are untouched.
type UpdateRequest struct {
	ID           string    `json:"id"`
	Title        *string   `json:"title,omitempty"`
	Category     *string   `json:"category,omitempty"`
	Tags         *[]string `json:"tags,omitempty"`
	Sources      *[]string `json:"sources,omitempty"`
	Body         *string   `json:"body,omitempty"`
	LastReviewed *string   `json:"last_reviewed,omitempty"`
}

// Update merges the provided fields into an existing memory and reindexes
// it. Absence is (nil, nil).
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*Memory, error) {
	if err := checkID(req.ID); err != nil {
		return nil, err
	}
	if req.Category != nil {
		if err := s.checkCategory(*req.Category); err != nil {
			return nil, err
		}
	}
	if req.Tags != nil {
		if err := s.checkTags(*req.Tags); err != nil {
			return nil, err
		}
	}

	fields := UpdateFields{
		Title:    req.Title,
		Category: req.Category,
		Tags:     req.Tags,
		Sources:  req.Sources,
	}
	if req.LastReviewed != nil {
		reviewed, err := parseTimestamp(*req.LastReviewed)
		if err != nil {
			return nil, err
		}
		fields.LastReviewed = &reviewed
	}

	handle, err := s.consistency.Acquire(ctx, s.cfg)
	if err != nil {
		return nil, err
	}

	existing, err := handle.Store.ReadByID(req.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	updated, err := handle.Store.Update(existing.Path, fields, req.Body)
	if err != nil {
		return nil, err
	}
	if err := handle.Index.Upsert(updated); err != nil {
		return nil, err
	}
	s.consistency.RecordWrite(s.cfg)

	return updated, nil
}

// Delete removes a memory, detaches its link edges from the counterparts,
// and drops it from the index. Reports whether the memory existed.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	if err := checkID(id); err != nil {
		return false, err
	}
	handle, err := s.consistency.Acquire(ctx, s.cfg)
	if err != nil {
		return false, err
	}

	m, err := handle.Store.ReadByID(id)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}

	graph := NewLinkGraph(handle.Store, s.logger)
	for _, l := range m.Links {
		if err := graph.Unlink(id, l.ID); err != nil {
			return false, err
		}
	}

	if err := handle.Store.Delete(m.Path); err != nil {
		return false, err
	}
	if err := handle.Index.Remove(id); err != nil {
		return false, err
	}
	s.consistency.RecordWrite(s.cfg)

	s.logger.Info().Str("id", id).Str("title", m.Title).Msg("Memory deleted")
	return true, nil
}

// SearchRequest is a filtered, ranked query.
type SearchRequest struct {
	Query    string   `json:"query"`
	Limit    int      `json:"limit,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Search runs a ranked full-text query over the index.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]SearchHit, error) {
	handle, err := s.consistency.Acquire(ctx, s.cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	hits, err := handle.Index.Query(req.Query, QueryOptions{
		Limit:    req.Limit,
		Category: req.Category,
		Tags:     req.Tags,
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SearchesTotal.Inc()
		s.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	}
	return hits, nil
}

// List enumerates stored memories, optionally filtered by category or tag.
func (s *Service) List(ctx context.Context, category, tag string) ([]*Memory, error) {
	handle, err := s.consistency.Acquire(ctx, s.cfg)
	if err != nil {
		return nil, err
	}

	docs, err := handle.Store.List()
	if err != nil {
		return nil, err
	}

	filtered := make([]*Memory, 0, len(docs))
	for _, m := range docs {
		if category != "" && m.Category != category {
			continue
		}
		if tag != "" && !containsAll(m.Tags, []string{tag}) {
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered, nil
}

// Link records a symmetric edge pair between two memories.
func (s *Service) Link(ctx context.Context, a, b, label string) error {
	if err := checkID(a); err != nil {
		return err
	}
	if err := checkID(b); err != nil {
		return err
	}

	handle, err := s.consistency.Acquire(ctx, s.cfg)
	if err != nil {
		return err
	}
	graph := NewLinkGraph(handle.Store, s.logger)
	if err := graph.Link(a, b, label); err != nil {
		return err
	}
	return s.reindexPair(handle, a, b)
}

// Unlink removes both directions of an edge pair.
func (s *Service) Unlink(ctx context.Context, a, b string) error {
	if err := checkID(a); err != nil {
		return err
	}
	if err := checkID(b); err != nil {
		return err
	}

	handle, err := s.consistency.Acquire(ctx, s.cfg)
	if err != nil {
		return err
	}
	graph := NewLinkGraph(handle.Store, s.logger)
	if err := graph.Unlink(a, b); err != nil {
		return err
	}
	return s.reindexPair(handle, a, b)
}

// reindexPair refreshes the two endpoints in the index after a link
// mutation, keeping the artifact newer than the touched document files.
func (s *Service) reindexPair(handle *Handle, a, b string) error {
	for _, id := range []string{a, b} {
		m, err := handle.Store.ReadByID(id)
		if err != nil {
			return err
		}
		if m == nil {
			continue
		}
		if err := handle.Index.Upsert(m); err != nil {
			return err
		}
	}
	s.consistency.RecordWrite(s.cfg)
	return nil
}

// RepairLinks repairs link symmetry for one memory, or for the whole store
// when id is empty.
func (s *Service) RepairLinks(ctx context.Context, id string) (*RepairReport, error) {
	handle, err := s.consistency.Acquire(ctx, s.cfg)
	if err != nil {
		return nil, err
	}

	graph := NewLinkGraph(handle.Store, s.logger)
	var report *RepairReport
	if id == "" {
		report, err = graph.RepairAll()
	} else {
		if err := checkID(id); err != nil {
			return nil, err
		}
		report, err = graph.Repair(id)
	}
	if err != nil {
		return nil, err
	}

	s.consistency.RecordWrite(s.cfg)
	if s.metrics != nil {
		s.metrics.LinkRepairsTotal.Add(float64(report.Dangling + report.Restored))
	}
	return report, nil
}

// Reindex forces a full rebuild and returns the refreshed stats.
func (s *Service) Reindex(ctx context.Context) (*Stats, error) {
	s.consistency.Invalidate(s.cfg)
	if _, err := s.consistency.Acquire(ctx, s.cfg); err != nil {
		return nil, err
	}
	return s.Stats(ctx)
}

// Stats describes the current state of the store and index.
type Stats struct {
	Documents int    `json:"documents"`
	Indexed   int    `json:"indexed"`
	State     string `json:"state"`
	StorePath string `json:"store_path"`
	IndexPath string `json:"index_path"`
}

// Stats reports document and index counts plus the sync state.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	handle, err := s.consistency.Acquire(ctx, s.cfg)
	if err != nil {
		return nil, err
	}

	docs, err := handle.Store.List()
	if err != nil {
		return nil, err
	}
	indexed, err := handle.Index.Count()
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.DocumentsIndexed.Set(float64(indexed))
	}
	return &Stats{
		Documents: len(docs),
		Indexed:   indexed,
		State:     s.consistency.State(s.cfg),
		StorePath: s.cfg.StorePath,
		IndexPath: s.cfg.IndexPath,
	}, nil
}

func (s *Service) checkCategory(category string) error {
	if category == "" || len(s.categories) == 0 {
		return nil
	}
	if _, ok := s.categories[category]; !ok {
		return newValidationError("category", "%q is not an allowed category", category)
	}
	return nil
}

func (s *Service) checkTags(tags []string) error {
	if len(s.tags) == 0 {
		return nil
	}
	for _, t := range tags {
		if _, ok := s.tags[t]; !ok {
			return newValidationError("tags", "%q is not an allowed tag", t)
		}
	}
	return nil
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return newValidationError("id", "malformed identifier %q", id)
	}
	return nil
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, newValidationError("last_reviewed", "malformed date %q (want RFC 3339)", value)
	}
	return t, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
