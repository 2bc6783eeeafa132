package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// SearchIndex adapts the persisted SQLite FTS5 engine. The database file at
// the configured index path is the index artifact whose modification time
// the consistency layer tracks.
type SearchIndex struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// SearchHit is one ranked query result.
type SearchHit struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Snippet  string   `json:"snippet"`
	Score    float64  `json:"score"`
}

// QueryOptions restricts and truncates a query.
type QueryOptions struct {
	Limit    int
	Category string
	Tags     []string
}

const defaultQueryLimit = 20

// candidateLimit bounds how many raw FTS rows are scanned before the
// category/tag filters are applied.
const candidateLimit = 200

// NewSearchIndex opens the index artifact at path, creating it if absent.
// A corrupted artifact is removed and recreated empty rather than treated
// as fatal; a manual reindex can always repopulate it.
func NewSearchIndex(path string, logger zerolog.Logger) (*SearchIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("index path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := openIndexDB(path)
	if err != nil {
		if !isCorruptArtifact(err) {
			return nil, err
		}
		logger.Warn().Err(err).Str("artifact", path).
			Msg("Index artifact is corrupted, starting from an empty index")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove corrupted index artifact: %w", err)
		}
		db, err = openIndexDB(path)
		if err != nil {
			return nil, err
		}
	}

	return &SearchIndex{db: db, path: path, logger: logger}, nil
}

func openIndexDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS docs (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			body TEXT NOT NULL DEFAULT ''
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS docs_fts USING fts5(
			doc_id UNINDEXED,
			title,
			content,
			tokenize='porter unicode61'
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}
	return db, nil
}

// isCorruptArtifact reports whether err looks like SQLite rejecting the
// on-disk bytes rather than a genuine I/O or SQL failure.
func isCorruptArtifact(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "not a database") ||
		strings.Contains(msg, "database disk image is malformed")
}

// ArtifactPath returns the index artifact's file path.
func (ix *SearchIndex) ArtifactPath() string {
	return ix.path
}

// Upsert inserts or replaces the document by id.
func (ix *SearchIndex) Upsert(m *Memory) error {
	if ix == nil || ix.db == nil {
		return ErrIndexNotInitialized
	}

	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM docs WHERE id = ?", m.ID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM docs_fts WHERE doc_id = ?", m.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO docs (id, title, category, tags, body) VALUES (?, ?, ?, ?, ?)",
		m.ID, m.Title, m.Category, string(tags), m.Body,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO docs_fts (doc_id, title, content) VALUES (?, ?, ?)",
		m.ID, m.Title, m.Body,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// Remove deletes the document by id; absent ids are a no-op.
func (ix *SearchIndex) Remove(id string) error {
	if ix == nil || ix.db == nil {
		return ErrIndexNotInitialized
	}

	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin remove: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM docs WHERE id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM docs_fts WHERE doc_id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// Query runs an FTS5 match ranked by bm25, filters by exact category and
// all-of tags, and truncates to the limit.
func (ix *SearchIndex) Query(text string, opts QueryOptions) ([]SearchHit, error) {
	if ix == nil || ix.db == nil {
		return nil, ErrIndexNotInitialized
	}

	match := buildMatchQuery(text)
	if match == "" {
		return []SearchHit{}, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	rows, err := ix.db.Query(`
		SELECT d.id, d.title, d.category, d.tags,
		       snippet(docs_fts, 2, '[', ']', '…', 12),
		       bm25(docs_fts) AS score
		FROM docs_fts
		JOIN docs d ON d.id = docs_fts.doc_id
		WHERE docs_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`, match, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		var tagsJSON string
		var score float64
		if err := rows.Scan(&hit.ID, &hit.Title, &hit.Category, &tagsJSON, &hit.Snippet, &score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tagsJSON), &hit.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags for %s: %w", hit.ID, err)
		}

		if opts.Category != "" && hit.Category != opts.Category {
			continue
		}
		if !containsAll(hit.Tags, opts.Tags) {
			continue
		}

		// BM25 scores are negative, convert to positive
		hit.Score = -score

		hits = append(hits, hit)
		if len(hits) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []SearchHit{}
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (ix *SearchIndex) Count() (int, error) {
	if ix == nil || ix.db == nil {
		return 0, ErrIndexNotInitialized
	}
	var n int
	if err := ix.db.QueryRow("SELECT COUNT(*) FROM docs").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close releases the engine handle. Further operations report
// ErrIndexNotInitialized.
func (ix *SearchIndex) Close() error {
	if ix.db == nil {
		return nil
	}
	err := ix.db.Close()
	ix.db = nil
	return err
}

// Destroy closes the handle and removes the index artifact.
func (ix *SearchIndex) Destroy() error {
	if err := ix.Close(); err != nil {
		return err
	}
	if err := os.Remove(ix.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove index artifact: %w", err)
	}
	return nil
}

// buildMatchQuery quotes each term so user input cannot trip FTS5 query
// syntax. Terms with no indexable characters would read as empty phrases,
// so they are dropped. Terms are implicitly AND-ed.
func buildMatchQuery(text string) string {
	var quoted []string
	for _, f := range strings.Fields(text) {
		if !hasIndexableRune(f) {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

func hasIndexableRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func containsAll(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}
