package memory

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// DocumentStore owns the files under one store directory: one markdown file
// per memory, frontmatter header plus body. All writes are atomic
// (temp-write-then-rename), so a crash never leaves a truncated document.
type DocumentStore struct {
	root   string
	logger zerolog.Logger
}

// NewDocumentStore opens (creating if needed) the store rooted at root.
func NewDocumentStore(root string, logger zerolog.Logger) (*DocumentStore, error) {
	if root == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &DocumentStore{root: root, logger: logger}, nil
}

// Root returns the store directory.
func (s *DocumentStore) Root() string {
	return s.root
}

// DocPath derives the deterministic file path for a category and title.
func (s *DocumentStore) DocPath(category, title string) string {
	name := Slug(title) + ".md"
	if category == "" {
		return filepath.Join(s.root, name)
	}
	return filepath.Join(s.root, category, name)
}

// Create writes a new document and returns its path. If the derived path is
// already occupied by a document with a different id, the create fails with
// a PathCollisionError; an identical id overwrites in place.
func (s *DocumentStore) Create(m *Memory) (string, error) {
	path := s.DocPath(m.Category, m.Title)

	existing, err := s.readFile(path)
	if err != nil {
		return "", err
	}
	if existing != nil && existing.ID != m.ID {
		return "", &PathCollisionError{Path: path, ExistingID: existing.ID, NewID: m.ID}
	}

	data, err := encodeDocument(m)
	if err != nil {
		return "", err
	}
	if err := s.writeAtomic(path, data); err != nil {
		return "", err
	}
	m.Path = path
	return path, nil
}

// ReadByID scans the store for the document with the given id. Absence is a
// not-found result, not an error: (nil, nil).
func (s *DocumentStore) ReadByID(id string) (*Memory, error) {
	return s.scan(func(m *Memory) bool { return m.ID == id })
}

// ReadByTitle resolves a document by the slug of its title.
func (s *DocumentStore) ReadByTitle(title string) (*Memory, error) {
	want := Slug(title)
	return s.scan(func(m *Memory) bool { return Slug(m.Title) == want })
}

// UpdateFields carries a partial header update; nil fields are left alone.
type UpdateFields struct {
	Title        *string
	Category     *string
	Tags         *[]string
	Sources      *[]string
	LastReviewed *time.Time
	Links        *[]Link
}

// Update merges the provided fields into the document at path, optionally
// replaces the body, bumps updated_at, and rewrites the file atomically.
// A title or category change relocates the file to its new derived path, so
// the on-disk location always matches the header.
func (s *DocumentStore) Update(path string, fields UpdateFields, newBody *string) (*Memory, error) {
	m, err := s.readFile(path)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}

	if fields.Title != nil {
		m.Title = *fields.Title
	}
	if fields.Category != nil {
		m.Category = *fields.Category
	}
	if fields.Tags != nil {
		m.Tags = *fields.Tags
	}
	if fields.Sources != nil {
		m.Sources = *fields.Sources
	}
	if fields.LastReviewed != nil {
		m.LastReviewed = *fields.LastReviewed
	}
	if fields.Links != nil {
		m.Links = *fields.Links
	}
	if newBody != nil {
		m.Body = *newBody
	}
	m.UpdatedAt = time.Now()

	newPath := s.DocPath(m.Category, m.Title)
	if newPath != path {
		occupant, err := s.readFile(newPath)
		if err != nil {
			return nil, err
		}
		if occupant != nil && occupant.ID != m.ID {
			return nil, &PathCollisionError{Path: newPath, ExistingID: occupant.ID, NewID: m.ID}
		}
	}

	data, err := encodeDocument(m)
	if err != nil {
		return nil, err
	}
	if err := s.writeAtomic(newPath, data); err != nil {
		return nil, err
	}
	if newPath != path {
		if err := s.Delete(path); err != nil {
			return nil, err
		}
	}
	m.Path = newPath
	return m, nil
}

// Delete removes the document at path. Missing files are a no-op.
func (s *DocumentStore) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// List enumerates every document in the store. Unreadable or malformed files
// fail the enumeration so callers (notably reindex) never build from a
// partial view.
func (s *DocumentStore) List() ([]*Memory, error) {
	var docs []*Memory
	err := s.walk(func(path string) error {
		m, err := s.loadFile(path)
		if err != nil {
			return err
		}
		docs = append(docs, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// scan returns the first document matching the predicate, skipping files
// whose headers do not parse. A hand-broken file must not make every lookup
// fail.
func (s *DocumentStore) scan(match func(*Memory) bool) (*Memory, error) {
	var found *Memory
	err := s.walk(func(path string) error {
		if found != nil {
			return nil
		}
		m, err := s.loadFile(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", path).Msg("Skipping unreadable document")
			return nil
		}
		if match(m) {
			found = m
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// walk visits every markdown file under the store root.
func (s *DocumentStore) walk(fn func(path string) error) error {
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		return fn(path)
	})
	if err != nil {
		return fmt.Errorf("failed to walk store: %w", err)
	}
	return nil
}

// readFile loads a document, mapping a missing file to (nil, nil).
func (s *DocumentStore) readFile(path string) (*Memory, error) {
	m, err := s.loadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *DocumentStore) loadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := decodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// writeAtomic writes data through a sibling temp file and renames it over
// the target, so readers never observe a partial document.
func (s *DocumentStore) writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}

	suffix, err := gonanoid.New(8)
	if err != nil {
		return fmt.Errorf("failed to generate temp suffix: %w", err)
	}
	tmp := path + ".tmp-" + suffix

	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace document: %w", err)
	}
	return nil
}
