package memory

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Link is a labeled edge to another memory. Edges are stored on both
// endpoints; see LinkGraph for the symmetry rules.
type Link struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
}

// Memory is one stored document: structured metadata plus a free-form body.
type Memory struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Category     string    `json:"category,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Sources      []string  `json:"sources,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastReviewed time.Time `json:"last_reviewed,omitempty"`
	Links        []Link    `json:"links,omitempty"`
	Body         string    `json:"body"`

	// Path is the absolute file path backing this memory. Set by the store
	// on read and create; not part of the persisted header.
	Path string `json:"-"`
}

// frontmatter is the YAML header persisted at the top of each document file.
type frontmatter struct {
	ID           string     `yaml:"id"`
	Title        string     `yaml:"title"`
	Category     string     `yaml:"category,omitempty"`
	Tags         []string   `yaml:"tags,omitempty"`
	Sources      []string   `yaml:"sources,omitempty"`
	CreatedAt    time.Time  `yaml:"created_at"`
	UpdatedAt    time.Time  `yaml:"updated_at"`
	LastReviewed *time.Time `yaml:"last_reviewed,omitempty"`
	Links        []Link     `yaml:"links,omitempty"`
}

const frontmatterDelim = "---"

// encodeDocument renders a memory as a frontmatter header followed by the body.
func encodeDocument(m *Memory) ([]byte, error) {
	fm := frontmatter{
		ID:        m.ID,
		Title:     m.Title,
		Category:  m.Category,
		Tags:      m.Tags,
		Sources:   m.Sources,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
		Links:     m.Links,
	}
	if !m.LastReviewed.IsZero() {
		t := m.LastReviewed.UTC()
		fm.LastReviewed = &t
	}

	header, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}

	// The delimiter line plus one blank separator is exactly what decode
	// strips back off, so the body survives byte for byte.
	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim + "\n")
	buf.Write(header)
	buf.WriteString(frontmatterDelim + "\n\n")
	buf.WriteString(m.Body)
	return buf.Bytes(), nil
}

// decodeDocument parses a document file into a memory. The header must be
// a well-formed frontmatter block; anything after it is the body verbatim.
func decodeDocument(data []byte) (*Memory, error) {
	content := string(data)

	if !strings.HasPrefix(content, frontmatterDelim+"\n") {
		return nil, fmt.Errorf("document has no frontmatter header")
	}

	rest := content[len(frontmatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end < 0 {
		return nil, fmt.Errorf("unterminated frontmatter header")
	}

	headerText := rest[:end+1]

	// Strip the newline closing the delimiter line, then the single blank
	// separator line encode writes. Everything after that is body, verbatim.
	body := rest[end+1+len(frontmatterDelim):]
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(headerText), &fm); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	if fm.ID == "" {
		return nil, fmt.Errorf("document header has no id")
	}

	m := &Memory{
		ID:        fm.ID,
		Title:     fm.Title,
		Category:  fm.Category,
		Tags:      fm.Tags,
		Sources:   fm.Sources,
		CreatedAt: fm.CreatedAt,
		UpdatedAt: fm.UpdatedAt,
		Links:     fm.Links,
		Body:      body,
	}
	if fm.LastReviewed != nil {
		m.LastReviewed = *fm.LastReviewed
	}
	return m, nil
}

// Slug derives the deterministic path component for a title: lowercase,
// runs of non-alphanumerics collapsed to a single dash.
func Slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "untitled"
	}
	return s
}
