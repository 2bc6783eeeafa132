package memory

import (
	"fmt"

	"github.com/rs/zerolog"
)

// LinkGraph maintains the symmetric relation edges persisted in document
// headers: an edge recorded on one endpoint must be mirrored on the other.
type LinkGraph struct {
	store  *DocumentStore
	logger zerolog.Logger
}

// NewLinkGraph builds a link graph over the given store.
func NewLinkGraph(store *DocumentStore, logger zerolog.Logger) *LinkGraph {
	return &LinkGraph{store: store, logger: logger}
}

// RepairReport summarizes a symmetry repair pass.
type RepairReport struct {
	Scanned  int `json:"scanned"`
	Dangling int `json:"dangling"`
	Restored int `json:"restored"`
}

// Link records the edge pair a->b and b->a. Labels default to the counterpart
// title. Relinking an existing pair updates the labels without duplicating
// the edges.
func (g *LinkGraph) Link(a, b, label string) error {
	if a == b {
		return newValidationError("link", "cannot link a memory to itself")
	}

	src, err := g.store.ReadByID(a)
	if err != nil {
		return err
	}
	if src == nil {
		return newValidationError("link", "unknown memory id %s", a)
	}
	dst, err := g.store.ReadByID(b)
	if err != nil {
		return err
	}
	if dst == nil {
		return newValidationError("link", "unknown memory id %s", b)
	}

	forward := label
	if forward == "" {
		forward = dst.Title
	}
	if err := g.writeEdge(src, b, forward); err != nil {
		return err
	}
	return g.writeEdge(dst, a, src.Title)
}

// Unlink removes both directions of the edge pair; a never-linked pair is a
// no-op.
func (g *LinkGraph) Unlink(a, b string) error {
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		m, err := g.store.ReadByID(pair[0])
		if err != nil {
			return err
		}
		if m == nil {
			continue
		}
		if err := g.removeEdge(m, pair[1]); err != nil {
			return err
		}
	}
	return nil
}

// Repair loads id's neighbor set, drops neighbors that no longer exist,
// collapses duplicate entries for the same neighbor, and restores any missing
// reverse edge. Valid symmetric edges are untouched.
func (g *LinkGraph) Repair(id string) (*RepairReport, error) {
	m, err := g.store.ReadByID(id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, newValidationError("repair", "unknown memory id %s", id)
	}
	return g.repairOne(m)
}

// RepairAll runs a repair pass over every document in the store.
func (g *LinkGraph) RepairAll() (*RepairReport, error) {
	docs, err := g.store.List()
	if err != nil {
		return nil, err
	}

	total := &RepairReport{}
	for _, m := range docs {
		report, err := g.repairOne(m)
		if err != nil {
			return nil, fmt.Errorf("repair of %s failed: %w", m.ID, err)
		}
		total.Scanned++
		total.Dangling += report.Dangling
		total.Restored += report.Restored
	}
	return total, nil
}

func (g *LinkGraph) repairOne(m *Memory) (*RepairReport, error) {
	// Reload from disk: an earlier repair in the same pass may have added
	// an edge to this document after it was enumerated.
	if fresh, err := g.store.readFile(m.Path); err != nil {
		return nil, err
	} else if fresh != nil {
		m = fresh
	}

	report := &RepairReport{Scanned: 1}

	kept := make([]Link, 0, len(m.Links))
	seen := make(map[string]bool, len(m.Links))
	for _, l := range m.Links {
		if seen[l.ID] {
			g.logger.Debug().Str("memory", m.ID).Str("neighbor", l.ID).
				Msg("Dropping duplicate link")
			continue
		}
		neighbor, err := g.store.ReadByID(l.ID)
		if err != nil {
			return nil, err
		}
		if neighbor == nil {
			report.Dangling++
			g.logger.Debug().Str("memory", m.ID).Str("neighbor", l.ID).
				Msg("Dropping dangling link")
			continue
		}
		seen[l.ID] = true
		kept = append(kept, l)

		if !hasEdge(neighbor, m.ID) {
			if err := g.writeEdge(neighbor, m.ID, m.Title); err != nil {
				return nil, err
			}
			report.Restored++
		}
	}

	if len(kept) != len(m.Links) {
		if _, err := g.store.Update(m.Path, UpdateFields{Links: &kept}, nil); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// writeEdge adds or relabels the directed edge from m to target.
func (g *LinkGraph) writeEdge(m *Memory, target, label string) error {
	links := make([]Link, len(m.Links))
	copy(links, m.Links)

	found := false
	for i := range links {
		if links[i].ID == target {
			links[i].Label = label
			found = true
			break
		}
	}
	if !found {
		links = append(links, Link{ID: target, Label: label})
	}

	_, err := g.store.Update(m.Path, UpdateFields{Links: &links}, nil)
	return err
}

// removeEdge drops the directed edge from m to target, if present.
func (g *LinkGraph) removeEdge(m *Memory, target string) error {
	links := make([]Link, 0, len(m.Links))
	for _, l := range m.Links {
		if l.ID != target {
			links = append(links, l)
		}
	}
	if len(links) == len(m.Links) {
		return nil
	}
	_, err := g.store.Update(m.Path, UpdateFields{Links: &links}, nil)
	return err
}

func hasEdge(m *Memory, target string) bool {
	for _, l := range m.Links {
		if l.ID == target {
			return true
		}
	}
	return false
}
