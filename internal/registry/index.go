package registry

import (
	"sort"
	"strings"

	"github.com/roach88/epar/internal/record"
)

// candidate is one registry entry prepared for scoring.
type candidate struct {
	id   string
	name string // folded
}

// Index is a read-only view over the registry, built once per run.
// It is safe for concurrent readers without locking.
type Index struct {
	exact      map[string]string // folded name -> smallest organization id
	names      map[string]string // organization id -> canonical name
	candidates []candidate       // sorted by id ascending
}

// IndexOption configures index construction.
type IndexOption func(*indexOptions)

type indexOptions struct {
	role string
}

// WithRole keeps only entries whose role contains role (case-insensitive).
// An empty role keeps every entry.
func WithRole(role string) IndexOption {
	return func(o *indexOptions) {
		o.role = strings.ToLower(strings.TrimSpace(role))
	}
}

// FoldName is the comparison key for organisation names: lowercase with
// runs of whitespace collapsed.
func FoldName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// NewIndex builds the exact-name map and the fuzzy candidate list.
// Entries without an id or name are skipped.
func NewIndex(entries []record.RegistryEntry, opts ...IndexOption) *Index {
	var o indexOptions
	for _, opt := range opts {
		opt(&o)
	}

	idx := &Index{
		exact: make(map[string]string, len(entries)),
		names: make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		id := strings.TrimSpace(e.OrganizationID)
		folded := FoldName(e.Name)
		if id == "" || folded == "" {
			continue
		}
		if o.role != "" && !strings.Contains(strings.ToLower(e.Role), o.role) {
			continue
		}
		if _, dup := idx.names[id]; dup {
			continue
		}
		idx.names[id] = e.Name
		idx.candidates = append(idx.candidates, candidate{id: id, name: folded})
		if prev, ok := idx.exact[folded]; !ok || id < prev {
			idx.exact[folded] = id
		}
	}

	sort.Slice(idx.candidates, func(i, j int) bool {
		return idx.candidates[i].id < idx.candidates[j].id
	})
	return idx
}

// Len returns the number of indexed entries.
func (idx *Index) Len() int {
	return len(idx.candidates)
}

// Name returns the canonical registry name for an organisation id.
func (idx *Index) Name(id string) (string, bool) {
	n, ok := idx.names[id]
	return n, ok
}
