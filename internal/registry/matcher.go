// Package registry resolves free-text organisation names against the
// offline SPOR registry export.
//
// Resolution tries an exact case-insensitive lookup first and falls back to
// a Jaro-Winkler scan over every candidate. A fuzzy hit is accepted only
// when its score strictly exceeds the threshold; ties on the best score go
// to the lexicographically smallest organisation id.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/epar/internal/record"
)

// DefaultThreshold is the minimum (exclusive) fuzzy score.
const DefaultThreshold = 0.90

// Match is the outcome of resolving one name.
type Match struct {
	OrganizationID string  `json:"organization_id,omitempty"`
	Score          float64 `json:"score"`
	Exact          bool    `json:"exact"`
	Resolved       bool    `json:"resolved"`
}

// Stats are the matcher's counters for one run.
type Stats struct {
	Matched   int64 `json:"matched"`
	Unmatched int64 `json:"unmatched"`
}

// Rate is matched / attempted, or 0 when nothing was attempted.
func (s Stats) Rate() float64 {
	total := s.Matched + s.Unmatched
	if total == 0 {
		return 0
	}
	return float64(s.Matched) / float64(total)
}

// Matcher resolves names against an Index. Results are memoized per
// folded name. Safe for concurrent use.
type Matcher struct {
	index     *Index
	threshold float64

	cache     sync.Map // folded name -> Match
	matched   atomic.Int64
	unmatched atomic.Int64
}

// NewMatcher creates a matcher over idx with the given threshold.
func NewMatcher(idx *Index, threshold float64) *Matcher {
	return &Matcher{index: idx, threshold: threshold}
}

// Resolve finds the best registry entry for name and updates the counters.
// An unresolved Match is a valid outcome, not an error.
func (m *Matcher) Resolve(name string) Match {
	match := m.lookup(name)
	if match.Resolved {
		m.matched.Add(1)
	} else {
		m.unmatched.Add(1)
	}
	return match
}

// Attach sets rec.OrganizationID from the match result (nil when
// unresolved).
func (m *Matcher) Attach(rec *record.CanonicalRecord) Match {
	match := m.Resolve(rec.OrganizationNameRaw)
	if match.Resolved {
		rec.OrganizationID = record.Ptr(match.OrganizationID)
	} else {
		rec.OrganizationID = nil
	}
	return match
}

// Stats returns a snapshot of the counters.
func (m *Matcher) Stats() Stats {
	return Stats{Matched: m.matched.Load(), Unmatched: m.unmatched.Load()}
}

func (m *Matcher) lookup(name string) Match {
	folded := FoldName(name)
	if folded == "" {
		return Match{}
	}
	if cached, ok := m.cache.Load(folded); ok {
		return cached.(Match)
	}
	match := m.score(folded)
	m.cache.Store(folded, match)
	return match
}

func (m *Matcher) score(folded string) Match {
	if id, ok := m.index.exact[folded]; ok {
		return Match{OrganizationID: id, Score: 1.0, Exact: true, Resolved: true}
	}

	best := Match{}
	for _, c := range m.index.candidates {
		s := JaroWinkler(folded, c.name)
		// Candidates are in ascending id order, so a strict comparison
		// keeps the smallest id among equal scores.
		if s > best.Score {
			best = Match{OrganizationID: c.id, Score: s}
		}
	}
	if best.OrganizationID != "" && best.Score > m.threshold {
		best.Resolved = true
		return best
	}
	return Match{Score: best.Score}
}
