package engine

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/epar/internal/record"
)

// History is an in-memory version store. It applies plans with the same
// all-or-nothing semantics and run ordering as the SQLite store and backs
// the scenario harness and engine tests.
type History struct {
	mu       sync.RWMutex
	versions map[string][]record.VersionRecord // ordered by ValidFrom
	runs     map[int64]struct{}
	latest   time.Time // newest applied run; zero before the first
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{
		versions: make(map[string][]record.VersionRecord),
		runs:     make(map[int64]struct{}),
	}
}

// Apply commits p. Either every close and open is applied or none is.
//
// Run ordering mirrors the store's ledger: re-applying a run timestamp
// returns ErrRunAlreadyApplied, and a run older than the latest applied
// one is rejected with NON_MONOTONIC_RUN, so a late run can never
// re-open an entity inside an interval that is already closed.
func (h *History) Apply(p *Plan) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := p.RunAt.UnixNano()
	if _, done := h.runs[key]; done {
		return ErrRunAlreadyApplied
	}
	if p.RunAt.Before(h.latest) {
		return NewRunOrderError(
			p.RunAt.UTC().Format(time.RFC3339Nano),
			h.latest.Format(time.RFC3339Nano))
	}

	// Stage touched entities on copies so a failure leaves h untouched.
	staged := make(map[string][]record.VersionRecord)
	load := func(id string) []record.VersionRecord {
		if vs, ok := staged[id]; ok {
			return vs
		}
		return slices.Clone(h.versions[id])
	}

	for _, c := range p.Closes {
		vs := load(c.EntityID)
		if len(vs) == 0 {
			return NewDoubleCloseError(c.EntityID)
		}
		last := &vs[len(vs)-1]
		if !last.Open() || !last.ValidFrom.Equal(c.ValidFrom) {
			return NewDoubleCloseError(c.EntityID)
		}
		*last = last.ClosedAt(p.RunAt)
		staged[c.EntityID] = vs
	}
	for _, o := range p.Opens {
		vs := load(o.EntityID)
		if len(vs) > 0 && vs[len(vs)-1].Open() {
			return newDuplicateCurrentError(o.EntityID)
		}
		staged[o.EntityID] = append(vs, o)
	}

	for id, vs := range staged {
		h.versions[id] = vs
	}
	h.runs[key] = struct{}{}
	h.latest = p.RunAt.UTC()
	return nil
}

// Current returns the current-version table sorted by entity id.
func (h *History) Current() []record.VersionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]record.VersionRecord, 0, len(h.versions))
	for _, id := range h.sortedIDs() {
		vs := h.versions[id]
		if last := vs[len(vs)-1]; last.Open() {
			out = append(out, last)
		}
	}
	return out
}

// Versions returns every version of entityID in valid_from order.
func (h *History) Versions(entityID string) []record.VersionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.versions[entityID])
}

// All returns every version ordered by entity id, then valid_from.
func (h *History) All() []record.VersionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []record.VersionRecord
	for _, id := range h.sortedIDs() {
		out = append(out, h.versions[id]...)
	}
	return out
}

// Runs returns the applied run timestamps in order.
func (h *History) Runs() []time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]time.Time, 0, len(h.runs))
	for k := range h.runs {
		out = append(out, time.Unix(0, k).UTC())
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out
}

// CheckInvariants verifies the stored history:
//   - at most one open version per entity, and it is the latest
//   - is_current is set exactly on open versions
//   - intervals of one entity do not overlap and are non-empty
func (h *History) CheckInvariants() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, id := range h.sortedIDs() {
		if err := CheckVersions(h.versions[id]); err != nil {
			return err
		}
	}
	return nil
}

// CheckVersions verifies the SCD2 invariants of one entity's versions,
// given in valid_from order.
func CheckVersions(vs []record.VersionRecord) error {
	for i, v := range vs {
		if v.IsCurrent != v.Open() {
			return newClosedInCurrentError(v.EntityID)
		}
		if v.Open() {
			if i != len(vs)-1 {
				return newOverlapError(v.EntityID, "open version is not the latest")
			}
			continue
		}
		if !v.ValidTo.After(v.ValidFrom) {
			return newOverlapError(v.EntityID, "version closes at or before it opens")
		}
		if i+1 < len(vs) && vs[i+1].ValidFrom.Before(*v.ValidTo) {
			return newOverlapError(v.EntityID, "version opens before its predecessor closes")
		}
	}
	return nil
}

func (h *History) sortedIDs() []string {
	ids := make([]string, 0, len(h.versions))
	for id := range h.versions {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, strings.Compare)
	return ids
}
