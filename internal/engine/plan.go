package engine

import (
	"time"

	"github.com/roach88/epar/internal/record"
)

// Action is the per-entity outcome of a run.
type Action string

const (
	// ActionInsert opens the first version of a new (or returning) entity.
	ActionInsert Action = "INSERT"

	// ActionNoOp leaves an unchanged entity alone.
	ActionNoOp Action = "NOOP"

	// ActionUpdate closes the current version and opens a new one at the
	// same timestamp.
	ActionUpdate Action = "UPDATE"

	// ActionVanish closes the current version of an entity missing from
	// the snapshot. No new version is opened.
	ActionVanish Action = "VANISH"
)

// Decision is the classification of one entity.
type Decision struct {
	EntityID string `json:"entity_id"`
	Action   Action `json:"action"`

	// Prior is the entity's open version before the run, nil for inserts.
	Prior *record.VersionRecord `json:"prior,omitempty"`

	// Next is the version opened by this run, nil for no-ops and vanishes.
	Next *record.VersionRecord `json:"next,omitempty"`
}

// Counts tallies decisions by action.
type Counts struct {
	Inserts  int64 `json:"inserts"`
	Updates  int64 `json:"updates"`
	Closures int64 `json:"closures"`
	NoOps    int64 `json:"noops"`
}

// Writes is the number of version rows a commit touches: one per insert
// and closure, two per update.
func (c Counts) Writes() int64 {
	return c.Inserts + 2*c.Updates + c.Closures
}

// Plan is the full, uncommitted outcome of a run.
//
// INVARIANTS:
//   - Decisions, Closes, Opens and Current are sorted by entity id
//   - every version in Closes is closed at RunAt
//   - every version in Opens starts at RunAt
//   - Current holds exactly one open version per live entity
type Plan struct {
	RunAt     time.Time              `json:"run_at"`
	Decisions []Decision             `json:"decisions"`
	Closes    []record.VersionRecord `json:"closes"`
	Opens     []record.VersionRecord `json:"opens"`
	Current   []record.VersionRecord `json:"current"`
	Counts    Counts                 `json:"counts"`
}

// Empty reports whether committing the plan would write no version rows.
// An identical snapshot always yields an empty plan.
func (p *Plan) Empty() bool {
	return len(p.Closes) == 0 && len(p.Opens) == 0
}

// Decision returns the decision for entityID.
func (p *Plan) Decision(entityID string) (Decision, bool) {
	for _, d := range p.Decisions {
		if d.EntityID == entityID {
			return d, true
		}
	}
	return Decision{}, false
}
