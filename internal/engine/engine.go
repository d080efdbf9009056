package engine

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/epar/internal/record"
)

// Engine classifies snapshots against prior state.
// An Engine holds no run state and is safe for concurrent use.
type Engine struct {
	workers int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWorkers bounds the goroutines used to classify entities.
// Values below 1 are ignored.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n >= 1 {
			e.workers = n
		}
	}
}

// New creates an Engine.
func New(opts ...EngineOption) *Engine {
	e := &Engine{workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan computes the outcome of applying snapshot at runAt to the prior
// current-version table. It performs no writes.
//
// A *ConsistencyError is returned when prior state or the snapshot breaks
// an SCD2 invariant; no partial plan is returned in that case.
func (e *Engine) Plan(ctx context.Context, prior []record.VersionRecord, snapshot []record.CanonicalRecord, runAt time.Time) (*Plan, error) {
	if runAt.IsZero() {
		return nil, fmt.Errorf("run timestamp is required")
	}
	runAt = runAt.UTC()

	current, err := indexPrior(prior)
	if err != nil {
		return nil, err
	}
	incoming, err := indexSnapshot(snapshot)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(current)+len(incoming))
	for id := range current {
		ids = append(ids, id)
	}
	for id := range incoming {
		if _, ok := current[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	decisions := make([]Decision, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range chunks(len(ids), e.workers) {
		g.Go(func() error {
			for i := c.lo; i < c.hi; i++ {
				if i%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				id := ids[i]
				d, err := decide(id, current[id], incoming[id], runAt)
				if err != nil {
					return err
				}
				decisions[i] = d
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return assemble(runAt, decisions), nil
}

// decide classifies one entity. prev and next may each be nil but not both.
func decide(id string, prev *record.VersionRecord, next *record.CanonicalRecord, runAt time.Time) (Decision, error) {
	d := Decision{EntityID: id, Prior: prev}
	switch {
	case prev == nil:
		v := record.NewVersion(*next, runAt)
		d.Action = ActionInsert
		d.Next = &v
		return d, nil
	case next != nil && next.RowHash == prev.RowHash:
		d.Action = ActionNoOp
		return d, nil
	}

	// Every remaining case closes prev.
	if !runAt.After(prev.ValidFrom) {
		return Decision{}, newNonMonotonicError(id,
			prev.ValidFrom.UTC().Format(time.RFC3339Nano),
			runAt.Format(time.RFC3339Nano))
	}
	if next == nil {
		d.Action = ActionVanish
		return d, nil
	}
	v := record.NewVersion(*next, runAt)
	d.Action = ActionUpdate
	d.Next = &v
	return d, nil
}

// assemble builds the delta and new current table from ordered decisions.
func assemble(runAt time.Time, decisions []Decision) *Plan {
	p := &Plan{
		RunAt:     runAt,
		Decisions: decisions,
		Closes:    []record.VersionRecord{},
		Opens:     []record.VersionRecord{},
		Current:   make([]record.VersionRecord, 0, len(decisions)),
	}
	for _, d := range decisions {
		switch d.Action {
		case ActionInsert:
			p.Counts.Inserts++
			p.Opens = append(p.Opens, *d.Next)
			p.Current = append(p.Current, *d.Next)
		case ActionNoOp:
			p.Counts.NoOps++
			p.Current = append(p.Current, *d.Prior)
		case ActionUpdate:
			p.Counts.Updates++
			p.Closes = append(p.Closes, d.Prior.ClosedAt(runAt))
			p.Opens = append(p.Opens, *d.Next)
			p.Current = append(p.Current, *d.Next)
		case ActionVanish:
			p.Counts.Closures++
			p.Closes = append(p.Closes, d.Prior.ClosedAt(runAt))
		}
	}
	return p
}

func indexPrior(prior []record.VersionRecord) (map[string]*record.VersionRecord, error) {
	out := make(map[string]*record.VersionRecord, len(prior))
	for i := range prior {
		v := &prior[i]
		if strings.TrimSpace(v.EntityID) == "" {
			return nil, newInvalidRecordError("", "prior version has no entity id")
		}
		if !v.IsCurrent || !v.Open() {
			return nil, newClosedInCurrentError(v.EntityID)
		}
		if _, dup := out[v.EntityID]; dup {
			return nil, newDuplicateCurrentError(v.EntityID)
		}
		out[v.EntityID] = v
	}
	return out, nil
}

func indexSnapshot(snapshot []record.CanonicalRecord) (map[string]*record.CanonicalRecord, error) {
	out := make(map[string]*record.CanonicalRecord, len(snapshot))
	for i := range snapshot {
		r := &snapshot[i]
		if strings.TrimSpace(r.EntityID) == "" {
			return nil, newInvalidRecordError("", fmt.Sprintf("record %q has no entity id", r.SourceID))
		}
		if r.RowHash == "" {
			return nil, newInvalidRecordError(r.EntityID, "record has no row hash")
		}
		if _, dup := out[r.EntityID]; dup {
			return nil, newDuplicateEntityError(r.EntityID)
		}
		out[r.EntityID] = r
	}
	return out, nil
}

type span struct{ lo, hi int }

// chunks splits [0,n) into at most k contiguous spans.
func chunks(n, k int) []span {
	if n == 0 {
		return nil
	}
	if k < 1 {
		k = 1
	}
	size := (n + k - 1) / k
	out := make([]span, 0, k)
	for lo := 0; lo < n; lo += size {
		out = append(out, span{lo: lo, hi: min(lo+size, n)})
	}
	return out
}
