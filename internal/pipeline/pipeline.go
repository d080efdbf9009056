// Package pipeline runs one daily snapshot through the Silver stages:
// normalize, family, registry match, row hash, then the historization plan.
//
// Per-row stages are data-parallel over a bounded errgroup; results are
// written by index so output order follows input order. Planning is the
// barrier. The pipeline never commits: callers pass the plan to a store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/epar/internal/config"
	"github.com/roach88/epar/internal/engine"
	"github.com/roach88/epar/internal/family"
	"github.com/roach88/epar/internal/normalize"
	"github.com/roach88/epar/internal/record"
	"github.com/roach88/epar/internal/registry"
	"github.com/roach88/epar/internal/report"
)

// KindDuplicateSourceID quarantines a repeated source_id within one
// snapshot. The first occurrence is kept.
const KindDuplicateSourceID = "DUPLICATE_SOURCE_ID"

// Input is everything one run needs. Prior is the current-version table
// as persisted by the previous run.
type Input struct {
	Rows     []record.RawRow
	Registry []record.RegistryEntry
	Prior    []record.VersionRecord
	RunAt    time.Time
}

// Result is the uncommitted outcome of a run.
type Result struct {
	Plan        *engine.Plan
	Records     []record.CanonicalRecord
	Quarantined []record.QuarantinedRow
	Anomalies   []normalize.Anomaly
	Stats       report.RunStats
}

// Pipeline wires the stages together. It holds configuration only and may
// be reused across runs.
type Pipeline struct {
	cfg        config.Config
	normalizer *normalize.Normalizer
	engine     *engine.Engine
	reporter   report.Reporter
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithReporter sets the reporting sink. Defaults to report.Nop.
func WithReporter(r report.Reporter) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.reporter = r
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Pipeline from configuration.
func New(cfg config.Config, opts ...Option) (*Pipeline, error) {
	n, err := normalize.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p := &Pipeline{
		cfg:        cfg,
		normalizer: n,
		engine:     engine.New(engine.WithWorkers(cfg.Workers)),
		reporter:   report.Nop{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// staged is the per-row outcome of the parallel phase.
type staged struct {
	rec       record.CanonicalRecord
	anomalies []normalize.Anomaly
	match     registry.Match
	err       error
}

// Run processes in and returns the plan. Row-level failures are
// quarantined; a consistency violation or cancellation aborts the run and
// returns no result.
//
// Run emits per-row events but never calls RunCompleted. res.Stats
// describes planned changes; the caller reports them once the plan is
// committed.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	if in.RunAt.IsZero() {
		return nil, fmt.Errorf("pipeline: run timestamp is required")
	}

	idx := registry.NewIndex(in.Registry, registry.WithRole(p.cfg.RegistryRole))
	matcher := registry.NewMatcher(idx, p.cfg.MatchThreshold)
	p.logger.Debug("registry index built",
		"entries", len(in.Registry),
		"indexed", idx.Len(),
	)

	out := make([]staged, len(in.Rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.cfg.Workers, 1))
	for i := range in.Rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = p.stage(in.Rows[i], matcher)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Records:     make([]record.CanonicalRecord, 0, len(in.Rows)),
		Quarantined: []record.QuarantinedRow{},
		Anomalies:   []normalize.Anomaly{},
	}
	seen := make(map[string]struct{}, len(in.Rows))
	for i, s := range out {
		if s.err != nil {
			res.Quarantined = append(res.Quarantined, quarantine(in.Rows[i], s.err))
			continue
		}
		if _, dup := seen[s.rec.SourceID]; dup {
			res.Quarantined = append(res.Quarantined, record.QuarantinedRow{
				Row:     in.Rows[i],
				Kind:    KindDuplicateSourceID,
				Message: fmt.Sprintf("source_id %q already present in snapshot", s.rec.SourceID),
			})
			continue
		}
		seen[s.rec.SourceID] = struct{}{}
		res.Records = append(res.Records, s.rec)
		res.Anomalies = append(res.Anomalies, s.anomalies...)
	}

	plan, err := p.engine.Plan(ctx, in.Prior, res.Records, in.RunAt)
	if err != nil {
		return nil, err
	}
	res.Plan = plan

	stats := matcher.Stats()
	res.Stats = report.RunStats{
		RunAt:        plan.RunAt,
		Rows:         len(in.Rows),
		Inserts:      int(plan.Counts.Inserts),
		Updates:      int(plan.Counts.Updates),
		Closures:     int(plan.Counts.Closures),
		NoOps:        int(plan.Counts.NoOps),
		Matched:      stats.Matched,
		Unmatched:    stats.Unmatched,
		MatchRate:    stats.Rate(),
		Quarantined:  len(res.Quarantined),
		ATCAnomalies: len(res.Anomalies),
	}

	p.emit(res, out)
	return res, nil
}

// stage runs the per-row stages. It touches no shared state except the
// matcher, which is safe for concurrent use.
func (p *Pipeline) stage(row record.RawRow, matcher *registry.Matcher) staged {
	r, err := p.normalizer.Normalize(row)
	if err != nil {
		return staged{err: err}
	}
	rec := r.Record
	family.Attach(&rec)
	m := matcher.Attach(&rec)

	h, err := record.RowHash(rec.Status, rec.Attributes, rec.OrganizationNameRaw)
	if err != nil {
		return staged{err: err}
	}
	rec.RowHash = h
	return staged{rec: rec, anomalies: r.Anomalies, match: m}
}

// emit reports individual events in input order.
func (p *Pipeline) emit(res *Result, out []staged) {
	for _, a := range res.Anomalies {
		p.reporter.Event(report.EventATCAnomaly, map[string]string{
			"source_id": a.SourceID,
			"value":     a.Value,
		})
	}
	for _, s := range out {
		if s.err == nil && !s.match.Resolved {
			p.reporter.Event(report.EventUnresolved, map[string]string{
				"source_id": s.rec.SourceID,
				"holder":    s.rec.OrganizationNameRaw,
				"score":     fmt.Sprintf("%.4f", s.match.Score),
			})
		}
	}
	for _, q := range res.Quarantined {
		p.reporter.Event(report.EventQuarantined, map[string]string{
			"source_id": q.Row.SourceID,
			"kind":      q.Kind,
			"message":   q.Message,
		})
		if q.Kind == KindDuplicateSourceID {
			continue
		}
		id := record.EntityID(normalize.CleanText(q.Row.SourceID))
		if d, ok := res.Plan.Decision(id); ok && d.Action == engine.ActionVanish {
			p.reporter.Event(report.EventQuarantineClosed, map[string]string{
				"source_id": q.Row.SourceID,
				"entity_id": id,
			})
		}
	}
}

func quarantine(row record.RawRow, err error) record.QuarantinedRow {
	q := record.QuarantinedRow{Row: row, Kind: "INTERNAL", Message: err.Error()}
	var re *normalize.RowError
	if errors.As(err, &re) {
		q.Kind = string(re.Kind)
		q.Message = re.Message
	}
	return q
}
