package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/roach88/epar/internal/config"
	"github.com/roach88/epar/internal/engine"
	"github.com/roach88/epar/internal/pipeline"
	"github.com/roach88/epar/internal/record"
	"github.com/roach88/epar/internal/report"
	"github.com/roach88/epar/internal/store"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every day matched its expectation and every
	// assertion held.
	Pass bool

	Days     []DayResult
	Versions []record.VersionRecord

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string
}

// DayResult is what one run produced. Stats and Events are empty when
// the run failed.
type DayResult struct {
	RunAt  time.Time
	Error  string
	Stats  report.RunStats
	Events []report.RecordedEvent
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Harness runs scenarios.
type Harness struct {
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger routes pipeline logs. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes every day of s against b, then checks invariants and
// assertions on the final history.
//
// A returned error means the scenario could not be executed at all
// (bad config, backend failure). Mismatched expectations are reported in
// Result.Errors.
func (h *Harness) Run(ctx context.Context, s *Scenario, b Backend) (*Result, error) {
	cfg, err := scenarioConfig(s)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, day := range s.Days {
		dr, err := h.runDay(ctx, cfg, s.Registry, day, b)
		if err != nil {
			return nil, fmt.Errorf("days[%d]: %w", i, err)
		}
		result.Days = append(result.Days, dr)
		checkDay(result, i, day, dr)
	}

	if err := b.CheckInvariants(ctx); err != nil {
		result.AddError("history invariants: %v", err)
	}

	versions, err := b.Versions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	result.Versions = versions
	for _, msg := range EvaluateAssertions(versions, s.Assertions) {
		result.AddError("%s", msg)
	}
	return result, nil
}

// RunMemory runs s against a fresh in-memory backend.
func (h *Harness) RunMemory(ctx context.Context, s *Scenario) (*Result, error) {
	return h.Run(ctx, s, NewMemoryBackend())
}

// RunStore runs s against a fresh SQLite database in dir.
func (h *Harness) RunStore(ctx context.Context, s *Scenario, dir string) (*Result, error) {
	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return h.Run(ctx, s, NewStoreBackend(st))
}

// runDay plans and commits one snapshot. Consistency violations and
// replays are recorded in the DayResult; anything else is returned.
func (h *Harness) runDay(ctx context.Context, cfg config.Config, registry []record.RegistryEntry, day Day, b Backend) (DayResult, error) {
	dr := DayResult{RunAt: day.RunAt.UTC()}

	prior, err := b.Current(ctx)
	if err != nil {
		return dr, fmt.Errorf("load current: %w", err)
	}

	rec := &report.Recorder{}
	p, err := pipeline.New(cfg, pipeline.WithReporter(rec), pipeline.WithLogger(h.logger))
	if err != nil {
		return dr, err
	}

	res, err := p.Run(ctx, pipeline.Input{
		Rows:     day.Rows,
		Registry: registry,
		Prior:    prior,
		RunAt:    day.RunAt,
	})
	if err == nil {
		err = b.Commit(ctx, res)
	}
	if err != nil {
		code := failureCode(err)
		if code == "" {
			return dr, err
		}
		dr.Error = code
		return dr, nil
	}

	rec.RunCompleted(res.Stats)
	dr.Stats = res.Stats
	dr.Events = rec.All()
	return dr, nil
}

func failureCode(err error) string {
	if errors.Is(err, engine.ErrRunAlreadyApplied) {
		return ErrorRunAlreadyApplied
	}
	return string(engine.ConsistencyCodeOf(err))
}

func scenarioConfig(s *Scenario) (config.Config, error) {
	if s.Config == "" {
		return config.Default()
	}
	return config.Parse([]byte(s.Config))
}

func checkDay(result *Result, i int, day Day, dr DayResult) {
	if dr.Error != day.ExpectError {
		result.AddError("days[%d] (%s): expected error %q, got %q",
			i, dr.RunAt.Format(time.RFC3339), day.ExpectError, dr.Error)
		return
	}
	if day.Expect == nil || dr.Error != "" {
		return
	}
	if got := countsOf(dr.Stats); got != *day.Expect {
		result.AddError("days[%d] (%s): expected counts %+v, got %+v",
			i, dr.RunAt.Format(time.RFC3339), *day.Expect, got)
	}
}

func countsOf(s report.RunStats) Counts {
	return Counts{
		Inserts:     s.Inserts,
		Updates:     s.Updates,
		Closures:    s.Closures,
		NoOps:       s.NoOps,
		Quarantined: s.Quarantined,
		Matched:     s.Matched,
		Unmatched:   s.Unmatched,
	}
}
