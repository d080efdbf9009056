package report

import (
	"log/slog"
	"sort"
	"time"
)

// LowMatchRate is the match rate below which the slog reporter warns.
const LowMatchRate = 0.90

// SlogReporter writes structured log lines.
type SlogReporter struct {
	logger *slog.Logger
}

// NewSlogReporter wraps logger. A nil logger uses slog.Default().
func NewSlogReporter(logger *slog.Logger) *SlogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogReporter{logger: logger}
}

// RunCompleted logs the counters and warns on a low match rate.
func (r *SlogReporter) RunCompleted(s RunStats) {
	r.logger.Info("run completed",
		"run_at", s.RunAt.Format(time.RFC3339),
		"rows", s.Rows,
		"inserts", s.Inserts,
		"updates", s.Updates,
		"closures", s.Closures,
		"noops", s.NoOps,
		"quarantined", s.Quarantined,
		"atc_anomalies", s.ATCAnomalies,
		"matched", s.Matched,
		"unmatched", s.Unmatched,
		"match_rate", s.MatchRate,
	)
	if attempted := s.Matched + s.Unmatched; attempted > 0 && s.MatchRate < LowMatchRate {
		r.logger.Warn("registry match rate below threshold",
			"match_rate", s.MatchRate,
			"threshold", LowMatchRate,
		)
	}
}

// Event logs at debug level, except quarantines which are warnings.
func (r *SlogReporter) Event(name string, attrs map[string]string) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, attrs[k])
	}

	if name == EventQuarantined {
		r.logger.Warn(name, args...)
		return
	}
	r.logger.Debug(name, args...)
}
