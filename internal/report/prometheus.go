package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes run counters as Prometheus collectors.
type Metrics struct {
	Changes      *prometheus.CounterVec
	Quarantined  *prometheus.CounterVec
	ATCAnomalies prometheus.Counter
	MatchAttempt *prometheus.CounterVec
	MatchRate    prometheus.Gauge
	LastRun      prometheus.Gauge
	Events       *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Changes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "epar_silver_changes_total",
			Help: "Version changes applied by the historization engine, by kind",
		}, []string{"kind"}), // kind: "insert", "update", "closure"

		Quarantined: f.NewCounterVec(prometheus.CounterOpts{
			Name: "epar_silver_quarantined_rows_total",
			Help: "Rows excluded from a run by validation failure",
		}, []string{"reason"}),

		ATCAnomalies: f.NewCounter(prometheus.CounterOpts{
			Name: "epar_silver_atc_format_anomalies_total",
			Help: "ATC fragments retained despite failing the format check",
		}),

		MatchAttempt: f.NewCounterVec(prometheus.CounterOpts{
			Name: "epar_spor_match_attempts_total",
			Help: "Registry match attempts by outcome",
		}, []string{"outcome"}), // outcome: "matched", "unmatched"

		MatchRate: f.NewGauge(prometheus.GaugeOpts{
			Name: "epar_spor_match_rate",
			Help: "Matched / attempted for the most recent run",
		}),

		LastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "epar_silver_last_run_timestamp_seconds",
			Help: "Run timestamp of the most recent completed run",
		}),

		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "epar_silver_events_total",
			Help: "Individual engine events by name",
		}, []string{"event"}),
	}
}

// RunCompleted implements Reporter.
func (m *Metrics) RunCompleted(s RunStats) {
	if m == nil {
		return
	}
	m.Changes.WithLabelValues("insert").Add(float64(s.Inserts))
	m.Changes.WithLabelValues("update").Add(float64(s.Updates))
	m.Changes.WithLabelValues("closure").Add(float64(s.Closures))
	m.ATCAnomalies.Add(float64(s.ATCAnomalies))
	m.MatchAttempt.WithLabelValues("matched").Add(float64(s.Matched))
	m.MatchAttempt.WithLabelValues("unmatched").Add(float64(s.Unmatched))
	m.MatchRate.Set(s.MatchRate)
	m.LastRun.Set(float64(s.RunAt.Unix()))
}

// Event implements Reporter. Quarantine events are also counted by reason.
func (m *Metrics) Event(name string, attrs map[string]string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(name).Inc()
	if name == EventQuarantined {
		m.Quarantined.WithLabelValues(attrs["kind"]).Inc()
	}
}
