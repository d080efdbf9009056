// Package report defines the narrow reporting seam between the engine and
// whatever collects its counters.
//
// Calls are synchronous and must not block; the engine ignores anything a
// Reporter does with the data.
package report

import (
	"sync"
	"time"
)

// Event names passed to Reporter.Event.
const (
	EventATCAnomaly  = "atc_format_anomaly"
	EventQuarantined = "row_quarantined"
	EventUnresolved  = "organization_unresolved"

	// EventQuarantineClosed marks a current entity closed because its row
	// was quarantined rather than absent from the source.
	EventQuarantineClosed = "quarantined_entity_closed"
)

// RunStats are the per-run counters.
type RunStats struct {
	RunAt        time.Time `json:"run_at"`
	Rows         int       `json:"rows"`
	Inserts      int       `json:"inserts"`
	Updates      int       `json:"updates"`
	Closures     int       `json:"closures"`
	NoOps        int       `json:"noops"`
	Matched      int64     `json:"matched"`
	Unmatched    int64     `json:"unmatched"`
	MatchRate    float64   `json:"match_rate"`
	Quarantined  int       `json:"quarantined"`
	ATCAnomalies int       `json:"atc_anomalies"`
}

// Writes is the number of version records the run produced.
// Updates write two (close + insert).
func (s RunStats) Writes() int {
	return s.Inserts + 2*s.Updates + s.Closures
}

// Reporter receives run counters and individual events.
type Reporter interface {
	RunCompleted(stats RunStats)
	Event(name string, attrs map[string]string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RunCompleted(RunStats)            {}
func (Nop) Event(string, map[string]string) {}

// Multi fans out to several reporters in order.
type Multi []Reporter

func (m Multi) RunCompleted(stats RunStats) {
	for _, r := range m {
		r.RunCompleted(stats)
	}
}

func (m Multi) Event(name string, attrs map[string]string) {
	for _, r := range m {
		r.Event(name, attrs)
	}
}

// RecordedEvent is one captured Event call.
type RecordedEvent struct {
	Name  string
	Attrs map[string]string
}

// Recorder keeps everything in memory. Used by tests and the harness.
// Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	runs   []RunStats
	events []RecordedEvent
}

// RunCompleted implements Reporter.
func (r *Recorder) RunCompleted(stats RunStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, stats)
}

// Event implements Reporter.
func (r *Recorder) Event(name string, attrs map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(map[string]string, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	r.events = append(r.events, RecordedEvent{Name: name, Attrs: cp})
}

// Runs returns a copy of recorded run stats.
func (r *Recorder) Runs() []RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunStats(nil), r.runs...)
}

// Last returns the most recent run stats.
func (r *Recorder) Last() (RunStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runs) == 0 {
		return RunStats{}, false
	}
	return r.runs[len(r.runs)-1], true
}

// Events returns recorded events with the given name.
func (r *Recorder) Events(name string) []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RecordedEvent
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// All returns every recorded event in call order.
func (r *Recorder) All() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedEvent(nil), r.events...)
}
