package harness

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/epar/internal/record"
)

// Snapshot is the golden-file view of a scenario run. It is keyed by
// source id rather than entity id so the files stay readable.
type Snapshot struct {
	Scenario string            `json:"scenario"`
	Days     []DaySnapshot     `json:"days"`
	Versions []VersionSnapshot `json:"versions"`
}

// DaySnapshot summarises one run.
type DaySnapshot struct {
	RunAt  string   `json:"run_at"`
	Error  string   `json:"error,omitempty"`
	Counts *Counts  `json:"counts,omitempty"`
	Events []string `json:"events,omitempty"`
}

// VersionSnapshot is one stored version.
type VersionSnapshot struct {
	SourceID       string  `json:"source_id"`
	ValidFrom      string  `json:"valid_from"`
	ValidTo        *string `json:"valid_to"`
	IsCurrent      bool    `json:"is_current"`
	Status         string  `json:"status"`
	OrganizationID *string `json:"organization_id"`
	Name           string  `json:"name"`
}

// NewSnapshot builds the golden view of result.
func NewSnapshot(name string, result *Result) Snapshot {
	snap := Snapshot{
		Scenario: name,
		Days:     make([]DaySnapshot, 0, len(result.Days)),
		Versions: make([]VersionSnapshot, 0, len(result.Versions)),
	}

	for _, d := range result.Days {
		ds := DaySnapshot{RunAt: d.RunAt.Format(time.RFC3339Nano), Error: d.Error}
		if d.Error == "" {
			c := countsOf(d.Stats)
			ds.Counts = &c
			for _, e := range d.Events {
				ds.Events = append(ds.Events, e.Name+" "+e.Attrs["source_id"])
			}
		}
		snap.Days = append(snap.Days, ds)
	}

	for _, v := range result.Versions {
		vs := VersionSnapshot{
			SourceID:       v.SourceID,
			ValidFrom:      v.ValidFrom.UTC().Format(time.RFC3339Nano),
			IsCurrent:      v.IsCurrent,
			Status:         string(v.Status),
			OrganizationID: v.OrganizationID,
			Name:           v.Attributes.String(record.AttrName),
		}
		if v.ValidTo != nil {
			end := v.ValidTo.UTC().Format(time.RFC3339Nano)
			vs.ValidTo = &end
		}
		snap.Versions = append(snap.Versions, vs)
	}
	slices.SortFunc(snap.Versions, func(a, b VersionSnapshot) int {
		if c := strings.Compare(a.SourceID, b.SourceID); c != 0 {
			return c
		}
		return strings.Compare(a.ValidFrom, b.ValidFrom)
	})
	return snap
}

// MarshalSnapshot renders snap as indented JSON with a trailing newline.
func MarshalSnapshot(snap Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// AssertGolden compares result against testdata/golden/<name>.golden.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	data, err := MarshalSnapshot(NewSnapshot(name, result))
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
