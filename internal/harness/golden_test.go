package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epar/internal/record"
	"github.com/roach88/epar/internal/report"
)

func TestNewSnapshot(t *testing.T) {
	result := &Result{
		Days: []DayResult{
			{
				RunAt: t1,
				Stats: report.RunStats{Inserts: 1, Unmatched: 1},
				Events: []report.RecordedEvent{
					{Name: report.EventUnresolved, Attrs: map[string]string{"source_id": "B"}},
				},
			},
			{RunAt: t2, Error: ErrorRunAlreadyApplied},
		},
		Versions: []record.VersionRecord{
			{SourceID: "B", ValidFrom: t1, IsCurrent: true, Status: record.StatusApproved,
				Attributes: record.Attributes{record.AttrName: record.String("Beta")}},
			{SourceID: "A", ValidFrom: t2, IsCurrent: true, Status: record.StatusApproved},
			{SourceID: "A", ValidFrom: t1, ValidTo: &t2, Status: record.StatusWithdrawn},
		},
	}

	snap := NewSnapshot("demo", result)

	require.Len(t, snap.Days, 2)
	assert.Equal(t, "2024-05-01T00:00:00Z", snap.Days[0].RunAt)
	require.NotNil(t, snap.Days[0].Counts)
	assert.Equal(t, Counts{Inserts: 1, Unmatched: 1}, *snap.Days[0].Counts)
	assert.Equal(t, []string{"organization_unresolved B"}, snap.Days[0].Events)
	assert.Nil(t, snap.Days[1].Counts)
	assert.Equal(t, ErrorRunAlreadyApplied, snap.Days[1].Error)

	require.Len(t, snap.Versions, 3)
	assert.Equal(t, "A", snap.Versions[0].SourceID)
	assert.Equal(t, "2024-05-01T00:00:00Z", snap.Versions[0].ValidFrom)
	require.NotNil(t, snap.Versions[0].ValidTo)
	assert.Equal(t, "2024-05-02T00:00:00Z", *snap.Versions[0].ValidTo)
	assert.Equal(t, "A", snap.Versions[1].SourceID)
	assert.Nil(t, snap.Versions[1].ValidTo)
	assert.Equal(t, "Beta", snap.Versions[2].Name)
}

func TestMarshalSnapshot_Deterministic(t *testing.T) {
	snap := Snapshot{
		Scenario: "x",
		Days:     []DaySnapshot{{RunAt: t1.Format(time.RFC3339Nano)}},
		Versions: []VersionSnapshot{},
	}

	a, err := MarshalSnapshot(snap)
	require.NoError(t, err)
	b, err := MarshalSnapshot(snap)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, byte('\n'), a[len(a)-1])
	assert.Contains(t, string(a), `"versions": []`)
}
