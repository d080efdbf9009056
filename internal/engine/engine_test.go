package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epar/internal/record"
)

var (
	day1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	day3 = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	day4 = time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
)

func canonical(sourceID string, status record.Status, name string) record.CanonicalRecord {
	attrs := record.Attributes{record.AttrName: record.String(name)}
	return record.CanonicalRecord{
		SourceID:            sourceID,
		EntityID:            record.EntityID(sourceID),
		FamilyID:            record.EntityID(sourceID),
		Attributes:          attrs,
		Status:              status,
		OrganizationNameRaw: "Holder",
		RowHash:             record.MustRowHash(status, attrs, "Holder"),
	}
}

// run plans snapshot against h's current table and applies the result.
func run(t *testing.T, h *History, runAt time.Time, snapshot ...record.CanonicalRecord) *Plan {
	t.Helper()
	p, err := New(WithWorkers(3)).Plan(context.Background(), h.Current(), snapshot, runAt)
	require.NoError(t, err)
	require.NoError(t, h.Apply(p))
	require.NoError(t, h.CheckInvariants())
	return p
}

func TestPlan_NewEntityInserted(t *testing.T) {
	h := NewHistory()
	rec := canonical("EMEA/H/C/000001", record.StatusApproved, "Alpha")

	p := run(t, h, day1, rec)

	assert.Equal(t, Counts{Inserts: 1}, p.Counts)
	require.Len(t, p.Opens, 1)
	assert.Empty(t, p.Closes)
	v := p.Opens[0]
	assert.Equal(t, rec.EntityID, v.EntityID)
	assert.True(t, v.ValidFrom.Equal(day1))
	assert.Nil(t, v.ValidTo)
	assert.True(t, v.IsCurrent)
	assert.Equal(t, rec.RowHash, v.RowHash)
}

func TestPlan_IdenticalSnapshotIsNoOp(t *testing.T) {
	h := NewHistory()
	rec := canonical("EMEA/H/C/000001", record.StatusApproved, "Alpha")
	run(t, h, day1, rec)

	p := run(t, h, day2, rec)

	assert.True(t, p.Empty())
	assert.Equal(t, Counts{NoOps: 1}, p.Counts)
	assert.Zero(t, p.Counts.Writes())
	require.Len(t, p.Current, 1)
	assert.True(t, p.Current[0].ValidFrom.Equal(day1), "no-op keeps the prior version")
	assert.Len(t, h.Versions(rec.EntityID), 1)
}

func TestPlan_StatusChangeClosesAndOpens(t *testing.T) {
	h := NewHistory()
	run(t, h, day1, canonical("EMEA/H/C/000001", record.StatusApproved, "Alpha"))

	p := run(t, h, day2, canonical("EMEA/H/C/000001", record.StatusWithdrawn, "Alpha"))

	assert.Equal(t, Counts{Updates: 1}, p.Counts)
	assert.Equal(t, int64(2), p.Counts.Writes())

	vs := h.Versions(record.EntityID("EMEA/H/C/000001"))
	require.Len(t, vs, 2)
	assert.Equal(t, record.StatusApproved, vs[0].Status)
	require.NotNil(t, vs[0].ValidTo)
	assert.True(t, vs[0].ValidTo.Equal(day2))
	assert.False(t, vs[0].IsCurrent)
	assert.Equal(t, record.StatusWithdrawn, vs[1].Status)
	assert.True(t, vs[1].ValidFrom.Equal(day2))
	assert.True(t, vs[1].IsCurrent)
}

func TestPlan_VanishedEntityClosedOnce(t *testing.T) {
	h := NewHistory()
	a := canonical("EMEA/H/C/000001", record.StatusApproved, "Alpha")
	b := canonical("EMEA/H/C/000002", record.StatusApproved, "Beta")
	run(t, h, day1, a, b)

	p := run(t, h, day2, a)
	assert.Equal(t, Counts{NoOps: 1, Closures: 1}, p.Counts)
	d, ok := p.Decision(b.EntityID)
	require.True(t, ok)
	assert.Equal(t, ActionVanish, d.Action)
	assert.Nil(t, d.Next)

	// Still absent: no second close.
	p = run(t, h, day3, a)
	assert.True(t, p.Empty())
	_, ok = p.Decision(b.EntityID)
	assert.False(t, ok)

	vs := h.Versions(b.EntityID)
	require.Len(t, vs, 1)
	require.NotNil(t, vs[0].ValidTo)
	assert.True(t, vs[0].ValidTo.Equal(day2))
}

func TestPlan_ReturningEntityReinserted(t *testing.T) {
	h := NewHistory()
	a := canonical("EMEA/H/C/000001", record.StatusApproved, "Alpha")
	run(t, h, day1, a)
	run(t, h, day2)

	p := run(t, h, day3, a)

	assert.Equal(t, Counts{Inserts: 1}, p.Counts)
	vs := h.Versions(a.EntityID)
	require.Len(t, vs, 2)
	assert.True(t, vs[1].ValidFrom.Equal(day3))
}

func TestPlan_MultiDayHistoryNeverOverlaps(t *testing.T) {
	h := NewHistory()
	id := "EMEA/H/C/000001"
	run(t, h, day1, canonical(id, record.StatusApproved, "Alpha"))
	run(t, h, day2, canonical(id, record.StatusSuspended, "Alpha"))
	run(t, h, day3, canonical(id, record.StatusApproved, "Alpha"))
	run(t, h, day4)

	vs := h.Versions(record.EntityID(id))
	require.Len(t, vs, 3)
	for i := 1; i < len(vs); i++ {
		require.NotNil(t, vs[i-1].ValidTo)
		assert.True(t, vs[i-1].ValidTo.Equal(vs[i].ValidFrom))
	}
	assert.Empty(t, h.Current())
	assert.Len(t, h.Runs(), 4)
}

func TestPlan_OutputSortedByEntity(t *testing.T) {
	var snapshot []record.CanonicalRecord
	for i := 20; i > 0; i-- {
		snapshot = append(snapshot, canonical(fmt.Sprintf("EMEA/H/C/%06d", i), record.StatusApproved, "X"))
	}

	p, err := New(WithWorkers(4)).Plan(context.Background(), nil, snapshot, day1)
	require.NoError(t, err)

	require.Len(t, p.Opens, 20)
	for i := 1; i < len(p.Opens); i++ {
		assert.Less(t, p.Opens[i-1].EntityID, p.Opens[i].EntityID)
	}
	assert.Equal(t, p.Opens, p.Current)
}

func TestPlan_DoesNotAliasSnapshot(t *testing.T) {
	rec := canonical("EMEA/H/C/000001", record.StatusApproved, "Alpha")
	rec.OrganizationID = record.Ptr("ORG-1")

	p, err := New().Plan(context.Background(), nil, []record.CanonicalRecord{rec}, day1)
	require.NoError(t, err)

	rec.Attributes[record.AttrName] = record.String("mutated")
	*rec.OrganizationID = "ORG-2"
	assert.Equal(t, "Alpha", p.Opens[0].Attributes.String(record.AttrName))
	assert.Equal(t, "ORG-1", *p.Opens[0].OrganizationID)
}

func TestPlan_ConsistencyViolations(t *testing.T) {
	open := record.NewVersion(canonical("EMEA/H/C/000001", record.StatusApproved, "Alpha"), day1)
	closed := open.ClosedAt(day2)
	rec := canonical("EMEA/H/C/000001", record.StatusWithdrawn, "Alpha")

	tests := []struct {
		name     string
		prior    []record.VersionRecord
		snapshot []record.CanonicalRecord
		runAt    time.Time
		code     ConsistencyCode
	}{
		{
			name:  "duplicate open version",
			prior: []record.VersionRecord{open, open},
			runAt: day2,
			code:  ErrCodeDuplicateCurrent,
		},
		{
			name:  "closed version in current table",
			prior: []record.VersionRecord{closed},
			runAt: day3,
			code:  ErrCodeClosedInCurrent,
		},
		{
			name:     "duplicate snapshot entity",
			snapshot: []record.CanonicalRecord{rec, rec},
			runAt:    day1,
			code:     ErrCodeDuplicateEntity,
		},
		{
			name:     "update at the prior valid_from",
			prior:    []record.VersionRecord{open},
			snapshot: []record.CanonicalRecord{rec},
			runAt:    day1,
			code:     ErrCodeNonMonotonicRun,
		},
		{
			name:  "vanish before the prior valid_from",
			prior: []record.VersionRecord{open},
			runAt: day1.Add(-time.Hour),
			code:  ErrCodeNonMonotonicRun,
		},
		{
			name:     "record without hash",
			snapshot: []record.CanonicalRecord{{SourceID: "x", EntityID: record.EntityID("x")}},
			runAt:    day1,
			code:     ErrCodeInvalidRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New().Plan(context.Background(), tt.prior, tt.snapshot, tt.runAt)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, IsConsistencyViolation(err))
			assert.Equal(t, tt.code, ConsistencyCodeOf(err))
		})
	}
}

func TestPlan_NoOpAtSameTimestampIsAllowed(t *testing.T) {
	rec := canonical("EMEA/H/C/000001", record.StatusApproved, "Alpha")
	prior := []record.VersionRecord{record.NewVersion(rec, day1)}

	p, err := New().Plan(context.Background(), prior, []record.CanonicalRecord{rec}, day1)
	require.NoError(t, err)
	assert.True(t, p.Empty())
}

func TestPlan_RequiresRunTimestamp(t *testing.T) {
	_, err := New().Plan(context.Background(), nil, nil, time.Time{})
	require.Error(t, err)
	assert.False(t, IsConsistencyViolation(err))
}

func TestPlan_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Plan(ctx, nil, []record.CanonicalRecord{canonical("a", record.StatusApproved, "A")}, day1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestChunks(t *testing.T) {
	assert.Nil(t, chunks(0, 4))
	assert.Equal(t, []span{{0, 3}, {3, 6}, {6, 7}}, chunks(7, 3))
	assert.Equal(t, []span{{0, 1}, {1, 2}}, chunks(2, 8))
	assert.Equal(t, []span{{0, 5}}, chunks(5, 0))
}
