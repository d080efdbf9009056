package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epar/internal/engine"
	"github.com/roach88/epar/internal/record"
)

func TestCommit_InsertUpdateVanish(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := createTestRecord("EMEA/H/C/000001", record.StatusConditionalApproval)
	b := createTestRecord("EMEA/H/C/000002", record.StatusApproved)

	commitSnapshot(t, s, day1, a, b)
	commitSnapshot(t, s, day2, createTestRecord("EMEA/H/C/000001", record.StatusApproved))

	current, err := s.LoadCurrent(ctx)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, a.EntityID, current[0].EntityID)
	assert.Equal(t, record.StatusApproved, current[0].Status)
	assert.True(t, current[0].ValidFrom.Equal(day2))

	hist, err := s.History(ctx, a.EntityID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, record.StatusConditionalApproval, hist[0].Status)
	require.NotNil(t, hist[0].ValidTo)
	assert.True(t, hist[0].ValidTo.Equal(day2))
	assert.False(t, hist[0].IsCurrent)

	vanished, err := s.History(ctx, b.EntityID)
	require.NoError(t, err)
	require.Len(t, vanished, 1)
	require.NotNil(t, vanished[0].ValidTo)
	assert.True(t, vanished[0].ValidTo.Equal(day2))
}

func TestCommit_RoundTripsVersion(t *testing.T) {
	s := createTestStore(t)
	rec := createTestRecord("EMEA/H/C/000001", record.StatusApproved)
	plan := commitSnapshot(t, s, day1, rec)

	current, err := s.LoadCurrent(context.Background())
	require.NoError(t, err)
	require.Len(t, current, 1)

	got := current[0]
	want := plan.Opens[0]
	assert.Equal(t, want.EntityID, got.EntityID)
	assert.Equal(t, want.SourceID, got.SourceID)
	assert.Equal(t, want.FamilyID, got.FamilyID)
	assert.True(t, want.ValidFrom.Equal(got.ValidFrom))
	assert.Nil(t, got.ValidTo)
	assert.Equal(t, want.RowHash, got.RowHash)
	assert.Equal(t, want.Status, got.Status)
	require.NotNil(t, got.OrganizationID)
	assert.Equal(t, "ORG-1", *got.OrganizationID)
	assert.Equal(t, []string{"a", "b", "a"}, got.Attributes.List(record.AttrSubstances))
	assert.True(t, got.Attributes.Bool(record.AttrOrphan))

	// The stored attributes hash back to the stored row hash.
	h, err := record.RowHash(got.Status, got.Attributes, "Holder")
	require.NoError(t, err)
	assert.Equal(t, got.RowHash, h)
}

func TestCommit_IdenticalSnapshotWritesNothing(t *testing.T) {
	s := createTestStore(t)
	rec := createTestRecord("EMEA/H/C/000001", record.StatusApproved)
	commitSnapshot(t, s, day1, rec)

	plan := commitSnapshot(t, s, day2, rec)
	assert.True(t, plan.Empty())

	all, err := s.AllVersions(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	runs, err := s.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 1, runs[1].Stats.NoOps)
}

func TestCommit_ReplayedRunIsNoOp(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := createTestRecord("EMEA/H/C/000001", record.StatusApproved)

	plan, err := engine.New().Plan(ctx, nil, []record.CanonicalRecord{rec}, day1)
	require.NoError(t, err)
	_, err = s.Commit(ctx, Run{Plan: plan, Stats: statsOf(plan)})
	require.NoError(t, err)

	_, err = s.Commit(ctx, Run{Plan: plan, Stats: statsOf(plan)})
	require.ErrorIs(t, err, engine.ErrRunAlreadyApplied)

	all, err := s.AllVersions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCommit_OutOfOrderRunRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	commitSnapshot(t, s, day2, createTestRecord("EMEA/H/C/000001", record.StatusApproved))

	plan, err := engine.New().Plan(ctx, nil, nil, day1)
	require.NoError(t, err)
	_, err = s.Commit(ctx, Run{Plan: plan})
	assert.Equal(t, engine.ErrCodeNonMonotonicRun, engine.ConsistencyCodeOf(err))
}

func TestCommit_StalePlanRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := createTestRecord("EMEA/H/C/000001", record.StatusApproved)
	b := createTestRecord("EMEA/H/C/000002", record.StatusApproved)
	commitSnapshot(t, s, day1, a, b)

	prior, err := s.LoadCurrent(ctx)
	require.NoError(t, err)

	// Both plans close b; only the first may.
	first, err := engine.New().Plan(ctx, prior, []record.CanonicalRecord{a}, day2)
	require.NoError(t, err)
	stale, err := engine.New().Plan(ctx, prior,
		[]record.CanonicalRecord{createTestRecord("EMEA/H/C/000001", record.StatusWithdrawn)}, day3)
	require.NoError(t, err)

	_, err = s.Commit(ctx, Run{Plan: first})
	require.NoError(t, err)
	before, err := s.AllVersions(ctx)
	require.NoError(t, err)

	_, err = s.Commit(ctx, Run{Plan: stale})
	require.Error(t, err)
	assert.Equal(t, engine.ErrCodeDoubleClose, engine.ConsistencyCodeOf(err))

	after, err := s.AllVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed commit must leave no trace")
	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestCommit_DuplicateOpenRejectedByIndex(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := createTestRecord("EMEA/H/C/000001", record.StatusApproved)
	commitSnapshot(t, s, day1, rec)

	// Planned against an empty prior: tries to open a second current version.
	plan, err := engine.New().Plan(ctx, nil, []record.CanonicalRecord{rec}, day2)
	require.NoError(t, err)

	_, err = s.Commit(ctx, Run{Plan: plan})
	assert.Equal(t, engine.ErrCodeDuplicateCurrent, engine.ConsistencyCodeOf(err))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestCommit_QuarantineStored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	plan, err := engine.New().Plan(ctx, nil, nil, day1)
	require.NoError(t, err)

	quarantined := []record.QuarantinedRow{
		{
			Row:     record.RawRow{SourceID: "EMEA/H/C/000009", Status: "Under review", Orphan: record.FlagOf("Yes")},
			Kind:    "UNKNOWN_STATUS",
			Message: `status "Under review" is not in the vocabulary`,
		},
		{Row: record.RawRow{SourceID: "EMEA/H/C/000010"}, Kind: "MISSING_FIELD", Message: "required field is empty"},
	}
	_, err = s.Commit(ctx, Run{Plan: plan, Quarantined: quarantined})
	require.NoError(t, err)

	got, err := s.Quarantined(ctx, day1)
	require.NoError(t, err)
	assert.Equal(t, quarantined, got)

	none, err := s.Quarantined(ctx, day2)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCommit_NilPlan(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Commit(context.Background(), Run{})
	require.Error(t, err)
}

func TestCommit_CancelledContextWritesNothing(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	plan, err := engine.New().Plan(ctx, nil,
		[]record.CanonicalRecord{createTestRecord("EMEA/H/C/000001", record.StatusApproved)}, day1)
	require.NoError(t, err)
	cancel()

	_, err = s.Commit(ctx, Run{Plan: plan})
	require.Error(t, err)

	all, err := s.AllVersions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}
