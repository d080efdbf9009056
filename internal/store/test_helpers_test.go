package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/epar/internal/engine"
	"github.com/roach88/epar/internal/record"
	"github.com/roach88/epar/internal/report"
)

var (
	day1 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	day3 = time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a canonical record with a computed row hash.
func createTestRecord(sourceID string, status record.Status) record.CanonicalRecord {
	attrs := record.Attributes{
		record.AttrName:       record.String("Medicine " + sourceID),
		record.AttrATCCodes:   record.List{"L01XC02"},
		record.AttrSubstances: record.List{"a", "b", "a"},
		record.AttrOrphan:     record.Bool(true),
	}
	return record.CanonicalRecord{
		SourceID:            sourceID,
		EntityID:            record.EntityID(sourceID),
		FamilyID:            "000001",
		Attributes:          attrs,
		Status:              status,
		OrganizationNameRaw: "Holder",
		OrganizationID:      record.Ptr("ORG-1"),
		RowHash:             record.MustRowHash(status, attrs, "Holder"),
	}
}

// commitSnapshot plans snapshot against the stored current table and
// commits it.
func commitSnapshot(t *testing.T, s *Store, runAt time.Time, snapshot ...record.CanonicalRecord) *engine.Plan {
	t.Helper()
	ctx := context.Background()
	prior, err := s.LoadCurrent(ctx)
	require.NoError(t, err)
	plan, err := engine.New().Plan(ctx, prior, snapshot, runAt)
	require.NoError(t, err)
	_, err = s.Commit(ctx, Run{Plan: plan, Stats: statsOf(plan)})
	require.NoError(t, err)
	require.NoError(t, s.CheckInvariants(ctx))
	return plan
}

func statsOf(p *engine.Plan) report.RunStats {
	return report.RunStats{
		RunAt:    p.RunAt,
		Inserts:  int(p.Counts.Inserts),
		Updates:  int(p.Counts.Updates),
		Closures: int(p.Counts.Closures),
		NoOps:    int(p.Counts.NoOps),
	}
}
