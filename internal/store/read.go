package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/epar/internal/engine"
	"github.com/roach88/epar/internal/record"
	"github.com/roach88/epar/internal/report"
)

// RunInfo is one ledger row.
type RunInfo struct {
	RunID         string          `json:"run_id"`
	RunAt         time.Time       `json:"run_at"`
	Stats         report.RunStats `json:"stats"`
	HashVersion   string          `json:"hash_version"`
	EngineVersion string          `json:"engine_version"`
}

// LoadCurrent returns the current-version table ordered by entity id.
// This is the prior state for the next run.
//
// Returns an empty slice (not nil) for an empty store.
func (s *Store) LoadCurrent(ctx context.Context) ([]record.VersionRecord, error) {
	return s.queryVersions(ctx, `
		SELECT `+versionColumns+`
		FROM versions
		WHERE is_current = 1
		ORDER BY entity_id COLLATE BINARY ASC
	`)
}

// History returns every version of one entity in valid_from order.
func (s *Store) History(ctx context.Context, entityID string) ([]record.VersionRecord, error) {
	return s.queryVersions(ctx, `
		SELECT `+versionColumns+`
		FROM versions
		WHERE entity_id = ?
		ORDER BY valid_from ASC
	`, entityID)
}

// Family returns every version of every entity in a procedure family.
func (s *Store) Family(ctx context.Context, familyID string) ([]record.VersionRecord, error) {
	return s.queryVersions(ctx, `
		SELECT `+versionColumns+`
		FROM versions
		WHERE family_id = ?
		ORDER BY entity_id COLLATE BINARY ASC, valid_from ASC
	`, familyID)
}

// AllVersions returns the full history ordered by entity id, then
// valid_from.
func (s *Store) AllVersions(ctx context.Context) ([]record.VersionRecord, error) {
	return s.queryVersions(ctx, `
		SELECT `+versionColumns+`
		FROM versions
		ORDER BY entity_id COLLATE BINARY ASC, valid_from ASC
	`)
}

func (s *Store) queryVersions(ctx context.Context, query string, args ...any) ([]record.VersionRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	out := []record.VersionRecord{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return out, nil
}

// Runs returns the ledger in run order.
func (s *Store) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_at, run_id, rows_in, inserts, updates, closures, noops, matched, unmatched,
		       match_rate, quarantined, atc_anomalies, hash_version, engine_version
		FROM runs
		ORDER BY run_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := []RunInfo{}
	for rows.Next() {
		var (
			info  RunInfo
			runAt string
			st    = &info.Stats
		)
		if err := rows.Scan(&runAt, &info.RunID, &st.Rows, &st.Inserts, &st.Updates, &st.Closures,
			&st.NoOps, &st.Matched, &st.Unmatched, &st.MatchRate, &st.Quarantined, &st.ATCAnomalies,
			&info.HashVersion, &info.EngineVersion); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if info.RunAt, err = parseTime(runAt); err != nil {
			return nil, err
		}
		st.RunAt = info.RunAt
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// Quarantined returns the rows quarantined by the run at runAt, in input
// order.
func (s *Store) Quarantined(ctx context.Context, runAt time.Time) ([]record.QuarantinedRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, message, row
		FROM quarantine
		WHERE run_at = ?
		ORDER BY seq ASC
	`, formatTime(runAt))
	if err != nil {
		return nil, fmt.Errorf("query quarantine: %w", err)
	}
	defer rows.Close()

	out := []record.QuarantinedRow{}
	for rows.Next() {
		var (
			q   record.QuarantinedRow
			raw string
		)
		if err := rows.Scan(&q.Kind, &q.Message, &raw); err != nil {
			return nil, fmt.Errorf("scan quarantine: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &q.Row); err != nil {
			return nil, fmt.Errorf("unmarshal quarantined row: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quarantine: %w", err)
	}
	return out, nil
}

// CheckInvariants verifies the SCD2 invariants over the whole stored
// history. Returns the first *engine.ConsistencyError found.
func (s *Store) CheckInvariants(ctx context.Context) error {
	all, err := s.AllVersions(ctx)
	if err != nil {
		return err
	}
	for lo := 0; lo < len(all); {
		hi := lo + 1
		for hi < len(all) && all[hi].EntityID == all[lo].EntityID {
			hi++
		}
		if err := engine.CheckVersions(all[lo:hi]); err != nil {
			return err
		}
		lo = hi
	}
	return nil
}
