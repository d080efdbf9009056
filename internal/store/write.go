package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/epar/internal/engine"
	"github.com/roach88/epar/internal/record"
	"github.com/roach88/epar/internal/report"
)

// Run is everything a commit persists for one run.
type Run struct {
	Plan        *engine.Plan
	Quarantined []record.QuarantinedRow
	Stats       report.RunStats
}

// Commit applies run atomically: every close, every open, the ledger row
// and the quarantine rows, or nothing.
//
// Returns engine.ErrRunAlreadyApplied if the run timestamp is already in
// the ledger, and a *engine.ConsistencyError if the plan no longer fits
// the stored state (stale plan, out-of-order run).
func (s *Store) Commit(ctx context.Context, run Run) (RunInfo, error) {
	if run.Plan == nil {
		return RunInfo{}, fmt.Errorf("commit: nil plan")
	}
	runAt := formatTime(run.Plan.RunAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RunInfo{}, fmt.Errorf("commit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := checkRunOrder(ctx, tx, runAt); err != nil {
		return RunInfo{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return RunInfo{}, fmt.Errorf("commit: run id: %w", err)
	}
	info := RunInfo{
		RunID:         id.String(),
		RunAt:         run.Plan.RunAt.UTC(),
		Stats:         run.Stats,
		HashVersion:   record.HashVersion,
		EngineVersion: record.EngineVersion,
	}
	info.Stats.RunAt = info.RunAt
	if err := insertRun(ctx, tx, runAt, info); err != nil {
		return RunInfo{}, err
	}

	for _, c := range run.Plan.Closes {
		if err := closeVersion(ctx, tx, runAt, c); err != nil {
			return RunInfo{}, err
		}
	}
	for _, o := range run.Plan.Opens {
		if err := insertVersion(ctx, tx, runAt, o); err != nil {
			return RunInfo{}, err
		}
	}
	for i, q := range run.Quarantined {
		if err := insertQuarantine(ctx, tx, runAt, i, q); err != nil {
			return RunInfo{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return RunInfo{}, fmt.Errorf("commit: %w", err)
	}
	return info, nil
}

// checkRunOrder rejects a replayed run and a run older than the ledger head.
// It runs inside the commit transaction so the head cannot move under it.
func checkRunOrder(ctx context.Context, tx *sql.Tx, runAt string) error {
	var latest sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT MAX(run_at) FROM runs`).Scan(&latest); err != nil {
		return fmt.Errorf("commit: read ledger head: %w", err)
	}
	// Fixed-width UTC text compares chronologically
	if !latest.Valid || runAt > latest.String {
		return nil
	}

	// Not newer: either an exact replay or a late run
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE run_at = ?`, runAt).Scan(&exists)
	switch {
	case err == nil:
		return engine.ErrRunAlreadyApplied
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("commit: read ledger: %w", err)
	}
	return engine.NewRunOrderError(runAt, latest.String)
}

// insertRun writes the ledger row. The run_at primary key makes a racing
// second commit of the same run fail here.
func insertRun(ctx context.Context, tx *sql.Tx, runAt string, info RunInfo) error {
	st := info.Stats
	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_at, run_id, rows_in, inserts, updates, closures, noops, matched, unmatched,
		 match_rate, quarantined, atc_anomalies, hash_version, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runAt, info.RunID, st.Rows, st.Inserts, st.Updates, st.Closures, st.NoOps,
		st.Matched, st.Unmatched, st.MatchRate, st.Quarantined, st.ATCAnomalies,
		info.HashVersion, info.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("commit: insert run: %w", err)
	}
	return nil
}

// closeVersion ends the open version c. Exactly one open row must match.
func closeVersion(ctx context.Context, tx *sql.Tx, runAt string, c record.VersionRecord) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE versions
		SET valid_to = ?, is_current = 0, closed_by = ?
		WHERE entity_id = ? AND valid_from = ? AND is_current = 1 AND valid_to IS NULL
	`, runAt, runAt, c.EntityID, formatTime(c.ValidFrom))
	if err != nil {
		return fmt.Errorf("commit: close version %s: %w", c.EntityID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit: close version %s: rows affected: %w", c.EntityID, err)
	}
	if n != 1 {
		return engine.NewDoubleCloseError(c.EntityID)
	}
	return nil
}

// insertVersion opens v. A second open row for the entity trips the
// partial unique index and is reported as DUPLICATE_CURRENT.
func insertVersion(ctx context.Context, tx *sql.Tx, runAt string, v record.VersionRecord) error {
	attrs, err := marshalAttributes(v.Attributes)
	if err != nil {
		return fmt.Errorf("commit: open version %s: %w", v.EntityID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO versions
		(entity_id, valid_from, valid_to, is_current, source_id, family_id,
		 status, row_hash, organization_id, attributes, opened_by)
		VALUES (?, ?, NULL, 1, ?, ?, ?, ?, ?, ?, ?)
	`,
		v.EntityID, formatTime(v.ValidFrom), v.SourceID, v.FamilyID,
		string(v.Status), v.RowHash, nullString(v.OrganizationID), attrs, runAt,
	)
	if isConstraintViolation(err) {
		return &engine.ConsistencyError{
			Code:     engine.ErrCodeDuplicateCurrent,
			Message:  "entity already has an open version",
			EntityID: v.EntityID,
		}
	}
	if err != nil {
		return fmt.Errorf("commit: open version %s: %w", v.EntityID, err)
	}
	return nil
}

func insertQuarantine(ctx context.Context, tx *sql.Tx, runAt string, seq int, q record.QuarantinedRow) error {
	row, err := json.Marshal(q.Row)
	if err != nil {
		return fmt.Errorf("commit: marshal quarantined row: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO quarantine (run_at, seq, source_id, kind, message, row)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runAt, seq, q.Row.SourceID, q.Kind, q.Message, string(row))
	if err != nil {
		return fmt.Errorf("commit: insert quarantine: %w", err)
	}
	return nil
}

// isConstraintViolation reports a UNIQUE or PRIMARY KEY violation.
func isConstraintViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
