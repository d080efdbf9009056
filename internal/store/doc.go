// Package store provides SQLite-backed durable storage for the Silver
// version history.
//
// The store holds:
//   - versions: every SCD2 version, keyed by (entity_id, valid_from)
//   - runs: one ledger row per committed run, keyed by run timestamp
//   - quarantine: rows excluded from a run with their failure reason
//
// # Critical Patterns
//
// CP-1: One Run, One Transaction
//   - Commit applies closes, opens, the ledger row and quarantine rows in
//     a single transaction; any failure rolls everything back
//   - A run timestamp already in the ledger is rejected with
//     engine.ErrRunAlreadyApplied before anything is written
//   - A run older than the ledger head is rejected with NON_MONOTONIC_RUN
//
// CP-2: At Most One Open Version
//   - Partial UNIQUE index on versions(entity_id) WHERE is_current = 1
//   - A close must affect exactly one open row, else DOUBLE_CLOSE
//
// CP-3: Deterministic Query Results
//   - Timestamps are stored as fixed-width UTC text so lexical order is
//     chronological
//   - All queries order by entity_id COLLATE BINARY, then valid_from
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Attribute snapshots are stored as RFC 8785 canonical JSON produced by
// record.MarshalCanonical.
package store
