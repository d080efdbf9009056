// Package engine implements the SCD Type 2 historization engine.
//
// The engine is the heart of the Silver layer: given the previous run's
// current-version table and this run's canonical records, it decides what
// changed and produces the versions to write.
//
// ARCHITECTURE:
//
// Two phases, separated by a barrier:
//
//  1. Plan (pure): validate prior state, join prior against the snapshot,
//     classify every entity, build the delta and the new current table.
//     Per-entity decisions are independent and run in parallel.
//  2. Commit (atomic): a store applies the whole plan or none of it.
//     See History.Apply for the in-memory store and internal/store for
//     SQLite.
//
// Per entity per run:
//
//	prior \ snapshot   present, same hash   present, new hash   absent
//	absent             Insert               Insert              -
//	current            NoOp                 Update (close+open)  Vanish (close)
//
// CRITICAL PATTERNS:
//
// Idempotence: an unchanged record produces zero writes; a vanished entity
// has no current version, so it is never closed twice.
//
// Injected time: the run timestamp is a parameter. The engine never reads
// the wall clock.
//
// Fail closed: corrupted prior state (two open versions, a closed version
// in the current table) aborts the run before anything is written.
package engine
