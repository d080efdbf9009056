// Package record defines the value types that flow through the Silver
// historization engine: raw validated rows, canonical records, version
// records and registry entries.
//
// record imports nothing internal. Every other package depends on it.
//
// Key constraints:
//   - Attribute values are restricted to String, Bool and List (no floats, no null)
//   - Row hashes and entity ids are content-derived and stable across reruns
//   - Multi-valued attributes are ordered sequences, never sets
//   - Timestamps are injected by the caller, never read from the wall clock
package record
