// Package harness replays multi-day snapshot scenarios through the full
// pipeline and checks the resulting history.
//
// Each scenario runs against a Backend: the in-memory engine.History or a
// SQLite store. Both must produce the same versions for the same input,
// which is how the harness keeps the two implementations honest.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config: |
//	  match_threshold: 0.95
//	registry:
//	  - organization_id: ORG-100
//	    name: Pfizer Europe MA EEIG
//	days:
//	  - run_at: 2024-05-01T00:00:00Z
//	    rows:
//	      - source_id: EMEA/H/C/000001
//	        name: Medicine
//	        holder: Pfizer Europe MA EEIG
//	        status: Authorised
//	    expect:
//	      inserts: 1
//	  - run_at: 2024-05-02T00:00:00Z
//	    rows: []
//	    expect_error: NON_MONOTONIC_RUN
//	assertions:
//	  - type: current_status
//	    source_id: EMEA/H/C/000001
//	    status: APPROVED
//
// Unknown keys are rejected so typos fail loudly.
//
// # Assertion Types
//
//   - version_count: the entity has exactly count versions
//   - current_status: the entity's open version has status
//   - no_current: the entity has no open version
//   - organization: the open version resolved to organization_id
//     (empty means unresolved)
//
// # Golden Files
//
// AssertGolden compares a Snapshot of the run against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
