package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/epar/internal/record"
)

// ErrorRunAlreadyApplied is the expect_error value for a replayed run.
const ErrorRunAlreadyApplied = "RUN_ALREADY_APPLIED"

// Scenario is a sequence of daily snapshots and the checks to run after
// the last one.
type Scenario struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Config      string                 `yaml:"config,omitempty"`
	Registry    []record.RegistryEntry `yaml:"registry"`
	Days        []Day                  `yaml:"days"`
	Assertions  []Assertion            `yaml:"assertions"`
}

// Day is one run.
type Day struct {
	RunAt       time.Time       `yaml:"run_at"`
	Rows        []record.RawRow `yaml:"rows"`
	Expect      *Counts         `yaml:"expect,omitempty"`
	ExpectError string          `yaml:"expect_error,omitempty"`
}

// Counts are the per-run counters a day may pin down.
type Counts struct {
	Inserts     int   `yaml:"inserts" json:"inserts"`
	Updates     int   `yaml:"updates" json:"updates"`
	Closures    int   `yaml:"closures" json:"closures"`
	NoOps       int   `yaml:"noops" json:"noops"`
	Quarantined int   `yaml:"quarantined" json:"quarantined"`
	Matched     int64 `yaml:"matched" json:"matched"`
	Unmatched   int64 `yaml:"unmatched" json:"unmatched"`
}

// Assertion is a check on the final history.
type Assertion struct {
	Type           string `yaml:"type"`
	SourceID       string `yaml:"source_id"`
	Count          int    `yaml:"count,omitempty"`
	Status         string `yaml:"status,omitempty"`
	OrganizationID string `yaml:"organization_id,omitempty"`
}

// Assertion types.
const (
	AssertVersionCount  = "version_count"
	AssertCurrentStatus = "current_status"
	AssertNoCurrent     = "no_current"
	AssertOrganization  = "organization"
)

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Days) == 0 {
		return fmt.Errorf("days list is required and must be non-empty")
	}

	for i, d := range s.Days {
		if d.RunAt.IsZero() {
			return fmt.Errorf("days[%d]: run_at is required", i)
		}
		if d.Expect != nil && d.ExpectError != "" {
			return fmt.Errorf("days[%d]: expect and expect_error are mutually exclusive", i)
		}
	}

	for i, a := range s.Assertions {
		if a.SourceID == "" {
			return fmt.Errorf("assertions[%d]: source_id is required", i)
		}
		switch a.Type {
		case AssertVersionCount, AssertNoCurrent, AssertOrganization:
		case AssertCurrentStatus:
			if !record.Status(a.Status).Valid() {
				return fmt.Errorf("assertions[%d]: invalid status %q", i, a.Status)
			}
		default:
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
	}
	return nil
}
