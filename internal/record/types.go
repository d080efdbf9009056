package record

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Status is the normalized authorisation status.
type Status string

const (
	StatusApproved                 Status = "APPROVED"
	StatusConditionalApproval      Status = "CONDITIONAL_APPROVAL"
	StatusExceptionalCircumstances Status = "EXCEPTIONAL_CIRCUMSTANCES"
	StatusRejected                 Status = "REJECTED"
	StatusWithdrawn                Status = "WITHDRAWN"
	StatusSuspended                Status = "SUSPENDED"
)

// Statuses lists every valid status in declaration order.
var Statuses = []Status{
	StatusApproved,
	StatusConditionalApproval,
	StatusExceptionalCircumstances,
	StatusRejected,
	StatusWithdrawn,
	StatusSuspended,
}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Flag is a boolean-like source field. The source encodes flags as real
// booleans, "Yes"/"No" strings, or omits them; Flag keeps the raw text so
// the normalizer owns the coercion rule.
type Flag struct {
	Raw string
	Set bool
}

// FlagOf builds a present flag from raw text.
func FlagOf(raw string) Flag {
	return Flag{Raw: raw, Set: true}
}

// UnmarshalJSON accepts true/false, strings and null.
func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = Flag{}
		return nil
	}
	if s == "true" || s == "false" {
		*f = FlagOf(s)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		// Numbers and other scalars are kept verbatim; they coerce to false.
		*f = FlagOf(s)
		return nil
	}
	*f = FlagOf(str)
	return nil
}

// MarshalJSON writes the raw text, or null when unset.
func (f Flag) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Raw)
}

// UnmarshalYAML accepts any scalar. A null scalar leaves the flag unset.
func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: flag must be a scalar", node.Line)
	}
	if node.Tag == "!!null" {
		*f = Flag{}
		return nil
	}
	*f = FlagOf(node.Value)
	return nil
}

// RawRow is one validated source row as delivered by the ingestion layer.
type RawRow struct {
	SourceID                 string     `json:"source_id" yaml:"source_id"`
	Name                     string     `json:"name" yaml:"name"`
	Holder                   string     `json:"holder" yaml:"holder"`
	Substance                string     `json:"substance,omitempty" yaml:"substance,omitempty"`
	Status                   string     `json:"status" yaml:"status"`
	ATCCode                  string     `json:"atc_code,omitempty" yaml:"atc_code,omitempty"`
	TherapeuticArea          string     `json:"therapeutic_area,omitempty" yaml:"therapeutic_area,omitempty"`
	URL                      string     `json:"url,omitempty" yaml:"url,omitempty"`
	Generic                  Flag       `json:"generic" yaml:"generic"`
	Biosimilar               Flag       `json:"biosimilar" yaml:"biosimilar"`
	Orphan                   Flag       `json:"orphan" yaml:"orphan"`
	ConditionalApproval      Flag       `json:"conditional_approval" yaml:"conditional_approval"`
	ExceptionalCircumstances Flag       `json:"exceptional_circumstances" yaml:"exceptional_circumstances"`
	RevisionDate             *time.Time `json:"revision_date,omitempty" yaml:"revision_date,omitempty"`
	IngestedAt               *time.Time `json:"ingested_at,omitempty" yaml:"ingested_at,omitempty"`
}

// CanonicalRecord is the normalized, enriched form of a RawRow.
// It is recomputed every run; only EntityID is durable.
type CanonicalRecord struct {
	SourceID            string     `json:"source_id"`
	EntityID            string     `json:"entity_id"`
	FamilyID            string     `json:"family_id"`
	Attributes          Attributes `json:"attributes"`
	Status              Status     `json:"status"`
	OrganizationNameRaw string     `json:"organization_name_raw"`
	OrganizationID      *string    `json:"organization_id"`
	RowHash             string     `json:"row_hash"`
}

// VersionRecord is one SCD Type 2 version of an entity.
// A version with ValidTo set is closed and never mutated again.
type VersionRecord struct {
	EntityID       string     `json:"entity_id"`
	SourceID       string     `json:"source_id"`
	FamilyID       string     `json:"family_id"`
	ValidFrom      time.Time  `json:"valid_from"`
	ValidTo        *time.Time `json:"valid_to"`
	IsCurrent      bool       `json:"is_current"`
	Status         Status     `json:"status"`
	RowHash        string     `json:"row_hash"`
	OrganizationID *string    `json:"organization_id"`
	Attributes     Attributes `json:"attributes"`
}

// Open reports whether the version has no end.
func (v VersionRecord) Open() bool {
	return v.ValidTo == nil
}

// ClosedAt returns a copy of v closed at t.
func (v VersionRecord) ClosedAt(t time.Time) VersionRecord {
	closed := v
	end := t
	closed.ValidTo = &end
	closed.IsCurrent = false
	return closed
}

// NewVersion opens a version for rec starting at t.
func NewVersion(rec CanonicalRecord, t time.Time) VersionRecord {
	return VersionRecord{
		EntityID:       rec.EntityID,
		SourceID:       rec.SourceID,
		FamilyID:       rec.FamilyID,
		ValidFrom:      t,
		IsCurrent:      true,
		Status:         rec.Status,
		RowHash:        rec.RowHash,
		OrganizationID: CloneString(rec.OrganizationID),
		Attributes:     rec.Attributes.Clone(),
	}
}

// RegistryEntry is one organisation from the offline SPOR export.
type RegistryEntry struct {
	OrganizationID string `json:"organization_id" yaml:"organization_id"`
	Name           string `json:"name" yaml:"name"`
	Role           string `json:"role,omitempty" yaml:"role,omitempty"`
}

// QuarantinedRow is a raw row excluded from a run with its failure reason.
type QuarantinedRow struct {
	Row     RawRow `json:"row"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CloneString copies an optional string.
func CloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Ptr returns a pointer to s.
func Ptr(s string) *string {
	return &s
}
