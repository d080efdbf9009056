// Package normalize turns validated raw rows into canonical records.
//
// Normalization is pure: no state is shared between rows, so a Normalizer
// may be used from many goroutines at once.
package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/epar/internal/config"
	"github.com/roach88/epar/internal/record"
)

// AnomalyATCFormat marks an ATC fragment that fails the ATC syntax check.
const AnomalyATCFormat = "ATC_FORMAT"

// TherapeuticAreaDelimiters separate therapeutic areas. Area names contain
// commas ("Carcinoma, Renal Cell"), so only semicolons split them.
var TherapeuticAreaDelimiters = []string{";"}

// Anomaly is a non-fatal FormatAnomaly. The offending value is retained.
type Anomaly struct {
	Kind     string `json:"kind"`
	SourceID string `json:"source_id"`
	Field    string `json:"field"`
	Value    string `json:"value"`
}

// Result is a normalized row. Record has no FamilyID, OrganizationID or
// RowHash yet; later stages fill those in.
type Result struct {
	Record    record.CanonicalRecord
	Anomalies []Anomaly
}

// Normalizer applies the field rules.
type Normalizer struct {
	delimiters []string
	vocabulary map[string]record.Status
	atc        *regexp.Regexp
}

// New creates a Normalizer from configuration.
func New(cfg config.Config) (*Normalizer, error) {
	atc, err := regexp.Compile(cfg.ATCPattern)
	if err != nil {
		return nil, fmt.Errorf("compile atc pattern: %w", err)
	}
	vocab := make(map[string]record.Status, len(cfg.StatusVocabulary))
	for k, v := range cfg.StatusVocabulary {
		vocab[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &Normalizer{
		delimiters: append([]string(nil), cfg.Delimiters...),
		vocabulary: vocab,
		atc:        atc,
	}, nil
}

// MapStatus resolves status text through the vocabulary
// (case-insensitive exact match after cleaning).
func (n *Normalizer) MapStatus(text string) (record.Status, bool) {
	s, ok := n.vocabulary[strings.ToLower(CleanText(text))]
	return s, ok
}

// Normalize cleans one row. A *RowError is returned for rows that must be
// quarantined.
func (n *Normalizer) Normalize(row record.RawRow) (Result, error) {
	sourceID := CleanText(row.SourceID)
	if sourceID == "" {
		return Result{}, missingField("", "source_id")
	}

	name := CleanText(row.Name)
	if name == "" {
		return Result{}, missingField(sourceID, "name")
	}
	holder := CleanText(row.Holder)
	if holder == "" {
		return Result{}, missingField(sourceID, "holder")
	}
	statusText := CleanText(row.Status)
	if statusText == "" {
		return Result{}, missingField(sourceID, "status")
	}
	status, ok := n.MapStatus(statusText)
	if !ok {
		return Result{}, unknownStatus(sourceID, statusText)
	}

	atcCodes := SplitMulti(CleanText(row.ATCCode), n.delimiters)
	var anomalies []Anomaly
	for _, code := range atcCodes {
		if !n.atc.MatchString(code) {
			anomalies = append(anomalies, Anomaly{
				Kind:     AnomalyATCFormat,
				SourceID: sourceID,
				Field:    "atc_code",
				Value:    code,
			})
		}
	}

	attrs := record.Attributes{
		record.AttrName:                     record.String(name),
		record.AttrSubstances:               record.List(SplitMulti(CleanText(row.Substance), n.delimiters)),
		record.AttrATCCodes:                 record.List(atcCodes),
		record.AttrTherapeuticAreas:         record.List(SplitMulti(CleanText(row.TherapeuticArea), TherapeuticAreaDelimiters)),
		record.AttrURL:                      record.String(CleanText(row.URL)),
		record.AttrGeneric:                  record.Bool(ParseFlag(row.Generic.Raw, row.Generic.Set)),
		record.AttrBiosimilar:               record.Bool(ParseFlag(row.Biosimilar.Raw, row.Biosimilar.Set)),
		record.AttrOrphan:                   record.Bool(ParseFlag(row.Orphan.Raw, row.Orphan.Set)),
		record.AttrConditionalApproval:      record.Bool(ParseFlag(row.ConditionalApproval.Raw, row.ConditionalApproval.Set)),
		record.AttrExceptionalCircumstances: record.Bool(ParseFlag(row.ExceptionalCircumstances.Raw, row.ExceptionalCircumstances.Set)),
	}

	return Result{
		Record: record.CanonicalRecord{
			SourceID:            sourceID,
			EntityID:            record.EntityID(sourceID),
			Attributes:          attrs,
			Status:              status,
			OrganizationNameRaw: holder,
		},
		Anomalies: anomalies,
	}, nil
}
