package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epar/internal/config"
	"github.com/roach88/epar/internal/record"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	n, err := New(cfg)
	require.NoError(t, err)
	return n
}

func baseRow() record.RawRow {
	return record.RawRow{
		SourceID:  "EMEA/H/C/001234",
		Name:      "Medicine A",
		Holder:    "Pharma GmbH",
		Substance: "Sub A + Sub B/Sub C",
		Status:    "Authorised",
		ATCCode:   "A01BC01, B01AB01",
		URL:       "https://example.org/a",
	}
}

func TestNormalizeBasic(t *testing.T) {
	n := newTestNormalizer(t)

	res, err := n.Normalize(baseRow())
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, "EMEA/H/C/001234", rec.SourceID)
	assert.Equal(t, record.EntityID("EMEA/H/C/001234"), rec.EntityID)
	assert.Equal(t, record.StatusApproved, rec.Status)
	assert.Equal(t, "Pharma GmbH", rec.OrganizationNameRaw)
	assert.Equal(t, "Medicine A", rec.Attributes.String(record.AttrName))
	assert.Equal(t, []string{"Sub A", "Sub B", "Sub C"}, rec.Attributes.List(record.AttrSubstances))
	assert.Equal(t, []string{"A01BC01", "B01AB01"}, rec.Attributes.List(record.AttrATCCodes))
	assert.Equal(t, []string{}, rec.Attributes.List(record.AttrTherapeuticAreas))
	assert.Empty(t, res.Anomalies)

	assert.Empty(t, rec.FamilyID, "family is attached later")
	assert.Nil(t, rec.OrganizationID, "organisation is attached later")
	assert.Empty(t, rec.RowHash, "hash is computed after enrichment")
}

func TestNormalizeFlags(t *testing.T) {
	n := newTestNormalizer(t)

	row := baseRow()
	row.Generic = record.FlagOf("Yes")
	row.Biosimilar = record.FlagOf("true")
	row.Orphan = record.FlagOf("No")
	row.ConditionalApproval = record.FlagOf("maybe")

	res, err := n.Normalize(row)
	require.NoError(t, err)

	attrs := res.Record.Attributes
	assert.True(t, attrs.Bool(record.AttrGeneric))
	assert.True(t, attrs.Bool(record.AttrBiosimilar))
	assert.False(t, attrs.Bool(record.AttrOrphan))
	assert.False(t, attrs.Bool(record.AttrConditionalApproval), "unexpected encodings coerce to false")
	assert.False(t, attrs.Bool(record.AttrExceptionalCircumstances), "missing is false")
	_, present := attrs[record.AttrExceptionalCircumstances]
	assert.True(t, present, "flags are always materialized")
}

func TestNormalizeATCAnomaliesRetained(t *testing.T) {
	n := newTestNormalizer(t)

	row := baseRow()
	row.ATCCode = "A01BC01, B01AB01; INVALID; A01BC01 (tablet)"

	res, err := n.Normalize(row)
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"A01BC01", "B01AB01", "INVALID", "A01BC01 (tablet)"},
		res.Record.Attributes.List(record.AttrATCCodes),
		"malformed fragments are kept")
	require.Len(t, res.Anomalies, 2)
	assert.Equal(t, Anomaly{Kind: AnomalyATCFormat, SourceID: "EMEA/H/C/001234", Field: "atc_code", Value: "INVALID"}, res.Anomalies[0])
	assert.Equal(t, "A01BC01 (tablet)", res.Anomalies[1].Value)
}

func TestNormalizeTherapeuticAreaSplitsOnSemicolonOnly(t *testing.T) {
	n := newTestNormalizer(t)

	row := baseRow()
	row.TherapeuticArea = "Carcinoma, Renal Cell; Lung Neoplasms"

	res, err := n.Normalize(row)
	require.NoError(t, err)
	assert.Equal(t, []string{"Carcinoma, Renal Cell", "Lung Neoplasms"}, res.Record.Attributes.List(record.AttrTherapeuticAreas))
}

func TestNormalizeStatusVocabulary(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		input string
		want  record.Status
	}{
		{"Authorised", record.StatusApproved},
		{"AUTHORISED", record.StatusApproved},
		{"  authorised  ", record.StatusApproved},
		{"Refused", record.StatusRejected},
		{"Withdrawn", record.StatusWithdrawn},
		{"Expired", record.StatusWithdrawn},
		{"Suspended", record.StatusSuspended},
		{"Suspension Lifted", record.StatusApproved},
		{"Exceptional Circumstances", record.StatusExceptionalCircumstances},
		{"Authorised under exceptional circumstances", record.StatusExceptionalCircumstances},
		{"Conditional Marketing Authorisation", record.StatusConditionalApproval},
		{"Conditional Approval", record.StatusConditionalApproval},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			row := baseRow()
			row.Status = tt.input
			res, err := n.Normalize(row)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Record.Status)
		})
	}
}

func TestNormalizeUnknownStatusIsValidationFailure(t *testing.T) {
	n := newTestNormalizer(t)

	row := baseRow()
	row.Status = "Not Authorised"

	_, err := n.Normalize(row)
	require.Error(t, err)
	assert.True(t, IsValidationFailure(err))
	assert.True(t, IsUnknownStatus(err))

	var re *RowError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "EMEA/H/C/001234", re.SourceID)
}

func TestNormalizeMissingRequiredFields(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		name  string
		mod   func(*record.RawRow)
		field string
	}{
		{"source id", func(r *record.RawRow) { r.SourceID = " " }, "source_id"},
		{"name", func(r *record.RawRow) { r.Name = "\u200b" }, "name"},
		{"holder", func(r *record.RawRow) { r.Holder = "" }, "holder"},
		{"status", func(r *record.RawRow) { r.Status = "" }, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := baseRow()
			tt.mod(&row)
			_, err := n.Normalize(row)

			var re *RowError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, KindMissingField, re.Kind)
			assert.Equal(t, tt.field, re.Field)
			assert.False(t, IsUnknownStatus(err))
		})
	}
}

func TestNormalizeStripsInvisibleCharacters(t *testing.T) {
	n := newTestNormalizer(t)

	row := baseRow()
	row.Name = "Medicine\u200bA"
	row.Substance = "Substance\u200bB"
	row.ATCCode = "A01BC01\u200b"
	row.Status = "Authorised\u200b"

	res, err := n.Normalize(row)
	require.NoError(t, err)
	assert.Equal(t, "MedicineA", res.Record.Attributes.String(record.AttrName))
	assert.Equal(t, []string{"SubstanceB"}, res.Record.Attributes.List(record.AttrSubstances))
	assert.Equal(t, []string{"A01BC01"}, res.Record.Attributes.List(record.AttrATCCodes))
	assert.Empty(t, res.Anomalies)
}

func TestNormalizeIgnoresVolatileFields(t *testing.T) {
	n := newTestNormalizer(t)

	a := baseRow()
	b := baseRow()
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(48 * time.Hour)
	a.IngestedAt, a.RevisionDate = &t1, &t1
	b.IngestedAt, b.RevisionDate = &t2, &t2

	ra, err := n.Normalize(a)
	require.NoError(t, err)
	rb, err := n.Normalize(b)
	require.NoError(t, err)

	assert.Equal(t, ra.Record, rb.Record)
}

func TestMapStatusCustomVocabulary(t *testing.T) {
	cfg, err := config.Parse([]byte(`status_vocabulary: {"Provisional": "CONDITIONAL_APPROVAL"}`))
	require.NoError(t, err)
	n, err := New(cfg)
	require.NoError(t, err)

	s, ok := n.MapStatus("provisional")
	assert.True(t, ok)
	assert.Equal(t, record.StatusConditionalApproval, s)

	_, ok = n.MapStatus("Provisional approval")
	assert.False(t, ok, "matching is exact, not substring")
}
