package gold

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epar/internal/record"
)

var (
	day1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
)

func version(sourceID string, status record.Status, from time.Time, to *time.Time, attrs record.Attributes) record.VersionRecord {
	return record.VersionRecord{
		EntityID:   record.EntityID(sourceID),
		SourceID:   sourceID,
		FamilyID:   "000001",
		ValidFrom:  from,
		ValidTo:    to,
		IsCurrent:  to == nil,
		Status:     status,
		RowHash:    record.MustRowHash(status, attrs, "Holder"),
		Attributes: attrs,
	}
}

func fixture() []record.VersionRecord {
	alpha := record.Attributes{
		record.AttrName:             record.String("Alpha"),
		record.AttrATCCodes:         record.List{"L01XC02", "L01XC02"},
		record.AttrSubstances:       record.List{"alphamab"},
		record.AttrTherapeuticAreas: record.List{"Carcinoma, Renal Cell", "Melanoma"},
		record.AttrURL:              record.String("https://example.org/alpha"),
		record.AttrOrphan:           record.Bool(true),
	}
	beta := record.Attributes{
		record.AttrName:       record.String("Beta"),
		record.AttrSubstances: record.List{"betanib"},
		record.AttrGeneric:    record.Bool(true),
	}
	closed := day2

	a1 := version("EMEA/H/C/000001", record.StatusConditionalApproval, day1, &closed, alpha)
	a2 := version("EMEA/H/C/000001", record.StatusApproved, day2, nil, alpha)
	a2.OrganizationID = record.Ptr("ORG-100")
	b1 := version("EMEA/H/C/000001/X/0002", record.StatusApproved, day1, &closed, beta)

	// Deliberately unordered.
	return []record.VersionRecord{a2, b1, a1}
}

func TestProject_Golden(t *testing.T) {
	p := Project(fixture())

	data, err := json.MarshalIndent(p, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "projection", data)
}

func TestProject_DimensionOnePerEntity(t *testing.T) {
	p := Project(fixture())

	require.Len(t, p.Medicines, 2)
	require.Len(t, p.History, 3)

	byID := map[string]Medicine{}
	for _, m := range p.Medicines {
		byID[m.SourceID] = m
	}

	alpha := byID["EMEA/H/C/000001"]
	assert.True(t, alpha.IsCurrent)
	assert.Equal(t, record.StatusApproved, alpha.Status)
	assert.Equal(t, "Alpha", alpha.BrandName)
	assert.True(t, alpha.IsOrphan)

	// Vanished entity falls back to its latest version.
	beta := byID["EMEA/H/C/000001/X/0002"]
	assert.False(t, beta.IsCurrent)
	assert.True(t, beta.IsGeneric)
}

func TestProject_FeaturesKeepOrderAndDuplicates(t *testing.T) {
	p := Project(fixture())

	var atc, areas []string
	for _, f := range p.Features {
		if f.EntityID != record.EntityID("EMEA/H/C/000001") {
			continue
		}
		switch f.Type {
		case FeatureATC:
			atc = append(atc, f.Value)
		case FeatureTherapeuticArea:
			areas = append(areas, f.Value)
		}
	}
	assert.Equal(t, []string{"L01XC02", "L01XC02"}, atc)
	assert.Equal(t, []string{"Carcinoma, Renal Cell", "Melanoma"}, areas)
}

func TestHistoryID_Deterministic(t *testing.T) {
	id := record.EntityID("EMEA/H/C/000001")
	assert.Equal(t, HistoryID(id, day1), HistoryID(id, day1.In(time.FixedZone("CET", 3600))))
	assert.NotEqual(t, HistoryID(id, day1), HistoryID(id, day2))
}

func TestProject_Empty(t *testing.T) {
	p := Project(nil)
	assert.Empty(t, p.Medicines)
	assert.Empty(t, p.History)
	assert.Empty(t, p.Features)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dim_medicine":[],"fact_regulatory_history":[],"bridge_medicine_features":[]}`, string(data))
}
