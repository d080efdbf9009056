// Package gold projects the Silver version history into the Gold star
// schema: dim_medicine, fact_regulatory_history and
// bridge_medicine_features.
//
// The projection is a pure function of the stored versions, so it can be
// rebuilt at any time from history alone.
package gold

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/epar/internal/record"
)

// Feature types in bridge_medicine_features.
const (
	FeatureATC             = "ATC_CODE"
	FeatureSubstance       = "SUBSTANCE"
	FeatureTherapeuticArea = "THERAPEUTIC_AREA"
)

// Medicine is one dim_medicine row.
type Medicine struct {
	EntityID       string        `json:"entity_id"`
	SourceID       string        `json:"source_id"`
	FamilyID       string        `json:"family_id"`
	Name           string        `json:"medicine_name"`
	BrandName      string        `json:"brand_name"`
	Status         record.Status `json:"status"`
	IsCurrent      bool          `json:"is_current"`
	IsBiosimilar   bool          `json:"is_biosimilar"`
	IsGeneric      bool          `json:"is_generic"`
	IsOrphan       bool          `json:"is_orphan"`
	ProductURL     string        `json:"ema_product_url"`
	OrganizationID *string       `json:"organization_id"`
}

// HistoryFact is one fact_regulatory_history row: one per version.
type HistoryFact struct {
	HistoryID      string        `json:"history_id"`
	EntityID       string        `json:"entity_id"`
	Status         record.Status `json:"status"`
	ValidFrom      time.Time     `json:"valid_from"`
	ValidTo        *time.Time    `json:"valid_to"`
	IsCurrent      bool          `json:"is_current"`
	OrganizationID *string       `json:"organization_id"`
}

// Feature is one bridge_medicine_features row.
type Feature struct {
	EntityID string `json:"entity_id"`
	Type     string `json:"feature_type"`
	Value    string `json:"feature_value"`
}

// Projection holds the three Gold tables.
type Projection struct {
	Medicines []Medicine    `json:"dim_medicine"`
	History   []HistoryFact `json:"fact_regulatory_history"`
	Features  []Feature     `json:"bridge_medicine_features"`
}

// HistoryID derives the fact table key from an entity and the start of
// one of its versions.
func HistoryID(entityID string, validFrom time.Time) string {
	name := entityID + "_" + validFrom.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// Project builds the Gold tables from versions in any order.
//
// dim_medicine and the feature bridge carry one entry per entity, taken
// from its current version, or from its latest version when the entity
// has vanished. Output is ordered by entity id, then valid_from.
func Project(versions []record.VersionRecord) Projection {
	sorted := slices.Clone(versions)
	slices.SortFunc(sorted, func(a, b record.VersionRecord) int {
		if c := strings.Compare(a.EntityID, b.EntityID); c != 0 {
			return c
		}
		return a.ValidFrom.Compare(b.ValidFrom)
	})

	p := Projection{
		Medicines: []Medicine{},
		History:   make([]HistoryFact, 0, len(sorted)),
		Features:  []Feature{},
	}
	for i, v := range sorted {
		p.History = append(p.History, HistoryFact{
			HistoryID:      HistoryID(v.EntityID, v.ValidFrom),
			EntityID:       v.EntityID,
			Status:         v.Status,
			ValidFrom:      v.ValidFrom,
			ValidTo:        v.ValidTo,
			IsCurrent:      v.IsCurrent,
			OrganizationID: record.CloneString(v.OrganizationID),
		})

		// The last version of each entity represents it in the dimension.
		if i+1 < len(sorted) && sorted[i+1].EntityID == v.EntityID {
			continue
		}
		p.Medicines = append(p.Medicines, medicine(v))
		p.Features = append(p.Features, features(v)...)
	}
	return p
}

func medicine(v record.VersionRecord) Medicine {
	name := v.Attributes.String(record.AttrName)
	return Medicine{
		EntityID:       v.EntityID,
		SourceID:       v.SourceID,
		FamilyID:       v.FamilyID,
		Name:           name,
		BrandName:      name,
		Status:         v.Status,
		IsCurrent:      v.IsCurrent,
		IsBiosimilar:   v.Attributes.Bool(record.AttrBiosimilar),
		IsGeneric:      v.Attributes.Bool(record.AttrGeneric),
		IsOrphan:       v.Attributes.Bool(record.AttrOrphan),
		ProductURL:     v.Attributes.String(record.AttrURL),
		OrganizationID: record.CloneString(v.OrganizationID),
	}
}

// features explodes the multi-valued attributes. Order and duplicates are
// kept as stored.
func features(v record.VersionRecord) []Feature {
	var out []Feature
	add := func(kind string, values []string) {
		for _, val := range values {
			if val == "" {
				continue
			}
			out = append(out, Feature{EntityID: v.EntityID, Type: kind, Value: val})
		}
	}
	add(FeatureATC, v.Attributes.List(record.AttrATCCodes))
	add(FeatureSubstance, v.Attributes.List(record.AttrSubstances))
	add(FeatureTherapeuticArea, v.Attributes.List(record.AttrTherapeuticAreas))
	return out
}
