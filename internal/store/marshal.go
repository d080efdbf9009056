package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/epar/internal/record"
)

// timeLayout is fixed-width so that TEXT comparison matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// marshalAttributes converts attributes to canonical JSON TEXT.
func marshalAttributes(attrs record.Attributes) (string, error) {
	if attrs == nil {
		attrs = record.Attributes{}
	}
	data, err := record.MarshalCanonical(attrs)
	if err != nil {
		return "", fmt.Errorf("marshal attributes: %w", err)
	}
	return string(data), nil
}

func unmarshalAttributes(s string) (record.Attributes, error) {
	var attrs record.Attributes
	if err := json.Unmarshal([]byte(s), &attrs); err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}
	return attrs, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const versionColumns = `entity_id, valid_from, valid_to, is_current, source_id, family_id,
	status, row_hash, organization_id, attributes`

func scanVersion(sc scanner) (record.VersionRecord, error) {
	var (
		v         record.VersionRecord
		validFrom string
		validTo   sql.NullString
		current   int
		status    string
		orgID     sql.NullString
		attrs     string
	)
	if err := sc.Scan(&v.EntityID, &validFrom, &validTo, &current, &v.SourceID, &v.FamilyID,
		&status, &v.RowHash, &orgID, &attrs); err != nil {
		return record.VersionRecord{}, fmt.Errorf("scan version: %w", err)
	}

	var err error
	if v.ValidFrom, err = parseTime(validFrom); err != nil {
		return record.VersionRecord{}, err
	}
	if validTo.Valid {
		t, err := parseTime(validTo.String)
		if err != nil {
			return record.VersionRecord{}, err
		}
		v.ValidTo = &t
	}
	v.IsCurrent = current == 1
	v.Status = record.Status(status)
	if orgID.Valid {
		v.OrganizationID = record.Ptr(orgID.String)
	}
	if v.Attributes, err = unmarshalAttributes(attrs); err != nil {
		return record.VersionRecord{}, err
	}
	return v, nil
}
