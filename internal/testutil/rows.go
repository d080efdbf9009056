package testutil

import "github.com/roach88/epar/internal/record"

// RowOption modifies a raw row built by Row.
type RowOption func(*record.RawRow)

// Row builds a minimal valid raw row. The status text defaults to
// "Authorised".
func Row(sourceID, name, holder string, opts ...RowOption) record.RawRow {
	r := record.RawRow{
		SourceID: sourceID,
		Name:     name,
		Holder:   holder,
		Status:   "Authorised",
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// WithStatus sets the raw status text.
func WithStatus(status string) RowOption {
	return func(r *record.RawRow) { r.Status = status }
}

// WithATC sets the raw ATC field.
func WithATC(code string) RowOption {
	return func(r *record.RawRow) { r.ATCCode = code }
}

// WithSubstance sets the raw substance field.
func WithSubstance(s string) RowOption {
	return func(r *record.RawRow) { r.Substance = s }
}

// WithOrphan sets the orphan flag from raw text.
func WithOrphan(raw string) RowOption {
	return func(r *record.RawRow) { r.Orphan = record.FlagOf(raw) }
}
