// Package family derives procedure-family keys from EMA procedure numbers.
package family

import (
	"regexp"

	"github.com/roach88/epar/internal/record"
)

// procedurePattern captures the whole numeric base segment of a centralised
// procedure number such as EMEA/H/C/001234 or EMEA/H/C/001234/X/0012.
// The segment must be followed by "/" or the end of input, so 001234 and
// 0012345 never collide.
var procedurePattern = regexp.MustCompile(`^EMEA/[A-Z]/C/(\d+)(?:/.*)?$`)

// Resolve returns the family id for a source id. Identifiers that do not
// follow the procedure format form a singleton family keyed by entityID.
func Resolve(sourceID, entityID string) string {
	m := procedurePattern.FindStringSubmatch(sourceID)
	if m == nil {
		return entityID
	}
	return m[1]
}

// Attach sets rec.FamilyID in place.
func Attach(rec *record.CanonicalRecord) {
	rec.FamilyID = Resolve(rec.SourceID, rec.EntityID)
}
