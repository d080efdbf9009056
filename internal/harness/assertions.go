package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/epar/internal/record"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	SourceID string
	Expected string
	Actual   string
	Versions []record.VersionRecord // the entity's history, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s %s\n", e.Type, e.SourceID)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Versions) > 0 {
		fmt.Fprintf(&buf, "\nHistory:\n")
		for i, v := range e.Versions {
			end := "open"
			if v.ValidTo != nil {
				end = v.ValidTo.Format("2006-01-02T15:04:05Z07:00")
			}
			fmt.Fprintf(&buf, "  [%d] %s .. %s %s\n",
				i+1, v.ValidFrom.Format("2006-01-02T15:04:05Z07:00"), end, v.Status)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks assertions against versions and returns one
// message per failure.
func EvaluateAssertions(versions []record.VersionRecord, assertions []Assertion) []string {
	bySource := make(map[string][]record.VersionRecord)
	for _, v := range versions {
		bySource[v.SourceID] = append(bySource[v.SourceID], v)
	}

	var failures []string
	for i, a := range assertions {
		var err error
		vs := bySource[a.SourceID]
		switch a.Type {
		case AssertVersionCount:
			err = assertVersionCount(vs, a)
		case AssertCurrentStatus:
			err = assertCurrentStatus(vs, a)
		case AssertNoCurrent:
			err = assertNoCurrent(vs, a)
		case AssertOrganization:
			err = assertOrganization(vs, a)
		default:
			err = fmt.Errorf("unknown assertion type: %s", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return failures
}

func current(vs []record.VersionRecord) (record.VersionRecord, bool) {
	for _, v := range vs {
		if v.Open() {
			return v, true
		}
	}
	return record.VersionRecord{}, false
}

func assertVersionCount(vs []record.VersionRecord, a Assertion) error {
	if len(vs) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		SourceID: a.SourceID,
		Expected: fmt.Sprintf("%d versions", a.Count),
		Actual:   fmt.Sprintf("%d versions", len(vs)),
		Versions: vs,
	}
}

func assertCurrentStatus(vs []record.VersionRecord, a Assertion) error {
	cur, ok := current(vs)
	if ok && string(cur.Status) == a.Status {
		return nil
	}
	actual := "no current version"
	if ok {
		actual = string(cur.Status)
	}
	return &AssertionError{
		Type:     a.Type,
		SourceID: a.SourceID,
		Expected: a.Status,
		Actual:   actual,
		Versions: vs,
	}
}

func assertNoCurrent(vs []record.VersionRecord, a Assertion) error {
	cur, ok := current(vs)
	if !ok {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		SourceID: a.SourceID,
		Expected: "no current version",
		Actual:   fmt.Sprintf("open since %s", cur.ValidFrom.Format("2006-01-02T15:04:05Z07:00")),
		Versions: vs,
	}
}

func assertOrganization(vs []record.VersionRecord, a Assertion) error {
	cur, ok := current(vs)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			SourceID: a.SourceID,
			Expected: orgText(a.OrganizationID),
			Actual:   "no current version",
			Versions: vs,
		}
	}
	got := ""
	if cur.OrganizationID != nil {
		got = *cur.OrganizationID
	}
	if got == a.OrganizationID {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		SourceID: a.SourceID,
		Expected: orgText(a.OrganizationID),
		Actual:   orgText(got),
		Versions: vs,
	}
}

func orgText(id string) string {
	if id == "" {
		return "unresolved"
	}
	return id
}
