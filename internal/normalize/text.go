package normalize

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CleanText strips format characters (zero-width spaces, BOMs, bidi
// marks), NFC-normalizes and trims surrounding whitespace.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	// Chains carry state; build one per call so CleanText stays safe for
	// concurrent use.
	t := transform.Chain(runes.Remove(runes.In(unicode.Cf)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.TrimSpace(out)
}

// SplitMulti splits s on any of delims, trims each part and drops empty
// parts. Order of first occurrence is kept and duplicates are kept.
func SplitMulti(s string, delims []string) []string {
	parts := []string{}
	if s == "" {
		return parts
	}

	// Longest delimiter wins when several match at the same offset.
	ordered := make([]string, 0, len(delims))
	for _, d := range delims {
		if d != "" {
			ordered = append(ordered, d)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	emit := func(part string) {
		if p := strings.TrimSpace(part); p != "" {
			parts = append(parts, p)
		}
	}

	start := 0
	for i := 0; i < len(s); {
		matched := 0
		for _, d := range ordered {
			if strings.HasPrefix(s[i:], d) {
				matched = len(d)
				break
			}
		}
		if matched == 0 {
			i++
			continue
		}
		emit(s[start:i])
		i += matched
		start = i
	}
	emit(s[start:])
	return parts
}

// ParseFlag applies the lossy boolean coercion: case-insensitive "yes" or
// "true" is true, anything else (including missing) is false.
func ParseFlag(raw string, set bool) bool {
	if !set {
		return false
	}
	v := strings.ToLower(CleanText(raw))
	return v == "yes" || v == "true"
}
