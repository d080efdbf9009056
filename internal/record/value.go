package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the attribute value kinds.
// Only String, Bool, List and Attributes implement it.
type Value interface {
	attrValue()
}

// String is a single normalized text value.
type String string

func (String) attrValue() {}

// Bool is a normalized flag.
type Bool bool

func (Bool) attrValue() {}

// List is an ordered multi-valued field. Order and duplicates are
// significant and must be preserved.
type List []string

func (List) attrValue() {}

// Attributes maps attribute names to normalized values.
// Use SortedKeys() for deterministic iteration.
type Attributes map[string]Value

func (Attributes) attrValue() {}

// Attribute names produced by the normalizer.
const (
	AttrName                     = "name"
	AttrSubstances               = "active_substances"
	AttrATCCodes                 = "atc_codes"
	AttrTherapeuticAreas         = "therapeutic_areas"
	AttrURL                      = "url"
	AttrGeneric                  = "generic"
	AttrBiosimilar               = "biosimilar"
	AttrOrphan                   = "orphan"
	AttrConditionalApproval      = "conditional_approval"
	AttrExceptionalCircumstances = "exceptional_circumstances"
)

// String returns the string attribute under key, or "" when absent or of
// another kind.
func (a Attributes) String(key string) string {
	if v, ok := a[key].(String); ok {
		return string(v)
	}
	return ""
}

// Bool returns the flag under key, false when absent.
func (a Attributes) Bool(key string) bool {
	if v, ok := a[key].(Bool); ok {
		return bool(v)
	}
	return false
}

// List returns the multi-valued attribute under key, nil when absent.
func (a Attributes) List(key string) []string {
	if v, ok := a[key].(List); ok {
		return []string(v)
	}
	return nil
}

// Clone returns a deep copy so callers cannot alias list backing arrays.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		switch val := v.(type) {
		case List:
			out[k] = slices.Clone(val)
		case Attributes:
			out[k] = val.Clone()
		default:
			out[k] = v
		}
	}
	return out
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (a Attributes) SortedKeys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 orders strings by UTF-16 code units. Go's native
// string comparison is UTF-8 byte order, which differs for astral runes.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	for i := 0; i < min(len(a16), len(b16)); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// MarshalJSON writes attributes with sorted keys. This is the storage
// encoding, not the hashing encoding; use MarshalCanonical for hashes.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := marshalValue(a[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case String:
		return json.Marshal(string(val))
	case Bool:
		return json.Marshal(bool(val))
	case List:
		if val == nil {
			return []byte("[]"), nil
		}
		return json.Marshal([]string(val))
	case Attributes:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown attribute value type: %T", v)
	}
}

// UnmarshalJSON decodes stored attributes. Arrays must contain only
// strings; numbers and null are rejected.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = make(Attributes, len(raw))
	for k, v := range raw {
		val, err := unmarshalValue(v)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", k, err)
		}
		(*a)[k] = val
	}
	return nil
}

func unmarshalValue(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case '[':
		var l []string
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("list must contain only strings: %w", err)
		}
		if l == nil {
			l = []string{}
		}
		return List(l), nil
	case '{':
		var nested Attributes
		if err := json.Unmarshal(data, &nested); err != nil {
			return nil, err
		}
		return nested, nil
	default:
		return nil, fmt.Errorf("unsupported attribute value: %s", string(data))
	}
}
