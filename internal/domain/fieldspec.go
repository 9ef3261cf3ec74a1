package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// FieldKind drives both comparison semantics and display formatting of a tracked field
type FieldKind string

const (
	FieldKindString    FieldKind = "STRING"
	FieldKindDate      FieldKind = "DATE"
	FieldKindRating    FieldKind = "RATING"
	FieldKindBoolean   FieldKind = "BOOLEAN"
	FieldKindReference FieldKind = "REFERENCE"
)

// Rating bounds
const (
	MinRating = 1
	MaxRating = 5
)

// FieldSpec describes one tracked field of an asset
type FieldSpec struct {
	Key   string    `json:"key"`
	Kind  FieldKind `json:"kind"`
	Label string    `json:"label"`
	// Nullable only matters for BOOLEAN: when false an unset value reads as false.
	Nullable bool `json:"nullable,omitempty"`
}

// CamelKey returns the camelCase alias of the canonical key
func (s FieldSpec) CamelKey() string {
	parts := strings.Split(s.Key, "_")
	var b strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 {
			b.WriteString(part)
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

// FieldTable is an ordered, immutable set of field specs with alias lookup
type FieldTable struct {
	specs []FieldSpec
	index map[string]int
}

// NewFieldTable builds a table; declaration order is preserved and is the order
// in which change records are emitted.
func NewFieldTable(specs ...FieldSpec) *FieldTable {
	t := &FieldTable{
		specs: make([]FieldSpec, 0, len(specs)),
		index: make(map[string]int, len(specs)),
	}
	for _, spec := range specs {
		spec.Key = CanonicalFieldName(spec.Key)
		if _, dup := t.index[spec.Key]; dup {
			panic(fmt.Sprintf("duplicate field spec %q", spec.Key))
		}
		t.index[spec.Key] = len(t.specs)
		t.specs = append(t.specs, spec)
	}
	return t
}

// Specs returns a copy of the specs in declaration order
func (t *FieldTable) Specs() []FieldSpec {
	out := make([]FieldSpec, len(t.specs))
	copy(out, t.specs)
	return out
}

// Lookup finds a spec by any naming convention of its key
func (t *FieldTable) Lookup(name string) (FieldSpec, bool) {
	i, ok := t.index[CanonicalFieldName(name)]
	if !ok {
		return FieldSpec{}, false
	}
	return t.specs[i], true
}

// Len returns the number of specs
func (t *FieldTable) Len() int {
	return len(t.specs)
}

// CanonicalFieldName maps camelCase, PascalCase, kebab-case and snake_case names
// onto one lower snake_case key.
func CanonicalFieldName(name string) string {
	runes := []rune(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(runes) + 4)

	lastUnderscore := true
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		case unicode.IsUpper(r):
			if !lastUnderscore && i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		default:
			b.WriteRune(r)
			lastUnderscore = false
		}
	}

	return strings.TrimSuffix(b.String(), "_")
}

// Snapshot is a loosely keyed bag of field values, as read from storage or a request body
type Snapshot map[string]any

// Get returns the value stored under the spec's key or any of its aliases.
// The snake key wins, then the camel key, then the lowest other spelling.
func (s Snapshot) Get(spec FieldSpec) (any, bool) {
	if v, ok := s[spec.Key]; ok {
		return v, true
	}
	if v, ok := s[spec.CamelKey()]; ok {
		return v, true
	}
	var match string
	found := false
	for k := range s {
		if CanonicalFieldName(k) == spec.Key && (!found || k < match) {
			match, found = k, true
		}
	}
	if !found {
		return nil, false
	}
	return s[match], true
}

// Clone returns a shallow copy
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
