package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Display constants
const (
	PlaceholderAbsent   = "N/A"
	ReferenceUnassigned = "0"
	ReferenceNone       = "None"
	displayDateLayout   = "1/2/2006"
)

var ratingLabels = map[int]string{
	1: "Poor",
	2: "Fair",
	3: "Good",
	4: "Very Good",
	5: "Excellent",
}

// ReferenceResolver maps a reference id (e.g. an operator's employee id) to a display name
type ReferenceResolver interface {
	ResolveName(id string) (string, bool)
}

// ReferenceNames is a ReferenceResolver backed by a prefetched map
type ReferenceNames map[string]string

func (m ReferenceNames) ResolveName(id string) (string, bool) {
	name, ok := m[id]
	return name, ok
}

// FieldFormatter renders stored history values for display
type FieldFormatter struct {
	table    *FieldTable
	location *time.Location
	resolver ReferenceResolver
}

// NewFieldFormatter creates a formatter over a field table, rendering dates in loc
func NewFieldFormatter(table *FieldTable, loc *time.Location) *FieldFormatter {
	if loc == nil {
		loc = time.UTC
	}
	return &FieldFormatter{table: table, location: loc}
}

// WithResolver returns a copy that resolves REFERENCE values through r
func (f *FieldFormatter) WithResolver(r ReferenceResolver) *FieldFormatter {
	clone := *f
	clone.resolver = r
	return &clone
}

// Label returns the display label for a field in either naming convention
func (f *FieldFormatter) Label(fieldName string) string {
	if spec, ok := f.table.Lookup(fieldName); ok && spec.Label != "" {
		return spec.Label
	}
	words := strings.ReplaceAll(CanonicalFieldName(fieldName), "_", " ")
	return cases.Title(language.English).String(words)
}

// Format renders a stored value. It never fails: values that do not fit their
// kind are shown as-is.
func (f *FieldFormatter) Format(fieldName string, raw *string) string {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return PlaceholderAbsent
	}
	value := strings.TrimSpace(*raw)

	spec, ok := f.table.Lookup(fieldName)
	if !ok {
		return value
	}

	switch spec.Kind {
	case FieldKindDate:
		t := ParseTimestampIn(value, f.location)
		if t == nil {
			return value
		}
		return t.In(f.location).Format(displayDateLayout)

	case FieldKindRating:
		n, err := strconv.Atoi(value)
		if err != nil {
			return value
		}
		if label, ok := ratingLabels[n]; ok {
			return label
		}
		return value

	case FieldKindReference:
		if value == ReferenceUnassigned {
			return ReferenceNone
		}
		if f.resolver != nil {
			if name, ok := f.resolver.ResolveName(value); ok && name != "" {
				return name
			}
		}
		return fmt.Sprintf("Unknown (%s)", value)

	case FieldKindBoolean:
		b, ok := parseBool(value)
		if !ok {
			return value
		}
		if b {
			return "Yes"
		}
		return "No"

	default:
		return value
	}
}

