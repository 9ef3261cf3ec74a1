package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ChangeRecord is one persisted row describing a single field's old and new value.
// Values hold the normalized, unformatted form; nil means absent.
type ChangeRecord struct {
	ID        string    `json:"id"`
	EntityID  string    `json:"entity_id"`
	FieldName string    `json:"field_name"`
	OldValue  *string   `json:"old_value"`
	NewValue  *string   `json:"new_value"`
	ChangedAt time.Time `json:"changed_at"`
	ChangedBy string    `json:"changed_by"`
}

const dateKeyLayout = "2006-01-02"

// HistoryDiffer computes per-field change records between two snapshots
type HistoryDiffer struct {
	location *time.Location
}

// NewHistoryDiffer creates a differ comparing DATE fields by calendar day in loc
func NewHistoryDiffer(loc *time.Location) *HistoryDiffer {
	if loc == nil {
		loc = time.UTC
	}
	return &HistoryDiffer{location: loc}
}

// Location returns the reference time zone
func (d *HistoryDiffer) Location() *time.Location {
	return d.location
}

// Diff emits one ChangeRecord per field whose normalized value differs, in spec order.
// It has no side effects; the caller persists the records together with the entity.
func (d *HistoryDiffer) Diff(specs []FieldSpec, entityID string, before, after Snapshot, actor string, now time.Time) []ChangeRecord {
	var changes []ChangeRecord

	for _, spec := range specs {
		oldRaw, _ := before.Get(spec)
		newRaw, _ := after.Get(spec)

		oldVal := d.normalize(spec, oldRaw)
		newVal := d.normalize(spec, newRaw)

		if !oldVal.differs(newVal) {
			continue
		}

		changes = append(changes, ChangeRecord{
			EntityID:  entityID,
			FieldName: spec.Key,
			OldValue:  oldVal.stored(),
			NewValue:  newVal.stored(),
			ChangedAt: now,
			ChangedBy: actor,
		})
	}

	return changes
}

// Canonicalize rewrites a request or storage bag onto canonical keys holding the
// stored form of each value. Keys not in the table are rejected, and so are two
// spellings of the same field.
func (d *HistoryDiffer) Canonicalize(table *FieldTable, in Snapshot) (Snapshot, error) {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(Snapshot, len(in))
	for _, name := range names {
		raw := in[name]
		spec, ok := table.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
		if _, seen := out[spec.Key]; seen {
			return nil, fmt.Errorf("%w: duplicate field %s", ErrInvalidFieldValue, name)
		}
		if stored := d.normalize(spec, raw).stored(); stored != nil {
			out[spec.Key] = *stored
		} else {
			out[spec.Key] = nil
		}
	}
	return out, nil
}

// NormalizeValue returns the stored form of a single value, nil when absent
func (d *HistoryDiffer) NormalizeValue(spec FieldSpec, raw any) *string {
	return d.normalize(spec, raw).stored()
}

type normalizedValue struct {
	value   string
	present bool
	raw     string
	ok      bool
}

// differs compares normalized forms; when either side failed normalization the
// raw text decides, so a real edit is never swallowed.
func (v normalizedValue) differs(other normalizedValue) bool {
	if v.ok && other.ok {
		return v.present != other.present || v.value != other.value
	}
	return v.raw != other.raw
}

func (v normalizedValue) stored() *string {
	if v.ok {
		if !v.present {
			return nil
		}
		s := v.value
		return &s
	}
	if v.raw == "" {
		return nil
	}
	s := v.raw
	return &s
}

func (d *HistoryDiffer) normalize(spec FieldSpec, raw any) normalizedValue {
	text := rawText(raw)
	n := normalizedValue{raw: text, ok: true}

	switch spec.Kind {
	case FieldKindString, FieldKindReference:
		n.value = text
		n.present = text != ""

	case FieldKindDate:
		if text == "" {
			return n
		}
		var t *time.Time
		if tv, isTime := raw.(time.Time); isTime {
			t = &tv
		} else if tp, isPtr := raw.(*time.Time); isPtr && tp != nil {
			t = tp
		} else {
			t = ParseTimestampIn(text, d.location)
		}
		if t == nil {
			n.ok = false
			return n
		}
		n.value = t.In(d.location).Format(dateKeyLayout)
		n.present = true

	case FieldKindRating:
		if text == "" {
			return n
		}
		rating, ok := parseRating(text)
		if !ok {
			n.ok = false
			return n
		}
		n.value = strconv.Itoa(rating)
		n.present = true

	case FieldKindBoolean:
		if text == "" {
			if spec.Nullable {
				return n
			}
			n.value = "false"
			n.present = true
			return n
		}
		b, ok := parseBool(text)
		if !ok {
			n.ok = false
			return n
		}
		n.value = strconv.FormatBool(b)
		n.present = true

	default:
		n.ok = false
	}

	return n
}

func rawText(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case *string:
		if v == nil {
			return ""
		}
		return strings.TrimSpace(*v)
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format(time.RFC3339Nano)
	case *time.Time:
		if v == nil || v.IsZero() {
			return ""
		}
		return v.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func parseRating(text string) (int, bool) {
	n, err := strconv.Atoi(text)
	if err != nil {
		f, ferr := strconv.ParseFloat(text, 64)
		if ferr != nil || f != math.Trunc(f) {
			return 0, false
		}
		n = int(f)
	}
	if n < MinRating || n > MaxRating {
		return 0, false
	}
	return n, true
}

func parseBool(text string) (bool, bool) {
	switch strings.ToLower(text) {
	case "yes", "y", "on":
		return true, true
	case "no", "n", "off":
		return false, true
	}
	b, err := strconv.ParseBool(text)
	if err != nil {
		return false, false
	}
	return b, true
}
