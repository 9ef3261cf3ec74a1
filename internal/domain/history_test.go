package domain

import (
	"errors"
	"sort"
	"strings"
	"testing"
	"time"
)

var diffNow = time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)

func fieldNames(records []ChangeRecord) []string {
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.FieldName)
	}
	return names
}

func TestDiff_NoOpEditProducesNothing(t *testing.T) {
	d := NewHistoryDiffer(time.UTC)
	before := Snapshot{"status": "Active", "cleanlinessRating": 3}
	after := Snapshot{"status": "Active", "cleanlinessRating": 3}

	changes := d.Diff(MixerFields.Specs(), "m1", before, after, "u1", diffNow)
	if len(changes) != 0 {
		t.Errorf("Expected no changes, got %+v", changes)
	}
}

func TestDiff_IdenticalEntities(t *testing.T) {
	d := NewHistoryDiffer(time.UTC)
	entities := []Snapshot{
		{},
		{"truck_number": "101", "assigned_operator": "E1", "has_blower": true, "last_service_date": "2025-01-01"},
		{"cleanliness_rating": "banana", "last_service_date": "soon", "has_blower": "maybe"},
	}

	for _, e := range entities {
		if changes := d.Diff(TractorFields.Specs(), "t1", e, e, "u1", diffNow); len(changes) != 0 {
			t.Errorf("Expected no changes for %v, got %+v", e, changes)
		}
	}
}

func TestDiff_ReferenceChange(t *testing.T) {
	d := NewHistoryDiffer(time.UTC)
	changes := d.Diff(MixerFields.Specs(), "m1",
		Snapshot{"assignedOperator": "0"},
		Snapshot{"assignedOperator": "E123"},
		"u1", diffNow)

	if len(changes) != 1 {
		t.Fatalf("Expected 1 change, got %d: %+v", len(changes), changes)
	}
	c := changes[0]
	if c.FieldName != "assigned_operator" {
		t.Errorf("Expected field assigned_operator, got %s", c.FieldName)
	}
	if c.OldValue == nil || *c.OldValue != "0" {
		t.Errorf("Expected old value 0, got %v", c.OldValue)
	}
	if c.NewValue == nil || *c.NewValue != "E123" {
		t.Errorf("Expected new value E123, got %v", c.NewValue)
	}
	if c.ChangedBy != "u1" || !c.ChangedAt.Equal(diffNow) || c.EntityID != "m1" {
		t.Errorf("Unexpected record metadata: %+v", c)
	}
}

func TestDiff_DateDayGranularity(t *testing.T) {
	d := NewHistoryDiffer(time.UTC)

	same := d.Diff(MixerFields.Specs(), "m1",
		Snapshot{"lastServiceDate": "2025-03-01T08:00:00Z"},
		Snapshot{"lastServiceDate": "2025-03-01T23:00:00Z"},
		"u1", diffNow)
	if len(same) != 0 {
		t.Errorf("Expected same calendar day to produce no change, got %+v", same)
	}

	next := d.Diff(MixerFields.Specs(), "m1",
		Snapshot{"lastServiceDate": "2025-03-01T08:00:00Z"},
		Snapshot{"lastServiceDate": "2025-03-02T08:00:00Z"},
		"u1", diffNow)
	if len(next) != 1 {
		t.Fatalf("Expected one change for a different day, got %+v", next)
	}
	if *next[0].OldValue != "2025-03-01" || *next[0].NewValue != "2025-03-02" {
		t.Errorf("Expected day-normalized values, got %s -> %s", *next[0].OldValue, *next[0].NewValue)
	}
}

func TestDiff_DateUsesReferenceZone(t *testing.T) {
	loc := time.FixedZone("UTC-6", -6*3600)
	d := NewHistoryDiffer(loc)

	// 23:00Z on the 1st is still the 1st at UTC-6, 05:00Z on the 2nd is the 1st too
	changes := d.Diff(MixerFields.Specs(), "m1",
		Snapshot{"last_service_date": "2025-03-01T23:00:00Z"},
		Snapshot{"last_service_date": "2025-03-02T05:00:00Z"},
		"u1", diffNow)
	if len(changes) != 0 {
		t.Errorf("Expected no change within the same local day, got %+v", changes)
	}
}

func TestDiff_StringTrimAndAbsence(t *testing.T) {
	d := NewHistoryDiffer(time.UTC)

	tests := []struct {
		name    string
		before  Snapshot
		after   Snapshot
		changed bool
	}{
		{"whitespace only", Snapshot{"status": "Active"}, Snapshot{"status": "  Active "}, false},
		{"empty equals missing", Snapshot{"status": ""}, Snapshot{}, false},
		{"nil equals empty", Snapshot{"status": nil}, Snapshot{"status": "   "}, false},
		{"value cleared", Snapshot{"status": "Active"}, Snapshot{"status": ""}, true},
		{"value changed", Snapshot{"status": "Active"}, Snapshot{"status": "In Shop"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := d.Diff(MixerFields.Specs(), "m1", tt.before, tt.after, "u1", diffNow)
			if (len(changes) > 0) != tt.changed {
				t.Errorf("Expected changed=%v, got %+v", tt.changed, changes)
			}
		})
	}
}

func TestDiff_RatingNormalization(t *testing.T) {
	d := NewHistoryDiffer(time.UTC)

	tests := []struct {
		name    string
		before  any
		after   any
		changed bool
	}{
		{"int vs string", 3, "3", false},
		{"json float", float64(4), "4", false},
		{"different", 3, 4, true},
		{"out of range differs from valid", 3, 7, true},
		{"non-numeric differs from absent", nil, "great", true},
		{"same invalid text", "great", "great", false},
		{"invalid vs valid", "abc", 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := d.Diff(MixerFields.Specs(), "m1",
				Snapshot{"cleanliness_rating": tt.before},
				Snapshot{"cleanliness_rating": tt.after},
				"u1", diffNow)
			if (len(changes) > 0) != tt.changed {
				t.Errorf("Expected changed=%v, got %+v", tt.changed, changes)
			}
		})
	}
}

func TestDiff_InvalidRatingKeepsRawText(t *testing.T) {
	d := NewHistoryDiffer(time.UTC)
	changes := d.Diff(MixerFields.Specs(), "m1",
		Snapshot{"cleanliness_rating": 2},
		Snapshot{"cleanliness_rating": "9"},
		"u1", diffNow)

	if len(changes) != 1 {
		t.Fatalf("Expected one change, got %+v", changes)
	}
	if changes[0].NewValue == nil || *changes[0].NewValue != "9" {
		t.Errorf("Expected raw new value 9 to be kept, got %v", changes[0].NewValue)
	}
}

func TestDiff_Boolean(t *testing.T) {
	d := NewHistoryDiffer(time.UTC)

	if changes := d.Diff(TractorFields.Specs(), "t1",
		Snapshot{}, Snapshot{"hasBlower": false}, "u1", diffNow); len(changes) != 0 {
		t.Errorf("Expected unset to read as false, got %+v", changes)
	}

	if changes := d.Diff(TractorFields.Specs(), "t1",
		Snapshot{"has_blower": "yes"}, Snapshot{"has_blower": true}, "u1", diffNow); len(changes) != 0 {
		t.Errorf("Expected yes == true, got %+v", changes)
	}

	changes := d.Diff(TractorFields.Specs(), "t1",
		Snapshot{"has_blower": false}, Snapshot{"has_blower": true}, "u1", diffNow)
	if len(changes) != 1 || *changes[0].OldValue != "false" || *changes[0].NewValue != "true" {
		t.Errorf("Expected false -> true, got %+v", changes)
	}

	nullable := []FieldSpec{{Key: "inspected", Kind: FieldKindBoolean, Nullable: true}}
	if changes := d.Diff(nullable, "t1", Snapshot{}, Snapshot{"inspected": false}, "u1", diffNow); len(changes) != 1 {
		t.Errorf("Expected nullable unset -> false to be a change, got %+v", changes)
	}
}

func TestDiff_UnknownKindComparesRawText(t *testing.T) {
	d := NewHistoryDiffer(time.UTC)
	specs := []FieldSpec{{Key: "payload", Kind: FieldKind("BLOB")}}

	if changes := d.Diff(specs, "x", Snapshot{"payload": "a"}, Snapshot{"payload": "b"}, "u1", diffNow); len(changes) != 1 {
		t.Errorf("Expected unknown kind change to be recorded, got %+v", changes)
	}
	if changes := d.Diff(specs, "x", Snapshot{"payload": "a"}, Snapshot{"payload": " a "}, "u1", diffNow); len(changes) != 0 {
		t.Errorf("Expected trimmed equal text to be unchanged, got %+v", changes)
	}
}

func TestDiff_PreservesSpecOrder(t *testing.T) {
	d := NewHistoryDiffer(time.UTC)
	before := Snapshot{}
	after := Snapshot{
		"year":              "2019",
		"status":            "Active",
		"truck_number":      "101",
		"last_service_date": "2025-01-01",
	}

	changes := d.Diff(MixerFields.Specs(), "m1", before, after, "u1", diffNow)
	got := fieldNames(changes)
	expected := []string{"truck_number", "status", "last_service_date", "year"}
	if len(got) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Position %d: expected %s, got %s", i, expected[i], got[i])
		}
	}
}

func TestDiff_Symmetry(t *testing.T) {
	d := NewHistoryDiffer(time.UTC)
	a := Snapshot{"status": "Active", "cleanliness_rating": "x", "last_service_date": "2025-01-01", "vin": "1"}
	b := Snapshot{"status": "Active ", "cleanliness_rating": 5, "last_service_date": "2025-01-02T03:00:00Z", "make": "Mack"}

	ab := d.Diff(MixerFields.Specs(), "m1", a, b, "u1", diffNow)
	ba := d.Diff(MixerFields.Specs(), "m1", b, a, "u1", diffNow)

	abNames, baNames := fieldNames(ab), fieldNames(ba)
	sort.Strings(abNames)
	sort.Strings(baNames)
	if len(abNames) != len(baNames) {
		t.Fatalf("Expected same field sets, got %v and %v", abNames, baNames)
	}
	for i := range abNames {
		if abNames[i] != baNames[i] {
			t.Errorf("Expected same field sets, got %v and %v", abNames, baNames)
		}
	}

	for i := range ab {
		if !equalPtr(ab[i].OldValue, ba[i].NewValue) || !equalPtr(ab[i].NewValue, ba[i].OldValue) {
			t.Errorf("Expected swapped values for %s", ab[i].FieldName)
		}
	}
}

func TestCanonicalize(t *testing.T) {
	d := NewHistoryDiffer(time.UTC)

	out, err := d.Canonicalize(TractorFields, Snapshot{
		"truckNumber":     " 42 ",
		"lastServiceDate": "2025-03-01T08:00:00Z",
		"HasBlower":       "yes",
		"status":          "",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out["truck_number"] != "42" {
		t.Errorf("Expected trimmed truck number, got %v", out["truck_number"])
	}
	if out["last_service_date"] != "2025-03-01" {
		t.Errorf("Expected day key, got %v", out["last_service_date"])
	}
	if out["has_blower"] != "true" {
		t.Errorf("Expected normalized boolean, got %v", out["has_blower"])
	}
	if v, ok := out["status"]; !ok || v != nil {
		t.Errorf("Expected cleared status to be kept as nil, got %v (present=%v)", v, ok)
	}

	if _, err := d.Canonicalize(TractorFields, Snapshot{"wingspan": 3}); err == nil {
		t.Error("Expected error for unknown field")
	}
}

func TestCanonicalize_RejectsDuplicateSpellings(t *testing.T) {
	d := NewHistoryDiffer(time.UTC)

	for i := 0; i < 50; i++ {
		_, err := d.Canonicalize(MixerFields, Snapshot{"status": "Active", "Status": "Retired"})
		if !errors.Is(err, ErrInvalidFieldValue) {
			t.Fatalf("Expected ErrInvalidFieldValue, got %v", err)
		}
		if !strings.Contains(err.Error(), "duplicate field") {
			t.Fatalf("Expected duplicate field message, got %v", err)
		}
	}

	if _, err := d.Canonicalize(MixerFields, Snapshot{"truckNumber": "1", "truck_number": "1"}); !errors.Is(err, ErrInvalidFieldValue) {
		t.Errorf("Expected camel and snake spellings to collide, got %v", err)
	}
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func BenchmarkDiff(b *testing.B) {
	d := NewHistoryDiffer(time.UTC)
	before := Snapshot{"truck_number": "101", "status": "Active", "cleanliness_rating": 3, "last_service_date": "2025-01-01"}
	after := Snapshot{"truck_number": "101", "status": "In Shop", "cleanliness_rating": 4, "last_service_date": "2025-01-02"}
	specs := MixerFields.Specs()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Diff(specs, "m1", before, after, "u1", diffNow)
	}
}
