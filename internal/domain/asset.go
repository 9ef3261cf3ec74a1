package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AssetKind identifies a trackable asset type
type AssetKind string

const (
	AssetKindMixer   AssetKind = "mixer"
	AssetKindTractor AssetKind = "tractor"
)

// Plural returns the collection name used in routes
func (k AssetKind) Plural() string {
	return string(k) + "s"
}

// ParseAssetKind accepts singular or plural kind names
func ParseAssetKind(s string) (AssetKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mixer", "mixers":
		return AssetKindMixer, nil
	case "tractor", "tractors":
		return AssetKindTractor, nil
	default:
		return "", ErrUnknownAssetKind
	}
}

// MixerFields is the tracked field table for mixers
var MixerFields = NewFieldTable(
	FieldSpec{Key: "truck_number", Kind: FieldKindString, Label: "Truck Number"},
	FieldSpec{Key: "assigned_plant", Kind: FieldKindString, Label: "Assigned Plant"},
	FieldSpec{Key: "assigned_operator", Kind: FieldKindReference, Label: "Assigned Operator"},
	FieldSpec{Key: "status", Kind: FieldKindString, Label: "Status"},
	FieldSpec{Key: "cleanliness_rating", Kind: FieldKindRating, Label: "Cleanliness Rating"},
	FieldSpec{Key: "last_service_date", Kind: FieldKindDate, Label: "Last Service Date"},
	FieldSpec{Key: "last_chip_date", Kind: FieldKindDate, Label: "Last Chip Date"},
	FieldSpec{Key: "vin", Kind: FieldKindString, Label: "VIN"},
	FieldSpec{Key: "make", Kind: FieldKindString, Label: "Make"},
	FieldSpec{Key: "model", Kind: FieldKindString, Label: "Model"},
	FieldSpec{Key: "year", Kind: FieldKindString, Label: "Year"},
)

// TractorFields is the tracked field table for tractors
var TractorFields = NewFieldTable(
	FieldSpec{Key: "truck_number", Kind: FieldKindString, Label: "Truck Number"},
	FieldSpec{Key: "assigned_plant", Kind: FieldKindString, Label: "Assigned Plant"},
	FieldSpec{Key: "assigned_operator", Kind: FieldKindReference, Label: "Assigned Operator"},
	FieldSpec{Key: "status", Kind: FieldKindString, Label: "Status"},
	FieldSpec{Key: "cleanliness_rating", Kind: FieldKindRating, Label: "Cleanliness Rating"},
	FieldSpec{Key: "last_service_date", Kind: FieldKindDate, Label: "Last Service Date"},
	FieldSpec{Key: "has_blower", Kind: FieldKindBoolean, Label: "Has Blower"},
	FieldSpec{Key: "vin", Kind: FieldKindString, Label: "VIN"},
	FieldSpec{Key: "make", Kind: FieldKindString, Label: "Make"},
	FieldSpec{Key: "model", Kind: FieldKindString, Label: "Model"},
	FieldSpec{Key: "year", Kind: FieldKindString, Label: "Year"},
	FieldSpec{Key: "freight", Kind: FieldKindString, Label: "Freight"},
)

// FieldsFor returns the field table of a kind
func FieldsFor(kind AssetKind) (*FieldTable, error) {
	switch kind {
	case AssetKindMixer:
		return MixerFields, nil
	case AssetKindTractor:
		return TractorFields, nil
	default:
		return nil, ErrUnknownAssetKind
	}
}

// Asset is a trackable fleet asset (mixer, tractor)
type Asset struct {
	ID          string            `json:"id"`
	Kind        AssetKind         `json:"kind"`
	Fields      map[string]string `json:"fields"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	UpdatedLast *time.Time        `json:"updated_last,omitempty"`
	UpdatedBy   *string           `json:"updated_by,omitempty"`
}

// NewAsset creates an unverified asset from canonical field values
func NewAsset(kind AssetKind, fields Snapshot, now time.Time) *Asset {
	a := &Asset{
		ID:        uuid.NewString(),
		Kind:      kind,
		Fields:    map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.merge(fields)
	return a
}

// Snapshot exposes the field values for diffing
func (a *Asset) Snapshot() Snapshot {
	out := make(Snapshot, len(a.Fields))
	for k, v := range a.Fields {
		out[k] = v
	}
	return out
}

// Field returns one canonical field value
func (a *Asset) Field(key string) string {
	return a.Fields[CanonicalFieldName(key)]
}

// WithPatch returns a copy with the canonical patch merged; nil values clear a field.
// Timestamps and verification fields are left untouched.
func (a *Asset) WithPatch(patch Snapshot) *Asset {
	clone := *a
	clone.Fields = make(map[string]string, len(a.Fields))
	for k, v := range a.Fields {
		clone.Fields[k] = v
	}
	clone.merge(patch)
	return &clone
}

// Touch records an accepted edit; UpdatedAt never moves backwards
func (a *Asset) Touch(now time.Time) {
	if now.After(a.UpdatedAt) {
		a.UpdatedAt = now
	}
}

// EditTime returns the timestamp to stamp an edit made at now. It is always
// strictly after the last verification so the edit reads as stale.
func (a *Asset) EditTime(now time.Time) time.Time {
	if a.UpdatedLast != nil && !now.After(*a.UpdatedLast) {
		return a.UpdatedLast.Add(time.Microsecond)
	}
	return now
}

// Verify records an explicit human verification. It is not an edit.
func (a *Asset) Verify(actor string, now time.Time) error {
	if strings.TrimSpace(actor) == "" {
		return ErrInvalidActor
	}
	at := now
	by := actor
	a.UpdatedLast = &at
	a.UpdatedBy = &by
	return nil
}

// VerificationInput collects the fields the verification rule reads
func (a *Asset) VerificationInput(latestChangeAt *time.Time) VerificationInput {
	updatedAt := a.UpdatedAt
	in := VerificationInput{
		UpdatedLast:    a.UpdatedLast,
		UpdatedBy:      a.UpdatedBy,
		LatestChangeAt: latestChangeAt,
	}
	if !updatedAt.IsZero() {
		in.UpdatedAt = &updatedAt
	}
	return in
}

func (a *Asset) merge(values Snapshot) {
	for k, v := range values {
		key := CanonicalFieldName(k)
		text := rawText(v)
		if text == "" {
			delete(a.Fields, key)
			continue
		}
		a.Fields[key] = text
	}
}

// AssetFilter represents filters for listing assets
type AssetFilter struct {
	Status        *string `json:"status,omitempty"`
	AssignedPlant *string `json:"assigned_plant,omitempty"`
	Verified      *bool   `json:"verified,omitempty"`
	Limit         int     `json:"limit"`
	Offset        int     `json:"offset"`
}

// Operator is the referenced entity behind assigned_operator
type Operator struct {
	EmployeeID string    `json:"employee_id"`
	Name       string    `json:"name"`
	Plant      string    `json:"plant"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}
