package domain

import (
	"strings"
	"time"
)

// VerificationReason explains a verification state
type VerificationReason string

const (
	ReasonOK                VerificationReason = "OK"
	ReasonNeverVerified     VerificationReason = "NEVER_VERIFIED"
	ReasonStaleSinceEdit    VerificationReason = "STALE_SINCE_EDIT"
	ReasonStaleWeekBoundary VerificationReason = "STALE_WEEK_BOUNDARY"
)

// Description returns the tooltip text shown next to the badge
func (r VerificationReason) Description() string {
	switch r {
	case ReasonOK:
		return "verified"
	case ReasonNeverVerified:
		return "never verified"
	case ReasonStaleSinceEdit:
		return "changed since last verification"
	case ReasonStaleWeekBoundary:
		return "not verified since last reset"
	default:
		return string(r)
	}
}

// VerificationState is derived on demand and never persisted
type VerificationState struct {
	IsVerified bool               `json:"is_verified"`
	Reason     VerificationReason `json:"reason"`
}

// VerificationInput carries the stored fields the rule looks at.
// A nil pointer means absent; an empty UpdatedBy counts as absent too.
type VerificationInput struct {
	UpdatedLast    *time.Time
	UpdatedAt      *time.Time
	UpdatedBy      *string
	LatestChangeAt *time.Time
}

// WeeklyBoundary is the recurring instant after which a verification goes stale
type WeeklyBoundary struct {
	Weekday  time.Weekday
	Hour     int
	Location *time.Location
}

// DefaultWeeklyBoundary is Monday 17:00 UTC
func DefaultWeeklyBoundary() WeeklyBoundary {
	return WeeklyBoundary{
		Weekday:  time.Monday,
		Hour:     17,
		Location: time.UTC,
	}
}

// MostRecentBefore returns the latest boundary instant strictly before now
func (b WeeklyBoundary) MostRecentBefore(now time.Time) time.Time {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}

	local := now.In(loc)
	daysBack := (int(local.Weekday()) - int(b.Weekday) + 7) % 7
	candidate := time.Date(local.Year(), local.Month(), local.Day()-daysBack, b.Hour, 0, 0, 0, loc)
	if !candidate.Before(now) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()-daysBack-7, b.Hour, 0, 0, 0, loc)
	}
	return candidate
}

// VerificationEngine decides whether an asset's verified badge is current
type VerificationEngine struct {
	boundary WeeklyBoundary
}

// NewVerificationEngine creates an engine applying one boundary rule to every asset kind
func NewVerificationEngine(boundary WeeklyBoundary) *VerificationEngine {
	if boundary.Location == nil {
		boundary.Location = time.UTC
	}
	return &VerificationEngine{boundary: boundary}
}

// Boundary returns the configured weekly boundary
func (e *VerificationEngine) Boundary() WeeklyBoundary {
	return e.boundary
}

// IsVerified evaluates the rules in order: never verified, edited after
// verification (column or history log), then the weekly reset.
func (e *VerificationEngine) IsVerified(in VerificationInput, now time.Time) VerificationState {
	if in.UpdatedLast == nil || in.UpdatedBy == nil || strings.TrimSpace(*in.UpdatedBy) == "" {
		return VerificationState{IsVerified: false, Reason: ReasonNeverVerified}
	}

	last := *in.UpdatedLast
	if in.UpdatedAt != nil && in.UpdatedAt.After(last) {
		return VerificationState{IsVerified: false, Reason: ReasonStaleSinceEdit}
	}
	if in.LatestChangeAt != nil && in.LatestChangeAt.After(last) {
		return VerificationState{IsVerified: false, Reason: ReasonStaleSinceEdit}
	}

	if last.Before(e.boundary.MostRecentBefore(now)) {
		return VerificationState{IsVerified: false, Reason: ReasonStaleWeekBoundary}
	}
	return VerificationState{IsVerified: true, Reason: ReasonOK}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 style timestamp; zone-less values are read as UTC.
// It returns nil for empty or unparseable input.
func ParseTimestamp(raw string) *time.Time {
	return ParseTimestampIn(raw, time.UTC)
}

// ParseTimestampIn is ParseTimestamp with zone-less values read in loc
func ParseTimestampIn(raw string, loc *time.Location) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return &t
		}
	}
	return nil
}
