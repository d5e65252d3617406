package models

import (
	"time"

	"github.com/google/uuid"
)

// Registration pairs a user with a webinar, at most one per (webinar, user).
// DurationMinutes is set only when both AttendanceStart and AttendanceEnd are
// set; an open presence interval has a start and no end.
type Registration struct {
	ID              uuid.UUID  `json:"id"`
	WebinarID       uuid.UUID  `json:"webinar_id"`
	UserID          uuid.UUID  `json:"user_id"`
	RegisteredAt    time.Time  `json:"registered_at"`
	Attended        bool       `json:"attended"`
	AttendanceStart *time.Time `json:"attendance_start,omitempty"`
	AttendanceEnd   *time.Time `json:"attendance_end,omitempty"`
	DurationMinutes *int       `json:"attendance_duration,omitempty"`
}

// HasOpenInterval reports whether the registration has a started but
// unfinished presence interval.
func (r *Registration) HasOpenInterval() bool {
	return r.AttendanceStart != nil && r.AttendanceEnd == nil
}

// Participant is a registration joined with user identity for listing.
type Participant struct {
	UserID          uuid.UUID  `json:"user_id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Role            Role       `json:"role"`
	WebinarRole     string     `json:"webinar_role"`
	RegisteredAt    time.Time  `json:"registered_at"`
	Attended        bool       `json:"attended"`
	DurationMinutes *int       `json:"attendance_duration,omitempty"`
}
