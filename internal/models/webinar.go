package models

import (
	"time"

	"github.com/google/uuid"
)

// WebinarStatus is the lifecycle state of a webinar.
type WebinarStatus string

const (
	StatusScheduled WebinarStatus = "scheduled"
	StatusLive      WebinarStatus = "live"
	StatusEnded     WebinarStatus = "ended"
	StatusCancelled WebinarStatus = "cancelled"
)

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s string) bool {
	switch WebinarStatus(s) {
	case StatusScheduled, StatusLive, StatusEnded, StatusCancelled:
		return true
	}
	return false
}

// transitions is the allowed lifecycle table. Ended and cancelled are terminal.
var transitions = map[WebinarStatus][]WebinarStatus{
	StatusScheduled: {StatusLive, StatusCancelled},
	StatusLive:      {StatusEnded, StatusCancelled},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to WebinarStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AccessType is the rule governing who may join a webinar's room.
type AccessType string

const (
	AccessOpen        AccessType = "open"
	AccessMembersOnly AccessType = "members_only"
	AccessPassword    AccessType = "password"
)

// ValidAccessType reports whether s is a known access policy.
func ValidAccessType(s string) bool {
	switch AccessType(s) {
	case AccessOpen, AccessMembersOnly, AccessPassword:
		return true
	}
	return false
}

// FeatureFlags are the per-webinar room settings a client needs after an
// access check. The room password is never part of this.
type FeatureFlags struct {
	RequireModerator  bool `json:"require_moderator"`
	EnableRecording   bool `json:"enable_recording"`
	EnableChat        bool `json:"enable_chat"`
	EnableScreenShare bool `json:"enable_screen_share"`
	MuteOnStart       bool `json:"mute_on_start"`
}

// Webinar is a scheduled video session. RoomPassword is set iff AccessType is
// password and is never serialized.
type Webinar struct {
	ID              uuid.UUID     `json:"id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	OrganizerID     uuid.UUID     `json:"organizer_id"`
	OrganizerName   string        `json:"organizer_name,omitempty"`
	SpeakerID       *uuid.UUID    `json:"speaker_id,omitempty"`
	SpeakerName     *string       `json:"speaker_name,omitempty"`
	StartTime       time.Time     `json:"start_time"`
	DurationMinutes int           `json:"duration_minutes"`
	MaxParticipants *int          `json:"max_participants,omitempty"`
	AccessType      AccessType    `json:"access_type"`
	RoomPassword    *string       `json:"-"`
	Flags           FeatureFlags  `json:"flags"`
	Status          WebinarStatus `json:"status"`
	RoomToken       string        `json:"room_token"`
	RegisteredCount int           `json:"registered_count,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// IsJoinable reports whether the webinar accepts joins (live or scheduled).
func (w *Webinar) IsJoinable() bool {
	return w.Status == StatusLive || w.Status == StatusScheduled
}
