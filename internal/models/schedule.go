package models

import (
	"time"

	"github.com/google/uuid"
)

// Schedule is one agenda entry inside a webinar.
type Schedule struct {
	ID           uuid.UUID  `json:"id"`
	WebinarID    uuid.UUID  `json:"webinar_id"`
	SessionTitle string     `json:"session_title"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      time.Time  `json:"end_time"`
	SpeakerID    *uuid.UUID `json:"speaker_id,omitempty"`
}

// Recording is metadata for a stored session recording. The media itself
// lives outside this service; only the reference row is kept so cascade
// deletes cover it.
type Recording struct {
	ID              uuid.UUID `json:"id"`
	WebinarID       uuid.UUID `json:"webinar_id"`
	URL             string    `json:"url"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	FileSize        *int64    `json:"file_size,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
