package models

import (
	"time"

	"github.com/google/uuid"
)

// Metric names recorded as webinar stats.
const (
	MetricWebinarStarted = "webinar_started"
	MetricUserJoined     = "user_joined"
	MetricPeakViewers    = "peak_viewers"
)

// WebinarStat is a daily counter keyed (webinar, metric, day). Duplicate
// events for the same key are coalesced by upsert-increment; peak_viewers
// keeps the daily maximum instead.
type WebinarStat struct {
	ID           uuid.UUID `json:"id"`
	WebinarID    uuid.UUID `json:"webinar_id"`
	MetricType   string    `json:"metric_type"`
	MetricValue  int64     `json:"metric_value"`
	RecordedDate time.Time `json:"recorded_date"`
	RecordedAt   time.Time `json:"recorded_at"`
}
