package stats

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-webinar/backend/pkg/queue"
)

// Recorder records stat events without ever failing the caller's primary
// operation: events go through the Redis job queue; if enqueue fails the
// recorder falls back to a direct upsert, and any remaining failure is only
// logged.
type Recorder struct {
	queue  *queue.Queue
	repo   *Repository
	logger *zap.Logger
}

// NewRecorder creates a stat recorder. queue may be nil (direct upserts only).
func NewRecorder(q *queue.Queue, repo *Repository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{queue: q, repo: repo, logger: logger}
}

// Record registers one occurrence of metric for the webinar today.
func (r *Recorder) Record(ctx context.Context, webinarID uuid.UUID, metric string) {
	now := time.Now()
	if r.queue != nil {
		err := r.queue.EnqueueStatEvent(ctx, queue.StatEventPayload{WebinarID: webinarID, Metric: metric, At: now})
		if err == nil {
			return
		}
		r.logger.Warn("stat enqueue failed, falling back to direct upsert",
			zap.String("metric", metric), zap.Error(err))
	}
	if err := r.repo.Increment(ctx, webinarID, metric, now); err != nil {
		r.logger.Warn("stat upsert failed",
			zap.String("webinar_id", webinarID.String()), zap.String("metric", metric), zap.Error(err))
	}
}

// RecordPeak updates the daily peak for a gauge metric (e.g. live audience).
func (r *Recorder) RecordPeak(ctx context.Context, webinarID uuid.UUID, metric string, value int) {
	if err := r.repo.RecordPeak(ctx, webinarID, metric, int64(value), time.Now()); err != nil {
		r.logger.Warn("peak upsert failed",
			zap.String("webinar_id", webinarID.String()), zap.String("metric", metric), zap.Error(err))
	}
}
