package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumen-webinar/backend/internal/stats"
	"github.com/lumen-webinar/backend/pkg/queue"
)

// StatsProcessor drains stat event jobs from the queue into the daily
// counters. Jobs are upsert-increments, so a retried job that already landed
// only over-counts by its own retry, never corrupts state.
type StatsProcessor struct {
	repo   *stats.Repository
	queue  *queue.Queue
	logger *zap.Logger
}

// NewStatsProcessor creates a stat event processor.
func NewStatsProcessor(repo *stats.Repository, q *queue.Queue, logger *zap.Logger) *StatsProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsProcessor{repo: repo, queue: q, logger: logger}
}

// Process executes one stat event job.
func (p *StatsProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeStatEvent {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.StatEventPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := p.repo.Increment(ctx, payload.WebinarID, payload.Metric, payload.At); err != nil {
		return fmt.Errorf("increment %s: %w", payload.Metric, err)
	}
	p.logger.Debug("stat recorded",
		zap.String("webinar_id", payload.WebinarID.String()), zap.String("metric", payload.Metric))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. Returns when
// ctx is cancelled.
func (p *StatsProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stats worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
		}
	}
}
