package stats

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumen-webinar/backend/internal/models"
)

// Repository handles webinar_stats persistence. Counters are keyed
// (webinar, metric, day); duplicate events coalesce via upsert.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a stats repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Increment adds 1 to the daily counter for (webinar, metric, day of at).
func (r *Repository) Increment(ctx context.Context, webinarID uuid.UUID, metric string, at time.Time) error {
	const q = `INSERT INTO webinar_stats (webinar_id, metric_type, metric_value, recorded_date, recorded_at)
		VALUES ($1, $2, 1, $3::date, $4)
		ON CONFLICT (webinar_id, metric_type, recorded_date)
		DO UPDATE SET metric_value = webinar_stats.metric_value + 1, recorded_at = EXCLUDED.recorded_at`
	_, err := r.pool.Exec(ctx, q, webinarID, metric, at, at)
	return err
}

// RecordPeak keeps the daily maximum for a gauge-style metric (peak_viewers).
func (r *Repository) RecordPeak(ctx context.Context, webinarID uuid.UUID, metric string, value int64, at time.Time) error {
	const q = `INSERT INTO webinar_stats (webinar_id, metric_type, metric_value, recorded_date, recorded_at)
		VALUES ($1, $2, $3, $4::date, $5)
		ON CONFLICT (webinar_id, metric_type, recorded_date)
		DO UPDATE SET metric_value = GREATEST(webinar_stats.metric_value, EXCLUDED.metric_value), recorded_at = EXCLUDED.recorded_at`
	_, err := r.pool.Exec(ctx, q, webinarID, metric, value, at, at)
	return err
}

// ListByWebinar returns all stat rows for a webinar, newest day first.
func (r *Repository) ListByWebinar(ctx context.Context, webinarID uuid.UUID) ([]models.WebinarStat, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, webinar_id, metric_type, metric_value, recorded_date, recorded_at
		 FROM webinar_stats WHERE webinar_id = $1 ORDER BY recorded_date DESC, metric_type`,
		webinarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.WebinarStat
	for rows.Next() {
		var s models.WebinarStat
		if err := rows.Scan(&s.ID, &s.WebinarID, &s.MetricType, &s.MetricValue, &s.RecordedDate, &s.RecordedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
