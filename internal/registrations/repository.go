package registrations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumen-webinar/backend/internal/models"
)

// ErrDuplicate is returned when the (webinar, user) pair is already registered.
var ErrDuplicate = errors.New("already registered")

const regColumns = `id, webinar_id, user_id, registered_at, attended, attendance_start, attendance_end, attendance_duration`

// Repository handles registration persistence. Unique on (webinar_id, user_id).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	err := row.Scan(&reg.ID, &reg.WebinarID, &reg.UserID, &reg.RegisteredAt,
		&reg.Attended, &reg.AttendanceStart, &reg.AttendanceEnd, &reg.DurationMinutes)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// Create inserts an explicit registration. ErrDuplicate on a repeated pair.
func (r *Repository) Create(ctx context.Context, webinarID, userID uuid.UUID) (*models.Registration, error) {
	const q = `INSERT INTO registrations (webinar_id, user_id) VALUES ($1, $2)
		RETURNING ` + regColumns
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q, webinarID, userID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return reg, nil
}

// Delete removes the registration for the pair. Returns pgx.ErrNoRows when absent.
func (r *Repository) Delete(ctx context.Context, webinarID, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM registrations WHERE webinar_id = $1 AND user_id = $2`, webinarID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Get returns the registration for the pair, or pgx.ErrNoRows.
func (r *Repository) Get(ctx context.Context, webinarID, userID uuid.UUID) (*models.Registration, error) {
	const q = `SELECT ` + regColumns + ` FROM registrations WHERE webinar_id = $1 AND user_id = $2`
	return scanRegistration(r.pool.QueryRow(ctx, q, webinarID, userID))
}

// Exists reports whether the pair is registered.
func (r *Repository) Exists(ctx context.Context, webinarID, userID uuid.UUID) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx,
		`SELECT 1 FROM registrations WHERE webinar_id = $1 AND user_id = $2`, webinarID, userID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CountByWebinar returns the number of registrations for a webinar.
func (r *Repository) CountByWebinar(ctx context.Context, webinarID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE webinar_id = $1`, webinarID).Scan(&n)
	return n, err
}

// MarkJoined upserts the registration with attended=true and a fresh open
// interval. Re-joining overwrites the start and clears any previous end, so
// the pair holds at most one open interval.
func (r *Repository) MarkJoined(ctx context.Context, webinarID, userID uuid.UUID, at time.Time) error {
	const q = `INSERT INTO registrations (webinar_id, user_id, attended, attendance_start)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (webinar_id, user_id) DO UPDATE
		SET attended = TRUE, attendance_start = EXCLUDED.attendance_start,
		    attendance_end = NULL, attendance_duration = NULL`
	_, err := r.pool.Exec(ctx, q, webinarID, userID, at)
	return err
}

// OpenInterval returns the registration with an open presence interval for
// the pair, or nil when none is open.
func (r *Repository) OpenInterval(ctx context.Context, webinarID, userID uuid.UUID) (*models.Registration, error) {
	const q = `SELECT ` + regColumns + ` FROM registrations
		WHERE webinar_id = $1 AND user_id = $2 AND attendance_start IS NOT NULL AND attendance_end IS NULL`
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q, webinarID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// CloseInterval sets end and duration, guarded so a concurrently closed
// interval is not overwritten.
func (r *Repository) CloseInterval(ctx context.Context, registrationID uuid.UUID, end time.Time, durationMinutes int) error {
	const q = `UPDATE registrations SET attendance_end = $2, attendance_duration = $3
		WHERE id = $1 AND attendance_start IS NOT NULL AND attendance_end IS NULL`
	_, err := r.pool.Exec(ctx, q, registrationID, end, durationMinutes)
	return err
}

// ListOpenByWebinar returns all registrations of the webinar holding an open
// interval.
func (r *Repository) ListOpenByWebinar(ctx context.Context, webinarID uuid.UUID) ([]models.Registration, error) {
	const q = `SELECT ` + regColumns + ` FROM registrations
		WHERE webinar_id = $1 AND attendance_start IS NOT NULL AND attendance_end IS NULL`
	return r.list(ctx, q, webinarID)
}

// ListByWebinar returns all registrations of the webinar.
func (r *Repository) ListByWebinar(ctx context.Context, webinarID uuid.UUID) ([]models.Registration, error) {
	const q = `SELECT ` + regColumns + ` FROM registrations WHERE webinar_id = $1 ORDER BY registered_at DESC`
	return r.list(ctx, q, webinarID)
}

func (r *Repository) list(ctx context.Context, q string, webinarID uuid.UUID) ([]models.Registration, error) {
	rows, err := r.pool.Query(ctx, q, webinarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Registration
	for rows.Next() {
		var reg models.Registration
		if err := rows.Scan(&reg.ID, &reg.WebinarID, &reg.UserID, &reg.RegisteredAt,
			&reg.Attended, &reg.AttendanceStart, &reg.AttendanceEnd, &reg.DurationMinutes); err != nil {
			return nil, err
		}
		list = append(list, reg)
	}
	return list, rows.Err()
}

// ListParticipants returns registrations joined with user identity, ordered
// organizer, speaker, then participants by registration date.
func (r *Repository) ListParticipants(ctx context.Context, webinarID uuid.UUID) ([]models.Participant, error) {
	const q = `SELECT u.id, u.name, u.email, u.role,
			CASE
				WHEN u.id = w.organizer_id THEN 'organizer'
				WHEN u.id = w.speaker_id THEN 'speaker'
				ELSE 'participant'
			END AS webinar_role,
			r.registered_at, r.attended, r.attendance_duration
		FROM registrations r
		JOIN users u ON r.user_id = u.id
		JOIN webinars w ON r.webinar_id = w.id
		WHERE r.webinar_id = $1
		ORDER BY CASE
			WHEN u.id = w.organizer_id THEN 1
			WHEN u.id = w.speaker_id THEN 2
			ELSE 3
		END, r.registered_at DESC`
	rows, err := r.pool.Query(ctx, q, webinarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.UserID, &p.Name, &p.Email, &p.Role, &p.WebinarRole,
			&p.RegisteredAt, &p.Attended, &p.DurationMinutes); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
