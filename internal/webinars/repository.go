package webinars

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumen-webinar/backend/internal/models"
)

// ErrNotFound is returned when the webinar does not exist.
var ErrNotFound = errors.New("webinar not found")

// Repository handles webinar persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a webinar repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const webinarColumns = `w.id, w.title, COALESCE(w.description, ''), w.organizer_id, w.speaker_id,
	w.start_time, w.duration_minutes, w.max_participants, w.access_type, w.room_password,
	w.require_moderator, w.enable_recording, w.enable_chat, w.enable_screen_share, w.mute_on_start,
	w.status, w.room_token, w.created_at, w.updated_at`

func scanWebinar(row pgx.Row) (*models.Webinar, error) {
	var w models.Webinar
	err := row.Scan(&w.ID, &w.Title, &w.Description, &w.OrganizerID, &w.SpeakerID,
		&w.StartTime, &w.DurationMinutes, &w.MaxParticipants, &w.AccessType, &w.RoomPassword,
		&w.Flags.RequireModerator, &w.Flags.EnableRecording, &w.Flags.EnableChat,
		&w.Flags.EnableScreenShare, &w.Flags.MuteOnStart,
		&w.Status, &w.RoomToken, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Create inserts a new webinar.
func (r *Repository) Create(ctx context.Context, w *models.Webinar) error {
	const q = `INSERT INTO webinars (title, description, organizer_id, speaker_id, start_time, duration_minutes,
			max_participants, access_type, room_password, require_moderator, enable_recording, enable_chat,
			enable_screen_share, mute_on_start, status, room_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q,
		w.Title, w.Description, w.OrganizerID, w.SpeakerID, w.StartTime, w.DurationMinutes,
		w.MaxParticipants, string(w.AccessType), w.RoomPassword,
		w.Flags.RequireModerator, w.Flags.EnableRecording, w.Flags.EnableChat,
		w.Flags.EnableScreenShare, w.Flags.MuteOnStart, string(w.Status), w.RoomToken).
		Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
}

// GetByID returns a webinar with resolved organizer/speaker names.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error) {
	q := `SELECT ` + webinarColumns + `, u.name, s.name
		FROM webinars w
		JOIN users u ON w.organizer_id = u.id
		LEFT JOIN users s ON w.speaker_id = s.id
		WHERE w.id = $1`
	var w models.Webinar
	err := r.pool.QueryRow(ctx, q, id).Scan(&w.ID, &w.Title, &w.Description, &w.OrganizerID, &w.SpeakerID,
		&w.StartTime, &w.DurationMinutes, &w.MaxParticipants, &w.AccessType, &w.RoomPassword,
		&w.Flags.RequireModerator, &w.Flags.EnableRecording, &w.Flags.EnableChat,
		&w.Flags.EnableScreenShare, &w.Flags.MuteOnStart,
		&w.Status, &w.RoomToken, &w.CreatedAt, &w.UpdatedAt, &w.OrganizerName, &w.SpeakerName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// List returns all webinars with registration counts, newest first.
func (r *Repository) List(ctx context.Context) ([]models.Webinar, error) {
	q := `SELECT ` + webinarColumns + `, u.name, s.name, COUNT(reg.id)
		FROM webinars w
		JOIN users u ON w.organizer_id = u.id
		LEFT JOIN users s ON w.speaker_id = s.id
		LEFT JOIN registrations reg ON reg.webinar_id = w.id
		GROUP BY w.id, u.name, s.name
		ORDER BY w.start_time DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Webinar
	for rows.Next() {
		var w models.Webinar
		if err := rows.Scan(&w.ID, &w.Title, &w.Description, &w.OrganizerID, &w.SpeakerID,
			&w.StartTime, &w.DurationMinutes, &w.MaxParticipants, &w.AccessType, &w.RoomPassword,
			&w.Flags.RequireModerator, &w.Flags.EnableRecording, &w.Flags.EnableChat,
			&w.Flags.EnableScreenShare, &w.Flags.MuteOnStart,
			&w.Status, &w.RoomToken, &w.CreatedAt, &w.UpdatedAt,
			&w.OrganizerName, &w.SpeakerName, &w.RegisteredCount); err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

// Save updates all mutable webinar fields.
func (r *Repository) Save(ctx context.Context, w *models.Webinar) error {
	const q = `UPDATE webinars SET title = $2, description = $3, speaker_id = $4, start_time = $5,
			duration_minutes = $6, max_participants = $7, access_type = $8, room_password = $9,
			require_moderator = $10, enable_recording = $11, enable_chat = $12,
			enable_screen_share = $13, mute_on_start = $14, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, w.ID, w.Title, w.Description, w.SpeakerID, w.StartTime,
		w.DurationMinutes, w.MaxParticipants, string(w.AccessType), w.RoomPassword,
		w.Flags.RequireModerator, w.Flags.EnableRecording, w.Flags.EnableChat,
		w.Flags.EnableScreenShare, w.Flags.MuteOnStart)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus transitions status from -> to as a compare-and-set. Returns false
// when the row no longer holds the expected current status.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, from, to models.WebinarStatus) (bool, error) {
	const q = `UPDATE webinars SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	tag, err := r.pool.Exec(ctx, q, id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteCascade removes a webinar and every row referencing it in one
// transaction: either all rows go or none do.
func (r *Repository) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"registrations", "schedules", "recordings", "chat_messages", "webinar_stats"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE webinar_id = $1`, table), id); err != nil {
			return err
		}
	}
	tag, err := tx.Exec(ctx, `DELETE FROM webinars WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

// NewRoomToken builds the opaque room identifier from the webinar title:
// slugged title, creation instant, and a uuid fragment for uniqueness.
func NewRoomToken(title string, at time.Time) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	slug := b.String()
	if len(slug) > 30 {
		slug = slug[:30]
	}
	return fmt.Sprintf("%s-%d-%s", slug, at.UnixMilli(), uuid.New().String()[:8])
}
