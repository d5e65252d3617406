package webinars

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumen-webinar/backend/internal/middleware"
	"github.com/lumen-webinar/backend/internal/models"
	"github.com/lumen-webinar/backend/pkg/response"
)

// AddSchedule inserts an agenda entry.
func (r *Repository) AddSchedule(ctx context.Context, s *models.Schedule) error {
	const q = `INSERT INTO schedules (webinar_id, session_title, start_time, end_time, speaker_id)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	return r.pool.QueryRow(ctx, q, s.WebinarID, s.SessionTitle, s.StartTime, s.EndTime, s.SpeakerID).
		Scan(&s.ID)
}

// ListSchedules returns the webinar's agenda in session order.
func (r *Repository) ListSchedules(ctx context.Context, webinarID uuid.UUID) ([]models.Schedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, webinar_id, session_title, start_time, end_time, speaker_id
		 FROM schedules WHERE webinar_id = $1 ORDER BY start_time`, webinarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Schedule
	for rows.Next() {
		var s models.Schedule
		if err := rows.Scan(&s.ID, &s.WebinarID, &s.SessionTitle, &s.StartTime, &s.EndTime, &s.SpeakerID); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// AddRecording stores a recording metadata row.
func (r *Repository) AddRecording(ctx context.Context, rec *models.Recording) error {
	const q = `INSERT INTO recordings (webinar_id, url, duration_minutes, file_size)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, rec.WebinarID, rec.URL, rec.DurationMinutes, rec.FileSize).
		Scan(&rec.ID, &rec.CreatedAt)
}

// ListRecordings returns the webinar's recordings, newest first.
func (r *Repository) ListRecordings(ctx context.Context, webinarID uuid.UUID) ([]models.Recording, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, webinar_id, url, duration_minutes, file_size, created_at
		 FROM recordings WHERE webinar_id = $1 ORDER BY created_at DESC`, webinarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		var rec models.Recording
		if err := rows.Scan(&rec.ID, &rec.WebinarID, &rec.URL, &rec.DurationMinutes, &rec.FileSize, &rec.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// loadOwned fetches the webinar and checks the caller is its organizer.
func (h *Handler) loadOwned(c *gin.Context) (*models.Webinar, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return nil, false
	}
	w, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "webinar not found")
			return nil, false
		}
		response.Internal(c, "failed to load webinar")
		return nil, false
	}
	if w.OrganizerID != c.MustGet(middleware.ContextUserID).(uuid.UUID) {
		response.Forbidden(c, "only the organizer can modify the webinar")
		return nil, false
	}
	return w, true
}

// Agenda handles GET /webinars/:id/schedule.
func (h *Handler) Agenda(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	list, err := h.repo.ListSchedules(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to list schedule")
		return
	}
	response.OK(c, gin.H{"schedule": list})
}

// AddAgendaItem handles POST /webinars/:id/schedule. Organizer only.
func (h *Handler) AddAgendaItem(c *gin.Context) {
	w, ok := h.loadOwned(c)
	if !ok {
		return
	}
	var req struct {
		SessionTitle string     `json:"session_title" binding:"required"`
		StartTime    time.Time  `json:"start_time" binding:"required"`
		EndTime      time.Time  `json:"end_time" binding:"required"`
		SpeakerID    *uuid.UUID `json:"speaker_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !req.EndTime.After(req.StartTime) {
		response.BadRequest(c, "end_time must be after start_time")
		return
	}
	s := &models.Schedule{
		WebinarID:    w.ID,
		SessionTitle: req.SessionTitle,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		SpeakerID:    req.SpeakerID,
	}
	if err := h.repo.AddSchedule(c.Request.Context(), s); err != nil {
		response.Internal(c, "failed to add schedule entry")
		return
	}
	response.Created(c, s)
}

// Recordings handles GET /webinars/:id/recordings.
func (h *Handler) Recordings(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	list, err := h.repo.ListRecordings(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, gin.H{"recordings": list})
}

// AddRecording handles POST /webinars/:id/recordings. Organizer only; stores
// the metadata row for a recording hosted elsewhere.
func (h *Handler) AddRecording(c *gin.Context) {
	w, ok := h.loadOwned(c)
	if !ok {
		return
	}
	var req struct {
		URL             string `json:"url" binding:"required"`
		DurationMinutes *int   `json:"duration_minutes"`
		FileSize        *int64 `json:"file_size"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rec := &models.Recording{
		WebinarID:       w.ID,
		URL:             req.URL,
		DurationMinutes: req.DurationMinutes,
		FileSize:        req.FileSize,
	}
	if err := h.repo.AddRecording(c.Request.Context(), rec); err != nil {
		response.Internal(c, "failed to add recording")
		return
	}
	response.Created(c, rec)
}
