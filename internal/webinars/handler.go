package webinars

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-webinar/backend/internal/attendance"
	"github.com/lumen-webinar/backend/internal/middleware"
	"github.com/lumen-webinar/backend/internal/models"
	"github.com/lumen-webinar/backend/internal/stats"
	"github.com/lumen-webinar/backend/pkg/response"
)

// Handler handles webinar HTTP endpoints.
type Handler struct {
	repo      *Repository
	lifecycle *Lifecycle
	tracker   *attendance.Tracker
	stats     *stats.Recorder
	logger    *zap.Logger
}

// NewHandler creates a webinars handler.
func NewHandler(repo *Repository, lifecycle *Lifecycle, tracker *attendance.Tracker,
	recorder *stats.Recorder, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, lifecycle: lifecycle, tracker: tracker, stats: recorder, logger: logger}
}

type webinarRequest struct {
	Title           string     `json:"title" binding:"required"`
	Description     string     `json:"description"`
	SpeakerID       *uuid.UUID `json:"speaker_id"`
	StartTime       time.Time  `json:"start_time" binding:"required"`
	DurationMinutes int        `json:"duration_minutes" binding:"required,min=1"`
	MaxParticipants *int       `json:"max_participants"`
	AccessType      string     `json:"access_type" binding:"required"`
	RoomPassword    string     `json:"room_password"`

	RequireModerator  bool `json:"require_moderator"`
	EnableRecording   bool `json:"enable_recording"`
	EnableChat        bool `json:"enable_chat"`
	EnableScreenShare bool `json:"enable_screen_share"`
	MuteOnStart       bool `json:"mute_on_start"`
}

// roomPassword validates the access-type/password pairing: a password webinar
// needs at least 4 characters, any other type carries no password at all.
func (req *webinarRequest) roomPassword() (*string, string) {
	if !models.ValidAccessType(req.AccessType) {
		return nil, "invalid access type"
	}
	if models.AccessType(req.AccessType) == models.AccessPassword {
		if len(req.RoomPassword) < 4 {
			return nil, "room password must be at least 4 characters"
		}
		pw := req.RoomPassword
		return &pw, ""
	}
	return nil, ""
}

func (req *webinarRequest) flags() models.FeatureFlags {
	return models.FeatureFlags{
		RequireModerator:  req.RequireModerator,
		EnableRecording:   req.EnableRecording,
		EnableChat:        req.EnableChat,
		EnableScreenShare: req.EnableScreenShare,
		MuteOnStart:       req.MuteOnStart,
	}
}

// Create handles POST /webinars. The caller becomes the organizer.
func (h *Handler) Create(c *gin.Context) {
	var req webinarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	pw, msg := req.roomPassword()
	if msg != "" {
		response.BadRequest(c, msg)
		return
	}

	now := time.Now()
	w := &models.Webinar{
		Title:           req.Title,
		Description:     req.Description,
		OrganizerID:     c.MustGet(middleware.ContextUserID).(uuid.UUID),
		SpeakerID:       req.SpeakerID,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		MaxParticipants: req.MaxParticipants,
		AccessType:      models.AccessType(req.AccessType),
		RoomPassword:    pw,
		Flags:           req.flags(),
		Status:          models.StatusScheduled,
		RoomToken:       NewRoomToken(req.Title, now),
	}
	if err := h.repo.Create(c.Request.Context(), w); err != nil {
		h.logger.Error("create webinar", zap.Error(err))
		response.Internal(c, "failed to create webinar")
		return
	}
	response.Created(c, w)
}

// List handles GET /webinars.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list webinars", zap.Error(err))
		response.Internal(c, "failed to list webinars")
		return
	}
	response.OK(c, gin.H{"webinars": list})
}

// GetByID handles GET /webinars/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	w, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "webinar not found")
			return
		}
		response.Internal(c, "failed to load webinar")
		return
	}
	response.OK(c, w)
}

// Update handles PUT /webinars/:id. Organizer only. Switching away from
// password access drops the stored password.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	var req webinarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()

	w, err := h.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "webinar not found")
			return
		}
		response.Internal(c, "failed to load webinar")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if w.OrganizerID != userID {
		response.Forbidden(c, "only the organizer can update the webinar")
		return
	}

	if !models.ValidAccessType(req.AccessType) {
		response.BadRequest(c, "invalid access type")
		return
	}
	var pw *string
	if models.AccessType(req.AccessType) == models.AccessPassword {
		// An omitted password keeps the current one; anything else revalidates.
		if req.RoomPassword == "" && w.AccessType == models.AccessPassword {
			pw = w.RoomPassword
		} else {
			var msg string
			pw, msg = req.roomPassword()
			if msg != "" {
				response.BadRequest(c, msg)
				return
			}
		}
	}

	w.Title = req.Title
	w.Description = req.Description
	w.SpeakerID = req.SpeakerID
	w.StartTime = req.StartTime
	w.DurationMinutes = req.DurationMinutes
	w.MaxParticipants = req.MaxParticipants
	w.AccessType = models.AccessType(req.AccessType)
	w.RoomPassword = pw
	w.Flags = req.flags()

	if err := h.repo.Save(ctx, w); err != nil {
		h.logger.Error("update webinar", zap.Error(err))
		response.Internal(c, "failed to update webinar")
		return
	}
	response.OK(c, w)
}

// Delete handles DELETE /webinars/:id. Organizer only; removes the webinar and
// all dependent rows.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	ctx := c.Request.Context()

	w, err := h.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "webinar not found")
			return
		}
		response.Internal(c, "failed to load webinar")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if w.OrganizerID != userID {
		response.Forbidden(c, "only the organizer can delete the webinar")
		return
	}

	if err := h.repo.DeleteCascade(ctx, id); err != nil {
		h.logger.Error("delete webinar", zap.Error(err))
		response.Internal(c, "failed to delete webinar")
		return
	}
	response.OK(c, gin.H{"deleted": true})
}

func actorFrom(c *gin.Context) Actor {
	return Actor{
		ID:   c.MustGet(middleware.ContextUserID).(uuid.UUID),
		Role: models.Role(c.MustGet(middleware.ContextUserRole).(string)),
	}
}

// Start handles POST /webinars/:id/start.
func (h *Handler) Start(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	change, err := h.lifecycle.Start(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		response.Domain(c, err)
		return
	}
	response.OK(c, change)
}

// Status handles POST /webinars/:id/status with body {"status": "..."}.
func (h *Handler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	change, err := h.lifecycle.ChangeStatus(c.Request.Context(), id, actorFrom(c), req.Status)
	if err != nil {
		response.Domain(c, err)
		return
	}
	response.OK(c, change)
}

// StatusCheck handles GET /webinars/:id/status-check: a lightweight poll the
// lobby page uses before attempting to join.
func (h *Handler) StatusCheck(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	ctx := c.Request.Context()

	w, err := h.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "webinar not found")
			return
		}
		response.Internal(c, "failed to load webinar")
		return
	}
	openCount, err := h.tracker.OpenCount(ctx, id)
	if err != nil {
		response.Domain(c, err)
		return
	}

	isLive := w.Status == models.StatusLive
	canJoin := isLive || (w.Status == models.StatusScheduled && !w.Flags.RequireModerator)
	response.OK(c, gin.H{
		"status":            w.Status,
		"is_live":           isLive,
		"has_participants":  openCount > 0,
		"require_moderator": w.Flags.RequireModerator,
		"can_join":          canJoin,
	})
}

// Access handles POST /webinars/:id/access with body {"password": "..."}.
func (h *Handler) Access(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	// Body is optional for open and members-only webinars.
	_ = c.ShouldBindJSON(&req)

	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	grant, err := h.lifecycle.CheckAccess(c.Request.Context(), id, userID, req.Password)
	if err != nil {
		response.Domain(c, err)
		return
	}
	response.OK(c, grant)
}

// Attendance handles POST /webinars/:id/attendance with body
// {"action": "start"|"end"} for clients that report presence over HTTP
// instead of the websocket.
func (h *Handler) Attendance(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	var req struct {
		Action string `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	if _, err := h.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "webinar not found")
			return
		}
		response.Internal(c, "failed to load webinar")
		return
	}

	switch req.Action {
	case "start":
		if err := h.tracker.RecordJoin(ctx, id, userID); err != nil {
			response.Domain(c, err)
			return
		}
		h.stats.Record(ctx, id, models.MetricUserJoined)
	case "end":
		if err := h.tracker.RecordLeave(ctx, id, userID); err != nil {
			response.Domain(c, err)
			return
		}
	default:
		response.BadRequest(c, "action must be start or end")
		return
	}
	response.OK(c, gin.H{"action": req.Action})
}
