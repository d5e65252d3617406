package registrations

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lumen-webinar/backend/internal/middleware"
	"github.com/lumen-webinar/backend/internal/models"
	"github.com/lumen-webinar/backend/internal/webinars"
	"github.com/lumen-webinar/backend/pkg/response"
)

// Handler handles registration HTTP endpoints.
type Handler struct {
	repo        *Repository
	webinarRepo *webinars.Repository
	logger      *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(repo *Repository, webinarRepo *webinars.Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, webinarRepo: webinarRepo, logger: logger}
}

// Register handles POST /webinars/:id/register.
func (h *Handler) Register(c *gin.Context) {
	webinarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	ctx := c.Request.Context()

	w, err := h.webinarRepo.GetByID(ctx, webinarID)
	if err != nil {
		response.NotFound(c, "webinar not found")
		return
	}
	if !w.IsJoinable() {
		response.BadRequest(c, "webinar is not available for registration")
		return
	}
	if w.MaxParticipants != nil {
		count, err := h.repo.CountByWebinar(ctx, webinarID)
		if err != nil {
			response.Internal(c, "failed to count registrations")
			return
		}
		if count >= *w.MaxParticipants {
			response.Conflict(c, "webinar is full")
			return
		}
	}

	reg, err := h.repo.Create(ctx, webinarID, userID)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			response.Conflict(c, "already registered")
			return
		}
		h.logger.Error("create registration", zap.Error(err))
		response.Internal(c, "failed to register")
		return
	}
	response.Created(c, reg)
}

// Cancel handles DELETE /webinars/:id/register.
func (h *Handler) Cancel(c *gin.Context) {
	webinarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	if err := h.repo.Delete(c.Request.Context(), webinarID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "registration not found")
			return
		}
		response.Internal(c, "failed to cancel registration")
		return
	}
	response.OK(c, gin.H{"cancelled": true})
}

// Participants handles GET /webinars/:id/participants. Visible to the
// organizer, the speaker, any organizer-role user, or a registered attendee.
func (h *Handler) Participants(c *gin.Context) {
	webinarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, _ := c.MustGet(middleware.ContextUserRole).(string)
	ctx := c.Request.Context()

	w, err := h.webinarRepo.GetByID(ctx, webinarID)
	if err != nil {
		response.NotFound(c, "webinar not found")
		return
	}

	authorized := w.OrganizerID == userID ||
		(w.SpeakerID != nil && *w.SpeakerID == userID) ||
		role == string(models.RoleOrganizer)
	if !authorized {
		registered, err := h.repo.Exists(ctx, webinarID, userID)
		if err != nil {
			response.Internal(c, "failed to check registration")
			return
		}
		if !registered {
			response.Forbidden(c, "not authorized to view participants")
			return
		}
	}

	list, err := h.repo.ListParticipants(ctx, webinarID)
	if err != nil {
		response.Internal(c, "failed to list participants")
		return
	}
	response.OK(c, gin.H{"participants": list})
}
