package analytics

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-webinar/backend/internal/attendance"
	"github.com/lumen-webinar/backend/internal/middleware"
	"github.com/lumen-webinar/backend/internal/models"
	"github.com/lumen-webinar/backend/internal/stats"
	"github.com/lumen-webinar/backend/internal/webinars"
	"github.com/lumen-webinar/backend/pkg/response"
)

// Handler serves per-webinar analytics: the attendance summary computed from
// registration rows plus the daily stat counters.
type Handler struct {
	webinarRepo *webinars.Repository
	tracker     *attendance.Tracker
	statsRepo   *stats.Repository
	logger      *zap.Logger
}

// NewHandler creates an analytics handler.
func NewHandler(webinarRepo *webinars.Repository, tracker *attendance.Tracker,
	statsRepo *stats.Repository, logger *zap.Logger) *Handler {
	return &Handler{webinarRepo: webinarRepo, tracker: tracker, statsRepo: statsRepo, logger: logger}
}

// Webinar handles GET /webinars/:id/analytics. Visible to the organizer, the
// speaker, or any organizer-role user.
func (h *Handler) Webinar(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	ctx := c.Request.Context()

	w, err := h.webinarRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, webinars.ErrNotFound) {
			response.NotFound(c, "webinar not found")
			return
		}
		response.Internal(c, "failed to load webinar")
		return
	}

	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, _ := c.MustGet(middleware.ContextUserRole).(string)
	authorized := w.OrganizerID == userID ||
		(w.SpeakerID != nil && *w.SpeakerID == userID) ||
		role == string(models.RoleOrganizer)
	if !authorized {
		response.Forbidden(c, "not authorized to view analytics")
		return
	}

	summary, err := h.tracker.Aggregate(ctx, id)
	if err != nil {
		response.Domain(c, err)
		return
	}
	metrics, err := h.statsRepo.ListByWebinar(ctx, id)
	if err != nil {
		h.logger.Error("list stats", zap.Error(err))
		response.Internal(c, "failed to load stats")
		return
	}

	response.OK(c, gin.H{
		"webinar_id": id,
		"attendance": summary,
		"metrics":    metrics,
	})
}
