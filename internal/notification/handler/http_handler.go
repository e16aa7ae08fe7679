package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"sales_crm_backend/internal/events"
	"sales_crm_backend/internal/notification/coordinator"
	"sales_crm_backend/internal/notification/inapp"
	"sales_crm_backend/internal/notification/sse"
	"sales_crm_backend/platform/apperr"
	"sales_crm_backend/platform/httpkit"
	"sales_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultFollowUpMessage = "Scheduled follow-up"

// Sessions hands out per-user coordinators.
type Sessions interface {
	Acquire(ctx context.Context, userID uuid.UUID) (*coordinator.Coordinator, func(), error)
}

// LeadNamer resolves a lead's display name for default follow-up titles.
type LeadNamer interface {
	LeadDisplayName(ctx context.Context, leadID uuid.UUID) (string, error)
}

type ScheduleFollowUpRequest struct {
	LeadID      uuid.UUID `json:"leadId" validate:"required"`
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
	Title       string    `json:"title" validate:"max=200"`
	Message     string    `json:"message" validate:"max=2000"`
}

type StateResponse struct {
	Items       []inapp.Notification `json:"items"`
	UnreadCount int                  `json:"unreadCount"`
	Loading     bool                 `json:"loading"`
	Error       bool                 `json:"error"`
	LastErrorAt *time.Time           `json:"lastErrorAt,omitempty"`
}

// NewStateResponse is the wire shape of a coordinator snapshot, shared by
// the REST responses and the SSE stream.
func NewStateResponse(s coordinator.State) StateResponse {
	items := s.Notifications
	if items == nil {
		items = []inapp.Notification{}
	}
	return StateResponse{
		Items:       items,
		UnreadCount: s.UnreadCount,
		Loading:     s.Loading,
		Error:       s.Error,
		LastErrorAt: s.LastErrorAt,
	}
}

type followUpFailure struct {
	Notification      *inapp.Notification `json:"notification,omitempty"`
	NotificationError string              `json:"notificationError,omitempty"`
	LeadError         string              `json:"leadError,omitempty"`
}

type HTTPHandler struct {
	sessions Sessions
	stream   *sse.Service
	leads    LeadNamer
	bus      events.Bus
	val      *validator.Validator
}

func NewHTTPHandler(sessions Sessions, stream *sse.Service, leads LeadNamer, bus events.Bus, val *validator.Validator) *HTTPHandler {
	return &HTTPHandler{
		sessions: sessions,
		stream:   stream,
		leads:    leads,
		bus:      bus,
		val:      val,
	}
}

func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/stream", h.Stream)
	rg.POST("/refresh", h.Refresh)
	rg.PATCH("/read-all", h.MarkAllRead)
	rg.PATCH("/:id/read", h.MarkRead)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/follow-ups", h.ScheduleFollowUp)
}

// session acquires the caller's coordinator, writing the error response
// itself when that fails.
func (h *HTTPHandler) session(c *gin.Context) (httpkit.Identity, *coordinator.Coordinator, func(), bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return nil, nil, nil, false
	}

	coord, release, err := h.sessions.Acquire(c.Request.Context(), identity.UserID())
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindUnavailable, "notification session unavailable", err))
		return nil, nil, nil, false
	}
	return identity, coord, release, true
}

func (h *HTTPHandler) List(c *gin.Context) {
	_, coord, release, ok := h.session(c)
	if !ok {
		return
	}
	defer release()

	httpkit.OK(c, NewStateResponse(coord.Snapshot()))
}

func (h *HTTPHandler) Refresh(c *gin.Context) {
	_, coord, release, ok := h.session(c)
	if !ok {
		return
	}
	defer release()

	if err := coord.Refresh(c.Request.Context()); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, NewStateResponse(coord.Snapshot()))
}

func (h *HTTPHandler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}

	_, coord, release, ok := h.session(c)
	if !ok {
		return
	}
	defer release()

	if err := coord.MarkAsRead(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, NewStateResponse(coord.Snapshot()))
}

func (h *HTTPHandler) MarkAllRead(c *gin.Context) {
	_, coord, release, ok := h.session(c)
	if !ok {
		return
	}
	defer release()

	if err := coord.MarkAllAsRead(c.Request.Context()); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, NewStateResponse(coord.Snapshot()))
}

func (h *HTTPHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}

	_, coord, release, ok := h.session(c)
	if !ok {
		return
	}
	defer release()

	if err := coord.Delete(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "ok"})
}

func (h *HTTPHandler) ScheduleFollowUp(c *gin.Context) {
	var req ScheduleFollowUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", validator.FieldErrors(err))
		return
	}

	identity, coord, release, ok := h.session(c)
	if !ok {
		return
	}
	defer release()

	ctx := c.Request.Context()
	title := strings.TrimSpace(req.Title)
	if title == "" {
		name, err := h.leads.LeadDisplayName(ctx, req.LeadID)
		if httpkit.HandleError(c, err) {
			return
		}
		title = "Follow-up with " + name
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = defaultFollowUpMessage
	}

	n, err := coord.ScheduleFollowUp(ctx, req.LeadID, req.ScheduledAt, title, message)

	var partial *coordinator.FollowUpError
	if errors.As(err, &partial) {
		if partial.Notification != nil {
			h.publishScheduled(ctx, identity, *partial.Notification)
		}
		httpkit.Error(c, http.StatusBadGateway, "follow-up was not fully scheduled", followUpDetails(partial))
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}

	h.publishScheduled(ctx, identity, n)
	httpkit.JSON(c, http.StatusCreated, n)
}

func (h *HTTPHandler) publishScheduled(ctx context.Context, identity httpkit.Identity, n inapp.Notification) {
	if h.bus == nil || n.LeadID == nil || n.ScheduledAt == nil {
		return
	}
	h.bus.Publish(ctx, events.FollowUpScheduled{
		BaseEvent:      events.NewBaseEvent(),
		NotificationID: n.ID,
		LeadID:         *n.LeadID,
		UserID:         identity.UserID(),
		RecipientEmail: identity.Email(),
		ScheduledAt:    *n.ScheduledAt,
	})
}

func followUpDetails(e *coordinator.FollowUpError) followUpFailure {
	out := followUpFailure{Notification: e.Notification}
	if e.NotificationErr != nil {
		out.NotificationError = publicMessage(e.NotificationErr)
	}
	if e.LeadErr != nil {
		out.LeadError = publicMessage(e.LeadErr)
	}
	return out
}

func publicMessage(err error) string {
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) && domainErr.HTTPStatus() < http.StatusInternalServerError {
		return domainErr.Message
	}
	return "store unavailable"
}

func (h *HTTPHandler) Stream(c *gin.Context) {
	identity, coord, release, ok := h.session(c)
	if !ok {
		return
	}
	defer release()

	h.stream.Stream(c, identity.UserID(), sse.Event{
		Type: sse.EventNotifications,
		Data: NewStateResponse(coord.Snapshot()),
	})
}
