package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"consultation-service/internal/gate"
	"consultation-service/internal/lifecycle"
	"consultation-service/internal/middleware"
	"consultation-service/internal/models"
	"consultation-service/internal/pagination"
	"consultation-service/internal/repositories"
	"consultation-service/internal/telemetry"
)

// ConsultationHandler serves the consultation list, detail, history and
// lifecycle endpoints.
type ConsultationHandler struct {
	consultations repositories.ConsultationRepository
	messages      repositories.MessageRepository
	controller    *lifecycle.Controller
	audit         *telemetry.AuditEmitter
}

// NewConsultationHandler builds a ConsultationHandler.
func NewConsultationHandler(consultations repositories.ConsultationRepository, messages repositories.MessageRepository, controller *lifecycle.Controller, audit *telemetry.AuditEmitter) *ConsultationHandler {
	return &ConsultationHandler{
		consultations: consultations,
		messages:      messages,
		controller:    controller,
		audit:         audit,
	}
}

// consultationResponse is the API view of a consultation for one viewer,
// including the gate verdict evaluated at request time.
type consultationResponse struct {
	ID          int64            `json:"id"`
	Counterpart models.Party     `json:"counterpart"`
	TimeSlot    models.TimeSlot  `json:"time_slot"`
	Status      models.Status    `json:"status"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	MeetingLink *string          `json:"meeting_link,omitempty"`
	Access      gate.Access      `json:"access"`
	Countdown   *gate.Countdown  `json:"countdown,omitempty"`
}

func viewOf(record models.Consultation, viewerID int64, now time.Time) consultationResponse {
	counterpart, _ := record.CounterpartOf(viewerID)
	resp := consultationResponse{
		ID:          record.ID,
		Counterpart: counterpart,
		TimeSlot:    record.TimeSlot,
		Status:      record.Status,
		CompletedAt: record.CompletedAt,
		MeetingLink: record.MeetingLink,
		Access:      gate.Evaluate(record, now, false),
	}
	if countdown, ok := gate.Remaining(record, now); ok {
		resp.Countdown = &countdown
	}
	return resp
}

// ListConsultations returns the consultations of the authenticated user,
// each with its current access verdict and countdown.
func (h *ConsultationHandler) ListConsultations(c *gin.Context) {
	caller := middleware.CallerFromContext(c)

	records, err := h.consultations.ListForUser(c.Request.Context(), caller.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load consultations"})
		return
	}

	now := time.Now()
	responses := make([]consultationResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, viewOf(record, caller.UserID, now))
	}

	c.JSON(http.StatusOK, gin.H{"consultations": responses})
}

// GetConsultation returns one consultation for a participant.
func (h *ConsultationHandler) GetConsultation(c *gin.Context) {
	record, caller, ok := h.loadForParticipant(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"consultation": viewOf(record, caller.UserID, time.Now())})
}

// GetMessages serves one backward page of chat history:
// GET /consultations/:consultation_id/messages?page_size&cursor.
func (h *ConsultationHandler) GetMessages(c *gin.Context) {
	record, _, ok := h.loadForParticipant(c)
	if !ok {
		return
	}

	pageSize := pagination.ParsePageSize(c.Request)
	var before *pagination.Cursor
	if token := c.Query("cursor"); token != "" {
		cursor, err := pagination.Decode(token)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor", "code": "INVALID_CURSOR"})
			return
		}
		before = &cursor
	}

	page, next, err := h.messages.ListPageBefore(c.Request.Context(), record.ID, pageSize, before)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	var nextToken *string
	if next != nil {
		token := next.Encode()
		nextToken = &token
	}
	if page == nil {
		page = []models.ChatMessage{}
	}

	c.JSON(http.StatusOK, gin.H{"data": page, "next_cursor": nextToken})
}

// StartConsultation moves a scheduled consultation into progress.
func (h *ConsultationHandler) StartConsultation(c *gin.Context) {
	consultationID, ok := parseConsultationID(c)
	if !ok {
		return
	}

	var req struct {
		Force bool `json:"force"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	caller := middleware.CallerFromContext(c)
	actor := lifecycle.Actor{ID: caller.UserID, Role: caller.Role}

	record, err := h.controller.Start(c.Request.Context(), consultationID, actor, req.Force)
	if err != nil {
		h.renderLifecycleError(c, consultationID, err)
		return
	}

	h.audit.Emit(c.Request.Context(), "consultation_start", consultationID, "", requestIDFromContext(c), &caller.UserID)
	c.JSON(http.StatusOK, gin.H{"consultation": viewOf(record, caller.UserID, time.Now())})
}

// CompleteConsultation finishes an in-progress consultation.
func (h *ConsultationHandler) CompleteConsultation(c *gin.Context) {
	consultationID, ok := parseConsultationID(c)
	if !ok {
		return
	}

	caller := middleware.CallerFromContext(c)
	actor := lifecycle.Actor{ID: caller.UserID, Role: caller.Role}

	record, err := h.controller.Complete(c.Request.Context(), consultationID, actor)
	if err != nil {
		h.renderLifecycleError(c, consultationID, err)
		return
	}

	h.audit.Emit(c.Request.Context(), "consultation_complete", consultationID, "", requestIDFromContext(c), &caller.UserID)
	c.JSON(http.StatusOK, gin.H{"consultation": viewOf(record, caller.UserID, time.Now())})
}

func (h *ConsultationHandler) renderLifecycleError(c *gin.Context, consultationID int64, err error) {
	switch {
	case errors.Is(err, repositories.ErrConsultationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "consultation not found", "code": "NOT_FOUND"})
	case errors.Is(err, lifecycle.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized", "code": "FORBIDDEN"})
	case errors.Is(err, lifecycle.ErrNotReady):
		resp := gin.H{"error": "consultation not ready", "code": "NOT_READY"}
		if record, loadErr := h.consultations.GetConsultation(c.Request.Context(), consultationID); loadErr == nil {
			if countdown, ok := gate.Remaining(record, time.Now()); ok {
				resp["countdown"] = countdown
			}
			resp["time_slot"] = record.TimeSlot
		}
		c.JSON(http.StatusConflict, resp)
	case errors.Is(err, repositories.ErrInvalidTransition):
		// Ground truth accompanies the rejection so the caller can re-render.
		resp := gin.H{"error": "invalid status transition", "code": "INVALID_TRANSITION"}
		if record, loadErr := h.consultations.GetConsultation(c.Request.Context(), consultationID); loadErr == nil {
			resp["status"] = record.Status
		}
		c.JSON(http.StatusConflict, resp)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transition failed", "code": "TRANSPORT_FAILURE"})
	}
}

// loadForParticipant loads the consultation and enforces that the caller is
// one of its parties (operators see everything).
func (h *ConsultationHandler) loadForParticipant(c *gin.Context) (models.Consultation, middleware.Claims, bool) {
	consultationID, ok := parseConsultationID(c)
	if !ok {
		return models.Consultation{}, middleware.Claims{}, false
	}

	caller := middleware.CallerFromContext(c)
	record, err := h.consultations.GetConsultation(c.Request.Context(), consultationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConsultationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "consultation not found", "code": "NOT_FOUND"})
		return models.Consultation{}, middleware.Claims{}, false
	}

	if !record.IsParticipant(caller.UserID) && caller.Role != models.RoleOperator {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a consultation participant", "code": "FORBIDDEN"})
		return models.Consultation{}, middleware.Claims{}, false
	}
	return record, caller, true
}

func parseConsultationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("consultation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid consultation id"})
		return 0, false
	}
	return id, true
}
