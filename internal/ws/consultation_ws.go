package ws

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"consultation-service/internal/gate"
	"consultation-service/internal/middleware"
	"consultation-service/internal/models"
	"consultation-service/internal/observability"
	"consultation-service/internal/repositories"
)

const maxMessageLength = 4000

// ConsultationWebSocketHandler serves the live channel of a consultation:
// inbound text frames are message bodies, outbound frames are chat events.
type ConsultationWebSocketHandler struct {
	hub          *Hub
	consultation repositories.ConsultationRepository
	messages     repositories.MessageRepository
	verifier     middleware.TokenVerifier
}

// NewConsultationWebSocketHandler constructs a ConsultationWebSocketHandler.
func NewConsultationWebSocketHandler(hub *Hub, consultation repositories.ConsultationRepository, messages repositories.MessageRepository, verifier middleware.TokenVerifier) *ConsultationWebSocketHandler {
	return &ConsultationWebSocketHandler{hub: hub, consultation: consultation, messages: messages, verifier: verifier}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle gates the connection, upgrades it, and starts the read loop. The
// channel is never opened for a consultation the access gate denies.
func (h *ConsultationWebSocketHandler) Handle(c *gin.Context) {
	consultationID, err := strconv.ParseInt(c.Param("consultation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid consultation id"})
		return
	}

	ctx, span := otel.Tracer("consultation-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	claims, err := h.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	record, err := h.consultation.GetConsultation(ctx, consultationID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "consultation not found", "code": "NOT_FOUND"})
		return
	}
	if !record.IsParticipant(claims.UserID) && claims.Role != models.RoleOperator {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a consultation participant", "code": "FORBIDDEN"})
		return
	}

	force := claims.Role == models.RoleOperator && c.Query("force") == "true"
	access := gate.Evaluate(record, time.Now(), force)
	if !access.CanEnter {
		h.denyEntry(c, record)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      claims.UserID,
		Role:        claims.Role,
		Forced:      force,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(consultationID, conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	publishWSEvent(consultationID, info, "ws_connect", "")

	go h.readLoop(consultationID, conn, info)

	// A terminal transition can land between the gate check and AddClient,
	// in which case the relay's CloseRoom ran before this connection was
	// registered. Re-check the record once registered.
	if fresh, err := h.consultation.GetConsultation(ctx, consultationID); err == nil && fresh.Status.Terminal() {
		h.hub.CloseRoom(consultationID)
	}
}

// denyEntry maps a gate denial onto the waiting or closed view, never a
// bare error toast.
func (h *ConsultationWebSocketHandler) denyEntry(c *gin.Context, record models.Consultation) {
	switch record.Status {
	case models.StatusCompleted:
		observability.IncGateDenial("completed")
		c.JSON(http.StatusConflict, gin.H{"error": "consultation completed", "code": "COMPLETED", "completed_at": record.CompletedAt})
	case models.StatusCancelled:
		observability.IncGateDenial("cancelled")
		c.JSON(http.StatusConflict, gin.H{"error": "consultation cancelled", "code": "CANCELLED"})
	default:
		observability.IncGateDenial("not_ready")
		countdown, _ := gate.Remaining(record, time.Now())
		c.JSON(http.StatusConflict, gin.H{
			"error":     "consultation not ready",
			"code":      "NOT_READY",
			"countdown": countdown,
			"time_slot": record.TimeSlot,
		})
	}
}

// readLoop treats every inbound text frame as a message body, re-checking
// the gate against a fresh record before each store so a status change takes
// effect immediately.
func (h *ConsultationWebSocketHandler) readLoop(consultationID int64, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.RemoveClient(consultationID, conn)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		publishWSEvent(consultationID, info, "ws_disconnect", closeReason)
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				publishWSEvent(consultationID, info, "ws_error", closeReason)
			}
			return
		}

		content := strings.TrimSpace(string(payload))
		if content == "" {
			continue
		}
		if len(content) > maxMessageLength {
			h.reject(consultationID, conn, "MESSAGE_TOO_LONG", "message exceeds maximum length")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		h.handleSend(ctx, consultationID, conn, info, content)
		cancel()
	}
}

func (h *ConsultationWebSocketHandler) handleSend(ctx context.Context, consultationID int64, conn *websocket.Conn, info ConnInfo, content string) {
	record, err := h.consultation.GetConsultation(ctx, consultationID)
	if err != nil {
		h.reject(consultationID, conn, "TRANSPORT_FAILURE", "failed to load consultation")
		return
	}

	access := gate.Evaluate(record, time.Now(), info.Forced)
	if !access.CanEnter || access.ReadOnly {
		h.reject(consultationID, conn, "READ_ONLY", "sending is disabled")
		return
	}

	msg, err := h.messages.CreateMessage(ctx, consultationID, info.UserID, content)
	if err != nil {
		h.reject(consultationID, conn, "TRANSPORT_FAILURE", "failed to store message")
		return
	}

	observability.IncWSEvent("message")
	h.hub.BroadcastMessage(consultationID, msg)
}

func (h *ConsultationWebSocketHandler) reject(consultationID int64, conn *websocket.Conn, code, msg string) {
	_ = h.hub.Send(consultationID, conn, models.ChatEvent{Type: models.EventError, Code: code, Error: msg})
}

func (h *ConsultationWebSocketHandler) authenticate(c *gin.Context) (middleware.Claims, error) {
	token := c.GetHeader("Authorization")
	if parts := strings.SplitN(token, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		token = parts[1]
	} else {
		token = c.Query("token")
	}
	return h.verifier.Verify(token)
}
