package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"consultation-service/internal/observability"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

func closeDeadline() time.Time {
	return time.Now().Add(5 * time.Second)
}

// publishWSEvent reports a websocket lifecycle event to the broker with the
// connection's identity attached.
func publishWSEvent(consultationID int64, info ConnInfo, event, reason string) {
	payload := map[string]any{
		"ws": map[string]any{
			"consultation_id": consultationID,
			"event":           event,
			"conn_id":         info.ConnID,
			"duration_ms":     time.Since(info.ConnectedAt).Milliseconds(),
			"reason":          reason,
		},
		"identity": map[string]any{
			"user_id":   info.UserID,
			"role":      info.Role,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.consultations", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}
