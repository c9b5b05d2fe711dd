package ws

import (
	"time"

	"consultation-service/internal/models"
)

// ConnInfo describes one websocket connection for event reporting and
// per-connection write policy.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	Role        models.Role
	Forced      bool
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
