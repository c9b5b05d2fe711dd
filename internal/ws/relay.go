package ws

import (
	"context"

	"github.com/rs/zerolog/log"

	"consultation-service/internal/bus"
)

// RunStatusRelay forwards status changes from the in-process bus onto the
// affected websocket rooms, then tears the room down once the consultation
// reaches a terminal status. Blocks until ctx is cancelled.
func RunStatusRelay(ctx context.Context, statusBus *bus.StatusBus, hub *Hub) {
	changes, cancel := statusBus.SubscribeAll()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case change := <-changes:
			hub.BroadcastStatus(change)
			if change.Status.Terminal() {
				log.Info().Int64("consultation_id", change.ConsultationID).
					Str("status", string(change.Status)).Msg("closing websocket room")
				hub.CloseRoom(change.ConsultationID)
			}
		}
	}
}
