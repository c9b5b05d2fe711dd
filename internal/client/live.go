package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"consultation-service/internal/models"
	syncpkg "consultation-service/internal/sync"
)

const handshakeTimeout = 10 * time.Second

// Open dials the live channel of a consultation. The gate is enforced
// server-side; a denied handshake surfaces as an APIError.
func (c *Client) Open(ctx context.Context, consultationID int64) (syncpkg.LiveChannel, error) {
	endpoint := fmt.Sprintf("%s/ws/consultations/%d", httpToWS(c.baseURL), consultationID)
	endpoint += "?" + url.Values{"token": {c.token}}.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, decodeAPIError(resp)
		}
		return nil, err
	}

	channel := &liveChannel{conn: conn, events: make(chan models.ChatEvent, 16)}
	go channel.readLoop()
	return channel, nil
}

func httpToWS(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	}
	return baseURL
}

// liveChannel adapts a gorilla connection to the sync.LiveChannel contract.
type liveChannel struct {
	conn   *websocket.Conn
	events chan models.ChatEvent

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// Events yields inbound chat events in arrival order. The channel is closed
// when the connection drops.
func (l *liveChannel) Events() <-chan models.ChatEvent {
	return l.events
}

func (l *liveChannel) readLoop() {
	defer close(l.events)
	for {
		var event models.ChatEvent
		if err := l.conn.ReadJSON(&event); err != nil {
			return
		}
		l.events <- event
	}
}

// Send writes one message body as a text frame.
func (l *liveChannel) Send(ctx context.Context, text string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = l.conn.SetWriteDeadline(deadline)
	} else {
		_ = l.conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	}
	return l.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close shuts the connection down. Safe to call more than once.
func (l *liveChannel) Close() error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	l.writeMu.Lock()
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	l.writeMu.Unlock()

	return l.conn.Close()
}
