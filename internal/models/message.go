package models

import "time"

// ChatMessage represents a message inside a consultation chat.
// Ordering key is (created_at, id); ids alone are not globally orderable.
type ChatMessage struct {
	ID             int64     `db:"id" json:"id"`
	ConsultationID int64     `db:"consultation_id" json:"consultation_id"`
	SenderID       int64     `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ChatEvent is emitted over websocket connections for a consultation.
type ChatEvent struct {
	Type         string        `json:"type"`
	Message      *ChatMessage  `json:"message,omitempty"`
	StatusChange *StatusChange `json:"status_change,omitempty"`
	Code         string        `json:"code,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Chat event types.
const (
	EventMessage      = "message"
	EventStatusChange = "status_change"
	EventError        = "error"
)
