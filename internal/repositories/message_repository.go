package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"consultation-service/internal/models"
	"consultation-service/internal/pagination"
)

// MessageRepository defines interactions for consultation chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, consultationID int64, senderID int64, content string) (models.ChatMessage, error)
	// ListPageBefore returns the page of messages immediately preceding the
	// cursor in chronological order (paging backward from now toward the
	// start of the conversation). The returned page is ascending by
	// (created_at, id). A nil next cursor means the oldest page was reached.
	ListPageBefore(ctx context.Context, consultationID int64, pageSize int, before *pagination.Cursor) ([]models.ChatMessage, *pagination.Cursor, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message in a consultation chat.
func (r *MessageRepo) CreateMessage(ctx context.Context, consultationID int64, senderID int64, content string) (models.ChatMessage, error) {
	var msg models.ChatMessage
	err := r.db.GetContext(ctx, &msg, `INSERT INTO consultation_messages (consultation_id, sender_id, content)
        VALUES ($1, $2, $3)
        RETURNING id, consultation_id, sender_id, content, created_at`,
		consultationID, senderID, content)
	return msg, err
}

// ListPageBefore implements backward keyset pagination over the timeline
// index. One extra row is fetched to decide whether an older page remains.
func (r *MessageRepo) ListPageBefore(ctx context.Context, consultationID int64, pageSize int, before *pagination.Cursor) ([]models.ChatMessage, *pagination.Cursor, error) {
	var page []models.ChatMessage
	var err error

	if before == nil {
		err = r.db.SelectContext(ctx, &page, `SELECT id, consultation_id, sender_id, content, created_at
            FROM consultation_messages
            WHERE consultation_id=$1
            ORDER BY created_at DESC, id DESC
            LIMIT $2`, consultationID, pageSize+1)
	} else {
		err = r.db.SelectContext(ctx, &page, `SELECT id, consultation_id, sender_id, content, created_at
            FROM consultation_messages
            WHERE consultation_id=$1 AND (created_at, id) < ($2, $3)
            ORDER BY created_at DESC, id DESC
            LIMIT $4`, consultationID, before.CreatedAt, before.ID, pageSize+1)
	}
	if err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(page) > pageSize {
		page = page[:pageSize]
		oldest := page[len(page)-1]
		next = &pagination.Cursor{CreatedAt: oldest.CreatedAt, ID: oldest.ID}
	}

	// Rows come newest-first; the page contract is chronological.
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, next, nil
}
