package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"consultation-service/internal/middleware"
	"consultation-service/internal/models"
	"consultation-service/internal/pagination"
	"consultation-service/internal/repositories"
)

type ConsultationRepositoryMock struct {
	mock.Mock
}

func (m *ConsultationRepositoryMock) GetConsultation(ctx context.Context, id int64) (models.Consultation, error) {
	args := m.Called(ctx, id)
	var record models.Consultation
	if val := args.Get(0); val != nil {
		record = val.(models.Consultation)
	}
	return record, args.Error(1)
}

func (m *ConsultationRepositoryMock) ListForUser(ctx context.Context, userID int64) ([]models.Consultation, error) {
	args := m.Called(ctx, userID)
	var list []models.Consultation
	if val := args.Get(0); val != nil {
		list = val.([]models.Consultation)
	}
	return list, args.Error(1)
}

func (m *ConsultationRepositoryMock) IsParticipant(ctx context.Context, id int64, userID int64) (bool, error) {
	args := m.Called(ctx, id, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConsultationRepositoryMock) CreateScheduled(ctx context.Context, params repositories.CreateConsultationParams) (models.Consultation, error) {
	args := m.Called(ctx, params)
	var record models.Consultation
	if val := args.Get(0); val != nil {
		record = val.(models.Consultation)
	}
	return record, args.Error(1)
}

func (m *ConsultationRepositoryMock) MarkInProgress(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *ConsultationRepositoryMock) MarkCompleted(ctx context.Context, id int64, completedAt time.Time) error {
	args := m.Called(ctx, id, completedAt)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, consultationID int64, senderID int64, content string) (models.ChatMessage, error) {
	args := m.Called(ctx, consultationID, senderID, content)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListPageBefore(ctx context.Context, consultationID int64, pageSize int, before *pagination.Cursor) ([]models.ChatMessage, *pagination.Cursor, error) {
	args := m.Called(ctx, consultationID, pageSize, before)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	var next *pagination.Cursor
	if val := args.Get(1); val != nil {
		next = val.(*pagination.Cursor)
	}
	return msgs, next, args.Error(2)
}

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(token string) (middleware.Claims, error) {
	args := m.Called(token)
	var claims middleware.Claims
	if val := args.Get(0); val != nil {
		claims = val.(middleware.Claims)
	}
	return claims, args.Error(1)
}

var _ repositories.ConsultationRepository = (*ConsultationRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ middleware.TokenVerifier = (*VerifierMock)(nil)
