package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultation-service/internal/models"
)

func TestFetchPageSendsCursorAndToken(t *testing.T) {
	createdAt := time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/consultations/7/messages", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("page_size"))
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		next := "older"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []models.ChatMessage{
				{ID: 1, ConsultationID: 7, SenderID: 11, Content: "hello", CreatedAt: createdAt},
			},
			"next_cursor": &next,
		})
	}))
	defer server.Close()

	cursor := "abc"
	page, err := New(server.URL, "tok").FetchPage(context.Background(), 7, 25, &cursor)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "hello", page.Messages[0].Content)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, "older", *page.NextCursor)
}

func TestFetchPageLastPageHasNilCursor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []models.ChatMessage{}, "next_cursor": nil})
	}))
	defer server.Close()

	page, err := New(server.URL, "tok").FetchPage(context.Background(), 7, 50, nil)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Nil(t, page.NextCursor)
}

func TestGetConsultationMapsView(t *testing.T) {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	completedAt := start.Add(30 * time.Minute)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/consultations/7", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"consultation": map[string]any{
				"id":     7,
				"status": "completed",
				"time_slot": map[string]any{
					"date":       start.Truncate(24 * time.Hour),
					"start_time": start,
					"end_time":   start.Add(30 * time.Minute),
				},
				"completed_at": completedAt,
			},
		})
	}))
	defer server.Close()

	record, err := New(server.URL, "tok").GetConsultation(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), record.ID)
	assert.Equal(t, models.StatusCompleted, record.Status)
	assert.True(t, start.Equal(record.TimeSlot.Start))
	require.NotNil(t, record.CompletedAt)
	assert.True(t, completedAt.Equal(*record.CompletedAt))
}

func TestStartSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "invalid status transition", "code": "INVALID_TRANSITION"})
	}))
	defer server.Close()

	err := New(server.URL, "tok").Start(context.Background(), 7, false)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", apiErr.Code)
}

func TestCompleteSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"consultation": map[string]any{"id": 7, "status": "completed"}})
	}))
	defer server.Close()

	require.NoError(t, New(server.URL, "tok").Complete(context.Background(), 7))
	assert.Equal(t, "Bearer tok", gotAuth)
}
