package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"consultation-service/internal/bus"
	"consultation-service/internal/mocks"
	"consultation-service/internal/models"
	"consultation-service/internal/repositories"
)

const (
	testSeekerID       = int64(11)
	testPractitionerID = int64(22)
	testOperatorID     = int64(99)
)

func scheduledAt(start time.Time) models.Consultation {
	return models.Consultation{
		ID:             7,
		SeekerID:       testSeekerID,
		PractitionerID: testPractitionerID,
		TimeSlot: models.TimeSlot{
			Date:  start.Truncate(24 * time.Hour),
			Start: start,
			End:   start.Add(30 * time.Minute),
		},
		Status: models.StatusScheduled,
	}
}

func newTestController(repo repositories.ConsultationRepository, statusBus *bus.StatusBus, now time.Time) *Controller {
	ctrl := NewController(repo, statusBus, 5*time.Second)
	ctrl.now = func() time.Time { return now }
	return ctrl
}

func TestStartInsideWindowBroadcasts(t *testing.T) {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	now := start.Add(-10 * time.Minute)

	scheduled := scheduledAt(start)
	started := scheduled
	started.Status = models.StatusInProgress

	repo := new(mocks.ConsultationRepositoryMock)
	repo.On("GetConsultation", mock.Anything, int64(7)).Return(scheduled, nil).Once()
	repo.On("MarkInProgress", mock.Anything, int64(7)).Return(nil).Once()
	repo.On("GetConsultation", mock.Anything, int64(7)).Return(started, nil).Once()

	statusBus := bus.NewStatusBus()
	changes, cancel := statusBus.Subscribe(7)
	defer cancel()

	ctrl := newTestController(repo, statusBus, now)
	record, err := ctrl.Start(context.Background(), 7, Actor{ID: testPractitionerID, Role: models.RolePractitioner}, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, record.Status)

	select {
	case change := <-changes:
		assert.Equal(t, int64(7), change.ConsultationID)
		assert.Equal(t, models.StatusInProgress, change.Status)
		assert.Nil(t, change.CompletedAt)
	default:
		t.Fatal("expected a status change broadcast")
	}
	repo.AssertExpectations(t)
}

func TestStartBeforeWindowNotReady(t *testing.T) {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	now := start.Add(-16 * time.Minute)

	repo := new(mocks.ConsultationRepositoryMock)
	repo.On("GetConsultation", mock.Anything, int64(7)).Return(scheduledAt(start), nil).Once()

	ctrl := newTestController(repo, bus.NewStatusBus(), now)
	_, err := ctrl.Start(context.Background(), 7, Actor{ID: testPractitionerID, Role: models.RolePractitioner}, false)
	require.ErrorIs(t, err, ErrNotReady)
	repo.AssertNotCalled(t, "MarkInProgress", mock.Anything, mock.Anything)
}

func TestStartForceRequiresOperator(t *testing.T) {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	now := start.Add(-2 * time.Hour)

	repo := new(mocks.ConsultationRepositoryMock)
	repo.On("GetConsultation", mock.Anything, int64(7)).Return(scheduledAt(start), nil).Once()

	ctrl := newTestController(repo, bus.NewStatusBus(), now)
	_, err := ctrl.Start(context.Background(), 7, Actor{ID: testPractitionerID, Role: models.RolePractitioner}, true)
	require.ErrorIs(t, err, ErrNotAuthorized)
	repo.AssertNotCalled(t, "MarkInProgress", mock.Anything, mock.Anything)
}

func TestStartForcedByOperatorBypassesWindow(t *testing.T) {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	now := start.Add(-2 * time.Hour)

	scheduled := scheduledAt(start)
	started := scheduled
	started.Status = models.StatusInProgress

	repo := new(mocks.ConsultationRepositoryMock)
	repo.On("GetConsultation", mock.Anything, int64(7)).Return(scheduled, nil).Once()
	repo.On("MarkInProgress", mock.Anything, int64(7)).Return(nil).Once()
	repo.On("GetConsultation", mock.Anything, int64(7)).Return(started, nil).Once()

	ctrl := newTestController(repo, bus.NewStatusBus(), now)
	record, err := ctrl.Start(context.Background(), 7, Actor{ID: testOperatorID, Role: models.RoleOperator}, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, record.Status)
	repo.AssertExpectations(t)
}

func TestStartBySeekerNotAuthorized(t *testing.T) {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

	repo := new(mocks.ConsultationRepositoryMock)
	repo.On("GetConsultation", mock.Anything, int64(7)).Return(scheduledAt(start), nil).Once()

	ctrl := newTestController(repo, bus.NewStatusBus(), start)
	_, err := ctrl.Start(context.Background(), 7, Actor{ID: testSeekerID, Role: models.RoleSeeker}, false)
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestStartOnTerminalStatusRejected(t *testing.T) {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

	for _, status := range []models.Status{models.StatusCompleted, models.StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			record := scheduledAt(start)
			record.Status = status
			if status == models.StatusCompleted {
				completedAt := start.Add(30 * time.Minute)
				record.CompletedAt = &completedAt
			}

			repo := new(mocks.ConsultationRepositoryMock)
			repo.On("GetConsultation", mock.Anything, int64(7)).Return(record, nil).Once()

			statusBus := bus.NewStatusBus()
			changes, cancel := statusBus.Subscribe(7)
			defer cancel()

			ctrl := newTestController(repo, statusBus, start)
			_, err := ctrl.Start(context.Background(), 7, Actor{ID: testOperatorID, Role: models.RoleOperator}, false)
			require.ErrorIs(t, err, repositories.ErrInvalidTransition)

			repo.AssertNotCalled(t, "MarkInProgress", mock.Anything, mock.Anything)
			assert.Empty(t, changes, "a rejected transition must not broadcast")
		})
	}
}

func TestCompleteBroadcastsWithCompletedAt(t *testing.T) {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	now := start.Add(20 * time.Minute)

	inProgress := scheduledAt(start)
	inProgress.Status = models.StatusInProgress
	completedAt := now.UTC()
	completed := inProgress
	completed.Status = models.StatusCompleted
	completed.CompletedAt = &completedAt

	repo := new(mocks.ConsultationRepositoryMock)
	repo.On("GetConsultation", mock.Anything, int64(7)).Return(inProgress, nil).Once()
	repo.On("MarkCompleted", mock.Anything, int64(7), completedAt).Return(nil).Once()
	repo.On("GetConsultation", mock.Anything, int64(7)).Return(completed, nil).Once()

	statusBus := bus.NewStatusBus()
	changes, cancel := statusBus.Subscribe(7)
	defer cancel()

	ctrl := newTestController(repo, statusBus, now)
	record, err := ctrl.Complete(context.Background(), 7, Actor{ID: testSeekerID, Role: models.RoleSeeker})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, record.Status)
	require.NotNil(t, record.CompletedAt)

	select {
	case change := <-changes:
		assert.Equal(t, models.StatusCompleted, change.Status)
		require.NotNil(t, change.CompletedAt)
		assert.Equal(t, completedAt, *change.CompletedAt)
	default:
		t.Fatal("expected a status change broadcast")
	}
	repo.AssertExpectations(t)
}

func TestCompleteOnScheduledRejected(t *testing.T) {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

	repo := new(mocks.ConsultationRepositoryMock)
	repo.On("GetConsultation", mock.Anything, int64(7)).Return(scheduledAt(start), nil).Once()

	ctrl := newTestController(repo, bus.NewStatusBus(), start)
	_, err := ctrl.Complete(context.Background(), 7, Actor{ID: testSeekerID, Role: models.RoleSeeker})
	require.ErrorIs(t, err, repositories.ErrInvalidTransition)
	repo.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompleteByOutsiderNotAuthorized(t *testing.T) {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	record := scheduledAt(start)
	record.Status = models.StatusInProgress

	repo := new(mocks.ConsultationRepositoryMock)
	repo.On("GetConsultation", mock.Anything, int64(7)).Return(record, nil).Once()

	ctrl := newTestController(repo, bus.NewStatusBus(), start)
	_, err := ctrl.Complete(context.Background(), 7, Actor{ID: int64(12345), Role: models.RoleSeeker})
	require.ErrorIs(t, err, ErrNotAuthorized)
}
