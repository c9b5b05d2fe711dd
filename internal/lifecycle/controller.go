// Package lifecycle owns the consultation status state machine. All status
// transitions go through the Controller, which persists them, reloads the
// authoritative record, and broadcasts the change so every view of the same
// consultation stays consistent.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"consultation-service/internal/bus"
	"consultation-service/internal/gate"
	"consultation-service/internal/models"
	"consultation-service/internal/observability"
	"consultation-service/internal/repositories"
)

var (
	// ErrNotReady means the entry window has not opened and no force
	// override was supplied. Surfaced as a countdown, not an error toast.
	ErrNotReady = errors.New("consultation not ready to start")
	// ErrNotAuthorized means the actor may not perform the transition.
	ErrNotAuthorized = errors.New("actor not authorized for transition")
)

// Actor identifies who is requesting a transition.
type Actor struct {
	ID   int64
	Role models.Role
}

// Controller orchestrates consultation status transitions.
type Controller struct {
	repo    repositories.ConsultationRepository
	bus     *bus.StatusBus
	timeout time.Duration

	// now is swapped in tests to pin the clock.
	now func() time.Time
}

// NewController builds a Controller. timeout bounds each transition's
// persistence round trip.
func NewController(repo repositories.ConsultationRepository, statusBus *bus.StatusBus, timeout time.Duration) *Controller {
	return &Controller{repo: repo, bus: statusBus, timeout: timeout, now: time.Now}
}

// Start transitions scheduled -> in_progress. Only the practitioner of the
// consultation or an operator may start it; starting before the entry window
// requires the operator force override. The record is mutated upstream only:
// the returned consultation is the authoritative reload after the transition.
func (c *Controller) Start(ctx context.Context, consultationID int64, actor Actor, force bool) (models.Consultation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	record, err := c.repo.GetConsultation(ctx, consultationID)
	if err != nil {
		return models.Consultation{}, err
	}

	if actor.Role != models.RoleOperator && actor.ID != record.PractitionerID {
		return models.Consultation{}, ErrNotAuthorized
	}
	if force && actor.Role != models.RoleOperator {
		return models.Consultation{}, ErrNotAuthorized
	}
	if record.Status != models.StatusScheduled {
		return models.Consultation{}, repositories.ErrInvalidTransition
	}
	if !force && !gate.Ready(record, c.now()) {
		return models.Consultation{}, ErrNotReady
	}

	if err := c.repo.MarkInProgress(ctx, consultationID); err != nil {
		return models.Consultation{}, err
	}
	return c.reloadAndBroadcast(ctx, consultationID, "consultation_started")
}

// Complete transitions in_progress -> completed. Either party may complete.
// The status-change broadcast fires only after the transition persists; a
// failed call emits nothing, so views never show a wrong transient status.
func (c *Controller) Complete(ctx context.Context, consultationID int64, actor Actor) (models.Consultation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	record, err := c.repo.GetConsultation(ctx, consultationID)
	if err != nil {
		return models.Consultation{}, err
	}

	if actor.Role != models.RoleOperator && !record.IsParticipant(actor.ID) {
		return models.Consultation{}, ErrNotAuthorized
	}
	if record.Status != models.StatusInProgress {
		return models.Consultation{}, repositories.ErrInvalidTransition
	}

	if err := c.repo.MarkCompleted(ctx, consultationID, c.now().UTC()); err != nil {
		return models.Consultation{}, err
	}
	return c.reloadAndBroadcast(ctx, consultationID, "consultation_completed")
}

func (c *Controller) reloadAndBroadcast(ctx context.Context, consultationID int64, eventName string) (models.Consultation, error) {
	record, err := c.repo.GetConsultation(ctx, consultationID)
	if err != nil {
		// The transition is already persisted; the caller retries the read.
		return models.Consultation{}, err
	}

	change := models.StatusChange{
		ConsultationID: record.ID,
		Status:         record.Status,
		CompletedAt:    record.CompletedAt,
	}
	c.bus.Publish(change)

	observability.IncStatusTransition(string(record.Status))
	if err := observability.PublishEvent(ctx, "consultation_events.status", observability.EventEnvelope{
		EventType: "consultation_events",
		EventName: eventName,
		Payload:   change,
	}, nil); err != nil {
		log.Warn().Err(err).Int64("consultation_id", record.ID).Msg("status event publish failed")
	}

	return record, nil
}
