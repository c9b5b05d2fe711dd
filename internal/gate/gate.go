// Package gate decides whether a party may currently enter a consultation
// chat and whether the chat is read-only. It is a pure function of the
// consultation record and wall-clock time; callers re-evaluate it whenever
// either changes.
package gate

import (
	"time"

	"consultation-service/internal/models"
)

// EntryLead is how long before the scheduled start a party may join.
const EntryLead = 15 * time.Minute

// Access is the gate verdict for one consultation at one instant.
type Access struct {
	CanEnter bool `json:"can_enter"`
	ReadOnly bool `json:"read_only"`
}

// Evaluate computes chat access for a consultation at time now.
// force is the operator override: it admits early entry to a scheduled
// consultation but keeps the chat read-only until the window opens.
func Evaluate(c models.Consultation, now time.Time, force bool) Access {
	switch c.Status {
	case models.StatusInProgress:
		// An in-progress session outlives its nominal slot.
		return Access{CanEnter: true, ReadOnly: false}
	case models.StatusCompleted, models.StatusCancelled:
		return Access{CanEnter: false, ReadOnly: true}
	}

	ready := Ready(c, now)
	if ready {
		return Access{CanEnter: true, ReadOnly: false}
	}
	if force {
		return Access{CanEnter: true, ReadOnly: true}
	}
	return Access{CanEnter: false, ReadOnly: true}
}

// Ready reports whether now is inside the entry window of a scheduled
// consultation, i.e. no earlier than start minus EntryLead.
func Ready(c models.Consultation, now time.Time) bool {
	return !now.Before(c.TimeSlot.Start.Add(-EntryLead))
}

// Countdown is the presentation breakdown of the time left until the entry
// window opens. It is derived from the same predicate and must be recomputed
// from (consultation, now) on every tick, never decremented.
type Countdown struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// Remaining returns the countdown to the scheduled start. ok is false once
// the entry window is open (or the consultation left the scheduled state).
func Remaining(c models.Consultation, now time.Time) (Countdown, bool) {
	if c.Status != models.StatusScheduled || Ready(c, now) {
		return Countdown{}, false
	}
	left := c.TimeSlot.Start.Sub(now)
	// Round up so a partially elapsed minute still displays.
	mins := int((left + time.Minute - 1) / time.Minute)
	return Countdown{
		Days:    mins / (24 * 60),
		Hours:   (mins / 60) % 24,
		Minutes: mins % 60,
	}, true
}
