// Package bus carries consultation status changes between components of the
// same process. Any view holding a consultation record subscribes by id and
// reloads the authoritative record when notified; the payload itself is only
// a trigger.
package bus

import (
	"sync"

	"consultation-service/internal/models"
)

const subscriberBuffer = 8

// StatusBus is an in-process publish/subscribe fan-out of StatusChange
// notifications, keyed by consultation id.
type StatusBus struct {
	mu     sync.RWMutex
	byID   map[int64]map[chan models.StatusChange]struct{}
	global map[chan models.StatusChange]struct{}
}

// NewStatusBus creates an empty bus.
func NewStatusBus() *StatusBus {
	return &StatusBus{
		byID:   make(map[int64]map[chan models.StatusChange]struct{}),
		global: make(map[chan models.StatusChange]struct{}),
	}
}

// Subscribe registers for changes of one consultation. The returned cancel
// function must be called when the subscriber goes away.
func (b *StatusBus) Subscribe(consultationID int64) (<-chan models.StatusChange, func()) {
	ch := make(chan models.StatusChange, subscriberBuffer)

	b.mu.Lock()
	if _, ok := b.byID[consultationID]; !ok {
		b.byID[consultationID] = make(map[chan models.StatusChange]struct{})
	}
	b.byID[consultationID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if subs, ok := b.byID[consultationID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.byID, consultationID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// SubscribeAll registers for changes of every consultation. Used by the
// websocket status relay.
func (b *StatusBus) SubscribeAll() (<-chan models.StatusChange, func()) {
	ch := make(chan models.StatusChange, subscriberBuffer)

	b.mu.Lock()
	b.global[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.global, ch)
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish fans the change out to interested subscribers. Slow subscribers
// with a full buffer are skipped rather than blocked on: a missed trigger is
// corrected by the next authoritative reload.
func (b *StatusBus) Publish(change models.StatusChange) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.byID[change.ConsultationID] {
		select {
		case ch <- change:
		default:
		}
	}
	for ch := range b.global {
		select {
		case ch <- change:
		default:
		}
	}
}
