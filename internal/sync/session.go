package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"time"

	"consultation-service/internal/gate"
	"consultation-service/internal/models"
)

var (
	// ErrEntryDenied means the access gate refused chat entry; callers route
	// to the countdown or completed view instead of the chat.
	ErrEntryDenied = errors.New("chat entry denied by access gate")
	// ErrReadOnly means sending is disabled for the current session.
	ErrReadOnly = errors.New("chat is read-only")
	// ErrClosed means the session has been torn down.
	ErrClosed = errors.New("session closed")
)

// HistoryFetcher retrieves one backward page of chat history. It must be
// idempotent and side-effect-free so a failed fetch is safe to retry.
type HistoryFetcher interface {
	FetchPage(ctx context.Context, consultationID int64, pageSize int, cursor *string) (Page, error)
}

// RecordFetcher reloads the authoritative consultation record.
type RecordFetcher interface {
	GetConsultation(ctx context.Context, id int64) (models.Consultation, error)
}

// LiveChannel is an open real-time session for one consultation.
type LiveChannel interface {
	Events() <-chan models.ChatEvent
	Send(ctx context.Context, text string) error
	Close() error
}

// ChannelOpener dials the live channel for a consultation.
type ChannelOpener interface {
	Open(ctx context.Context, consultationID int64) (LiveChannel, error)
}

// Options configures a Session.
type Options struct {
	PageSize     int
	FetchTimeout time.Duration
	// Force is the operator early-entry override; a forced session is
	// read-only until the entry window opens.
	Force bool
	// Now is swapped in tests; defaults to time.Now.
	Now func() time.Time
}

// Session ties together the record, the gate, the history fetcher and the
// live channel for exactly one consultation. It owns the Store; exactly one
// live channel exists per session, and Close is mandatory on teardown.
type Session struct {
	consultationID int64
	history        HistoryFetcher
	records        RecordFetcher
	opener         ChannelOpener
	opts           Options

	mu       stdsync.Mutex
	store    *Store
	record   models.Consultation
	access   gate.Access
	channel  LiveChannel
	fetching bool
	closed   bool
	done     chan struct{}
}

// NewSession builds an unopened session for one consultation.
func NewSession(consultationID int64, history HistoryFetcher, records RecordFetcher, opener ChannelOpener, opts Options) *Session {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		consultationID: consultationID,
		history:        history,
		records:        records,
		opener:         opener,
		opts:           opts,
		store:          NewStore(consultationID),
		done:           make(chan struct{}),
	}
}

// Open loads the authoritative record, evaluates the gate, and, when entry
// is permitted, opens the live channel and fetches the most recent history
// page. A denied gate returns ErrEntryDenied without opening anything.
func (s *Session) Open(ctx context.Context) error {
	record, err := s.records.GetConsultation(ctx, s.consultationID)
	if err != nil {
		return err
	}

	access := gate.Evaluate(record, s.opts.Now(), s.opts.Force)
	if !access.CanEnter {
		s.mu.Lock()
		s.record, s.access = record, access
		s.mu.Unlock()
		return ErrEntryDenied
	}

	channel, err := s.opener.Open(ctx, s.consultationID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.record, s.access, s.channel = record, access, channel
	s.store.SetReadOnly(access.ReadOnly)
	s.mu.Unlock()

	go s.run(channel)

	return s.LoadOlder(ctx)
}

// run applies live events in arrival order until the channel closes.
func (s *Session) run(channel LiveChannel) {
	for ev := range channel.Events() {
		switch ev.Type {
		case models.EventMessage:
			if ev.Message != nil {
				s.mu.Lock()
				s.store.ApplyLive(*ev.Message)
				s.mu.Unlock()
			}
		case models.EventStatusChange:
			// The payload is only a trigger; reload the record instead of
			// trusting it.
			s.refreshRecord()
		}
	}
}

// refreshRecord reloads the authoritative record and re-derives the gate.
// A consultation that left the enterable states tears the session down.
func (s *Session) refreshRecord() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.FetchTimeout)
	defer cancel()

	record, err := s.records.GetConsultation(ctx, s.consultationID)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.record = record
	s.access = gate.Evaluate(record, s.opts.Now(), s.opts.Force)
	s.store.SetReadOnly(s.access.ReadOnly)
	canEnter := s.access.CanEnter
	s.mu.Unlock()

	if !canEnter {
		_ = s.Close()
	}
}

// LoadOlder fetches the next older history page and merges it. While one
// fetch is outstanding a second call is a no-op, so pages are requested and
// applied strictly one at a time. The fetch lock is released on failure so a
// retry is possible, and the cursor is only consumed on success. A page that
// resolves after Close is discarded.
func (s *Session) LoadOlder(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.fetching || !s.store.HasMore() {
		s.mu.Unlock()
		return nil
	}
	s.fetching = true
	cursor := s.store.NextCursor()
	s.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	page, err := s.history.FetchPage(fetchCtx, s.consultationID, s.opts.PageSize, cursor)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetching = false
	if err != nil {
		return err
	}
	if s.closed {
		return ErrClosed
	}
	s.store.ApplyHistoryPage(page)
	return nil
}

// Send delivers a message through the live channel. Rejected while the
// session is read-only.
func (s *Session) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.closed || s.channel == nil {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.store.ReadOnly() {
		s.mu.Unlock()
		return ErrReadOnly
	}
	channel := s.channel
	s.mu.Unlock()

	return channel.Send(ctx, text)
}

// Close tears the session down and closes the live channel. Safe to call
// more than once. No send may be attempted afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	channel := s.channel
	s.channel = nil
	close(s.done)
	s.mu.Unlock()

	if channel != nil {
		return channel.Close()
	}
	return nil
}

// Done is closed when the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Record returns the last loaded consultation record.
func (s *Session) Record() models.Consultation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// Access returns the gate verdict derived from the last loaded record.
func (s *Session) Access() gate.Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

// Countdown recomputes the time left until the scheduled start from the
// current wall clock. Callers tick it at least once a minute; because it is
// recomputed rather than decremented it never drifts across suspends.
func (s *Session) Countdown() (gate.Countdown, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gate.Remaining(s.record, s.opts.Now())
}

// Messages returns the merged timeline, oldest first.
func (s *Session) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.store.Messages()))
	copy(out, s.store.Messages())
	return out
}

// HasMore reports whether an older history page remains.
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.HasMore()
}

// ReadOnly reports whether sending is currently disabled.
func (s *Session) ReadOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ReadOnly()
}

// TakeNewIDs drains the ids that arrived since the previous render pass.
func (s *Session) TakeNewIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.TakeNewIDs()
}
