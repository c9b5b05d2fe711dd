package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultation-service/internal/models"
)

type fakeHistory struct {
	mu      stdsync.Mutex
	pages   []Page
	errs    []error
	calls   int
	cursors []*string

	// entered/release let tests hold a fetch in flight.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeHistory) FetchPage(ctx context.Context, consultationID int64, pageSize int, cursor *string) (Page, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.cursors = append(f.cursors, cursor)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}

	if call < len(f.errs) && f.errs[call] != nil {
		return Page{}, f.errs[call]
	}
	if call < len(f.pages) {
		return f.pages[call], nil
	}
	return Page{}, nil
}

func (f *fakeHistory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecords struct {
	mu     stdsync.Mutex
	record models.Consultation
	loads  int
}

func (f *fakeRecords) GetConsultation(ctx context.Context, id int64) (models.Consultation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.record, nil
}

func (f *fakeRecords) set(record models.Consultation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record = record
}

func (f *fakeRecords) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

type fakeChannel struct {
	events chan models.ChatEvent

	mu     stdsync.Mutex
	sent   []string
	closed bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan models.ChatEvent, 16)}
}

func (f *fakeChannel) Events() <-chan models.ChatEvent { return f.events }

func (f *fakeChannel) Send(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeOpener struct {
	channel *fakeChannel
	opens   int
}

func (f *fakeOpener) Open(ctx context.Context, consultationID int64) (LiveChannel, error) {
	f.opens++
	return f.channel, nil
}

func inProgressRecord() models.Consultation {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	return models.Consultation{
		ID:     1,
		Status: models.StatusInProgress,
		TimeSlot: models.TimeSlot{
			Date:  start.Truncate(24 * time.Hour),
			Start: start,
			End:   start.Add(time.Hour),
		},
	}
}

func TestSessionOpenDeniedBeforeWindow(t *testing.T) {
	record := inProgressRecord()
	record.Status = models.StatusScheduled
	records := &fakeRecords{record: record}
	opener := &fakeOpener{channel: newFakeChannel()}

	now := record.TimeSlot.Start.Add(-2 * time.Hour)
	session := NewSession(1, &fakeHistory{}, records, opener, Options{
		Now: func() time.Time { return now },
	})

	err := session.Open(context.Background())
	require.ErrorIs(t, err, ErrEntryDenied)
	assert.Zero(t, opener.opens, "denied gate must never open a channel")

	countdown, ok := session.Countdown()
	require.True(t, ok)
	assert.Equal(t, 2, countdown.Hours)
}

func TestSessionOpenLoadsFirstPage(t *testing.T) {
	history := &fakeHistory{pages: []Page{{
		Messages:   []models.ChatMessage{msg(1, 0), msg(2, time.Minute)},
		NextCursor: cursorOf("older"),
	}}}
	records := &fakeRecords{record: inProgressRecord()}
	channel := newFakeChannel()
	session := NewSession(1, history, records, &fakeOpener{channel: channel}, Options{})
	defer session.Close()

	require.NoError(t, session.Open(context.Background()))
	assert.Equal(t, []int64{1, 2}, ids(session.Messages()))
	assert.True(t, session.HasMore())
	assert.False(t, session.ReadOnly())
}

func TestSessionConcurrentLoadOlderIsNoOp(t *testing.T) {
	history := &fakeHistory{
		pages:   []Page{{Messages: []models.ChatMessage{msg(1, 0)}, NextCursor: nil}},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	records := &fakeRecords{record: inProgressRecord()}
	session := NewSession(1, history, records, &fakeOpener{channel: newFakeChannel()}, Options{})
	defer session.Close()

	done := make(chan error, 1)
	go func() { done <- session.LoadOlder(context.Background()) }()
	<-history.entered

	// The second request while one is outstanding must be a no-op.
	require.NoError(t, session.LoadOlder(context.Background()))
	assert.Equal(t, 1, history.callCount())

	close(history.release)
	require.NoError(t, <-done)
	assert.Equal(t, []int64{1}, ids(session.Messages()))
}

func TestSessionFailedFetchReleasesLockAndKeepsCursor(t *testing.T) {
	history := &fakeHistory{
		errs:  []error{errors.New("network down"), nil},
		pages: []Page{{}, {Messages: []models.ChatMessage{msg(1, 0)}, NextCursor: nil}},
	}
	records := &fakeRecords{record: inProgressRecord()}
	session := NewSession(1, history, records, &fakeOpener{channel: newFakeChannel()}, Options{})
	defer session.Close()

	require.Error(t, session.LoadOlder(context.Background()))

	// The retry goes through with the same (unconsumed) cursor.
	require.NoError(t, session.LoadOlder(context.Background()))
	assert.Equal(t, 2, history.callCount())
	assert.Equal(t, history.cursors[0], history.cursors[1])
	assert.Equal(t, []int64{1}, ids(session.Messages()))
}

func TestSessionForcedEarlyEntryIsReadOnly(t *testing.T) {
	record := inProgressRecord()
	record.Status = models.StatusScheduled
	records := &fakeRecords{record: record}
	channel := newFakeChannel()

	now := record.TimeSlot.Start.Add(-time.Hour)
	session := NewSession(1, &fakeHistory{}, records, &fakeOpener{channel: channel}, Options{
		Force: true,
		Now:   func() time.Time { return now },
	})
	defer session.Close()

	require.NoError(t, session.Open(context.Background()))
	assert.True(t, session.ReadOnly())

	err := session.Send(context.Background(), "hello")
	require.ErrorIs(t, err, ErrReadOnly)
	assert.Empty(t, channel.sent)
}

func TestSessionStatusChangeReloadsRecordAndCloses(t *testing.T) {
	records := &fakeRecords{record: inProgressRecord()}
	channel := newFakeChannel()
	session := NewSession(1, &fakeHistory{}, records, &fakeOpener{channel: channel}, Options{})

	require.NoError(t, session.Open(context.Background()))
	loadsBefore := records.loadCount()

	// The event payload claims completed; the session must reload the
	// record rather than trust it.
	completed := inProgressRecord()
	completed.Status = models.StatusCompleted
	completedAt := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	completed.CompletedAt = &completedAt
	records.set(completed)

	channel.events <- models.ChatEvent{
		Type:         models.EventStatusChange,
		StatusChange: &models.StatusChange{ConsultationID: 1, Status: models.StatusCompleted, CompletedAt: &completedAt},
	}

	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close after completion")
	}

	assert.Greater(t, records.loadCount(), loadsBefore)
	assert.True(t, channel.isClosed())
	assert.Equal(t, models.StatusCompleted, session.Record().Status)

	err := session.Send(context.Background(), "too late")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSessionLiveMessagesApplied(t *testing.T) {
	records := &fakeRecords{record: inProgressRecord()}
	channel := newFakeChannel()
	session := NewSession(1, &fakeHistory{}, records, &fakeOpener{channel: channel}, Options{})
	defer session.Close()

	require.NoError(t, session.Open(context.Background()))

	live := msg(42, 5*time.Minute)
	channel.events <- models.ChatEvent{Type: models.EventMessage, Message: &live}

	require.Eventually(t, func() bool {
		return len(session.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{42}, ids(session.Messages()))
}

func TestSessionPageResolvingAfterCloseIsDiscarded(t *testing.T) {
	history := &fakeHistory{
		pages:   []Page{{Messages: []models.ChatMessage{msg(1, 0)}, NextCursor: nil}},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	records := &fakeRecords{record: inProgressRecord()}
	session := NewSession(1, history, records, &fakeOpener{channel: newFakeChannel()}, Options{})

	done := make(chan error, 1)
	go func() { done <- session.LoadOlder(context.Background()) }()
	<-history.entered

	require.NoError(t, session.Close())
	close(history.release)

	require.ErrorIs(t, <-done, ErrClosed)
	assert.Empty(t, session.Messages())
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	records := &fakeRecords{record: inProgressRecord()}
	channel := newFakeChannel()
	session := NewSession(1, &fakeHistory{}, records, &fakeOpener{channel: channel}, Options{})

	require.NoError(t, session.Open(context.Background()))
	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
	assert.True(t, channel.isClosed())
}
