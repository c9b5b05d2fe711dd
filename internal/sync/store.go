// Package sync maintains the client-side view of one consultation chat: a
// single ordered, deduplicated timeline merged from paginated history and
// the live websocket stream, plus the session lifecycle around it.
package sync

import (
	"sort"

	"consultation-service/internal/models"
)

// Page is one backward page of history as served by the messages endpoint.
type Page struct {
	Messages   []models.ChatMessage `json:"data"`
	NextCursor *string              `json:"next_cursor"`
}

// Store owns the per-consultation timeline. History pages prepend, live
// messages append, and no message id ever appears twice no matter how often
// a page or live event is replayed. The store is owned by exactly one
// Session; nothing else mutates it.
type Store struct {
	consultationID int64

	known    map[int64]struct{}
	messages []models.ChatMessage

	nextCursor  *string
	pagesLoaded bool

	readOnly bool

	// rendered tracks ids already shown, so newly arrived messages can be
	// told apart by set difference instead of timestamps.
	rendered map[int64]struct{}
}

// NewStore creates an empty timeline for one consultation.
func NewStore(consultationID int64) *Store {
	return &Store{
		consultationID: consultationID,
		known:          make(map[int64]struct{}),
		rendered:       make(map[int64]struct{}),
	}
}

// ConsultationID returns the consultation this store belongs to.
func (s *Store) ConsultationID() int64 {
	return s.consultationID
}

// ApplyHistoryPage merges one older page into the timeline. Pages arrive
// chronologically ordered and normally older than anything currently held,
// so unknown messages are prepended in the order received; known ids are
// skipped, which makes re-fetching an overlapping page idempotent. A live
// message may already be in place when the newest page lands, so a page
// whose newest fresh message does not precede the current head triggers a
// re-sort by (created_at, id). The pagination cursor is only advanced here,
// on a successfully fetched page.
func (s *Store) ApplyHistoryPage(page Page) {
	fresh := make([]models.ChatMessage, 0, len(page.Messages))
	for _, msg := range page.Messages {
		if _, ok := s.known[msg.ID]; ok {
			continue
		}
		s.known[msg.ID] = struct{}{}
		fresh = append(fresh, msg)
	}
	if len(fresh) > 0 {
		held := s.messages
		s.messages = append(fresh, s.messages...)
		if len(held) > 0 && !timelineLess(fresh[len(fresh)-1], held[0]) {
			sort.SliceStable(s.messages, func(i, j int) bool {
				return timelineLess(s.messages[i], s.messages[j])
			})
		}
	}
	s.nextCursor = page.NextCursor
	s.pagesLoaded = true
}

// ApplyLive appends a live message unless its id is already known (e.g. the
// echo of a just-sent message). Reports whether the message was new. Arrival
// before the history backfill is tolerated: the merged list is kept ordered
// by (created_at, id) whichever producer delivered first.
func (s *Store) ApplyLive(msg models.ChatMessage) bool {
	if _, ok := s.known[msg.ID]; ok {
		return false
	}
	s.known[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)

	if n := len(s.messages); n > 1 && timelineLess(msg, s.messages[n-2]) {
		sort.SliceStable(s.messages, func(i, j int) bool {
			return timelineLess(s.messages[i], s.messages[j])
		})
	}
	return true
}

func timelineLess(a, b models.ChatMessage) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Messages returns the merged timeline, oldest first.
func (s *Store) Messages() []models.ChatMessage {
	return s.messages
}

// Len returns the number of held messages.
func (s *Store) Len() int {
	return len(s.messages)
}

// NextCursor returns the token for the next older page, nil once the oldest
// page has been reached.
func (s *Store) NextCursor() *string {
	return s.nextCursor
}

// HasMore reports whether a "load older" affordance should be offered.
func (s *Store) HasMore() bool {
	if !s.pagesLoaded {
		return true
	}
	return s.nextCursor != nil
}

// SetReadOnly records the gate-derived write permission for this timeline.
func (s *Store) SetReadOnly(readOnly bool) {
	s.readOnly = readOnly
}

// ReadOnly reports whether sending is currently disabled.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// TakeNewIDs returns the ids added to the timeline since the previous call
// and marks everything as rendered. Because the diff runs over the known-id
// set, replaying a history page never re-reports old messages.
func (s *Store) TakeNewIDs() []int64 {
	var fresh []int64
	for _, msg := range s.messages {
		if _, ok := s.rendered[msg.ID]; !ok {
			s.rendered[msg.ID] = struct{}{}
			fresh = append(fresh, msg.ID)
		}
	}
	return fresh
}
