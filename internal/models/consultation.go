package models

import "time"

// Status is the lifecycle state of a consultation.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Party is one side of a consultation.
type Party struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// TimeSlot is the scheduled window of a consultation, produced by the
// booking collaborator.
type TimeSlot struct {
	Date  time.Time `db:"slot_date" json:"date"`
	Start time.Time `db:"slot_start" json:"start_time"`
	End   time.Time `db:"slot_end" json:"end_time"`
}

// Consultation is the scheduled engagement between a seeker and a
// practitioner that owns one chat channel.
type Consultation struct {
	ID int64 `db:"id" json:"id"`

	SeekerID        int64   `db:"seeker_id" json:"-"`
	SeekerFirstName string  `db:"seeker_first_name" json:"-"`
	SeekerLastName  string  `db:"seeker_last_name" json:"-"`
	SeekerAvatarURL *string `db:"seeker_avatar_url" json:"-"`

	PractitionerID        int64   `db:"practitioner_id" json:"-"`
	PractitionerFirstName string  `db:"practitioner_first_name" json:"-"`
	PractitionerLastName  string  `db:"practitioner_last_name" json:"-"`
	PractitionerAvatarURL *string `db:"practitioner_avatar_url" json:"-"`

	// Embedded so sqlx maps the slot columns onto the record directly.
	TimeSlot `json:"time_slot"`

	Status      Status     `db:"status" json:"status"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	MeetingLink *string    `db:"meeting_link" json:"meeting_link,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Seeker returns the seeker side as a Party.
func (c Consultation) Seeker() Party {
	return Party{ID: c.SeekerID, FirstName: c.SeekerFirstName, LastName: c.SeekerLastName, AvatarURL: c.SeekerAvatarURL}
}

// Practitioner returns the practitioner side as a Party.
func (c Consultation) Practitioner() Party {
	return Party{ID: c.PractitionerID, FirstName: c.PractitionerFirstName, LastName: c.PractitionerLastName, AvatarURL: c.PractitionerAvatarURL}
}

// IsParticipant reports whether userID is one of the two parties.
func (c Consultation) IsParticipant(userID int64) bool {
	return c.SeekerID == userID || c.PractitionerID == userID
}

// CounterpartOf resolves the other side of the consultation for a viewer.
// ok is false when the viewer is not a participant.
func (c Consultation) CounterpartOf(viewerID int64) (Party, bool) {
	switch viewerID {
	case c.SeekerID:
		return c.Practitioner(), true
	case c.PractitionerID:
		return c.Seeker(), true
	}
	return Party{}, false
}

// StatusChange is broadcast whenever a consultation transitions.
type StatusChange struct {
	ConsultationID int64      `json:"consultation_id"`
	Status         Status     `json:"status"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}
