package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"consultation-service/internal/models"
)

var (
	ErrConsultationNotFound = errors.New("consultation not found")
	// ErrInvalidTransition is returned when a lifecycle action targets a
	// consultation that is not in the required source status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

const consultationColumns = `id, seeker_id, seeker_first_name, seeker_last_name, seeker_avatar_url,
        practitioner_id, practitioner_first_name, practitioner_last_name, practitioner_avatar_url,
        slot_date, slot_start, slot_end, status, completed_at, meeting_link, created_at`

// CreateConsultationParams is what the booking collaborator supplies when a
// slot is reserved.
type CreateConsultationParams struct {
	Seeker       models.Party
	Practitioner models.Party
	Slot         models.TimeSlot
	MeetingLink  *string
}

// ConsultationRepository abstracts consultation persistence.
type ConsultationRepository interface {
	GetConsultation(ctx context.Context, id int64) (models.Consultation, error)
	ListForUser(ctx context.Context, userID int64) ([]models.Consultation, error)
	IsParticipant(ctx context.Context, id int64, userID int64) (bool, error)
	CreateScheduled(ctx context.Context, params CreateConsultationParams) (models.Consultation, error)
	MarkInProgress(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64, completedAt time.Time) error
}

// ConsultationRepo is a sqlx implementation of ConsultationRepository.
type ConsultationRepo struct {
	db *sqlx.DB
}

// NewConsultationRepo constructs a ConsultationRepo.
func NewConsultationRepo(db *sqlx.DB) *ConsultationRepo {
	return &ConsultationRepo{db: db}
}

// GetConsultation fetches a consultation by id.
func (r *ConsultationRepo) GetConsultation(ctx context.Context, id int64) (models.Consultation, error) {
	var c models.Consultation
	err := r.db.GetContext(ctx, &c, `SELECT `+consultationColumns+` FROM consultations WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Consultation{}, ErrConsultationNotFound
	}
	return c, err
}

// ListForUser returns consultations in which the user is either party,
// upcoming first.
func (r *ConsultationRepo) ListForUser(ctx context.Context, userID int64) ([]models.Consultation, error) {
	var list []models.Consultation
	err := r.db.SelectContext(ctx, &list, `SELECT `+consultationColumns+` FROM consultations
        WHERE seeker_id=$1 OR practitioner_id=$1
        ORDER BY slot_start DESC`, userID)
	return list, err
}

// IsParticipant checks whether a user is one of the two parties.
func (r *ConsultationRepo) IsParticipant(ctx context.Context, id int64, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(
        SELECT 1 FROM consultations WHERE id=$1 AND (seeker_id=$2 OR practitioner_id=$2))`, id, userID)
	return exists, err
}

// CreateScheduled inserts a new consultation in the scheduled status. It is
// the seam used by the booking collaborator.
func (r *ConsultationRepo) CreateScheduled(ctx context.Context, params CreateConsultationParams) (models.Consultation, error) {
	var c models.Consultation
	err := r.db.GetContext(ctx, &c, `INSERT INTO consultations
        (seeker_id, seeker_first_name, seeker_last_name, seeker_avatar_url,
         practitioner_id, practitioner_first_name, practitioner_last_name, practitioner_avatar_url,
         slot_date, slot_start, slot_end, meeting_link)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING `+consultationColumns,
		params.Seeker.ID, params.Seeker.FirstName, params.Seeker.LastName, params.Seeker.AvatarURL,
		params.Practitioner.ID, params.Practitioner.FirstName, params.Practitioner.LastName, params.Practitioner.AvatarURL,
		params.Slot.Date, params.Slot.Start, params.Slot.End, params.MeetingLink)
	return c, err
}

// MarkInProgress transitions scheduled -> in_progress. The status guard in
// the WHERE clause makes the transition safe under concurrent callers; zero
// affected rows means the record was not in the scheduled status.
func (r *ConsultationRepo) MarkInProgress(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE consultations SET status='in_progress' WHERE id=$1 AND status='scheduled'`, id)
	if err != nil {
		return err
	}
	return checkTransition(res)
}

// MarkCompleted transitions in_progress -> completed and stamps completed_at.
func (r *ConsultationRepo) MarkCompleted(ctx context.Context, id int64, completedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE consultations SET status='completed', completed_at=$2 WHERE id=$1 AND status='in_progress'`,
		id, completedAt)
	if err != nil {
		return err
	}
	return checkTransition(res)
}

func checkTransition(res sql.Result) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrInvalidTransition
	}
	return nil
}
