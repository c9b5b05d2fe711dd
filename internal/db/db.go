package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return database, nil
}

func runMigrations(database *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS consultations (
            id BIGSERIAL PRIMARY KEY,
            seeker_id BIGINT NOT NULL,
            seeker_first_name TEXT NOT NULL,
            seeker_last_name TEXT NOT NULL,
            seeker_avatar_url TEXT,
            practitioner_id BIGINT NOT NULL,
            practitioner_first_name TEXT NOT NULL,
            practitioner_last_name TEXT NOT NULL,
            practitioner_avatar_url TEXT,
            slot_date DATE NOT NULL,
            slot_start TIMESTAMPTZ NOT NULL,
            slot_end TIMESTAMPTZ NOT NULL,
            status TEXT NOT NULL DEFAULT 'scheduled',
            completed_at TIMESTAMPTZ,
            meeting_link TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CONSTRAINT completed_at_matches_status CHECK (
                (status = 'completed') = (completed_at IS NOT NULL)
            )
        );`,
		`CREATE TABLE IF NOT EXISTS consultation_messages (
            id BIGSERIAL PRIMARY KEY,
            consultation_id BIGINT NOT NULL REFERENCES consultations(id) ON DELETE CASCADE,
            sender_id BIGINT NOT NULL,
            content TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_consultation_messages_timeline
            ON consultation_messages (consultation_id, created_at, id);`,
		`CREATE INDEX IF NOT EXISTS idx_consultations_parties
            ON consultations (seeker_id, practitioner_id);`,
	}

	for _, m := range migrations {
		if _, err := database.Exec(m); err != nil {
			return err
		}
	}
	log.Info().Msg("database migrations applied")
	return nil
}
