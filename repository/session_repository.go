package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"metering/database"
	"metering/domain/entities"

	"github.com/jackc/pgx/v5"
)

// SessionRepository implements the SessionRepository interface
type SessionRepository struct {
	q Queryable
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{q: db.Pool}
}

// newSessionRepository creates a new session repository bound to a transaction
func newSessionRepository(tx Queryable) *SessionRepository {
	return &SessionRepository{q: tx}
}

// Create persists a new open session
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, character_id, state, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.q.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.CharacterID,
		session.State,
		session.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", session.ID, err)
	}

	return nil
}

// GetByID retrieves a session by ID, nil if unknown
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*entities.Session, error) {
	query := `
		SELECT id, user_id, character_id, state, started_at, ended_at, duration_seconds, minutes_billed
		FROM sessions
		WHERE id = $1
	`

	var session entities.Session
	err := r.q.QueryRow(ctx, query, sessionID).Scan(
		&session.ID,
		&session.UserID,
		&session.CharacterID,
		&session.State,
		&session.StartedAt,
		&session.EndedAt,
		&session.DurationSeconds,
		&session.MinutesBilled,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}

	return &session, nil
}

// Close persists the open-to-closed transition. The state guard in the WHERE
// clause makes the transition single-shot: a second close matches no rows
// and returns false instead of overwriting the billed result.
func (r *SessionRepository) Close(ctx context.Context, session *entities.Session) (bool, error) {
	query := `
		UPDATE sessions
		SET state = $1, ended_at = $2, duration_seconds = $3, minutes_billed = $4
		WHERE id = $5 AND state = 'open'
	`

	result, err := r.q.Exec(ctx, query,
		entities.SessionStateClosed,
		session.EndedAt,
		session.DurationSeconds,
		session.MinutesBilled,
		session.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to close session %s: %w", session.ID, err)
	}

	return result.RowsAffected() > 0, nil
}

// GetOpenOlderThan returns open sessions started before the cutoff
func (r *SessionRepository) GetOpenOlderThan(ctx context.Context, cutoff time.Time) ([]*entities.Session, error) {
	query := `
		SELECT id, user_id, character_id, state, started_at, ended_at, duration_seconds, minutes_billed
		FROM sessions
		WHERE state = 'open' AND started_at < $1
		ORDER BY started_at
	`

	rows, err := r.q.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get open sessions older than %s: %w", cutoff, err)
	}
	defer rows.Close()

	var sessions []*entities.Session
	for rows.Next() {
		var session entities.Session
		err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.CharacterID,
			&session.State,
			&session.StartedAt,
			&session.EndedAt,
			&session.DurationSeconds,
			&session.MinutesBilled,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}
