package entities

import (
	"errors"
	"time"
)

// SessionState represents the lifecycle state of a metered session
type SessionState string

const (
	SessionStateOpen   SessionState = "open"
	SessionStateClosed SessionState = "closed"
)

// Session represents one metered interaction between a user and a character
type Session struct {
	ID              string       `db:"id"`
	UserID          string       `db:"user_id"`
	CharacterID     string       `db:"character_id"`
	State           SessionState `db:"state"`
	StartedAt       time.Time    `db:"started_at"`
	EndedAt         *time.Time   `db:"ended_at"`
	DurationSeconds int64        `db:"duration_seconds"`
	MinutesBilled   int64        `db:"minutes_billed"`
}

// IsOpen returns true if the session has not been closed yet
func (s *Session) IsOpen() bool {
	return s.State == SessionStateOpen
}

// Close transitions the session to closed and computes the billed duration.
// A closed session is immutable; closing twice is an error.
func (s *Session) Close(now time.Time) error {
	if s.State == SessionStateClosed {
		return errors.New("session already closed")
	}

	duration := int64(now.Sub(s.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}

	s.State = SessionStateClosed
	s.EndedAt = &now
	s.DurationSeconds = duration
	s.MinutesBilled = BillableMinutes(duration)
	return nil
}

// BillableMinutes converts a session duration to billed minutes: partial
// minutes round up, and every session bills at least one minute.
func BillableMinutes(durationSeconds int64) int64 {
	if durationSeconds <= 60 {
		return 1
	}
	minutes := durationSeconds / 60
	if durationSeconds%60 != 0 {
		minutes++
	}
	return minutes
}
