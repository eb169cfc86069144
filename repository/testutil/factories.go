package testutil

import (
	"time"

	"github.com/google/uuid"

	"metering/domain/entities"
)

// CreateTestSession creates an open test session with default values
func CreateTestSession(userID string) *entities.Session {
	return &entities.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		CharacterID: "char-test",
		State:       entities.SessionStateOpen,
		StartedAt:   time.Now().UTC(),
	}
}

// CreateTestSessionStartedAt creates an open test session with a specific start time
func CreateTestSessionStartedAt(userID string, startedAt time.Time) *entities.Session {
	session := CreateTestSession(userID)
	session.StartedAt = startedAt
	return session
}

// CreateTestLedgerEntry creates a test ledger entry with default values
func CreateTestLedgerEntry(userID string, kind entities.EntryKind, amount int64, referenceID string) *entities.LedgerEntry {
	return &entities.LedgerEntry{
		ID:               uuid.NewString(),
		UserID:           userID,
		Kind:             kind,
		Amount:           amount,
		AmountApplied:    amount,
		ReferenceID:      referenceID,
		BalanceBefore:    0,
		ResultingBalance: amount,
		Metadata: map[string]any{
			"test": true,
		},
		AppliedAt: time.Now().UTC(),
	}
}
