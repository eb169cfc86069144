package interfaces

import (
	"context"
	"time"

	"metering/domain/entities"
	"metering/domain/events"
)

// BalanceRepository defines the interface for user balance data access
type BalanceRepository interface {
	// GetByUserID retrieves a balance by user ID, nil if none exists
	GetByUserID(ctx context.Context, userID string) (*entities.UserBalance, error)

	// GetForUpdate retrieves a balance holding a row lock for the duration
	// of the enclosing transaction, nil if none exists
	GetForUpdate(ctx context.Context, userID string) (*entities.UserBalance, error)

	// Create creates a zeroed balance for a user
	Create(ctx context.Context, userID string) (*entities.UserBalance, error)

	// UpdateTotals writes the balance counters atomically
	UpdateTotals(ctx context.Context, balance *entities.UserBalance) error
}

// LedgerEntryRepository defines the interface for the append-only audit trail
type LedgerEntryRepository interface {
	// Record appends a new ledger entry
	Record(ctx context.Context, entry *entities.LedgerEntry) error

	// GetByReference returns the entry for a (user, kind, reference) triple,
	// nil if the reference has not been applied yet
	GetByReference(ctx context.Context, userID string, kind entities.EntryKind, referenceID string) (*entities.LedgerEntry, error)

	// GetByUser returns the most recent entries for a user
	GetByUser(ctx context.Context, userID string, limit int) ([]*entities.LedgerEntry, error)
}

// SessionRepository defines the interface for metered session data access
type SessionRepository interface {
	// Create persists a new open session
	Create(ctx context.Context, session *entities.Session) error

	// GetByID retrieves a session by ID, nil if unknown
	GetByID(ctx context.Context, sessionID string) (*entities.Session, error)

	// Close persists the open-to-closed transition. Returns false if the
	// session was not open, so a retried close is detectable.
	Close(ctx context.Context, session *entities.Session) (bool, error)

	// GetOpenOlderThan returns open sessions started before the cutoff.
	// Hook for a reconciliation sweep; no sweep runs by default.
	GetOpenOlderThan(ctx context.Context, cutoff time.Time) ([]*entities.Session, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event) error
}
