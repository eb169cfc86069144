package application

import (
	"context"

	"metering/domain/interfaces"
)

// UnitOfWork defines the interface for transactional repository operations.
// A ledger mutation and its audit entry commit or roll back together.
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	BalanceRepository() interfaces.BalanceRepository
	LedgerEntryRepository() interfaces.LedgerEntryRepository
	SessionRepository() interfaces.SessionRepository
	EventBus() interfaces.EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// TransactionalEventPublisher buffers events during a transaction. Flush is
// called after a successful commit, Discard after a rollback, so subscribers
// never see events for mutations that did not happen.
type TransactionalEventPublisher interface {
	interfaces.EventPublisher

	// Flush publishes all buffered events
	Flush(ctx context.Context) error

	// Discard drops all buffered events
	Discard()
}
