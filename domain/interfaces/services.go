package interfaces

import (
	"context"

	"metering/domain/entities"
)

// LedgerGateway is the single entry point for balance mutations. Mutations
// for a given user are serialized; mutations for different users run in
// parallel. Every operation is idempotent on its reference id.
type LedgerGateway interface {
	// Initialize creates a zeroed balance if none exists and returns the
	// current balance either way
	Initialize(ctx context.Context, userID string) (*entities.UserBalance, error)

	// Debit deducts up to amount minutes, clamped to the current balance
	Debit(ctx context.Context, userID string, amount int64, referenceID string) (*entities.DebitResult, error)

	// Credit adds amount minutes to the balance and lifetime purchases
	Credit(ctx context.Context, userID string, amount int64, referenceID string) (*entities.CreditResult, error)

	// GetBalance returns the balance, zeroed for unknown users
	GetBalance(ctx context.Context, userID string) (*entities.UserBalance, error)
}

// SessionTracker manages the lifecycle of metered sessions
type SessionTracker interface {
	// StartSession checks the balance and creates an open session when the
	// user has minutes remaining
	StartSession(ctx context.Context, userID, characterID string) (*entities.StartSessionResult, error)

	// EndSession closes the session, computes billed minutes and debits the
	// balance keyed by the session id. Retrying with the same session id
	// settles a debit that never landed and is otherwise a no-op
	EndSession(ctx context.Context, sessionID string) (*entities.EndSessionResult, error)
}

// CreditProcessor turns payment confirmations into balance credits
type CreditProcessor interface {
	// ApplyPaymentConfirmation validates and applies a payment event,
	// idempotent on the payment id
	ApplyPaymentConfirmation(ctx context.Context, confirmation entities.PaymentConfirmation) (*entities.CreditResult, error)
}
