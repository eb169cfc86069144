package services

import (
	"time"

	"metering/domain/entities"

	"github.com/google/uuid"
)

// LedgerService contains pure business logic for balance mutations.
// It performs no I/O; the application layer persists what it computes.
type LedgerService struct{}

// NewLedgerService creates a new LedgerService
func NewLedgerService() *LedgerService {
	return &LedgerService{}
}

// DebitChange is the computed outcome of applying a debit to a balance
type DebitChange struct {
	AmountRequested int64
	AmountApplied   int64
	Insufficient    bool
	NewBalance      *entities.UserBalance
	Entry           *entities.LedgerEntry
}

// CreditChange is the computed outcome of applying a credit to a balance
type CreditChange struct {
	Amount     int64
	NewBalance *entities.UserBalance
	Entry      *entities.LedgerEntry
}

// ValidateAmount rejects non-positive mutation amounts
func (s *LedgerService) ValidateAmount(amount int64) error {
	if amount <= 0 {
		return entities.ErrInvalidAmount
	}
	return nil
}

// ApplyDebit computes the debit of up to amount minutes against a balance.
// The applied amount is clamped so the balance never goes negative; a
// clamped debit is reported, not failed.
func (s *LedgerService) ApplyDebit(balance *entities.UserBalance, amount int64, referenceID string, now time.Time) (*DebitChange, error) {
	if err := s.ValidateAmount(amount); err != nil {
		return nil, err
	}

	applied := amount
	if applied > balance.RemainingMinutes {
		applied = balance.RemainingMinutes
	}

	updated := &entities.UserBalance{
		UserID:           balance.UserID,
		RemainingMinutes: balance.RemainingMinutes - applied,
		TotalPurchased:   balance.TotalPurchased,
		TotalConsumed:    balance.TotalConsumed + applied,
		CreatedAt:        balance.CreatedAt,
		UpdatedAt:        now,
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	entry := &entities.LedgerEntry{
		ID:               uuid.NewString(),
		UserID:           balance.UserID,
		Kind:             entities.EntryKindDebit,
		Amount:           amount,
		AmountApplied:    applied,
		ReferenceID:      referenceID,
		BalanceBefore:    balance.RemainingMinutes,
		ResultingBalance: updated.RemainingMinutes,
		Metadata: map[string]any{
			"requested": amount,
			"clamped":   applied < amount,
		},
		AppliedAt: now,
	}

	return &DebitChange{
		AmountRequested: amount,
		AmountApplied:   applied,
		Insufficient:    applied < amount,
		NewBalance:      updated,
		Entry:           entry,
	}, nil
}

// ApplyCredit computes the credit of amount minutes to a balance
func (s *LedgerService) ApplyCredit(balance *entities.UserBalance, amount int64, referenceID string, now time.Time) (*CreditChange, error) {
	if err := s.ValidateAmount(amount); err != nil {
		return nil, err
	}

	updated := &entities.UserBalance{
		UserID:           balance.UserID,
		RemainingMinutes: balance.RemainingMinutes + amount,
		TotalPurchased:   balance.TotalPurchased + amount,
		TotalConsumed:    balance.TotalConsumed,
		CreatedAt:        balance.CreatedAt,
		UpdatedAt:        now,
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	entry := &entities.LedgerEntry{
		ID:               uuid.NewString(),
		UserID:           balance.UserID,
		Kind:             entities.EntryKindCredit,
		Amount:           amount,
		AmountApplied:    amount,
		ReferenceID:      referenceID,
		BalanceBefore:    balance.RemainingMinutes,
		ResultingBalance: updated.RemainingMinutes,
		AppliedAt:        now,
	}

	return &CreditChange{
		Amount:     amount,
		NewBalance: updated,
		Entry:      entry,
	}, nil
}

// InitEntry builds the audit record for a newly created balance
func (s *LedgerService) InitEntry(userID string, now time.Time) *entities.LedgerEntry {
	return &entities.LedgerEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Kind:        entities.EntryKindInit,
		ReferenceID: userID,
		AppliedAt:   now,
	}
}
