package entities

import (
	"errors"
	"time"
)

// UserBalance represents a user's prepaid minute balance
type UserBalance struct {
	UserID           string    `db:"user_id"`
	RemainingMinutes int64     `db:"remaining_minutes"`
	TotalPurchased   int64     `db:"total_purchased"`
	TotalConsumed    int64     `db:"total_consumed"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// NewZeroBalance returns the balance an unknown user is treated as having.
// Reads never fail for unknown users; they see a zeroed balance.
func NewZeroBalance(userID string) *UserBalance {
	return &UserBalance{UserID: userID}
}

// CanStartSession reports whether the user has any minutes left.
// Admission is advisory: two concurrent starts with one minute remaining may
// both pass, which is an accepted bounded overspend.
func (b *UserBalance) CanStartSession() bool {
	return b.RemainingMinutes > 0
}

// Validate checks the ledger invariant: remaining minutes always equal
// total purchased minus total consumed, and never go negative.
func (b *UserBalance) Validate() error {
	if b.RemainingMinutes < 0 {
		return errors.New("remaining minutes cannot be negative")
	}
	if b.TotalPurchased < 0 || b.TotalConsumed < 0 {
		return errors.New("lifetime totals cannot be negative")
	}
	if b.RemainingMinutes != b.TotalPurchased-b.TotalConsumed {
		return errors.New("balance is inconsistent with lifetime totals")
	}
	return nil
}
