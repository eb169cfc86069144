package entities

import (
	"errors"
	"time"
)

// EntryKind represents the type of a ledger mutation
type EntryKind string

const (
	EntryKindDebit  EntryKind = "debit"
	EntryKindCredit EntryKind = "credit"
	EntryKindInit   EntryKind = "init"
)

// LedgerEntry is an immutable audit record of one applied balance mutation.
// At most one entry exists per (user, kind, reference) triple; the reference
// id is the session id for debits and the payment id for credits. This is
// what makes retried mutations idempotent.
type LedgerEntry struct {
	ID               string         `db:"id"`
	UserID           string         `db:"user_id"`
	Kind             EntryKind      `db:"kind"`
	Amount           int64          `db:"amount"`
	AmountApplied    int64          `db:"amount_applied"`
	ReferenceID      string         `db:"reference_id"`
	BalanceBefore    int64          `db:"balance_before"`
	ResultingBalance int64          `db:"resulting_balance"`
	Metadata         map[string]any `db:"metadata"`
	AppliedAt        time.Time      `db:"applied_at"`
}

// IsDebit returns true for debit entries
func (e *LedgerEntry) IsDebit() bool {
	return e.Kind == EntryKindDebit
}

// IsCredit returns true for credit entries
func (e *LedgerEntry) IsCredit() bool {
	return e.Kind == EntryKindCredit
}

// WasClamped reports whether a debit applied less than was requested
// because the balance ran out.
func (e *LedgerEntry) WasClamped() bool {
	return e.Kind == EntryKindDebit && e.AmountApplied < e.Amount
}

// Validate performs basic consistency checks on the entry
func (e *LedgerEntry) Validate() error {
	switch e.Kind {
	case EntryKindDebit:
		if e.Amount <= 0 {
			return errors.New("debit amount must be positive")
		}
		if e.AmountApplied < 0 || e.AmountApplied > e.Amount {
			return errors.New("applied amount out of range")
		}
		if e.ResultingBalance != e.BalanceBefore-e.AmountApplied {
			return errors.New("resulting balance inconsistent with debit")
		}
	case EntryKindCredit:
		if e.Amount <= 0 {
			return errors.New("credit amount must be positive")
		}
		if e.AmountApplied != e.Amount {
			return errors.New("credits apply in full")
		}
		if e.ResultingBalance != e.BalanceBefore+e.Amount {
			return errors.New("resulting balance inconsistent with credit")
		}
	case EntryKindInit:
		if e.Amount != 0 || e.AmountApplied != 0 {
			return errors.New("init entries carry no amount")
		}
	default:
		return errors.New("unknown entry kind")
	}

	if e.ReferenceID == "" {
		return errors.New("reference id is required")
	}
	return nil
}
