package entities

// DebitResult is the outcome of a debit mutation
type DebitResult struct {
	RemainingMinutes int64
	AmountApplied    int64
	// Insufficient reports that the debit was clamped because the balance
	// could not cover the full amount. Informational, not an error.
	Insufficient bool
	// Duplicate reports an idempotency short-circuit: the reference id had
	// already been applied and the recorded outcome was returned.
	Duplicate bool
}

// CreditResult is the outcome of a credit mutation
type CreditResult struct {
	RemainingMinutes int64
	Duplicate        bool
}

// StartSessionResult is the outcome of a session admission check
type StartSessionResult struct {
	SessionID        string
	CanStart         bool
	RemainingMinutes int64
}

// EndSessionResult is the outcome of closing and billing a session
type EndSessionResult struct {
	SessionID        string
	DurationSeconds  int64
	MinutesBilled    int64
	RemainingMinutes int64
}

// PaymentConfirmation is a validated payment processor event. Delivery is
// at-least-once and possibly out of order; PaymentID is the idempotency key.
type PaymentConfirmation struct {
	PaymentID        string
	UserID           string
	MinutesPurchased int64
}

// Validate rejects malformed payment events at the adapter boundary
func (p PaymentConfirmation) Validate() error {
	if p.PaymentID == "" {
		return ErrInvalidEvent
	}
	if p.UserID == "" {
		return ErrInvalidEvent
	}
	if p.MinutesPurchased <= 0 {
		return ErrInvalidEvent
	}
	return nil
}
