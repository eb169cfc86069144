package events

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange       EventType = "balance_change"
	EventTypeBalanceInitialized  EventType = "balance_initialized"
	EventTypeSessionStarted      EventType = "session_started"
	EventTypeSessionEnded        EventType = "session_ended"
	EventTypeCreditApplied       EventType = "credit_applied"
	EventTypeDuplicateSuppressed EventType = "duplicate_suppressed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a committed balance mutation
type BalanceChangeEvent struct {
	UserID        string
	Kind          string
	ReferenceID   string
	OldBalance    int64
	NewBalance    int64
	AmountApplied int64
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// BalanceInitializedEvent represents a newly created zero balance
type BalanceInitializedEvent struct {
	UserID string
}

func (e BalanceInitializedEvent) Type() EventType {
	return EventTypeBalanceInitialized
}

// SessionStartedEvent represents an admitted metered session
type SessionStartedEvent struct {
	SessionID        string
	UserID           string
	CharacterID      string
	RemainingMinutes int64
}

func (e SessionStartedEvent) Type() EventType {
	return EventTypeSessionStarted
}

// SessionEndedEvent represents a closed and billed session
type SessionEndedEvent struct {
	SessionID        string
	UserID           string
	DurationSeconds  int64
	MinutesBilled    int64
	RemainingMinutes int64
}

func (e SessionEndedEvent) Type() EventType {
	return EventTypeSessionEnded
}

// CreditAppliedEvent represents a payment confirmation turned into minutes
type CreditAppliedEvent struct {
	PaymentID        string
	UserID           string
	MinutesPurchased int64
	RemainingMinutes int64
}

func (e CreditAppliedEvent) Type() EventType {
	return EventTypeCreditApplied
}

// DuplicateSuppressedEvent records an idempotency short-circuit. Not an
// error, but the audit trail must be able to observe it.
type DuplicateSuppressedEvent struct {
	UserID      string
	Kind        string
	ReferenceID string
}

func (e DuplicateSuppressedEvent) Type() EventType {
	return EventTypeDuplicateSuppressed
}
