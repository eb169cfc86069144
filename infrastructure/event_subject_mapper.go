package infrastructure

import (
	"fmt"

	"metering/domain/events"
)

// SubjectPaymentConfirmed is the subject the payment processor publishes
// confirmation events to.
const SubjectPaymentConfirmed = "payments.confirmed"

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its corresponding NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	switch event.Type() {
	case events.EventTypeBalanceChange:
		return "users.balance_changed"
	case events.EventTypeBalanceInitialized:
		return "users.balance_initialized"
	case events.EventTypeSessionStarted:
		return "sessions.started"
	case events.EventTypeSessionEnded:
		return "sessions.ended"
	case events.EventTypeCreditApplied:
		return "credits.applied"
	case events.EventTypeDuplicateSuppressed:
		return "ledger.duplicate_suppressed"
	default:
		// Fallback for unknown event types
		return fmt.Sprintf("unknown.%s", event.Type())
	}
}

// GetAllSubjects returns all subjects that this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{
		"users.balance_changed",
		"users.balance_initialized",
		"sessions.started",
		"sessions.ended",
		"credits.applied",
		"ledger.duplicate_suppressed",
	}
}
