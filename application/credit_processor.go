package application

import (
	"context"
	"fmt"

	"metering/domain/entities"
	"metering/domain/events"
	"metering/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// CreditProcessor turns payment confirmations into balance credits. Its
// whole job is discipline: the payment processor's own event id is the
// idempotency key, so at-least-once webhook delivery can never
// double-credit a user.
type CreditProcessor struct {
	gateway   interfaces.LedgerGateway
	publisher interfaces.EventPublisher
}

// NewCreditProcessor creates a new credit processor
func NewCreditProcessor(gateway interfaces.LedgerGateway, publisher interfaces.EventPublisher) *CreditProcessor {
	return &CreditProcessor{
		gateway:   gateway,
		publisher: publisher,
	}
}

// ApplyPaymentConfirmation validates and applies a payment event. Malformed
// events are rejected and logged, never silently dropped; storage failures
// are returned so the payment processor's retry policy redelivers.
func (p *CreditProcessor) ApplyPaymentConfirmation(ctx context.Context, confirmation entities.PaymentConfirmation) (*entities.CreditResult, error) {
	if err := confirmation.Validate(); err != nil {
		log.WithFields(log.Fields{
			"paymentID": confirmation.PaymentID,
			"userID":    confirmation.UserID,
			"minutes":   confirmation.MinutesPurchased,
		}).Warn("Rejected malformed payment confirmation")
		return nil, err
	}

	result, err := p.gateway.Credit(ctx, confirmation.UserID, confirmation.MinutesPurchased, confirmation.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to credit payment %s: %w", confirmation.PaymentID, err)
	}

	if !result.Duplicate {
		event := events.CreditAppliedEvent{
			PaymentID:        confirmation.PaymentID,
			UserID:           confirmation.UserID,
			MinutesPurchased: confirmation.MinutesPurchased,
			RemainingMinutes: result.RemainingMinutes,
		}
		if err := p.publisher.Publish(event); err != nil {
			log.WithError(err).Warn("Failed to publish credit applied event")
		}
	}

	log.WithFields(log.Fields{
		"paymentID": confirmation.PaymentID,
		"userID":    confirmation.UserID,
		"minutes":   confirmation.MinutesPurchased,
		"duplicate": result.Duplicate,
		"remaining": result.RemainingMinutes,
	}).Info("Processed payment confirmation")

	return result, nil
}
