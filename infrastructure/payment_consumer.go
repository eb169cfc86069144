package infrastructure

import (
	"context"
	"encoding/json"
	"errors"

	"metering/domain/entities"
	"metering/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// paymentConfirmedMessage is the wire shape of a payment processor event
type paymentConfirmedMessage struct {
	PaymentID        string `json:"payment_id"`
	UserID           string `json:"user_id"`
	MinutesPurchased int64  `json:"minutes_purchased"`
}

// PaymentConsumer subscribes to payment confirmation events and routes them
// to the credit processor. Malformed events are acked and dropped after
// logging; storage failures are NAKed so the broker redelivers and the
// payment id keeps the retry idempotent.
type PaymentConsumer struct {
	natsClient *NATSClient
	processor  interfaces.CreditProcessor

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPaymentConsumer creates a new payment consumer
func NewPaymentConsumer(natsClient *NATSClient, processor interfaces.CreditProcessor) *PaymentConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &PaymentConsumer{
		natsClient: natsClient,
		processor:  processor,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start connects the subscription. The NATS client must already be connected.
func (c *PaymentConsumer) Start() error {
	if err := c.natsClient.EnsurePaymentStream(); err != nil {
		return err
	}
	return c.natsClient.Subscribe(SubjectPaymentConfirmed, c.handlePaymentConfirmed)
}

// Stop cancels in-flight processing
func (c *PaymentConsumer) Stop() {
	c.cancel()
}

func (c *PaymentConsumer) handlePaymentConfirmed(data []byte) error {
	var msg paymentConfirmedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.WithError(err).Warn("Dropping undecodable payment confirmation")
		// Ack: redelivery cannot fix a malformed payload
		return nil
	}

	confirmation := entities.PaymentConfirmation{
		PaymentID:        msg.PaymentID,
		UserID:           msg.UserID,
		MinutesPurchased: msg.MinutesPurchased,
	}

	_, err := c.processor.ApplyPaymentConfirmation(c.ctx, confirmation)
	if errors.Is(err, entities.ErrInvalidEvent) {
		// Already logged by the processor; ack so the broker stops retrying
		return nil
	}
	return err
}
