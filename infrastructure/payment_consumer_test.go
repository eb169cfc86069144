package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metering/application"
	"metering/domain/entities"
	"metering/domain/testhelpers"
)

func TestPaymentConsumer_HandleConfirmed(t *testing.T) {
	gateway := &testhelpers.MockLedgerGateway{}
	processor := application.NewCreditProcessor(gateway, NewNoopEventPublisher())
	consumer := NewPaymentConsumer(NewNATSClient("nats://localhost:4222"), processor)

	gateway.On("Credit", consumer.ctx, "user-1", int64(80), "pay_1").
		Return(&entities.CreditResult{RemainingMinutes: 80}, nil)

	err := consumer.handlePaymentConfirmed([]byte(`{"payment_id":"pay_1","user_id":"user-1","minutes_purchased":80}`))
	require.NoError(t, err)
	gateway.AssertExpectations(t)
}

func TestPaymentConsumer_AcksUndecodablePayload(t *testing.T) {
	gateway := &testhelpers.MockLedgerGateway{}
	consumer := NewPaymentConsumer(NewNATSClient("nats://localhost:4222"), application.NewCreditProcessor(gateway, NewNoopEventPublisher()))

	// A nil error acks the message so the broker stops redelivering
	err := consumer.handlePaymentConfirmed([]byte(`{not json`))
	assert.NoError(t, err)
	gateway.AssertNotCalled(t, "Credit")
}

func TestPaymentConsumer_AcksMalformedEvent(t *testing.T) {
	gateway := &testhelpers.MockLedgerGateway{}
	consumer := NewPaymentConsumer(NewNATSClient("nats://localhost:4222"), application.NewCreditProcessor(gateway, NewNoopEventPublisher()))

	err := consumer.handlePaymentConfirmed([]byte(`{"payment_id":"","user_id":"user-1","minutes_purchased":80}`))
	assert.NoError(t, err)
	gateway.AssertNotCalled(t, "Credit")
}

func TestPaymentConsumer_NaksStorageFailure(t *testing.T) {
	gateway := &testhelpers.MockLedgerGateway{}
	processor := application.NewCreditProcessor(gateway, NewNoopEventPublisher())
	consumer := NewPaymentConsumer(NewNATSClient("nats://localhost:4222"), processor)

	gateway.On("Credit", consumer.ctx, "user-1", int64(80), "pay_1").
		Return(nil, entities.ErrStorageUnavailable)

	err := consumer.handlePaymentConfirmed([]byte(`{"payment_id":"pay_1","user_id":"user-1","minutes_purchased":80}`))
	assert.ErrorIs(t, err, entities.ErrStorageUnavailable)
}
