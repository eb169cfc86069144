package testhelpers

import (
	"context"
	"time"

	"metering/domain/entities"
	"metering/domain/events"

	"github.com/stretchr/testify/mock"
)

// MockBalanceRepository is a mock implementation of BalanceRepository
type MockBalanceRepository struct {
	mock.Mock
}

func (m *MockBalanceRepository) GetByUserID(ctx context.Context, userID string) (*entities.UserBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.UserBalance), args.Error(1)
}

func (m *MockBalanceRepository) GetForUpdate(ctx context.Context, userID string) (*entities.UserBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.UserBalance), args.Error(1)
}

func (m *MockBalanceRepository) Create(ctx context.Context, userID string) (*entities.UserBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.UserBalance), args.Error(1)
}

func (m *MockBalanceRepository) UpdateTotals(ctx context.Context, balance *entities.UserBalance) error {
	args := m.Called(ctx, balance)
	return args.Error(0)
}

// MockLedgerEntryRepository is a mock implementation of LedgerEntryRepository
type MockLedgerEntryRepository struct {
	mock.Mock
}

func (m *MockLedgerEntryRepository) Record(ctx context.Context, entry *entities.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerEntryRepository) GetByReference(ctx context.Context, userID string, kind entities.EntryKind, referenceID string) (*entities.LedgerEntry, error) {
	args := m.Called(ctx, userID, kind, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.LedgerEntry), args.Error(1)
}

func (m *MockLedgerEntryRepository) GetByUser(ctx context.Context, userID string, limit int) ([]*entities.LedgerEntry, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LedgerEntry), args.Error(1)
}

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *entities.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetByID(ctx context.Context, sessionID string) (*entities.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Session), args.Error(1)
}

func (m *MockSessionRepository) Close(ctx context.Context, session *entities.Session) (bool, error) {
	args := m.Called(ctx, session)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionRepository) GetOpenOlderThan(ctx context.Context, cutoff time.Time) ([]*entities.Session, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Session), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockLedgerGateway is a mock implementation of LedgerGateway
type MockLedgerGateway struct {
	mock.Mock
}

func (m *MockLedgerGateway) Initialize(ctx context.Context, userID string) (*entities.UserBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.UserBalance), args.Error(1)
}

func (m *MockLedgerGateway) Debit(ctx context.Context, userID string, amount int64, referenceID string) (*entities.DebitResult, error) {
	args := m.Called(ctx, userID, amount, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DebitResult), args.Error(1)
}

func (m *MockLedgerGateway) Credit(ctx context.Context, userID string, amount int64, referenceID string) (*entities.CreditResult, error) {
	args := m.Called(ctx, userID, amount, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.CreditResult), args.Error(1)
}

func (m *MockLedgerGateway) GetBalance(ctx context.Context, userID string) (*entities.UserBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.UserBalance), args.Error(1)
}

// MockSessionTracker is a mock implementation of SessionTracker
type MockSessionTracker struct {
	mock.Mock
}

func (m *MockSessionTracker) StartSession(ctx context.Context, userID, characterID string) (*entities.StartSessionResult, error) {
	args := m.Called(ctx, userID, characterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.StartSessionResult), args.Error(1)
}

func (m *MockSessionTracker) EndSession(ctx context.Context, sessionID string) (*entities.EndSessionResult, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.EndSessionResult), args.Error(1)
}

// MockCreditProcessor is a mock implementation of CreditProcessor
type MockCreditProcessor struct {
	mock.Mock
}

func (m *MockCreditProcessor) ApplyPaymentConfirmation(ctx context.Context, confirmation entities.PaymentConfirmation) (*entities.CreditResult, error) {
	args := m.Called(ctx, confirmation)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.CreditResult), args.Error(1)
}
