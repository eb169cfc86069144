package application

import (
	"context"
	"sync"
	"time"

	"metering/domain/entities"
	"metering/domain/events"
	"metering/domain/services"

	log "github.com/sirupsen/logrus"
)

// MetricsRecorder receives counters from the gateway. Implemented by the
// observability provider; a nil recorder disables metrics.
type MetricsRecorder interface {
	RecordMutation(ctx context.Context, kind string, duration time.Duration)
	RecordDuplicateSuppressed(ctx context.Context, kind string)
	RecordStorageError(ctx context.Context)
}

// LedgerGateway is the single serialization point for balance mutations.
// Mutations for one user are applied strictly one at a time; different users
// proceed in parallel. Each mutation checks the audit trail for its
// reference id before applying, so retries and duplicate deliveries return
// the recorded outcome instead of mutating twice.
type LedgerGateway struct {
	uowFactory UnitOfWorkFactory
	ledger     *services.LedgerService
	metrics    MetricsRecorder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLedgerGateway creates a new ledger gateway
func NewLedgerGateway(uowFactory UnitOfWorkFactory, metrics MetricsRecorder) *LedgerGateway {
	return &LedgerGateway{
		uowFactory: uowFactory,
		ledger:     services.NewLedgerService(),
		metrics:    metrics,
		locks:      make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing mutations for one user. Admission
// order at this lock is the order ledger entries are applied.
func (g *LedgerGateway) userLock(userID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()

	lock, ok := g.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[userID] = lock
	}
	return lock
}

// Initialize creates a zeroed balance if none exists. Idempotent: an
// existing balance is returned unchanged.
func (g *LedgerGateway) Initialize(ctx context.Context, userID string) (*entities.UserBalance, error) {
	lock := g.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	uow := g.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		g.recordStorageError(ctx)
		return nil, mapStorageError(err)
	}
	defer uow.Rollback()

	balance, err := uow.BalanceRepository().GetForUpdate(ctx, userID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if balance != nil {
		if err := uow.Commit(); err != nil {
			return nil, mapStorageError(err)
		}
		return balance, nil
	}

	balance, err = uow.BalanceRepository().Create(ctx, userID)
	if err != nil {
		return nil, mapStorageError(err)
	}

	entry := g.ledger.InitEntry(userID, time.Now().UTC())
	if err := uow.LedgerEntryRepository().Record(ctx, entry); err != nil {
		return nil, mapStorageError(err)
	}

	if err := uow.EventBus().Publish(events.BalanceInitializedEvent{UserID: userID}); err != nil {
		log.WithError(err).Warn("Failed to publish balance initialized event")
	}

	if err := uow.Commit(); err != nil {
		return nil, mapStorageError(err)
	}

	log.WithField("userID", userID).Info("Initialized balance")
	return balance, nil
}

// Debit deducts up to amount minutes from the user's balance, clamped so the
// balance never goes negative. Idempotent on referenceID.
func (g *LedgerGateway) Debit(ctx context.Context, userID string, amount int64, referenceID string) (*entities.DebitResult, error) {
	if err := g.ledger.ValidateAmount(amount); err != nil {
		return nil, err
	}

	start := time.Now()
	lock := g.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	uow := g.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		g.recordStorageError(ctx)
		return nil, mapStorageError(err)
	}
	defer uow.Rollback()

	existing, err := uow.LedgerEntryRepository().GetByReference(ctx, userID, entities.EntryKindDebit, referenceID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if existing != nil {
		return g.suppressDuplicateDebit(ctx, uow, existing)
	}

	balance, err := g.balanceForMutation(ctx, uow, userID)
	if err != nil {
		return nil, err
	}

	change, err := g.ledger.ApplyDebit(balance, amount, referenceID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := g.persistChange(ctx, uow, change.NewBalance, change.Entry); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, mapStorageError(err)
	}

	g.recordMutation(ctx, "debit", time.Since(start))
	log.WithFields(log.Fields{
		"userID":      userID,
		"referenceID": referenceID,
		"requested":   amount,
		"applied":     change.AmountApplied,
		"remaining":   change.NewBalance.RemainingMinutes,
	}).Info("Applied debit")

	return &entities.DebitResult{
		RemainingMinutes: change.NewBalance.RemainingMinutes,
		AmountApplied:    change.AmountApplied,
		Insufficient:     change.Insufficient,
	}, nil
}

// Credit adds amount minutes to the user's balance and lifetime purchases.
// Idempotent on referenceID.
func (g *LedgerGateway) Credit(ctx context.Context, userID string, amount int64, referenceID string) (*entities.CreditResult, error) {
	if err := g.ledger.ValidateAmount(amount); err != nil {
		return nil, err
	}

	start := time.Now()
	lock := g.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	uow := g.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		g.recordStorageError(ctx)
		return nil, mapStorageError(err)
	}
	defer uow.Rollback()

	existing, err := uow.LedgerEntryRepository().GetByReference(ctx, userID, entities.EntryKindCredit, referenceID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if existing != nil {
		return g.suppressDuplicateCredit(ctx, uow, existing)
	}

	balance, err := g.balanceForMutation(ctx, uow, userID)
	if err != nil {
		return nil, err
	}

	change, err := g.ledger.ApplyCredit(balance, amount, referenceID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := g.persistChange(ctx, uow, change.NewBalance, change.Entry); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, mapStorageError(err)
	}

	g.recordMutation(ctx, "credit", time.Since(start))
	log.WithFields(log.Fields{
		"userID":      userID,
		"referenceID": referenceID,
		"amount":      amount,
		"remaining":   change.NewBalance.RemainingMinutes,
	}).Info("Applied credit")

	return &entities.CreditResult{
		RemainingMinutes: change.NewBalance.RemainingMinutes,
	}, nil
}

// GetBalance returns the user's balance. Unknown users read as a zeroed
// balance rather than an error.
func (g *LedgerGateway) GetBalance(ctx context.Context, userID string) (*entities.UserBalance, error) {
	uow := g.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		g.recordStorageError(ctx)
		return nil, mapStorageError(err)
	}
	defer uow.Rollback()

	balance, err := uow.BalanceRepository().GetByUserID(ctx, userID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if err := uow.Commit(); err != nil {
		return nil, mapStorageError(err)
	}

	if balance == nil {
		return entities.NewZeroBalance(userID), nil
	}
	return balance, nil
}

// balanceForMutation loads the row-locked balance, creating a zeroed row on
// first use so the mutation has something to update.
func (g *LedgerGateway) balanceForMutation(ctx context.Context, uow UnitOfWork, userID string) (*entities.UserBalance, error) {
	balance, err := uow.BalanceRepository().GetForUpdate(ctx, userID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if balance == nil {
		balance, err = uow.BalanceRepository().Create(ctx, userID)
		if err != nil {
			return nil, mapStorageError(err)
		}
	}
	return balance, nil
}

// persistChange writes the balance and its audit entry in the same
// transaction and queues the change event for publication on commit.
func (g *LedgerGateway) persistChange(ctx context.Context, uow UnitOfWork, balance *entities.UserBalance, entry *entities.LedgerEntry) error {
	if err := uow.BalanceRepository().UpdateTotals(ctx, balance); err != nil {
		return mapStorageError(err)
	}
	if err := uow.LedgerEntryRepository().Record(ctx, entry); err != nil {
		return mapStorageError(err)
	}

	event := events.BalanceChangeEvent{
		UserID:        entry.UserID,
		Kind:          string(entry.Kind),
		ReferenceID:   entry.ReferenceID,
		OldBalance:    entry.BalanceBefore,
		NewBalance:    entry.ResultingBalance,
		AmountApplied: entry.AmountApplied,
	}
	if err := uow.EventBus().Publish(event); err != nil {
		log.WithError(err).Warn("Failed to publish balance change event")
	}

	return nil
}

func (g *LedgerGateway) suppressDuplicateDebit(ctx context.Context, uow UnitOfWork, entry *entities.LedgerEntry) (*entities.DebitResult, error) {
	if err := g.publishDuplicate(uow, entry); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, mapStorageError(err)
	}

	g.recordDuplicate(ctx, string(entities.EntryKindDebit))
	return &entities.DebitResult{
		RemainingMinutes: entry.ResultingBalance,
		AmountApplied:    entry.AmountApplied,
		Insufficient:     entry.WasClamped(),
		Duplicate:        true,
	}, nil
}

func (g *LedgerGateway) suppressDuplicateCredit(ctx context.Context, uow UnitOfWork, entry *entities.LedgerEntry) (*entities.CreditResult, error) {
	if err := g.publishDuplicate(uow, entry); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, mapStorageError(err)
	}

	g.recordDuplicate(ctx, string(entities.EntryKindCredit))
	return &entities.CreditResult{
		RemainingMinutes: entry.ResultingBalance,
		Duplicate:        true,
	}, nil
}

// publishDuplicate makes idempotency short-circuits observable for audit
func (g *LedgerGateway) publishDuplicate(uow UnitOfWork, entry *entities.LedgerEntry) error {
	log.WithFields(log.Fields{
		"userID":      entry.UserID,
		"kind":        entry.Kind,
		"referenceID": entry.ReferenceID,
	}).Info("Duplicate mutation suppressed")

	event := events.DuplicateSuppressedEvent{
		UserID:      entry.UserID,
		Kind:        string(entry.Kind),
		ReferenceID: entry.ReferenceID,
	}
	if err := uow.EventBus().Publish(event); err != nil {
		log.WithError(err).Warn("Failed to publish duplicate suppressed event")
	}
	return nil
}

func (g *LedgerGateway) recordMutation(ctx context.Context, kind string, duration time.Duration) {
	if g.metrics != nil {
		g.metrics.RecordMutation(ctx, kind, duration)
	}
}

func (g *LedgerGateway) recordDuplicate(ctx context.Context, kind string) {
	if g.metrics != nil {
		g.metrics.RecordDuplicateSuppressed(ctx, kind)
	}
}

func (g *LedgerGateway) recordStorageError(ctx context.Context) {
	if g.metrics != nil {
		g.metrics.RecordStorageError(ctx)
	}
}
