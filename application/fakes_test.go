package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"metering/domain/entities"
	"metering/domain/events"
	"metering/domain/interfaces"
)

// memStore is an in-memory stand-in for the durable store, shared by all
// unit-of-work instances a test creates.
type memStore struct {
	mu       sync.Mutex
	balances map[string]*entities.UserBalance
	entries  map[string]*entities.LedgerEntry
	sessions map[string]*entities.Session
	events   []events.Event
	failAll  bool
}

func newMemStore() *memStore {
	return &memStore{
		balances: make(map[string]*entities.UserBalance),
		entries:  make(map[string]*entities.LedgerEntry),
		sessions: make(map[string]*entities.Session),
	}
}

func entryKey(userID string, kind entities.EntryKind, referenceID string) string {
	return fmt.Sprintf("%s|%s|%s", userID, kind, referenceID)
}

func (s *memStore) publishedEvents() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, len(s.events))
	copy(out, s.events)
	return out
}

// setSessionStart rewinds a stored session's start time so duration-based
// billing can be exercised without sleeping.
func (s *memStore) setSessionStart(sessionID string, startedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		session.StartedAt = startedAt
	}
}

type memUnitOfWorkFactory struct {
	store *memStore
}

func newMemUnitOfWorkFactory(store *memStore) *memUnitOfWorkFactory {
	return &memUnitOfWorkFactory{store: store}
}

func (f *memUnitOfWorkFactory) Create() UnitOfWork {
	return &memUnitOfWork{store: f.store}
}

type memUnitOfWork struct {
	store *memStore
	begun bool
}

func (u *memUnitOfWork) Begin(ctx context.Context) error {
	if u.store.failAll {
		return fmt.Errorf("%w: store offline", entities.ErrStorageUnavailable)
	}
	u.begun = true
	return nil
}

func (u *memUnitOfWork) Commit() error   { return nil }
func (u *memUnitOfWork) Rollback() error { return nil }

func (u *memUnitOfWork) BalanceRepository() interfaces.BalanceRepository {
	return &memBalanceRepo{store: u.store}
}

func (u *memUnitOfWork) LedgerEntryRepository() interfaces.LedgerEntryRepository {
	return &memLedgerEntryRepo{store: u.store}
}

func (u *memUnitOfWork) SessionRepository() interfaces.SessionRepository {
	return &memSessionRepo{store: u.store}
}

func (u *memUnitOfWork) EventBus() interfaces.EventPublisher {
	return &memPublisher{store: u.store}
}

type memPublisher struct {
	store *memStore
}

func (p *memPublisher) Publish(event events.Event) error {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	p.store.events = append(p.store.events, event)
	return nil
}

type memBalanceRepo struct {
	store *memStore
}

func copyBalance(b *entities.UserBalance) *entities.UserBalance {
	c := *b
	return &c
}

func (r *memBalanceRepo) GetByUserID(ctx context.Context, userID string) (*entities.UserBalance, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	balance, ok := r.store.balances[userID]
	if !ok {
		return nil, nil
	}
	return copyBalance(balance), nil
}

func (r *memBalanceRepo) GetForUpdate(ctx context.Context, userID string) (*entities.UserBalance, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *memBalanceRepo) Create(ctx context.Context, userID string) (*entities.UserBalance, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.balances[userID]; ok {
		return nil, fmt.Errorf("balance for user %s already exists", userID)
	}
	now := time.Now().UTC()
	balance := &entities.UserBalance{UserID: userID, CreatedAt: now, UpdatedAt: now}
	r.store.balances[userID] = balance
	return copyBalance(balance), nil
}

func (r *memBalanceRepo) UpdateTotals(ctx context.Context, balance *entities.UserBalance) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.balances[balance.UserID]; !ok {
		return fmt.Errorf("balance for user %s not found", balance.UserID)
	}
	r.store.balances[balance.UserID] = copyBalance(balance)
	return nil
}

type memLedgerEntryRepo struct {
	store *memStore
}

func (r *memLedgerEntryRepo) Record(ctx context.Context, entry *entities.LedgerEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := entryKey(entry.UserID, entry.Kind, entry.ReferenceID)
	if _, ok := r.store.entries[key]; ok {
		return fmt.Errorf("duplicate ledger entry %s", key)
	}
	c := *entry
	r.store.entries[key] = &c
	return nil
}

func (r *memLedgerEntryRepo) GetByReference(ctx context.Context, userID string, kind entities.EntryKind, referenceID string) (*entities.LedgerEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	entry, ok := r.store.entries[entryKey(userID, kind, referenceID)]
	if !ok {
		return nil, nil
	}
	c := *entry
	return &c, nil
}

func (r *memLedgerEntryRepo) GetByUser(ctx context.Context, userID string, limit int) ([]*entities.LedgerEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var entries []*entities.LedgerEntry
	for _, entry := range r.store.entries {
		if entry.UserID == userID {
			c := *entry
			entries = append(entries, &c)
		}
	}
	return entries, nil
}

type memSessionRepo struct {
	store *memStore
}

func (r *memSessionRepo) Create(ctx context.Context, session *entities.Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *session
	r.store.sessions[session.ID] = &c
	return nil
}

func (r *memSessionRepo) GetByID(ctx context.Context, sessionID string) (*entities.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	session, ok := r.store.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	c := *session
	return &c, nil
}

func (r *memSessionRepo) Close(ctx context.Context, session *entities.Session) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	stored, ok := r.store.sessions[session.ID]
	if !ok || stored.State != entities.SessionStateOpen {
		return false, nil
	}
	c := *session
	r.store.sessions[session.ID] = &c
	return true, nil
}

func (r *memSessionRepo) GetOpenOlderThan(ctx context.Context, cutoff time.Time) ([]*entities.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var sessions []*entities.Session
	for _, session := range r.store.sessions {
		if session.State == entities.SessionStateOpen && session.StartedAt.Before(cutoff) {
			c := *session
			sessions = append(sessions, &c)
		}
	}
	return sessions, nil
}
