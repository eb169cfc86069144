package application

import (
	"context"
	"fmt"
	"time"

	"metering/domain/entities"
	"metering/domain/events"
	"metering/domain/interfaces"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SessionTracker manages the lifecycle of metered voice sessions. Admission
// is advisory: the balance is read at start time with no hold placed on it,
// so two concurrent starts against a one-minute balance can both be
// admitted. That bounded overspend is an accepted tradeoff, not a bug.
type SessionTracker struct {
	uowFactory UnitOfWorkFactory
	gateway    interfaces.LedgerGateway
	publisher  interfaces.EventPublisher
}

// NewSessionTracker creates a new session tracker
func NewSessionTracker(uowFactory UnitOfWorkFactory, gateway interfaces.LedgerGateway, publisher interfaces.EventPublisher) *SessionTracker {
	return &SessionTracker{
		uowFactory: uowFactory,
		gateway:    gateway,
		publisher:  publisher,
	}
}

// StartSession checks the user's balance and opens a session when minutes
// remain. A user with nothing left is refused, not errored.
func (t *SessionTracker) StartSession(ctx context.Context, userID, characterID string) (*entities.StartSessionResult, error) {
	balance, err := t.gateway.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check balance for user %s: %w", userID, err)
	}

	if !balance.CanStartSession() {
		log.WithFields(log.Fields{
			"userID":    userID,
			"remaining": balance.RemainingMinutes,
		}).Info("Session refused, no minutes remaining")
		return &entities.StartSessionResult{
			CanStart:         false,
			RemainingMinutes: balance.RemainingMinutes,
		}, nil
	}

	session := &entities.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		CharacterID: characterID,
		State:       entities.SessionStateOpen,
		StartedAt:   time.Now().UTC(),
	}

	uow := t.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, mapStorageError(err)
	}
	defer uow.Rollback()

	if err := uow.SessionRepository().Create(ctx, session); err != nil {
		return nil, mapStorageError(err)
	}

	event := events.SessionStartedEvent{
		SessionID:        session.ID,
		UserID:           userID,
		CharacterID:      characterID,
		RemainingMinutes: balance.RemainingMinutes,
	}
	if err := uow.EventBus().Publish(event); err != nil {
		log.WithError(err).Warn("Failed to publish session started event")
	}

	if err := uow.Commit(); err != nil {
		return nil, mapStorageError(err)
	}

	log.WithFields(log.Fields{
		"sessionID":   session.ID,
		"userID":      userID,
		"characterID": characterID,
	}).Info("Session started")

	return &entities.StartSessionResult{
		SessionID:        session.ID,
		CanStart:         true,
		RemainingMinutes: balance.RemainingMinutes,
	}, nil
}

// EndSession closes the session exactly once, computes the billed minutes
// and debits the balance keyed by the session id. Ending an already closed
// session re-issues the same keyed debit: a close whose debit never landed
// settles on the retry, and a genuine double end returns the first result
// unchanged.
func (t *SessionTracker) EndSession(ctx context.Context, sessionID string) (*entities.EndSessionResult, error) {
	uow := t.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, mapStorageError(err)
	}
	defer uow.Rollback()

	session, err := uow.SessionRepository().GetByID(ctx, sessionID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if session == nil {
		return nil, entities.ErrSessionNotFound
	}
	if !session.IsOpen() {
		return t.settle(ctx, session)
	}

	if err := session.Close(time.Now().UTC()); err != nil {
		return nil, entities.ErrSessionNotFound
	}

	closed, err := uow.SessionRepository().Close(ctx, session)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if !closed {
		// Lost the race against a concurrent end; the winner's settle
		// path owns the debit for this session id.
		return nil, entities.ErrSessionNotFound
	}

	if err := uow.Commit(); err != nil {
		return nil, mapStorageError(err)
	}

	return t.settle(ctx, session)
}

// settle debits the closed session's billed minutes, keyed by the session
// id. The ended event fires only when this call applied the debit, not when
// a recorded outcome came back.
func (t *SessionTracker) settle(ctx context.Context, session *entities.Session) (*entities.EndSessionResult, error) {
	debit, err := t.gateway.Debit(ctx, session.UserID, session.MinutesBilled, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to debit session %s: %w", session.ID, err)
	}

	result := &entities.EndSessionResult{
		SessionID:        session.ID,
		DurationSeconds:  session.DurationSeconds,
		MinutesBilled:    session.MinutesBilled,
		RemainingMinutes: debit.RemainingMinutes,
	}

	if debit.Duplicate {
		return result, nil
	}

	event := events.SessionEndedEvent{
		SessionID:        session.ID,
		UserID:           session.UserID,
		DurationSeconds:  result.DurationSeconds,
		MinutesBilled:    result.MinutesBilled,
		RemainingMinutes: result.RemainingMinutes,
	}
	if err := t.publisher.Publish(event); err != nil {
		log.WithError(err).Warn("Failed to publish session ended event")
	}

	log.WithFields(log.Fields{
		"sessionID":     session.ID,
		"userID":        session.UserID,
		"durationSec":   session.DurationSeconds,
		"minutesBilled": session.MinutesBilled,
		"remaining":     debit.RemainingMinutes,
	}).Info("Session ended")

	return result, nil
}
