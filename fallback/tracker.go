package fallback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"metering/domain/entities"
)

// AnonymousUserID mints a local identity for a caller who could not be
// authenticated while the primary systems were down. Usage recorded under it
// replays like any other, against a balance created on first mutation.
func AnonymousUserID() string {
	return "anon-" + uuid.NewString()
}

// LocalTracker mirrors the session tracker contract against the local store.
// Admission is unconditional: with the balance unreadable it errs toward
// letting the user talk, and the billed minutes settle at replay time.
type LocalTracker struct {
	store *Store
}

// NewLocalTracker creates a new local tracker
func NewLocalTracker(store *Store) *LocalTracker {
	return &LocalTracker{store: store}
}

// StartSession opens a session in the local store. An empty userID gets an
// anonymous identity.
func (t *LocalTracker) StartSession(ctx context.Context, userID, characterID string) (*entities.StartSessionResult, error) {
	if userID == "" {
		userID = AnonymousUserID()
	}

	session := &entities.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		CharacterID: characterID,
		State:       entities.SessionStateOpen,
		StartedAt:   time.Now().UTC(),
	}
	if err := t.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create fallback session: %w", err)
	}

	log.WithFields(log.Fields{
		"sessionID": session.ID,
		"userID":    userID,
	}).Warn("Primary store unavailable, session started from fallback")

	return &entities.StartSessionResult{
		SessionID: session.ID,
		CanStart:  true,
	}, nil
}

// EndSession closes a locally tracked session and queues its debit for
// replay under the session id, the same idempotency key an online debit
// would use. Returns SessionNotFound when the local store does not know
// the session or it is already closed.
func (t *LocalTracker) EndSession(ctx context.Context, sessionID string) (*entities.EndSessionResult, error) {
	session, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fallback session: %w", err)
	}
	if session == nil || !session.IsOpen() {
		return nil, entities.ErrSessionNotFound
	}

	if err := session.Close(time.Now().UTC()); err != nil {
		return nil, entities.ErrSessionNotFound
	}

	// The debit queues before the close persists: a failed enqueue leaves
	// the session open for retry, and the session id reference makes a
	// re-enqueue a no-op.
	if err := t.store.EnqueueDebit(ctx, session.UserID, session.MinutesBilled, session.ID); err != nil {
		return nil, fmt.Errorf("failed to queue fallback debit: %w", err)
	}

	closed, err := t.store.CloseSession(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to close fallback session: %w", err)
	}
	if !closed {
		return nil, entities.ErrSessionNotFound
	}

	log.WithFields(log.Fields{
		"sessionID":     sessionID,
		"userID":        session.UserID,
		"minutesBilled": session.MinutesBilled,
	}).Warn("Session ended from fallback, debit queued for replay")

	return &entities.EndSessionResult{
		SessionID:       session.ID,
		DurationSeconds: session.DurationSeconds,
		MinutesBilled:   session.MinutesBilled,
	}, nil
}
