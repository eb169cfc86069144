package fallback

import (
	"context"
	"errors"
	"time"

	"metering/domain/entities"
	"metering/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// MetricsRecorder receives reconciliation counters. A nil recorder
// disables metrics.
type MetricsRecorder interface {
	RecordFallbackReplay(ctx context.Context, outcome string)
	UpdateFallbackPending(ctx context.Context, delta int64)
}

// Reconciler periodically replays queued fallback operations through the
// ledger gateway once the primary store is reachable again. Each operation
// keeps its original reference id, so an op that actually landed before the
// outage was detected comes back as a suppressed duplicate rather than a
// double mutation. A row is deleted only after its replay succeeds.
type Reconciler struct {
	store    *Store
	gateway  interfaces.LedgerGateway
	metrics  MetricsRecorder
	interval time.Duration
	batch    int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReconciler creates a new reconciler
func NewReconciler(store *Store, gateway interfaces.LedgerGateway, metrics MetricsRecorder, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		store:    store,
		gateway:  gateway,
		metrics:  metrics,
		interval: interval,
		batch:    100,
	}
}

// Start launches the replay loop in a background goroutine
func (r *Reconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.ReplayPending(ctx); err != nil {
					log.WithError(err).Warn("Fallback replay round failed")
				}
			}
		}
	}()
}

// Stop shuts down the replay loop and waits for the current round to finish
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

// ReplayPending replays one batch of queued operations. It stops early when
// the primary store is still unreachable; everything left stays queued for
// the next round.
func (r *Reconciler) ReplayPending(ctx context.Context) error {
	ops, err := r.store.PendingOps(ctx, r.batch)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	log.WithField("pending", len(ops)).Info("Replaying fallback operations")

	for _, op := range ops {
		duplicate, err := r.replay(ctx, op)
		if err != nil {
			if errors.Is(err, entities.ErrStorageUnavailable) {
				// Primary still down, try again next round
				return nil
			}
			if errors.Is(err, entities.ErrInvalidAmount) {
				// A corrupt row can never replay; drop it rather than
				// wedge the queue
				log.WithFields(log.Fields{
					"opID":      op.ID,
					"userID":    op.UserID,
					"kind":      op.Kind,
					"amount":    op.Amount,
					"reference": op.ReferenceID,
				}).Error("Dropping unreplayable fallback operation")
				r.recordReplay(ctx, "invalid")
			} else {
				log.WithError(err).WithFields(log.Fields{
					"opID":      op.ID,
					"reference": op.ReferenceID,
				}).Warn("Fallback replay failed, keeping op queued")
				continue
			}
		} else if duplicate {
			r.recordReplay(ctx, "duplicate")
		} else {
			r.recordReplay(ctx, "applied")
		}

		if err := r.store.DeleteOp(ctx, op.ID); err != nil {
			return err
		}
		if r.metrics != nil {
			r.metrics.UpdateFallbackPending(ctx, -1)
		}
	}

	return nil
}

func (r *Reconciler) replay(ctx context.Context, op PendingOp) (duplicate bool, err error) {
	switch op.Kind {
	case OpKindDebit:
		result, err := r.gateway.Debit(ctx, op.UserID, op.Amount, op.ReferenceID)
		if err != nil {
			return false, err
		}
		return result.Duplicate, nil
	case OpKindCredit:
		result, err := r.gateway.Credit(ctx, op.UserID, op.Amount, op.ReferenceID)
		if err != nil {
			return false, err
		}
		return result.Duplicate, nil
	default:
		return false, entities.ErrInvalidAmount
	}
}

func (r *Reconciler) recordReplay(ctx context.Context, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordFallbackReplay(ctx, outcome)
	}
}
