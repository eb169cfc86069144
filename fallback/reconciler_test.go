package fallback

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"metering/domain/entities"
	"metering/domain/testhelpers"
)

func newReconcilerFixture(t *testing.T) (*Reconciler, *Store, *testhelpers.MockLedgerGateway) {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "fallback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gateway := &testhelpers.MockLedgerGateway{}
	reconciler := NewReconciler(store, gateway, nil, time.Second)
	return reconciler, store, gateway
}

func TestReconciler_ReplaysAndDeletes(t *testing.T) {
	t.Parallel()
	reconciler, store, gateway := newReconcilerFixture(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueCredit(ctx, "user-1", 80, "pay_1"))
	require.NoError(t, store.EnqueueDebit(ctx, "user-1", 3, "sess_1"))

	gateway.On("Credit", mock.Anything, "user-1", int64(80), "pay_1").
		Return(&entities.CreditResult{RemainingMinutes: 80}, nil)
	gateway.On("Debit", mock.Anything, "user-1", int64(3), "sess_1").
		Return(&entities.DebitResult{RemainingMinutes: 77, AmountApplied: 3}, nil)

	require.NoError(t, reconciler.ReplayPending(ctx))

	count, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	gateway.AssertExpectations(t)
}

func TestReconciler_DuplicateReplayStillDrains(t *testing.T) {
	t.Parallel()
	reconciler, store, gateway := newReconcilerFixture(t)
	ctx := context.Background()

	// The op landed online before the outage was noticed; replay comes
	// back suppressed and the row still drains.
	require.NoError(t, store.EnqueueDebit(ctx, "user-1", 3, "sess_1"))

	gateway.On("Debit", mock.Anything, "user-1", int64(3), "sess_1").
		Return(&entities.DebitResult{RemainingMinutes: 77, AmountApplied: 3, Duplicate: true}, nil)

	require.NoError(t, reconciler.ReplayPending(ctx))

	count, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestReconciler_StopsWhileStorageDown(t *testing.T) {
	t.Parallel()
	reconciler, store, gateway := newReconcilerFixture(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueDebit(ctx, "user-1", 3, "sess_1"))
	require.NoError(t, store.EnqueueCredit(ctx, "user-2", 10, "pay_2"))

	gateway.On("Debit", mock.Anything, "user-1", int64(3), "sess_1").
		Return(nil, entities.ErrStorageUnavailable)

	require.NoError(t, reconciler.ReplayPending(ctx))

	// Nothing was deleted; the round stopped at the first unreachable op
	count, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	gateway.AssertNotCalled(t, "Credit", mock.Anything, "user-2", int64(10), "pay_2")
}

func TestReconciler_TransientErrorKeepsOpQueued(t *testing.T) {
	t.Parallel()
	reconciler, store, gateway := newReconcilerFixture(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueDebit(ctx, "user-1", 3, "sess_1"))
	require.NoError(t, store.EnqueueCredit(ctx, "user-2", 10, "pay_2"))

	gateway.On("Debit", mock.Anything, "user-1", int64(3), "sess_1").
		Return(nil, assertableErr("transient"))
	gateway.On("Credit", mock.Anything, "user-2", int64(10), "pay_2").
		Return(&entities.CreditResult{RemainingMinutes: 10}, nil)

	require.NoError(t, reconciler.ReplayPending(ctx))

	// The failed op stays, the successful one drains
	ops, err := store.PendingOps(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "sess_1", ops[0].ReferenceID)
}

func TestReconciler_EmptyQueueIsNoop(t *testing.T) {
	t.Parallel()
	reconciler, _, gateway := newReconcilerFixture(t)

	require.NoError(t, reconciler.ReplayPending(context.Background()))
	gateway.AssertNotCalled(t, "Debit")
	gateway.AssertNotCalled(t, "Credit")
}

type assertableErr string

func (e assertableErr) Error() string { return string(e) }
