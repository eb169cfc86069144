package repository

import (
	"context"
	"testing"

	"metering/domain/entities"
	"metering/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerEntryRepository_Record(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLedgerEntryRepository(testDB.DB)
	ctx := context.Background()

	t.Run("records entry", func(t *testing.T) {
		entry := testutil.CreateTestLedgerEntry("user-1", entities.EntryKindCredit, 80, "pay_1")
		require.NoError(t, repo.Record(ctx, entry))

		loaded, err := repo.GetByReference(ctx, "user-1", entities.EntryKindCredit, "pay_1")
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, entry.ID, loaded.ID)
		assert.Equal(t, int64(80), loaded.Amount)
		assert.Equal(t, int64(80), loaded.AmountApplied)
		assert.Equal(t, true, loaded.Metadata["test"])
	})

	t.Run("duplicate reference rejected", func(t *testing.T) {
		first := testutil.CreateTestLedgerEntry("user-2", entities.EntryKindDebit, 3, "sess_1")
		require.NoError(t, repo.Record(ctx, first))

		second := testutil.CreateTestLedgerEntry("user-2", entities.EntryKindDebit, 3, "sess_1")
		err := repo.Record(ctx, second)
		assert.Error(t, err)
	})

	t.Run("same reference different kind allowed", func(t *testing.T) {
		// A debit and a credit can share a reference id without colliding
		debit := testutil.CreateTestLedgerEntry("user-3", entities.EntryKindDebit, 3, "ref_1")
		require.NoError(t, repo.Record(ctx, debit))

		credit := testutil.CreateTestLedgerEntry("user-3", entities.EntryKindCredit, 3, "ref_1")
		require.NoError(t, repo.Record(ctx, credit))
	})

	t.Run("same reference different user allowed", func(t *testing.T) {
		first := testutil.CreateTestLedgerEntry("user-4", entities.EntryKindDebit, 3, "shared")
		require.NoError(t, repo.Record(ctx, first))

		second := testutil.CreateTestLedgerEntry("user-5", entities.EntryKindDebit, 3, "shared")
		require.NoError(t, repo.Record(ctx, second))
	})
}

func TestLedgerEntryRepository_GetByReference(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLedgerEntryRepository(testDB.DB)
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		entry, err := repo.GetByReference(ctx, "user-1", entities.EntryKindDebit, "missing")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})
}

func TestLedgerEntryRepository_GetByUser(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLedgerEntryRepository(testDB.DB)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, testutil.CreateTestLedgerEntry("user-1", entities.EntryKindCredit, 80, "pay_1")))
	require.NoError(t, repo.Record(ctx, testutil.CreateTestLedgerEntry("user-1", entities.EntryKindDebit, 3, "sess_1")))
	require.NoError(t, repo.Record(ctx, testutil.CreateTestLedgerEntry("user-2", entities.EntryKindCredit, 10, "pay_2")))

	entries, err := repo.GetByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	limited, err := repo.GetByUser(ctx, "user-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	empty, err := repo.GetByUser(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
