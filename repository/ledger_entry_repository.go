package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"metering/database"
	"metering/domain/entities"

	"github.com/jackc/pgx/v5"
)

// LedgerEntryRepository implements the LedgerEntryRepository interface
type LedgerEntryRepository struct {
	q Queryable
}

// NewLedgerEntryRepository creates a new ledger entry repository
func NewLedgerEntryRepository(db *database.DB) *LedgerEntryRepository {
	return &LedgerEntryRepository{q: db.Pool}
}

// newLedgerEntryRepository creates a new ledger entry repository bound to a transaction
func newLedgerEntryRepository(tx Queryable) *LedgerEntryRepository {
	return &LedgerEntryRepository{q: tx}
}

// Record appends a new ledger entry. The unique constraint on
// (user_id, kind, reference_id) is the idempotency backstop: a concurrent
// duplicate surfaces here as a constraint violation rather than a second
// applied mutation.
func (r *LedgerEntryRepository) Record(ctx context.Context, entry *entities.LedgerEntry) error {
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal entry metadata: %w", err)
	}

	query := `
		INSERT INTO ledger_entries
		(id, user_id, kind, amount, amount_applied, reference_id, balance_before, resulting_balance, metadata, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.q.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Kind,
		entry.Amount,
		entry.AmountApplied,
		entry.ReferenceID,
		entry.BalanceBefore,
		entry.ResultingBalance,
		metadataJSON,
		entry.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record ledger entry for user %s ref %s: %w", entry.UserID, entry.ReferenceID, err)
	}

	return nil
}

// GetByReference returns the entry for a (user, kind, reference) triple,
// nil if the reference has not been applied yet
func (r *LedgerEntryRepository) GetByReference(ctx context.Context, userID string, kind entities.EntryKind, referenceID string) (*entities.LedgerEntry, error) {
	query := `
		SELECT id, user_id, kind, amount, amount_applied, reference_id, balance_before, resulting_balance, metadata, applied_at
		FROM ledger_entries
		WHERE user_id = $1 AND kind = $2 AND reference_id = $3
	`

	entry, err := scanLedgerEntry(r.q.QueryRow(ctx, query, userID, kind, referenceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry for user %s ref %s: %w", userID, referenceID, err)
	}

	return entry, nil
}

// GetByUser returns the most recent entries for a user
func (r *LedgerEntryRepository) GetByUser(ctx context.Context, userID string, limit int) ([]*entities.LedgerEntry, error) {
	query := `
		SELECT id, user_id, kind, amount, amount_applied, reference_id, balance_before, resulting_balance, metadata, applied_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY applied_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries for user %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []*entities.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}

	return entries, nil
}

func scanLedgerEntry(row pgx.Row) (*entities.LedgerEntry, error) {
	var entry entities.LedgerEntry
	var metadataJSON []byte

	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.Kind,
		&entry.Amount,
		&entry.AmountApplied,
		&entry.ReferenceID,
		&entry.BalanceBefore,
		&entry.ResultingBalance,
		&metadataJSON,
		&entry.AppliedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry metadata: %w", err)
		}
	}

	return &entry, nil
}
