package repository

import (
	"context"
	"errors"
	"fmt"

	"metering/database"
	"metering/domain/entities"

	"github.com/jackc/pgx/v5"
)

// BalanceRepository implements the BalanceRepository interface
type BalanceRepository struct {
	q Queryable
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *database.DB) *BalanceRepository {
	return &BalanceRepository{q: db.Pool}
}

// newBalanceRepository creates a new balance repository bound to a transaction
func newBalanceRepository(tx Queryable) *BalanceRepository {
	return &BalanceRepository{q: tx}
}

const balanceColumns = `user_id, remaining_minutes, total_purchased, total_consumed, created_at, updated_at`

// GetByUserID retrieves a balance by user ID, nil if none exists
func (r *BalanceRepository) GetByUserID(ctx context.Context, userID string) (*entities.UserBalance, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_balances WHERE user_id = $1`, balanceColumns)
	return r.scanOne(ctx, query, userID)
}

// GetForUpdate retrieves a balance holding a row lock until the enclosing
// transaction finishes, nil if none exists
func (r *BalanceRepository) GetForUpdate(ctx context.Context, userID string) (*entities.UserBalance, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_balances WHERE user_id = $1 FOR UPDATE`, balanceColumns)
	return r.scanOne(ctx, query, userID)
}

func (r *BalanceRepository) scanOne(ctx context.Context, query, userID string) (*entities.UserBalance, error) {
	var balance entities.UserBalance
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&balance.UserID,
		&balance.RemainingMinutes,
		&balance.TotalPurchased,
		&balance.TotalConsumed,
		&balance.CreatedAt,
		&balance.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for user %s: %w", userID, err)
	}

	return &balance, nil
}

// Create creates a zeroed balance for a user
func (r *BalanceRepository) Create(ctx context.Context, userID string) (*entities.UserBalance, error) {
	query := `
		INSERT INTO user_balances (user_id)
		VALUES ($1)
		RETURNING user_id, remaining_minutes, total_purchased, total_consumed, created_at, updated_at
	`

	var balance entities.UserBalance
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&balance.UserID,
		&balance.RemainingMinutes,
		&balance.TotalPurchased,
		&balance.TotalConsumed,
		&balance.CreatedAt,
		&balance.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create balance for user %s: %w", userID, err)
	}

	return &balance, nil
}

// UpdateTotals writes the balance counters atomically
func (r *BalanceRepository) UpdateTotals(ctx context.Context, balance *entities.UserBalance) error {
	query := `
		UPDATE user_balances
		SET remaining_minutes = $1, total_purchased = $2, total_consumed = $3, updated_at = NOW()
		WHERE user_id = $4
	`
	result, err := r.q.Exec(ctx, query,
		balance.RemainingMinutes,
		balance.TotalPurchased,
		balance.TotalConsumed,
		balance.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance for user %s: %w", balance.UserID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("balance for user %s not found", balance.UserID)
	}

	return nil
}
