package fallback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"metering/domain/entities"
)

// OpKind identifies the type of a queued balance operation
type OpKind string

const (
	OpKindDebit  OpKind = "debit"
	OpKindCredit OpKind = "credit"
)

// PendingOp is a balance mutation captured while the primary store was
// unreachable. ReferenceID carries the same idempotency key the mutation
// would have used online, so replaying an op that already landed is safe.
type PendingOp struct {
	ID          int64
	UserID      string
	Kind        OpKind
	Amount      int64
	ReferenceID string
	CreatedAt   time.Time
}

// Store is the local SQLite cache used when the primary store is down.
// It holds sessions started offline and the queue of balance operations
// awaiting replay.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite store at the given path.
func NewStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create fallback directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// The reconciler and request handlers share this store
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS local_sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	character_id TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL CHECK(state IN ('open','closed')),
	started_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	minutes_billed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_local_sessions_user ON local_sessions(user_id);

CREATE TABLE IF NOT EXISTS pending_ops (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL CHECK(kind IN ('debit','credit')),
	amount INTEGER NOT NULL,
	reference_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(user_id, kind, reference_id)
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession stores a session opened while the primary store was down.
func (s *Store) CreateSession(ctx context.Context, session *entities.Session) error {
	if session.ID == "" || session.UserID == "" {
		return errors.New("fallback session requires id and user id")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO local_sessions(id, user_id, character_id, state, started_at)
VALUES(?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.CharacterID,
		string(session.State),
		session.StartedAt,
	)
	return err
}

// GetSession returns a locally tracked session, or nil when unknown.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*entities.Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, character_id, state, started_at, ended_at, duration_seconds, minutes_billed
FROM local_sessions
WHERE id = ?`, sessionID)

	var session entities.Session
	var state string
	var endedAt sql.NullTime
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.CharacterID,
		&state,
		&session.StartedAt,
		&endedAt,
		&session.DurationSeconds,
		&session.MinutesBilled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	session.State = entities.SessionState(state)
	if endedAt.Valid {
		t := endedAt.Time
		session.EndedAt = &t
	}
	return &session, nil
}

// CloseSession marks an open local session closed. Returns false when the
// session was already closed or does not exist.
func (s *Store) CloseSession(ctx context.Context, session *entities.Session) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
UPDATE local_sessions
SET state = 'closed', ended_at = ?, duration_seconds = ?, minutes_billed = ?
WHERE id = ? AND state = 'open'`,
		session.EndedAt,
		session.DurationSeconds,
		session.MinutesBilled,
		session.ID,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// EnqueueDebit queues a debit for replay. Re-queueing the same reference is
// a no-op, mirroring the primary ledger's idempotency rule.
func (s *Store) EnqueueDebit(ctx context.Context, userID string, amount int64, referenceID string) error {
	return s.enqueue(ctx, userID, OpKindDebit, amount, referenceID)
}

// EnqueueCredit queues a credit for replay.
func (s *Store) EnqueueCredit(ctx context.Context, userID string, amount int64, referenceID string) error {
	return s.enqueue(ctx, userID, OpKindCredit, amount, referenceID)
}

func (s *Store) enqueue(ctx context.Context, userID string, kind OpKind, amount int64, referenceID string) error {
	if userID == "" || referenceID == "" {
		return errors.New("pending op requires user id and reference id")
	}
	if amount <= 0 {
		return entities.ErrInvalidAmount
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO pending_ops(user_id, kind, amount, reference_id)
VALUES(?, ?, ?, ?)
ON CONFLICT(user_id, kind, reference_id) DO NOTHING`,
		userID,
		string(kind),
		amount,
		referenceID,
	)
	return err
}

// PendingOps returns queued operations in admission order.
func (s *Store) PendingOps(ctx context.Context, limit int) ([]PendingOp, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, kind, amount, reference_id, created_at
FROM pending_ops
ORDER BY id
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []PendingOp
	for rows.Next() {
		var op PendingOp
		var kind string
		if err := rows.Scan(&op.ID, &op.UserID, &kind, &op.Amount, &op.ReferenceID, &op.CreatedAt); err != nil {
			return nil, err
		}
		op.Kind = OpKind(kind)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// DeleteOp removes a replayed operation from the queue.
func (s *Store) DeleteOp(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_ops WHERE id = ?`, id)
	return err
}

// PendingCount returns the number of operations awaiting replay.
func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_ops`).Scan(&count)
	return count, err
}
