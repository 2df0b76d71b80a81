package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainvest/chainvest/service/ledger"
)

// Schema for the deposit ledger. Applied idempotently on startup so a
// fresh database works without a separate migration step.
const schema = `
CREATE TABLE IF NOT EXISTS deposits (
    txid        TEXT PRIMARY KEY,
    amount_sats BIGINT NOT NULL CHECK (amount_sats > 0),
    credited_at TIMESTAMPTZ NOT NULL
);
`

// NewPool creates a connection pool and verifies it with a ping.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Store persists the deposit ledger in Postgres. It satisfies
// ledger.Store; the txid primary key enforces the once-per-transaction
// credit at the database level, so multiple server instances can share
// one ledger safely.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store over the given pool and ensures the schema
// exists.
func NewStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Load returns the full account state: every credited deposit in credit
// order plus the balance derived from them.
func (s *Store) Load(ctx context.Context) (*ledger.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT txid, amount_sats, credited_at FROM deposits ORDER BY credited_at, txid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query deposits: %w", err)
	}
	defer rows.Close()

	account := &ledger.Account{Deposits: []ledger.Deposit{}}
	for rows.Next() {
		var d ledger.Deposit
		var creditedAt time.Time
		if err := rows.Scan(&d.TxID, &d.AmountSats, &creditedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deposit row: %w", err)
		}
		d.CreditedAt = creditedAt.UTC()
		account.Deposits = append(account.Deposits, d)
		account.BalanceSats += d.AmountSats
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read deposit rows: %w", err)
	}
	return account, nil
}

// Commit credits a deposit exactly once. A conflicting txid is a no-op
// and reports credited=false.
func (s *Store) Commit(ctx context.Context, deposit ledger.Deposit) (bool, error) {
	if err := deposit.Validate(); err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO deposits (txid, amount_sats, credited_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (txid) DO NOTHING`,
		deposit.TxID, deposit.AmountSats, deposit.CreditedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert deposit %s: %w", deposit.TxID, err)
	}

	credited := tag.RowsAffected() == 1
	if credited {
		s.logger.DebugContext(ctx, "deposit committed",
			"txid", deposit.TxID,
			"amount_sats", deposit.AmountSats)
	}
	return credited, nil
}

// Snapshot returns a point-in-time copy of the account. For Postgres a
// single query is already consistent, so it is the same as Load.
func (s *Store) Snapshot(ctx context.Context) (*ledger.Account, error) {
	return s.Load(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
