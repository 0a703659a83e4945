// Package postgres provides a Postgres-backed credit ledger.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/passivleads/emailfinder/internal/ledger"
)

// Config controls the Postgres connection pool used for credits.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Ledger debits and credits the user_credits table.
type Ledger struct {
	pool execCloser
}

// New creates a Postgres-backed Ledger using the provided config.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Ledger{pool: pool}, nil
}

// NewWithPool constructs a Ledger from an existing pool (primarily for testing).
func NewWithPool(pool execCloser) (*Ledger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Ledger{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (l *Ledger) Close() {
	if l == nil || l.pool == nil {
		return
	}
	l.pool.Close()
}

// CheckAndDeduct implements ledger.Ledger. The balance guard lives in
// the UPDATE predicate so the check and the deduction are one atomic
// statement.
func (l *Ledger) CheckAndDeduct(ctx context.Context, userID string, cost float64, memo string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	tag, err := l.pool.Exec(ctx, `
UPDATE user_credits
SET balance = balance - $2, updated_at = now()
WHERE user_id = $1 AND balance >= $2`,
		userID, cost)
	if err != nil {
		return fmt.Errorf("deduct credits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrInsufficientCredits
	}
	l.record(ctx, userID, -cost, memo)
	return nil
}

// Refund implements ledger.Ledger.
func (l *Ledger) Refund(ctx context.Context, userID string, cost float64, reason string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if _, err := l.pool.Exec(ctx, `
UPDATE user_credits
SET balance = balance + $2, updated_at = now()
WHERE user_id = $1`,
		userID, cost); err != nil {
		return fmt.Errorf("refund credits: %w", err)
	}
	l.record(ctx, userID, cost, reason)
	return nil
}

// record appends to the advisory transaction log. Log failures do not
// undo the balance change.
func (l *Ledger) record(ctx context.Context, userID string, amount float64, memo string) {
	_, _ = l.pool.Exec(ctx, `
INSERT INTO credit_transactions (user_id, amount, memo, created_at)
VALUES ($1, $2, $3, now())`,
		userID, amount, memo)
}
