// Package ledger tracks per-user credit balances for billable
// operations. A batch deducts once before dispatch; per-row work is
// never billed individually.
package ledger

import (
	"context"
	"errors"
)

// ErrInsufficientCredits is returned when a deduction would take the
// balance below zero.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Ledger debits and credits user balances.
type Ledger interface {
	// CheckAndDeduct atomically verifies the balance covers cost and
	// deducts it, recording memo. Returns ErrInsufficientCredits when
	// the balance is too low; no partial deduction occurs.
	CheckAndDeduct(ctx context.Context, userID string, cost float64, memo string) error
	// Refund returns cost to the user's balance, recording reason.
	Refund(ctx context.Context, userID string, cost float64, reason string) error
}

// Noop accepts every operation. Used when billing is disabled.
type Noop struct{}

// CheckAndDeduct implements Ledger.
func (Noop) CheckAndDeduct(context.Context, string, float64, string) error { return nil }

// Refund implements Ledger.
func (Noop) Refund(context.Context, string, float64, string) error { return nil }
