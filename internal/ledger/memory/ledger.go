// Package memory provides an in-memory ledger for tests and
// deployments without a database.
package memory

import (
	"context"
	"sync"

	"github.com/passivleads/emailfinder/internal/ledger"
)

// Ledger keeps balances in a map. Unknown users start at zero.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]float64
}

// New returns a Ledger seeded with the given balances.
func New(balances map[string]float64) *Ledger {
	seeded := make(map[string]float64, len(balances))
	for user, balance := range balances {
		seeded[user] = balance
	}
	return &Ledger{balances: seeded}
}

// CheckAndDeduct implements ledger.Ledger.
func (l *Ledger) CheckAndDeduct(_ context.Context, userID string, cost float64, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[userID] < cost {
		return ledger.ErrInsufficientCredits
	}
	l.balances[userID] -= cost
	return nil
}

// Refund implements ledger.Ledger.
func (l *Ledger) Refund(_ context.Context, userID string, cost float64, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += cost
	return nil
}

// Balance reports the current balance for a user.
func (l *Ledger) Balance(userID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}
