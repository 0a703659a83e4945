package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/passivleads/emailfinder/internal/ledger"
)

func TestCheckAndDeduct(t *testing.T) {
	t.Parallel()

	l := New(map[string]float64{"alice": 1.0})

	require.NoError(t, l.CheckAndDeduct(context.Background(), "alice", 0.4, "batch"))
	require.InDelta(t, 0.6, l.Balance("alice"), 1e-9)

	err := l.CheckAndDeduct(context.Background(), "alice", 0.7, "batch")
	require.ErrorIs(t, err, ledger.ErrInsufficientCredits)
	require.InDelta(t, 0.6, l.Balance("alice"), 1e-9)
}

func TestUnknownUserStartsAtZero(t *testing.T) {
	t.Parallel()

	l := New(nil)
	err := l.CheckAndDeduct(context.Background(), "nobody", 0.01, "batch")
	require.ErrorIs(t, err, ledger.ErrInsufficientCredits)
}

func TestRefund(t *testing.T) {
	t.Parallel()

	l := New(map[string]float64{"alice": 0.5})
	require.NoError(t, l.Refund(context.Background(), "alice", 0.25, "job failed"))
	require.InDelta(t, 0.75, l.Balance("alice"), 1e-9)
}
