// Package system exercises the real-time clock adapter.
package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestClockNowUTC ensures the clock returns UTC timestamps.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	require.NotNil(t, clk)

	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.False(t, got.Before(before) || got.After(after))
}
