package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsBurstPerClient(t *testing.T) {
	t.Parallel()

	l, err := New(Config{PerMinute: 2})
	require.NoError(t, err)

	require.True(t, l.Allow("10.0.0.1"))
	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))

	require.True(t, l.Allow("10.0.0.2"), "other clients keep their own bucket")
	require.Equal(t, 2, l.Clients())
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l, err := New(Config{})
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		require.True(t, l.Allow("client"))
	}
	require.Zero(t, l.Clients())
}

func TestLimiterEvictsIdleClients(t *testing.T) {
	t.Parallel()

	l, err := New(Config{PerMinute: 1, MaxClients: 2})
	require.NoError(t, err)

	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
	require.True(t, l.Allow("b"))
	require.True(t, l.Allow("c"))
	require.Equal(t, 2, l.Clients())

	// "a" was evicted, so it starts over with a full bucket.
	require.True(t, l.Allow("a"))
}
