package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSlidingWindowLimiter_RejectsAfterN(t *testing.T) {
	t.Parallel()

	l := NewSlidingWindowLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow("user-1"), "request %d should be allowed", i+1)
	}
	require.False(t, l.Allow("user-1"), "4th request should be rejected")
	require.Equal(t, 0, l.Remaining("user-1"))
}

func TestSlidingWindowLimiter_PerKeyIsolation(t *testing.T) {
	t.Parallel()

	l := NewSlidingWindowLimiter(1, time.Minute)
	require.True(t, l.Allow("user-1"))
	require.True(t, l.Allow("user-2"))
	require.False(t, l.Allow("user-1"))
}

func TestSlidingWindowLimiter_WindowExpires(t *testing.T) {
	t.Parallel()

	l := NewSlidingWindowLimiter(1, 20*time.Millisecond)
	require.True(t, l.Allow("user-1"))
	require.False(t, l.Allow("user-1"))

	time.Sleep(30 * time.Millisecond)
	require.True(t, l.Allow("user-1"))
}

func TestSlidingWindowLimiter_Reset(t *testing.T) {
	t.Parallel()

	l := NewSlidingWindowLimiter(1, time.Minute)
	require.True(t, l.Allow("user-1"))
	require.False(t, l.Allow("user-1"))

	l.Reset("user-1")
	require.True(t, l.Allow("user-1"))
}

func TestOperationLimiter_OnePerSecond(t *testing.T) {
	t.Parallel()

	l := NewOperationLimiter(1, 1)
	require.True(t, l.Allow("user-1"))
	require.False(t, l.Allow("user-1"))
}

func TestOperationLimiter_PerKeyIsolation(t *testing.T) {
	t.Parallel()

	l := NewOperationLimiter(1, 1)
	require.True(t, l.Allow("user-1"))
	require.True(t, l.Allow("user-2"))
}
