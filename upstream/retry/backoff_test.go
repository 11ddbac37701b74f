package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zakupai/search-core/types"
)

func TestBackoffRetryer_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	policy := &Policy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}
	r := NewBackoffRetryer(policy, nil)

	attempts := 0
	err := r.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return types.NewError(types.FailureNetwork, "connect refused")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestBackoffRetryer_NonRetryableFailsFast(t *testing.T) {
	t.Parallel()

	r := NewBackoffRetryer(&Policy{MaxRetries: 3, InitialDelay: time.Millisecond}, nil)

	attempts := 0
	err := r.Do(context.Background(), func() error {
		attempts++
		return types.NewError(types.FailureUnauthorized, "bad token")
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestBackoffRetryer_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	r := NewBackoffRetryer(&Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, nil)

	attempts := 0
	err := r.Do(context.Background(), func() error {
		attempts++
		return types.NewError(types.FailureNetwork, "timeout")
	})

	require.Error(t, err)
	require.Equal(t, 3, attempts) // initial + 2 retries
}

func TestBackoffRetryer_RespectsContextCancellation(t *testing.T) {
	t.Parallel()

	r := NewBackoffRetryer(&Policy{MaxRetries: 5, InitialDelay: 50 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, func() error {
		return types.NewError(types.FailureNetwork, "slow")
	})

	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}
