package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zakupai/search-core/types"
)

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	t.Parallel()

	b := NewCircuitBreaker(&Config{Threshold: 3, Timeout: time.Second, ResetTimeout: time.Hour}, nil)

	for i := 0; i < 3; i++ {
		err := b.Call(context.Background(), func() error {
			return types.NewError(types.FailureNetwork, "down")
		})
		require.Error(t, err)
	}

	require.Equal(t, StateOpen, b.State())
	require.False(t, b.Healthy())

	err := b.Call(context.Background(), func() error { return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	t.Parallel()

	b := NewCircuitBreaker(&Config{Threshold: 2, Timeout: time.Second, ResetTimeout: time.Hour}, nil)

	for i := 0; i < 5; i++ {
		err := b.Call(context.Background(), func() error {
			return types.NewError(types.FailureValidation, "bad query")
		})
		require.Error(t, err)
	}

	require.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	t.Parallel()

	b := NewCircuitBreaker(&Config{Threshold: 1, Timeout: time.Second, ResetTimeout: 10 * time.Millisecond}, nil)

	err := b.Call(context.Background(), func() error {
		return types.NewError(types.FailureNetwork, "down")
	})
	require.Error(t, err)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	err = b.Call(context.Background(), func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, StateClosed, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := NewCircuitBreaker(&Config{Threshold: 1, ResetTimeout: time.Hour}, nil)
	_ = b.Call(context.Background(), func() error {
		return types.NewError(types.FailureNetwork, "down")
	})
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	require.Equal(t, StateClosed, b.State())
	require.True(t, b.Healthy())
}
