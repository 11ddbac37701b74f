package redisconn

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestConnect_Success(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0

	client, err := Connect(t.Context(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, client.Ping(t.Context()).Err())
}

func TestConnect_FailsOnUnreachableAddr(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.HealthCheckInterval = 0

	_, err := Connect(t.Context(), cfg, nil)
	require.Error(t, err)
}

func TestConnect_HealthCheckLoopStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(t.Context())
	_, err = Connect(ctx, cfg, nil)
	require.NoError(t, err)

	cancel()
	time.Sleep(20 * time.Millisecond)
}
