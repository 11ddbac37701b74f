package upstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zakupai/search-core/types"
	"github.com/zakupai/search-core/upstream/circuitbreaker"
	"github.com/zakupai/search-core/upstream/retry"
)

type fakeClient struct {
	name  string
	calls int
	fail  int
	err   error
	lots  []types.LotResult
}

func (f *fakeClient) Name() string  { return f.name }
func (f *fakeClient) Healthy() bool { return true }

func (f *fakeClient) SearchByFilters(ctx context.Context, q types.SearchQuery) ([]types.LotResult, error) {
	f.calls++
	if f.calls <= f.fail {
		return nil, f.err
	}
	return f.lots, nil
}

func (f *fakeClient) GetLotByNumber(ctx context.Context, lotNumber string) (*types.LotResult, error) {
	return nil, nil
}

func TestResilient_RecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{
		name: "gql_v2",
		fail: 1,
		err:  types.NewError(types.FailureNetwork, "connect refused"),
		lots: []types.LotResult{{LotName: "lot", Source: "gql_v2"}},
	}
	r := NewResilient(fc, &retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}, nil, nil)

	lots, err := r.SearchByFilters(context.Background(), types.SearchQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	require.True(t, r.Healthy())
}

func TestResilient_TripsBreakerAndTagsClient(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{
		name: "rest_v3",
		fail: 100,
		err:  types.NewError(types.FailureNetwork, "down"),
	}
	r := NewResilient(
		fc,
		&retry.Policy{MaxRetries: 0, InitialDelay: time.Millisecond},
		&circuitbreaker.Config{Threshold: 2, Timeout: time.Second, ResetTimeout: time.Hour},
		nil,
	)

	for i := 0; i < 2; i++ {
		_, err := r.SearchByFilters(context.Background(), types.SearchQuery{Limit: 10})
		require.Error(t, err)
	}
	require.False(t, r.Healthy())

	_, err := r.SearchByFilters(context.Background(), types.SearchQuery{Limit: 10})
	require.Error(t, err)
	se, ok := err.(*types.SearchError)
	require.True(t, ok)
	require.Equal(t, "rest_v3", se.Client)
}
