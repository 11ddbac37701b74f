package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zakupai/search-core/types"
)

func TestNewClient_EmptyURLReturnsNil(t *testing.T) {
	t.Parallel()
	require.Nil(t, NewClient("", time.Second, nil))
}

func TestSearchByFilters_AcceptsResultsVerbatimAndStampsSource(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req relayRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "лак", req.Query)
		require.Equal(t, 10, req.Limit)

		json.NewEncoder(w).Encode(relayResponse{Results: []types.LotResult{{LotName: "Лак", Amount: 1}}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	results, err := c.SearchByFilters(t.Context(), types.SearchQuery{Keyword: "лак", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, types.SourceWebhook, results[0].Source)
}

func TestGetLotByNumber_MatchesExactLotNumber(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(relayResponse{Results: []types.LotResult{
			{LotNumber: "LOT-OTHER"},
			{LotNumber: "LOT-1"},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	lot, err := c.GetLotByNumber(t.Context(), "LOT-1")
	require.NoError(t, err)
	require.NotNil(t, lot)
	require.Equal(t, "LOT-1", lot.LotNumber)
}

func TestRelay_ServerErrorMarksUnhealthy(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	_, err := c.SearchByFilters(t.Context(), types.SearchQuery{Keyword: "x", Limit: 10})
	require.Error(t, err)
	require.False(t, c.Healthy())
}
