package gqlv3

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zakupai/search-core/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("", time.Second, nil)
	c.url = srv.URL
	return c
}

func TestSearchByFilters_AppliesDateRangeFilters(t *testing.T) {
	t.Parallel()

	var captured graphqlRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		resp := lotsResponse{}
		resp.Data.Lots = []lotNode{{LotNumber: "LOT-9", NameRu: "Мебель офисная", Amount: 50000}}
		json.NewEncoder(w).Encode(resp)
	})

	q := types.SearchQuery{
		Keyword:     "мебель",
		DateRanges:  &types.DateRanges{PublishFrom: "2026-01-01", EndTo: "2026-12-31"},
		AmountRange: &types.AmountRange{Min: 1000, Max: 200000},
		Limit:       5,
	}
	results, err := c.SearchByFilters(t.Context(), q)
	require.NoError(t, err)
	require.Len(t, results, 1)

	filter := captured.Variables["filter"].(map[string]any)
	require.Equal(t, "2026-01-01", filter["publishDateFrom"])
	require.Equal(t, "2026-12-31", filter["endDateTo"])
	require.Equal(t, float64(1000), filter["amountFrom"])
}

func TestGetLotByNumber_Found(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := lotsResponse{}
		resp.Data.Lots = []lotNode{{LotNumber: "LOT-1"}}
		json.NewEncoder(w).Encode(resp)
	})

	lot, err := c.GetLotByNumber(t.Context(), "LOT-1")
	require.NoError(t, err)
	require.NotNil(t, lot)
	require.Equal(t, "LOT-1", lot.LotNumber)
}

func TestContracts_ReturnsRawPayload(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"Contract": [{"id": 1, "number": "C-1"}]}}`))
	})

	raw, err := c.Contracts(t.Context(), map[string]any{"customerBin": "123"}, 10, 0)
	require.NoError(t, err)
	require.Contains(t, string(raw), "Contract")
}

func TestDo_GraphQLErrorSurfaces(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := lotsResponse{}
		resp.Errors = []struct {
			Message string `json:"message"`
		}{{Message: "invalid filter"}}
		json.NewEncoder(w).Encode(resp)
	})

	_, err := c.SearchByFilters(t.Context(), types.SearchQuery{Keyword: "x", Limit: 10})
	require.Error(t, err)
	require.Equal(t, types.FailureProtocol, types.KindOf(err))
}
