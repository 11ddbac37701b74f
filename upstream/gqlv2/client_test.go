package gqlv2

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

	c := NewClient("test-token", time.Second, nil)
	c.url = srv.URL
	return c
}

func TestSearchByFilters_ParsesNestedFields(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := graphqlResponse{}
		resp.Data.Lots = []lotNode{{
			LotNumber:        "LOT-1",
			NameRu:           "Краски и лаки",
			Amount:           150000,
			Count:            2,
			CustomerNameRu:   "ТОО Ромашка",
			CustomerBin:      "123456789012",
			TrdBuyNumberAnno: "ANNO-1",
		}}
		resp.Data.Lots[0].TrdBuy.RefTradeMethods.NameRu = "Запрос ценовых предложений"
		resp.Data.Lots[0].RefLotsStatus.NameRu = "Опубликован"

		json.NewEncoder(w).Encode(resp)
	})

	results, err := c.SearchByFilters(t.Context(), types.SearchQuery{Keyword: "лак", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "LOT-1", results[0].LotNumber)
	require.Equal(t, "Запрос ценовых предложений", results[0].TradeMethod)
	require.Equal(t, "Опубликован", results[0].Status)
	require.Equal(t, types.SourceGQLv2, results[0].Source)
	require.True(t, c.Healthy())
}

func TestSearchByFilters_UnauthorizedMarksUnhealthy(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.SearchByFilters(t.Context(), types.SearchQuery{Keyword: "лак", Limit: 10})
	require.Error(t, err)
	require.Equal(t, types.FailureUnauthorized, types.KindOf(err))
	require.False(t, c.Healthy())
}

func TestSearchByFilters_GraphQLErrorsSurfaceAsProtocol(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := graphqlResponse{}
		resp.Errors = []struct {
			Message string `json:"message"`
		}{{Message: "bad filter"}}
		json.NewEncoder(w).Encode(resp)
	})

	_, err := c.SearchByFilters(t.Context(), types.SearchQuery{Keyword: "лак", Limit: 10})
	require.Error(t, err)
	require.Equal(t, types.FailureProtocol, types.KindOf(err))
}

func TestGetLotByNumber_NotFoundReturnsNilNil(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(graphqlResponse{})
	})

	lot, err := c.GetLotByNumber(t.Context(), "missing")
	require.NoError(t, err)
	require.Nil(t, lot)
}

func TestSearchByFilters_RateLimitedIsRetryable(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.SearchByFilters(t.Context(), types.SearchQuery{Keyword: "лак", Limit: 10})
	require.Error(t, err)
	require.Equal(t, types.FailureRateLimited, types.KindOf(err))
	require.True(t, types.IsRetryable(err))
}
