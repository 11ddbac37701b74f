// Package gqlv2 is the goszakup.gov.kz GraphQL v2 upstream client (§4.1, §6).
package gqlv2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/zakupai/search-core/types"
	"go.uber.org/zap"
)

const defaultURL = "https://ows.goszakup.gov.kz/v2/graphql"

const searchQuery = `
query SearchLots($filter: LotsFiltersInput, $limit: Int, $offset: Int) {
  lots(filter: $filter, limit: $limit, offset: $offset) {
    id
    lotNumber
    nameRu
    descriptionRu
    amount
    count
    customerNameRu
    customerBin
    trdBuyNumberAnno
    trdBuyId
    refLotStatusId
    refTradeMethodsId
    lastUpdateDate
    TrdBuy {
      id
      nameRu
      numberAnno
      orgNameRu
      orgBin
      publishDate
      endDate
      RefTradeMethods {
        id
        nameRu
      }
    }
    RefLotsStatus {
      id
      nameRu
    }
  }
}`

// Client queries the GraphQL v2 endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger

	healthy atomic.Bool
}

// NewClient builds a GraphQL v2 client authorized with token.
func NewClient(token string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		url: defaultURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &bearerTransport{token: token, base: http.DefaultTransport},
		},
		logger: logger.With(zap.String("component", "gqlv2")),
	}
	c.healthy.Store(true)
	return c
}

// Name implements upstream.Client.
func (c *Client) Name() string { return types.SourceGQLv2 }

// Healthy implements upstream.Client, reflecting the last request's outcome.
func (c *Client) Healthy() bool { return c.healthy.Load() }

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type lotNode struct {
	LotNumber        string  `json:"lotNumber"`
	NameRu           string  `json:"nameRu"`
	DescriptionRu    string  `json:"descriptionRu"`
	Amount           float64 `json:"amount"`
	Count            float64 `json:"count"`
	CustomerNameRu   string  `json:"customerNameRu"`
	CustomerBin      string  `json:"customerBin"`
	TrdBuyNumberAnno string  `json:"trdBuyNumberAnno"`
	RefLotStatusID   int     `json:"refLotStatusId"`
	TrdBuy           struct {
		NameRu          string `json:"nameRu"`
		NumberAnno      string `json:"numberAnno"`
		OrgNameRu       string `json:"orgNameRu"`
		OrgBin          string `json:"orgBin"`
		EndDate         string `json:"endDate"`
		RefTradeMethods struct {
			NameRu string `json:"nameRu"`
		} `json:"RefTradeMethods"`
	} `json:"TrdBuy"`
	RefLotsStatus struct {
		NameRu string `json:"nameRu"`
	} `json:"RefLotsStatus"`
}

type graphqlResponse struct {
	Data struct {
		Lots []lotNode `json:"lots"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// SearchByFilters implements upstream.Client.
func (c *Client) SearchByFilters(ctx context.Context, q types.SearchQuery) ([]types.LotResult, error) {
	filter := buildFilter(q)
	nodes, err := c.run(ctx, filter, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	return parseNodes(nodes), nil
}

// GetLotByNumber implements upstream.Client.
func (c *Client) GetLotByNumber(ctx context.Context, lotNumber string) (*types.LotResult, error) {
	nodes, err := c.run(ctx, map[string]any{"lotNumber": lotNumber}, 1, 0)
	if err != nil {
		return nil, err
	}
	results := parseNodes(nodes)
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

func buildFilter(q types.SearchQuery) map[string]any {
	filter := map[string]any{}
	if q.Keyword != "" {
		filter["nameDescriptionRu"] = q.Keyword
	}
	if q.CustomerBIN != "" {
		filter["customerBin"] = q.CustomerBIN
	}
	if q.AnnouncementNumber != "" {
		filter["trdBuyNumberAnno"] = q.AnnouncementNumber
	}
	if len(q.TradeMethodIDs) > 0 {
		filter["refTradeMethodsId"] = q.TradeMethodIDs
	}
	if len(q.StatusIDs) > 0 {
		filter["refLotStatusId"] = q.StatusIDs
	}
	if q.AmountRange != nil && q.AmountRange.Min > 0 {
		filter["amount"] = []float64{q.AmountRange.Min}
	}
	return filter
}

func (c *Client) run(ctx context.Context, filter map[string]any, limit, offset int) ([]lotNode, error) {
	if limit <= 0 {
		limit = 10
	}
	payload := graphqlRequest{
		Query: searchQuery,
		Variables: map[string]any{
			"filter": filter,
			"limit":  limit,
			"offset": offset,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewError(types.FailureInternal, "marshal gql_v2 request").WithCause(err).WithClient(c.Name())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.FailureInternal, "build gql_v2 request").WithCause(err).WithClient(c.Name())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "search-core/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.healthy.Store(false)
		return nil, types.NewError(types.FailureNetwork, "gql_v2 request failed").WithCause(err).WithRetryable(true).WithClient(c.Name())
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		c.healthy.Store(false)
		return nil, types.NewError(types.FailureUnauthorized, "gql_v2 token rejected").WithClient(c.Name())
	case http.StatusTooManyRequests:
		return nil, types.NewError(types.FailureRateLimited, "gql_v2 rate limited").WithRetryable(true).WithClient(c.Name())
	}
	if resp.StatusCode >= 500 {
		c.healthy.Store(false)
		return nil, types.NewError(types.FailureNetwork, "gql_v2 server error "+strconv.Itoa(resp.StatusCode)).WithRetryable(true).WithClient(c.Name())
	}
	if resp.StatusCode >= 300 {
		return nil, types.NewError(types.FailureProtocol, "gql_v2 unexpected status "+strconv.Itoa(resp.StatusCode)).WithClient(c.Name())
	}

	var out graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.FailureProtocol, "gql_v2 decode failure").WithCause(err).WithClient(c.Name())
	}
	if len(out.Errors) > 0 {
		return nil, types.NewError(types.FailureProtocol, fmt.Sprintf("gql_v2 graphql errors: %v", out.Errors)).WithClient(c.Name())
	}

	c.healthy.Store(true)
	return out.Data.Lots, nil
}

func parseNodes(nodes []lotNode) []types.LotResult {
	results := make([]types.LotResult, 0, len(nodes))
	for _, n := range nodes {
		tradeMethod := n.TrdBuy.RefTradeMethods.NameRu
		if tradeMethod == "" {
			tradeMethod = "Не указан"
		}
		status := n.RefLotsStatus.NameRu
		if status == "" {
			status = "Не указан"
		}
		announcementNumber := n.TrdBuyNumberAnno
		if announcementNumber == "" {
			announcementNumber = n.TrdBuy.NumberAnno
		}
		customerName := n.CustomerNameRu
		if customerName == "" {
			customerName = n.TrdBuy.OrgNameRu
		}
		customerBin := n.CustomerBin
		if customerBin == "" {
			customerBin = n.TrdBuy.OrgBin
		}

		results = append(results, types.LotResult{
			LotNumber:          n.LotNumber,
			AnnouncementNumber: announcementNumber,
			LotName:            n.NameRu,
			Description:        n.DescriptionRu,
			CustomerName:       customerName,
			CustomerBIN:        customerBin,
			Amount:             n.Amount,
			Currency:           "KZT",
			Quantity:           n.Count,
			TradeMethod:        tradeMethod,
			Status:             status,
			EndDate:            n.TrdBuy.EndDate,
			Source:             types.SourceGQLv2,
		})
	}
	return results
}

// bearerTransport injects the Authorization header on every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}
