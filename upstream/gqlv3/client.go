// Package gqlv3 is the goszakup.gov.kz GraphQL v3 upstream client (§4.1,
// §6). v3 adds date-range filters over v2 and a few extra read endpoints
// (Contracts, Subjects, TrdBuys) not exposed through the shared upstream.Client
// interface.
package gqlv3

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

const defaultURL = "https://ows.goszakup.gov.kz/v3/graphql"

const searchQuery = `
query SearchLotsV3($filter: LotsFilterInput, $limit: Int, $offset: Int) {
  lots(filter: $filter, limit: $limit, offset: $offset) {
    id
    lot_number
    nameRu
    descriptionRu
    count
    amount
    trd_buy_number_anno
    customer_name_ru
    customer_bin
    ref_trade_methods_id
    ref_lot_status_id
    trd_buy {
      id
      name_ru
      number_anno
      org_name_ru
      org_bin
      publish_date
      end_date
    }
    ref_lot_status {
      id
      name_ru
    }
    ref_trade_methods {
      id
      name_ru
    }
  }
}`

const contractsQuery = `
query Contracts($filter: ContractFilterInput, $limit: Int, $offset: Int) {
  Contract(filter: $filter, limit: $limit, offset: $offset) {
    id
    number
    sum
    supplierBiin
    customerBin
    signDate
  }
}`

const subjectsQuery = `
query Subjects($filter: SubjectsFiltersInput, $limit: Int, $offset: Int) {
  Subjects(filter: $filter, limit: $limit, offset: $offset) {
    id
    bin
    nameRu
    regDate
  }
}`

const trdBuysQuery = `
query TrdBuys($filter: TrdBuyFiltersInput, $limit: Int, $offset: Int) {
  TrdBuy(filter: $filter, limit: $limit, offset: $offset) {
    id
    numberAnno
    nameRu
    orgNameRu
    orgBin
    publishDate
    endDate
  }
}`

// Client queries the GraphQL v3 endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger

	healthy atomic.Bool
}

// NewClient builds a GraphQL v3 client. token may be empty: some v3
// endpoints are public.
func NewClient(token string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport
	if token != "" {
		transport = &bearerTransport{token: token, base: transport}
	}
	c := &Client{
		url:        defaultURL,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		logger:     logger.With(zap.String("component", "gqlv3")),
	}
	c.healthy.Store(true)
	return c
}

// Name implements upstream.Client.
func (c *Client) Name() string { return types.SourceGQLv3 }

// Healthy implements upstream.Client.
func (c *Client) Healthy() bool { return c.healthy.Load() }

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type lotNode struct {
	LotNumber        string  `json:"lot_number"`
	NameRu           string  `json:"nameRu"`
	DescriptionRu    string  `json:"descriptionRu"`
	Amount           float64 `json:"amount"`
	Count            float64 `json:"count"`
	CustomerNameRu   string  `json:"customer_name_ru"`
	CustomerBin      string  `json:"customer_bin"`
	TrdBuyNumberAnno string  `json:"trd_buy_number_anno"`
	TrdBuy           struct {
		NameRu     string `json:"name_ru"`
		NumberAnno string `json:"number_anno"`
		OrgNameRu  string `json:"org_name_ru"`
		OrgBin     string `json:"org_bin"`
		EndDate    string `json:"end_date"`
	} `json:"trd_buy"`
	RefLotStatus struct {
		NameRu string `json:"name_ru"`
	} `json:"ref_lot_status"`
	RefTradeMethods struct {
		NameRu string `json:"name_ru"`
	} `json:"ref_trade_methods"`
}

type lotsResponse struct {
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
	nodes, err := c.runLots(ctx, filter, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	return parseNodes(nodes), nil
}

// GetLotByNumber implements upstream.Client.
func (c *Client) GetLotByNumber(ctx context.Context, lotNumber string) (*types.LotResult, error) {
	nodes, err := c.runLots(ctx, map[string]any{"lot_number": lotNumber}, 1, 0)
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
		filter["nameRu"] = q.Keyword
		filter["descriptionRu"] = q.Keyword
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
	if q.AmountRange != nil {
		if q.AmountRange.Min > 0 {
			filter["amountFrom"] = q.AmountRange.Min
		}
		if q.AmountRange.Max > 0 {
			filter["amountTo"] = q.AmountRange.Max
		}
	}
	if q.DateRanges != nil {
		if q.DateRanges.PublishFrom != "" {
			filter["publishDateFrom"] = q.DateRanges.PublishFrom
		}
		if q.DateRanges.PublishTo != "" {
			filter["publishDateTo"] = q.DateRanges.PublishTo
		}
		if q.DateRanges.EndFrom != "" {
			filter["endDateFrom"] = q.DateRanges.EndFrom
		}
		if q.DateRanges.EndTo != "" {
			filter["endDateTo"] = q.DateRanges.EndTo
		}
	}
	return filter
}

func (c *Client) runLots(ctx context.Context, filter map[string]any, limit, offset int) ([]lotNode, error) {
	if limit <= 0 {
		limit = 10
	}
	var out lotsResponse
	if err := c.do(ctx, searchQuery, filter, limit, offset, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		return nil, types.NewError(types.FailureProtocol, fmt.Sprintf("gql_v3 graphql errors: %v", out.Errors)).WithClient(c.Name())
	}
	return out.Data.Lots, nil
}

// Contracts queries the v3 Contract collection, a feature the original bot
// exposed through a separate endpoint and the distilled lot-search spec
// dropped; kept here as a supplemental read not part of upstream.Client.
func (c *Client) Contracts(ctx context.Context, filter map[string]any, limit, offset int) (json.RawMessage, error) {
	return c.rawQuery(ctx, contractsQuery, filter, limit, offset)
}

// Subjects queries the v3 Subjects collection (suppliers/customers registry).
func (c *Client) Subjects(ctx context.Context, filter map[string]any, limit, offset int) (json.RawMessage, error) {
	return c.rawQuery(ctx, subjectsQuery, filter, limit, offset)
}

// TrdBuys queries the v3 TrdBuy (announcement) collection directly, without
// requiring a lot-level filter.
func (c *Client) TrdBuys(ctx context.Context, filter map[string]any, limit, offset int) (json.RawMessage, error) {
	return c.rawQuery(ctx, trdBuysQuery, filter, limit, offset)
}

func (c *Client) rawQuery(ctx context.Context, query string, filter map[string]any, limit, offset int) (json.RawMessage, error) {
	var out struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := c.do(ctx, query, filter, limit, offset, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		return nil, types.NewError(types.FailureProtocol, fmt.Sprintf("gql_v3 graphql errors: %v", out.Errors)).WithClient(c.Name())
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, query string, filter map[string]any, limit, offset int, out any) error {
	payload := graphqlRequest{
		Query: query,
		Variables: map[string]any{
			"filter": filter,
			"limit":  limit,
			"offset": offset,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return types.NewError(types.FailureInternal, "marshal gql_v3 request").WithCause(err).WithClient(c.Name())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return types.NewError(types.FailureInternal, "build gql_v3 request").WithCause(err).WithClient(c.Name())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "search-core/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.healthy.Store(false)
		return types.NewError(types.FailureNetwork, "gql_v3 request failed").WithCause(err).WithRetryable(true).WithClient(c.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.healthy.Store(false)
		return types.NewError(types.FailureUnauthorized, "gql_v3 token rejected").WithClient(c.Name())
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return types.NewError(types.FailureRateLimited, "gql_v3 rate limited").WithRetryable(true).WithClient(c.Name())
	}
	if resp.StatusCode >= 500 {
		c.healthy.Store(false)
		return types.NewError(types.FailureNetwork, "gql_v3 server error "+strconv.Itoa(resp.StatusCode)).WithRetryable(true).WithClient(c.Name())
	}
	if resp.StatusCode >= 300 {
		return types.NewError(types.FailureProtocol, "gql_v3 unexpected status "+strconv.Itoa(resp.StatusCode)).WithClient(c.Name())
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewError(types.FailureProtocol, "gql_v3 decode failure").WithCause(err).WithClient(c.Name())
	}
	c.healthy.Store(true)
	return nil
}

func parseNodes(nodes []lotNode) []types.LotResult {
	results := make([]types.LotResult, 0, len(nodes))
	for _, n := range nodes {
		tradeMethod := n.RefTradeMethods.NameRu
		if tradeMethod == "" {
			tradeMethod = "Не указан"
		}
		status := n.RefLotStatus.NameRu
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
			Source:             types.SourceGQLv3,
		})
	}
	return results
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}
