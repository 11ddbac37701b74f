// Package restv3 is the goszakup.gov.kz REST v3 upstream client (§4.1, §6).
package restv3

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zakupai/search-core/refdata"
	"github.com/zakupai/search-core/types"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://ows.goszakup.gov.kz/v3"

// Client queries the REST v3 endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	healthy atomic.Bool
}

// NewClient builds a REST v3 client. token may be empty: some v3 endpoints
// are public.
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
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		logger:     logger.With(zap.String("component", "restv3")),
	}
	c.healthy.Store(true)
	return c
}

// Name implements upstream.Client.
func (c *Client) Name() string { return types.SourceRESTv3 }

// Healthy implements upstream.Client.
func (c *Client) Healthy() bool { return c.healthy.Load() }

// lotRecord tolerates the REST v3 API's mixed snake_case/camelCase field
// naming across its envelope shapes.
type lotRecord struct {
	LotNumber        string          `json:"lot_number"`
	LotNumberCamel   string          `json:"lotNumber"`
	NameRu           string          `json:"nameRu"`
	NameRuSnake      string          `json:"name_ru"`
	DescriptionRu    string          `json:"descriptionRu"`
	DescriptionSnake string          `json:"description_ru"`
	Count            json.Number     `json:"count"`
	Amount           json.Number     `json:"amount"`
	EstimateAmount   json.Number     `json:"estimate_amount"`
	TrdBuyNumberAnno string          `json:"trd_buy_number_anno"`
	CustomerNameRu   string          `json:"customer_name_ru"`
	CustomerBin      string          `json:"customer_bin"`
	TrdBuy           json.RawMessage `json:"trd_buy"`
	RefLotStatus     json.RawMessage `json:"ref_lot_status"`
	RefTradeMethods  json.RawMessage `json:"ref_trade_methods"`
}

type trdBuyRecord struct {
	NameRu     string `json:"name_ru"`
	NumberAnno string `json:"number_anno"`
	OrgNameRu  string `json:"org_name_ru"`
	OrgBin     string `json:"org_bin"`
	EndDate    string `json:"end_date"`
}

type refRecord struct {
	ID     int    `json:"id"`
	NameRu string `json:"name_ru"`
}

// envelope tolerates the REST v3 API's three observed response shapes.
type envelope struct {
	Lots  []lotRecord `json:"lots"`
	Items []lotRecord `json:"items"`
	Data  []lotRecord `json:"data"`
}

func (e envelope) records() []lotRecord {
	if len(e.Lots) > 0 {
		return e.Lots
	}
	if len(e.Items) > 0 {
		return e.Items
	}
	return e.Data
}

// SearchByFilters implements upstream.Client.
func (c *Client) SearchByFilters(ctx context.Context, q types.SearchQuery) ([]types.LotResult, error) {
	params := buildParams(q)
	if q.Limit <= 0 {
		params.Set("limit", "10")
	} else {
		limit := q.Limit
		if limit > 100 {
			limit = 100
		}
		params.Set("limit", strconv.Itoa(limit))
	}
	params.Set("offset", strconv.Itoa(q.Offset))

	var env envelope
	if err := c.get(ctx, "/lots", params, &env); err != nil {
		return nil, err
	}
	return parseRecords(env.records()), nil
}

// GetLotByNumber implements upstream.Client via GET /lots/{id}.
func (c *Client) GetLotByNumber(ctx context.Context, lotNumber string) (*types.LotResult, error) {
	var rec lotRecord
	err := c.get(ctx, "/lots/"+url.PathEscape(lotNumber), nil, &rec)
	if err != nil {
		if se, ok := err.(*types.SearchError); ok && se.Kind == types.FailureNotFound {
			return nil, nil
		}
		return nil, err
	}
	results := parseRecords([]lotRecord{rec})
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

func buildParams(q types.SearchQuery) url.Values {
	params := url.Values{}
	if q.Keyword != "" {
		params.Set("nameRu", q.Keyword)
		params.Set("descriptionRu", q.Keyword)
		params.Set("nameDescriptionRu", q.Keyword)
	}
	if q.CustomerBIN != "" {
		params.Set("customerBin", q.CustomerBIN)
	}
	if q.AnnouncementNumber != "" {
		params.Set("trdBuyNumberAnno", q.AnnouncementNumber)
	}
	if len(q.TradeMethodIDs) > 0 {
		params.Set("refTradeMethodsId", joinInts(q.TradeMethodIDs))
	}
	if len(q.StatusIDs) > 0 {
		params.Set("refLotStatusId", joinInts(q.StatusIDs))
	}
	if q.AmountRange != nil {
		if q.AmountRange.Min > 0 {
			params.Set("amountFrom", strconv.FormatFloat(q.AmountRange.Min, 'f', -1, 64))
		}
		if q.AmountRange.Max > 0 {
			params.Set("amountTo", strconv.FormatFloat(q.AmountRange.Max, 'f', -1, 64))
		}
	}
	if q.DateRanges != nil {
		if q.DateRanges.PublishFrom != "" {
			params.Set("publishDateFrom", q.DateRanges.PublishFrom)
		}
		if q.DateRanges.PublishTo != "" {
			params.Set("publishDateTo", q.DateRanges.PublishTo)
		}
		if q.DateRanges.EndFrom != "" {
			params.Set("endDateFrom", q.DateRanges.EndFrom)
		}
		if q.DateRanges.EndTo != "" {
			params.Set("endDateTo", q.DateRanges.EndTo)
		}
	}
	return params
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	full := c.baseURL + path
	if params != nil && len(params) > 0 {
		full += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return types.NewError(types.FailureInternal, "build rest_v3 request").WithCause(err).WithClient(c.Name())
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "search-core/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.healthy.Store(false)
		return types.NewError(types.FailureNetwork, "rest_v3 request failed").WithCause(err).WithRetryable(true).WithClient(c.Name())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return types.NewError(types.FailureNotFound, "rest_v3 lot not found").WithClient(c.Name())
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.healthy.Store(false)
		return types.NewError(types.FailureUnauthorized, "rest_v3 token rejected").WithClient(c.Name())
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewError(types.FailureRateLimited, "rest_v3 rate limited").WithRetryable(true).WithClient(c.Name())
	case resp.StatusCode >= 500:
		c.healthy.Store(false)
		return types.NewError(types.FailureNetwork, fmt.Sprintf("rest_v3 server error %d", resp.StatusCode)).WithRetryable(true).WithClient(c.Name())
	case resp.StatusCode >= 300:
		return types.NewError(types.FailureProtocol, fmt.Sprintf("rest_v3 unexpected status %d", resp.StatusCode)).WithClient(c.Name())
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewError(types.FailureProtocol, "rest_v3 decode failure").WithCause(err).WithClient(c.Name())
	}
	c.healthy.Store(true)
	return nil
}

func parseRecords(records []lotRecord) []types.LotResult {
	results := make([]types.LotResult, 0, len(records))
	for _, r := range records {
		var trdBuy trdBuyRecord
		json.Unmarshal(r.TrdBuy, &trdBuy)
		var status, tradeMethod refRecord
		json.Unmarshal(r.RefLotStatus, &status)
		json.Unmarshal(r.RefTradeMethods, &tradeMethod)

		lotNumber := r.LotNumber
		if lotNumber == "" {
			lotNumber = r.LotNumberCamel
		}
		name := r.NameRu
		if name == "" {
			name = r.NameRuSnake
		}
		desc := r.DescriptionRu
		if desc == "" {
			desc = r.DescriptionSnake
		}
		announcementNumber := r.TrdBuyNumberAnno
		if announcementNumber == "" {
			announcementNumber = trdBuy.NumberAnno
		}
		customerName := r.CustomerNameRu
		if customerName == "" {
			customerName = trdBuy.OrgNameRu
		}
		customerBin := r.CustomerBin
		if customerBin == "" {
			customerBin = trdBuy.OrgBin
		}
		amount := numberOr(r.Amount, 0)
		if amount == 0 {
			amount = numberOr(r.EstimateAmount, 0)
		}
		tm := tradeMethod.NameRu
		if tm == "" && tradeMethod.ID != 0 {
			tm = refdata.TradeMethodName(tradeMethod.ID)
		}
		if tm == "" {
			tm = "Не указан"
		}
		st := status.NameRu
		if st == "" && status.ID != 0 {
			st = refdata.LotStatusName(status.ID)
		}
		if st == "" {
			st = "Не указан"
		}

		results = append(results, types.LotResult{
			LotNumber:          lotNumber,
			AnnouncementNumber: announcementNumber,
			LotName:            name,
			Description:        desc,
			CustomerName:       customerName,
			CustomerBIN:        customerBin,
			Amount:             amount,
			Currency:           "KZT",
			Quantity:           numberOr(r.Count, 0),
			TradeMethod:        tm,
			Status:             st,
			EndDate:            trdBuy.EndDate,
			Source:             types.SourceRESTv3,
		})
	}
	return results
}

func numberOr(n json.Number, fallback float64) float64 {
	if n == "" {
		return fallback
	}
	v, err := n.Float64()
	if err != nil {
		return fallback
	}
	return v
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
