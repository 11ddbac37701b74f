// Package webhook is the optional relay upstream client (§4.1, §6). It POSTs
// the query to a user-configured URL and trusts the response's LotResult
// shape verbatim; presence is controlled entirely by configuration.
package webhook

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

// Client relays search queries to a configured webhook endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger

	healthy atomic.Bool
}

// NewClient builds a webhook relay client. Returns nil if url is empty,
// signaling the caller to omit this client from selection entirely.
func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	if url == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("component", "webhook")),
	}
	c.healthy.Store(true)
	return c
}

// Name implements upstream.Client.
func (c *Client) Name() string { return types.SourceWebhook }

// Healthy implements upstream.Client.
func (c *Client) Healthy() bool { return c.healthy.Load() }

type relayRequest struct {
	Query           string `json:"query"`
	NormalizedQuery string `json:"normalized_query"`
	Limit           int    `json:"limit"`
}

type relayResponse struct {
	Results []types.LotResult `json:"results"`
}

// SearchByFilters implements upstream.Client. The webhook relay only
// accepts a single free-text query, not structured filters; q.Keyword is
// used as both the original and normalized query when no richer context is
// available to the caller.
func (c *Client) SearchByFilters(ctx context.Context, q types.SearchQuery) ([]types.LotResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	return c.relay(ctx, q.Keyword, q.Keyword, limit)
}

// Relay posts an explicit original/normalized query pair, letting the
// orchestrator pass morphology-normalized text distinct from the raw query.
func (c *Client) Relay(ctx context.Context, original, normalized string, limit int) ([]types.LotResult, error) {
	return c.relay(ctx, original, normalized, limit)
}

// GetLotByNumber implements upstream.Client. The relay contract has no
// single-lot lookup, so this searches by number and matches exactly.
func (c *Client) GetLotByNumber(ctx context.Context, lotNumber string) (*types.LotResult, error) {
	results, err := c.relay(ctx, lotNumber, lotNumber, 5)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.LotNumber == lotNumber {
			return &r, nil
		}
	}
	return nil, nil
}

func (c *Client) relay(ctx context.Context, query, normalized string, limit int) ([]types.LotResult, error) {
	payload := relayRequest{Query: query, NormalizedQuery: normalized, Limit: limit}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewError(types.FailureInternal, "marshal webhook request").WithCause(err).WithClient(c.Name())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.FailureInternal, "build webhook request").WithCause(err).WithClient(c.Name())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.healthy.Store(false)
		return nil, types.NewError(types.FailureNetwork, "webhook request failed").WithCause(err).WithRetryable(true).WithClient(c.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, types.NewError(types.FailureRateLimited, "webhook rate limited").WithRetryable(true).WithClient(c.Name())
	}
	if resp.StatusCode >= 500 {
		c.healthy.Store(false)
		return nil, types.NewError(types.FailureNetwork, fmt.Sprintf("webhook server error %d", resp.StatusCode)).WithRetryable(true).WithClient(c.Name())
	}
	if resp.StatusCode >= 300 {
		return nil, types.NewError(types.FailureProtocol, "webhook unexpected status "+strconv.Itoa(resp.StatusCode)).WithClient(c.Name())
	}

	var out relayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.FailureProtocol, "webhook decode failure").WithCause(err).WithClient(c.Name())
	}

	c.healthy.Store(true)
	for i := range out.Results {
		if out.Results[i].Source == "" {
			out.Results[i].Source = types.SourceWebhook
		}
	}
	return out.Results, nil
}
