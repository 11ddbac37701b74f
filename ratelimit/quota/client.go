// Package quota is the HTTP client for the external per-key quota service
// (§4.6, §6). A single POST per search validates the key before
// orchestration runs; usage logging afterwards is best-effort.
package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// FailPolicy decides what happens when the quota service itself is
// unreachable: paid endpoints fail closed (reject), read-only diagnostics
// fail open (allow). A constructor flag per §4.6.
type FailPolicy bool

const (
	FailClosed FailPolicy = false
	FailOpen   FailPolicy = true
)

// ValidateRequest is the /billing/validate_key request body.
type ValidateRequest struct {
	APIKey   string `json:"api_key"`
	Endpoint string `json:"endpoint"`
	Cost     int    `json:"cost"`
}

// ValidateResponse is the /billing/validate_key response body.
type ValidateResponse struct {
	Valid      bool   `json:"valid"`
	Plan       string `json:"plan,omitempty"`
	UsageCount int    `json:"usage_count,omitempty"`
	UsageLimit int    `json:"usage_limit,omitempty"`
	Error      string `json:"error,omitempty"`
}

// UsageRequest is the /billing/usage request body.
type UsageRequest struct {
	APIKey   string `json:"api_key"`
	Endpoint string `json:"endpoint"`
	Requests int    `json:"requests"`
}

// UsageResponse is the /billing/usage response body.
type UsageResponse struct {
	Logged bool `json:"logged"`
}

// CreateKeyRequest is the /billing/create_key request body.
type CreateKeyRequest struct {
	TgID  int64  `json:"tg_id"`
	Email string `json:"email,omitempty"`
}

// CreateKeyResponse is the /billing/create_key response body.
type CreateKeyResponse struct {
	APIKey string `json:"api_key"`
	Plan   string `json:"plan"`
}

// Client talks to the quota service.
type Client struct {
	baseURL    string
	policy     FailPolicy
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a quota Client. policy governs behavior on service
// failure, per §4.6.
func NewClient(baseURL string, policy FailPolicy, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		policy:     policy,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("component", "quota_client")),
	}
}

// ValidateKey checks whether apiKey may call endpoint at the given cost. On
// quota-service failure, the result reflects the configured FailPolicy
// rather than surfacing the transport error to the caller.
func (c *Client) ValidateKey(ctx context.Context, apiKey, endpoint string, cost int) (*ValidateResponse, error) {
	var resp ValidateResponse
	err := c.post(ctx, "/billing/validate_key", ValidateRequest{APIKey: apiKey, Endpoint: endpoint, Cost: cost}, &resp)
	if err != nil {
		c.logger.Warn("quota service unreachable, applying fail policy",
			zap.Error(err), zap.Bool("fail_open", bool(c.policy)))
		if c.policy == FailOpen {
			return &ValidateResponse{Valid: true, Plan: "degraded"}, nil
		}
		return &ValidateResponse{Valid: false, Error: "quota service unavailable"}, nil
	}
	return &resp, nil
}

// LogUsage is a best-effort, fire-and-forget usage record. Failure to log
// never fails the caller's request (§4.6).
func (c *Client) LogUsage(ctx context.Context, apiKey, endpoint string, requests int) {
	go func() {
		logCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var resp UsageResponse
		if err := c.post(logCtx, "/billing/usage", UsageRequest{APIKey: apiKey, Endpoint: endpoint, Requests: requests}, &resp); err != nil {
			c.logger.Debug("usage logging failed", zap.Error(err))
		}
	}()
}

// CreateKey provisions a new API key for a Telegram user.
func (c *Client) CreateKey(ctx context.Context, tgID int64, email string) (*CreateKeyResponse, error) {
	var resp CreateKeyResponse
	if err := c.post(ctx, "/billing/create_key", CreateKeyRequest{TgID: tgID, Email: email}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
