// Package api defines the JSON request/response shapes for the search
// service's HTTP surface.
package api

import "github.com/zakupai/search-core/types"

// SearchRequest is the POST /v1/search request body.
// @Description Federated search request
type SearchRequest struct {
	// Free-text keyword, morphologically expanded before matching.
	Keyword string `json:"keyword,omitempty" example:"канцелярские товары"`
	// Exact customer BIN/IIN filter.
	CustomerBIN string `json:"customer_bin,omitempty" example:"123456789012"`
	// Trade method reference IDs.
	TradeMethodIDs []int `json:"trade_method_ids,omitempty"`
	// Lot status reference IDs.
	StatusIDs []int `json:"status_ids,omitempty"`
	// Inclusive amount bounds.
	AmountRange *types.AmountRange `json:"amount_range,omitempty"`
	// Exact announcement number filter.
	AnnouncementNumber string `json:"announcement_number,omitempty"`
	// Publish/end date window filters, RFC3339.
	DateRanges *types.DateRanges `json:"date_ranges,omitempty"`
	// Page size, clamped to [1,100], default 10.
	Limit int `json:"limit,omitempty" example:"10"`
	// Page offset, default 0.
	Offset int `json:"offset,omitempty"`
	// Explicit strategy override: "single" or "hybrid". Empty picks the
	// complexity-derived default.
	Strategy string `json:"strategy,omitempty" example:"hybrid"`
}

// SearchResponse is the POST /v1/search response body.
// @Description Federated search response
type SearchResponse struct {
	Results     []types.LotResult `json:"results"`
	Diagnostics Diagnostics       `json:"diagnostics"`
}

// Diagnostics reports which upstream clients were consulted and how.
// @Description Search execution diagnostics
type Diagnostics struct {
	Strategy  string        `json:"strategy"`
	PerClient []string      `json:"per_client,omitempty"`
	Errors    []ClientError `json:"errors,omitempty"`
}

// ClientError pairs an upstream client name with the failure it raised.
// @Description One upstream client's failure
type ClientError struct {
	Client string `json:"client"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// LotRequest is the GET /v1/lots/{number} path parameter, documented for
// completeness (no request body).
// @Description Single-lot lookup request
type LotRequest struct {
	LotNumber string `json:"lot_number" example:"12345-L1"`
}

// LotResponse is the GET /v1/lots/{number} response body.
// @Description Single-lot lookup response
type LotResponse struct {
	Lot   *types.LotResult `json:"lot,omitempty"`
	Found bool             `json:"found"`
}

// ErrorResponse is the envelope for every non-2xx JSON error response.
// @Description Error response structure
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the stable failure taxonomy alongside a human message.
// @Description Error detail structure
type ErrorDetail struct {
	Code      string `json:"code" example:"RATE_LIMITED"`
	Message   string `json:"message" example:"too many requests"`
	Retryable bool   `json:"retryable,omitempty"`
}
