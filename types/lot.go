package types

import (
	"strconv"
	"time"
)

// LotResult is the canonical normalized record produced by every upstream client.
type LotResult struct {
	LotNumber          string    `json:"lot_number,omitempty"`
	AnnouncementNumber string    `json:"announcement_number,omitempty"`
	LotName            string    `json:"lot_name"`
	Description        string    `json:"description,omitempty"`
	CustomerName       string    `json:"customer_name,omitempty"`
	CustomerBIN        string    `json:"customer_bin,omitempty"`
	Amount             float64   `json:"amount"`
	Currency           string    `json:"currency"`
	Quantity           float64   `json:"quantity"`
	TradeMethod        string    `json:"trade_method,omitempty"`
	Status             string    `json:"status,omitempty"`
	EndDate            string    `json:"end_date,omitempty"`
	URL                string    `json:"url,omitempty"`
	Source             string    `json:"source"`
}

// Source tags recognized by the strategy selector and dedup layer.
const (
	SourceGQLv2   = "gql_v2"
	SourceGQLv3   = "gql_v3"
	SourceRESTv3  = "rest_v3"
	SourceWebhook = "webhook"
)

// Identity returns the dedup key for a lot: lot_number when present, else
// the (customer_bin, lot_name, amount) triple.
func (l LotResult) Identity() string {
	if l.LotNumber != "" {
		return "ln:" + l.LotNumber
	}
	return "cba:" + l.CustomerBIN + "|" + l.LotName + "|" + formatAmount(l.Amount)
}

func formatAmount(a float64) string {
	// fixed precision keeps identical amounts comparing equal regardless of
	// float formatting quirks from different upstream parsers.
	return strconv.FormatFloat(a, 'f', 2, 64)
}

// SearchQuery is the normalized request shape consumed by the orchestrator
// and every upstream client.
type SearchQuery struct {
	Keyword            string       `json:"keyword,omitempty"`
	CustomerBIN        string       `json:"customer_bin,omitempty"`
	TradeMethodIDs     []int        `json:"trade_method_ids,omitempty"`
	StatusIDs          []int        `json:"status_ids,omitempty"`
	AmountRange        *AmountRange `json:"amount_range,omitempty"`
	AnnouncementNumber string       `json:"announcement_number,omitempty"`
	DateRanges         *DateRanges  `json:"date_ranges,omitempty"`
	Limit              int          `json:"limit"`
	Offset             int          `json:"offset"`
}

// AmountRange bounds LotResult.Amount, 0 <= Min <= Max.
type AmountRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DateRanges bounds publish/end date windows, RFC3339 or empty.
type DateRanges struct {
	PublishFrom string `json:"publish_from,omitempty"`
	PublishTo   string `json:"publish_to,omitempty"`
	EndFrom     string `json:"end_from,omitempty"`
	EndTo       string `json:"end_to,omitempty"`
}

// ActiveFilterCount counts the non-empty top-level fields, excluding
// Limit/Offset, for strategy classification.
func (q SearchQuery) ActiveFilterCount() int {
	n := 0
	if q.Keyword != "" {
		n++
	}
	if q.CustomerBIN != "" {
		n++
	}
	if len(q.TradeMethodIDs) > 0 {
		n++
	}
	if len(q.StatusIDs) > 0 {
		n++
	}
	if q.AmountRange != nil {
		n++
	}
	if q.AnnouncementNumber != "" {
		n++
	}
	if q.DateRanges != nil {
		n++
	}
	return n
}

// Normalize clamps Limit to [1,100] and Offset to >= 0, applying defaults.
func (q *SearchQuery) Normalize() {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// MorphologyAnalysis is the output of the morphology engine's expand operation.
type MorphologyAnalysis struct {
	Original        string              `json:"original"`
	NormalizedWords []string            `json:"normalized_words"`
	Variants        map[string][]string `json:"variants"`
	ExpandedQueries []string            `json:"expanded_queries"`
}

// CacheEntry is a single cached search result set.
type CacheEntry struct {
	Key       string      `json:"key"`
	Value     []LotResult `json:"value"`
	CreatedAt time.Time   `json:"created_at"`
	TTLSecs   int         `json:"ttl_seconds"`
}

// Expired reports whether the entry has outlived its TTL as of now.
func (c CacheEntry) Expired(now time.Time) bool {
	return now.After(c.CreatedAt.Add(time.Duration(c.TTLSecs) * time.Second))
}

// SearchMetric is an append-only record of one completed orchestration.
type SearchMetric struct {
	UserID       int64     `json:"user_id"`
	Query        string    `json:"query"`
	ResultsCount int       `json:"results_count"`
	StrategyTag  string    `json:"strategy_tag"`
	ExecMS       int64     `json:"exec_ms"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Subscription is a user-scoped watch evaluated by the optional long-running
// watcher; new matches trigger a registered callback.
type Subscription struct {
	ID              string      `json:"id"`
	Type            string      `json:"type"` // "lots" | "contracts"
	Filters         SearchQuery `json:"filters"`
	LastSeenIDs     []string    `json:"last_seen_ids"`
	IntervalSeconds int         `json:"interval_seconds"`
	LastCheck       time.Time   `json:"last_check"`
	Active          bool        `json:"active"`
}

// Diagnostics accompanies every orchestrator response.
type Diagnostics struct {
	Strategy  string          `json:"strategy"`
	PerClient []ClientOutcome `json:"per_client"`
	Errors    []ClientError   `json:"errors,omitempty"`
}

// ClientOutcome records one upstream client's contribution to a request.
type ClientOutcome struct {
	Client   string        `json:"client"`
	Count    int           `json:"count"`
	Elapsed  time.Duration `json:"elapsed"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

// ClientError records one upstream client's failure, surfaced in diagnostics
// even when the overall request succeeded via another client.
type ClientError struct {
	Client string      `json:"client"`
	Kind   FailureKind `json:"kind"`
	Error  string      `json:"error"`
}
