// Package upstream defines the shared client contract for the four
// procurement data sources (GQL v2, GQL v3, REST v3, webhook relay) and a
// resilient decorator that wraps any of them with retry + circuit breaking.
package upstream

import (
	"context"

	"github.com/zakupai/search-core/types"
)

// Client is the capability every upstream data source exposes to the
// strategy selector and orchestrator.
type Client interface {
	// Name identifies the client for diagnostics and the source tag on
	// results it did not already stamp itself (e.g. "gql_v2").
	Name() string

	// SearchByFilters runs q against the upstream and returns normalized
	// results in upstream order. Never returns an error for "zero results".
	SearchByFilters(ctx context.Context, q types.SearchQuery) ([]types.LotResult, error)

	// GetLotByNumber fetches a single lot. Returns (nil, nil) when the
	// upstream reports "no such lot" — NotFound is not an error here.
	GetLotByNumber(ctx context.Context, lotNumber string) (*types.LotResult, error)

	// Healthy reports the client's current circuit-breaker state, read by
	// the strategy selector.
	Healthy() bool
}
