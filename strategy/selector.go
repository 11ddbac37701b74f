// Package strategy classifies a search query by filter complexity and
// returns the upstream clients to try, in preference order, skipping
// clients the circuit breaker currently reports unhealthy.
package strategy

import (
	"go.uber.org/zap"

	"github.com/zakupai/search-core/types"
	"github.com/zakupai/search-core/upstream"
)

// Complexity classifies a query by its active filter count.
type Complexity string

const (
	Simple   Complexity = "simple"   // <= 1 active filter
	Moderate Complexity = "moderate" // 2-3 active filters
	Complex  Complexity = "complex"  // >= 4 active filters
)

// Mode is an explicit orchestration mode, either derived from Complexity or
// set by a caller override.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeHybrid Mode = "hybrid"
)

// Plan is the selector's output: the clients to try, in order, and whether
// the orchestrator should fan out to all of them concurrently (hybrid) or
// walk them one at a time with fallback (single).
type Plan struct {
	Mode    Mode
	Clients []upstream.Client
}

// Selector picks clients by name from a fixed registry, so it can reorder
// without needing to re-resolve clients each call.
type Selector struct {
	byName map[string]upstream.Client
	logger *zap.Logger
}

// NewSelector builds a selector over the given named clients. Clients with
// no configured token are simply absent from clients (per §4.1, "no token
// implies the client is absent from strategy selection").
func NewSelector(clients []upstream.Client, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[string]upstream.Client, len(clients))
	for _, c := range clients {
		byName[c.Name()] = c
	}
	return &Selector{byName: byName, logger: logger}
}

// ClassifyComplexity implements the §4.3 active-filter-count table.
func ClassifyComplexity(q types.SearchQuery) Complexity {
	switch n := q.ActiveFilterCount(); {
	case n <= 1:
		return Simple
	case n <= 3:
		return Moderate
	default:
		return Complex
	}
}

// preferredOrder returns client names in preference order for a complexity
// tier, per the §4.3 table. Complex queries (>=4 active filters) default to
// HYBRID fan-out; Simple and Moderate default to the sequential single-client
// path with fallback.
func preferredOrder(c Complexity) (order []string, defaultHybrid bool) {
	switch c {
	case Simple:
		return []string{"rest_v3", "gql_v3", "gql_v2"}, false
	case Moderate:
		return []string{"gql_v2", "rest_v3"}, false
	default: // Complex
		return []string{"gql_v2", "gql_v3"}, true
	}
}

// Select builds a Plan for q. A non-empty override takes precedence over the
// complexity-derived default, matching the orchestrator's "optional explicit
// strategy override" contract (§4.4).
func (s *Selector) Select(q types.SearchQuery, override Mode) Plan {
	complexity := ClassifyComplexity(q)
	order, defaultHybrid := preferredOrder(complexity)

	mode := ModeSingle
	switch {
	case override == ModeHybrid:
		mode = ModeHybrid
	case override == ModeSingle:
		mode = ModeSingle
	case defaultHybrid:
		mode = ModeHybrid
	}

	if mode == ModeHybrid {
		return Plan{Mode: mode, Clients: s.promoteHealthy(s.hybridCandidates())}
	}

	var clients []upstream.Client
	for _, name := range order {
		c, ok := s.byName[name]
		if !ok {
			continue
		}
		clients = append(clients, c)
	}

	// honor health: an unhealthy candidate is skipped, promoting the next one.
	clients = s.promoteHealthy(clients)

	return Plan{Mode: mode, Clients: clients}
}

// promoteHealthy filters out unhealthy clients while preserving the
// remaining order, so "the next candidate is promoted" (§4.3).
func (s *Selector) promoteHealthy(clients []upstream.Client) []upstream.Client {
	healthy := make([]upstream.Client, 0, len(clients))
	for _, c := range clients {
		if c.Healthy() {
			healthy = append(healthy, c)
		} else {
			s.logger.Debug("skipping unhealthy upstream client", zap.String("client", c.Name()))
		}
	}
	return healthy
}

// hybridCandidates returns the gql_v2 + rest_v3 pair HYBRID mode fans out
// to (§4.3), independent of the complexity-derived preferred order, from
// whichever of the two are configured.
func (s *Selector) hybridCandidates() []upstream.Client {
	var out []upstream.Client
	for _, name := range []string{"gql_v2", "rest_v3"} {
		if c, ok := s.byName[name]; ok {
			out = append(out, c)
		}
	}
	return out
}
