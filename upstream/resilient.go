package upstream

import (
	"context"

	"go.uber.org/zap"

	"github.com/zakupai/search-core/types"
	"github.com/zakupai/search-core/upstream/circuitbreaker"
	"github.com/zakupai/search-core/upstream/retry"
)

// Resilient wraps a Client with retry + circuit breaking: retry handles
// transient blips, the breaker protects against a persistently dead upstream.
type Resilient struct {
	inner   Client
	retryer retry.Retryer
	breaker circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewResilient wraps inner with the given retry policy and breaker config.
// Nil policy/config/logger fall back to their package defaults.
func NewResilient(inner Client, policy *retry.Policy, cbConfig *circuitbreaker.Config, logger *zap.Logger) *Resilient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resilient{
		inner:   inner,
		retryer: retry.NewBackoffRetryer(policy, logger.With(zap.String("client", inner.Name()))),
		breaker: circuitbreaker.NewCircuitBreaker(cbConfig, logger.With(zap.String("client", inner.Name()))),
		logger:  logger,
	}
}

func (r *Resilient) Name() string { return r.inner.Name() }

func (r *Resilient) Healthy() bool { return r.breaker.Healthy() }

func (r *Resilient) SearchByFilters(ctx context.Context, q types.SearchQuery) ([]types.LotResult, error) {
	result, err := r.breaker.CallWithResult(ctx, func() (any, error) {
		return r.retryer.DoWithResult(ctx, func() (any, error) {
			return r.inner.SearchByFilters(ctx, q)
		})
	})
	if err != nil {
		return nil, classify(err, r.inner.Name())
	}
	lots, _ := result.([]types.LotResult)
	return lots, nil
}

func (r *Resilient) GetLotByNumber(ctx context.Context, lotNumber string) (*types.LotResult, error) {
	result, err := r.breaker.CallWithResult(ctx, func() (any, error) {
		return r.retryer.DoWithResult(ctx, func() (any, error) {
			return r.inner.GetLotByNumber(ctx, lotNumber)
		})
	})
	if err != nil {
		return nil, classify(err, r.inner.Name())
	}
	lot, _ := result.(*types.LotResult)
	return lot, nil
}

// classify ensures every error leaving a resilient client is a *types.SearchError
// tagged with the client name, so diagnostics and WorstKind can reason about it.
func classify(err error, client string) error {
	if se, ok := err.(*types.SearchError); ok {
		if se.Client == "" {
			se.WithClient(client)
		}
		return se
	}
	return types.NewError(types.FailureInternal, err.Error()).WithCause(err).WithClient(client)
}
