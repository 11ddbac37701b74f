// Package orchestrator implements the federated search control flow (§4.4):
// cache probe, morphological expansion, strategy selection, per-strategy
// fan-out, merge, dedup, relevance filter, sort, trim, cache write, and
// metrics write.
package orchestrator

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zakupai/search-core/cache"
	"github.com/zakupai/search-core/metricsstore"
	"github.com/zakupai/search-core/morphology"
	"github.com/zakupai/search-core/obsmetrics"
	"github.com/zakupai/search-core/strategy"
	"github.com/zakupai/search-core/types"
	"github.com/zakupai/search-core/upstream"
)

const (
	strategyCache  = "cache"
	strategySingle = "single"
	strategyHybrid = "hybrid"

	maxSingleFallbacks = 2
)

// ClientError pairs an upstream client name with the error it raised,
// surfaced in Diagnostics so a partial failure doesn't hide its cause.
type ClientError struct {
	Client string
	Err    error
}

// Diagnostics reports how a search was actually carried out.
type Diagnostics struct {
	Strategy   string
	PerClient  []string
	Errors     []ClientError
}

// Result is the orchestrator's response envelope (spec.md §6's ingress
// contract: `{results, diagnostics}`).
type Result struct {
	Results     []types.LotResult
	Diagnostics Diagnostics
}

// Orchestrator wires together the strategy selector, morphology engine,
// cache, and metrics store behind a single search entrypoint.
type Orchestrator struct {
	selector   *strategy.Selector
	morphology *morphology.Engine
	cache      *cache.SearchCache
	metrics    *metricsstore.Store
	collector  *obsmetrics.Collector
	envelope   time.Duration
	logger     *zap.Logger
}

// New builds an Orchestrator. metrics and collector may be nil (metrics
// writes and Prometheus recording become no-ops).
func New(selector *strategy.Selector, morph *morphology.Engine, c *cache.SearchCache, metrics *metricsstore.Store, collector *obsmetrics.Collector, envelope time.Duration, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if envelope <= 0 {
		envelope = 30 * time.Second
	}
	return &Orchestrator{
		selector:   selector,
		morphology: morph,
		cache:      c,
		metrics:    metrics,
		collector:  collector,
		envelope:   envelope,
		logger:     logger.With(zap.String("component", "orchestrator")),
	}
}

// Search implements spec.md §4.4 steps 1-11.
func (o *Orchestrator) Search(ctx context.Context, userID int64, q types.SearchQuery, override strategy.Mode) (Result, error) {
	if q.ActiveFilterCount() == 0 {
		return Result{}, types.NewError(types.FailureValidation, "empty keyword and no filters")
	}

	start := time.Now()
	q.Normalize()

	cacheKey := cache.Key(normalizeCacheInput(q))

	// 1. normalize + cache probe
	if entry, err := o.cache.Get(ctx, cacheKey); err == nil && !entry.Expired(time.Now()) {
		o.recordCacheHit("local")
		o.recordSearch(strategyCache, true, time.Since(start), len(entry.Value))
		o.logMetric(ctx, userID, q.Keyword, len(entry.Value), strategyCache, time.Since(start), true, "")
		return Result{Results: entry.Value, Diagnostics: Diagnostics{Strategy: strategyCache}}, nil
	}
	o.recordCacheMiss("local")

	// 2. morphological expansion
	var analysis *morphology.Analysis
	if q.Keyword != "" && o.morphology != nil {
		a := o.morphology.Expand(q.Keyword)
		analysis = &a
	}

	// 3. strategy pick
	plan := o.selector.Select(q, override)

	// 4. execution
	var partials [][]types.LotResult
	var diag Diagnostics
	var errs []ClientError

	ctx, cancel := context.WithTimeout(ctx, o.envelope)
	defer cancel()

	switch plan.Mode {
	case strategy.ModeHybrid:
		diag.Strategy = strategyHybrid
		partials, errs = o.runHybrid(ctx, plan.Clients, q, analysis)
	default:
		diag.Strategy = strategySingle
		partials, errs = o.runSingle(ctx, plan.Clients, q, analysis)
	}
	for _, c := range plan.Clients {
		diag.PerClient = append(diag.PerClient, c.Name())
	}
	diag.Errors = errs

	// 5. merge, preserving first-occurrence order
	merged := mergeResults(partials)

	// 6. dedup
	deduped := dedupResults(merged)

	// 7. relevance filter
	filtered := deduped
	if analysis != nil {
		filtered = filterRelevant(deduped, analysis.Original, o.morphology)
	}

	// 8. sort by amount descending, stable on insertion order
	sortByAmountDesc(filtered)

	// 9. trim
	trimmed := trim(filtered, q.Limit, q.Offset)

	elapsed := time.Since(start)

	// total failure: no results and every candidate erred
	if len(trimmed) == 0 && len(plan.Clients) > 0 && len(errs) == len(plan.Clients) {
		worst := worstErr(errs)
		o.recordSearch(diag.Strategy, false, elapsed, 0)
		o.logMetric(ctx, userID, q.Keyword, 0, diag.Strategy, elapsed, false, worst.Error())
		return Result{Diagnostics: diag}, worst
	}

	// 10. cache write
	if len(trimmed) > 0 {
		if err := o.cache.Set(ctx, cacheKey, trimmed); err != nil {
			o.logger.Warn("cache write failed", zap.Error(err))
		}
	}

	// 11. metrics write
	o.recordSearch(diag.Strategy, true, elapsed, len(trimmed))
	o.logMetric(ctx, userID, q.Keyword, len(trimmed), diag.Strategy, elapsed, true, "")

	return Result{Results: trimmed, Diagnostics: diag}, nil
}

// runSingle walks clients in order, falling back on recoverable failure, up
// to maxSingleFallbacks additional attempts beyond the first.
func (o *Orchestrator) runSingle(ctx context.Context, clients []upstream.Client, q types.SearchQuery, analysis *morphology.Analysis) ([][]types.LotResult, []ClientError) {
	var partials [][]types.LotResult
	var errs []ClientError

	tried := 0
	for _, c := range clients {
		if tried > maxSingleFallbacks {
			break
		}
		tried++

		start := time.Now()
		results, err := searchWithVariants(ctx, c, q, analysis)
		o.recordUpstream(c.Name(), err, time.Since(start))
		if err != nil {
			errs = append(errs, ClientError{Client: c.Name(), Err: err})
			continue
		}
		partials = append(partials, results)
		break
	}

	return partials, errs
}

// runHybrid fans out to every candidate concurrently under the envelope
// timeout, collecting whatever completes.
func (o *Orchestrator) runHybrid(ctx context.Context, clients []upstream.Client, q types.SearchQuery, analysis *morphology.Analysis) ([][]types.LotResult, []ClientError) {
	type outcome struct {
		client  string
		results []types.LotResult
		err     error
	}

	outcomes := make(chan outcome, len(clients))
	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c upstream.Client) {
			defer wg.Done()
			start := time.Now()
			results, err := searchWithVariants(ctx, c, q, analysis)
			o.recordUpstream(c.Name(), err, time.Since(start))
			outcomes <- outcome{client: c.Name(), results: results, err: err}
		}(c)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// preserve launch order of first occurrence: index partials by client order
	order := make(map[string]int, len(clients))
	for i, c := range clients {
		order[c.Name()] = i
	}
	partials := make([][]types.LotResult, len(clients))
	var errs []ClientError

	for oc := range outcomes {
		if oc.err != nil {
			errs = append(errs, ClientError{Client: oc.client, Err: oc.err})
			continue
		}
		partials[order[oc.client]] = oc.results
	}

	nonEmpty := make([][]types.LotResult, 0, len(partials))
	for _, p := range partials {
		if p != nil {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return nonEmpty, errs
}

// searchWithVariants tries q.Keyword first, then each morphology-expanded
// variant in order, returning the first non-empty result set.
func searchWithVariants(ctx context.Context, c upstream.Client, q types.SearchQuery, analysis *morphology.Analysis) ([]types.LotResult, error) {
	results, err := c.SearchByFilters(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 || analysis == nil {
		return results, nil
	}

	for _, variant := range analysis.ExpandedQueries {
		if variant == analysis.Original {
			continue
		}
		variantQuery := q
		variantQuery.Keyword = variant
		vr, err := c.SearchByFilters(ctx, variantQuery)
		if err != nil {
			return nil, err
		}
		if len(vr) > 0 {
			return vr, nil
		}
	}
	return results, nil
}

func mergeResults(partials [][]types.LotResult) []types.LotResult {
	var merged []types.LotResult
	for _, p := range partials {
		merged = append(merged, p...)
	}
	return merged
}

func dedupResults(results []types.LotResult) []types.LotResult {
	seen := make(map[string]bool, len(results))
	out := make([]types.LotResult, 0, len(results))
	for _, r := range results {
		id := r.Identity()
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, r)
	}
	return out
}

func filterRelevant(results []types.LotResult, originalQuery string, engine *morphology.Engine) []types.LotResult {
	out := make([]types.LotResult, 0, len(results))
	for _, r := range results {
		text := r.LotName + " " + r.Description
		if engine.IsRelevant(text, originalQuery) {
			out = append(out, r)
		}
	}
	return out
}

func sortByAmountDesc(results []types.LotResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Amount > results[j].Amount
	})
}

func trim(results []types.LotResult, limit, offset int) []types.LotResult {
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

func worstErr(errs []ClientError) error {
	asErrs := make([]error, len(errs))
	for i, e := range errs {
		asErrs[i] = e.Err
	}
	kind := types.WorstKind(asErrs...)
	for _, e := range errs {
		if types.KindOf(e.Err) == kind {
			return e.Err
		}
	}
	if len(errs) > 0 {
		return errs[0].Err
	}
	return types.NewError(types.FailureInternal, "no upstream clients available")
}

// normalizeCacheInput builds the cache-key input string per §4.4 step 1:
// casefolded keyword plus a stable encoding of filters/limit/offset.
func normalizeCacheInput(q types.SearchQuery) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(q.Keyword)))
	b.WriteByte('|')
	b.WriteString(q.CustomerBIN)
	b.WriteByte('|')
	for _, id := range q.TradeMethodIDs {
		b.WriteString(strconv.Itoa(id))
		b.WriteByte(',')
	}
	b.WriteByte('|')
	for _, id := range q.StatusIDs {
		b.WriteString(strconv.Itoa(id))
		b.WriteByte(',')
	}
	b.WriteByte('|')
	if q.AmountRange != nil {
		b.WriteString(strconv.FormatFloat(q.AmountRange.Min, 'f', 2, 64))
		b.WriteByte('-')
		b.WriteString(strconv.FormatFloat(q.AmountRange.Max, 'f', 2, 64))
	}
	b.WriteByte('|')
	b.WriteString(q.AnnouncementNumber)
	b.WriteByte('|')
	if q.DateRanges != nil {
		b.WriteString(q.DateRanges.PublishFrom + "," + q.DateRanges.PublishTo + "," + q.DateRanges.EndFrom + "," + q.DateRanges.EndTo)
	}
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(q.Limit))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(q.Offset))
	return b.String()
}

func (o *Orchestrator) recordCacheHit(tier string) {
	if o.collector != nil {
		o.collector.RecordCacheHit(tier)
	}
}

func (o *Orchestrator) recordCacheMiss(tier string) {
	if o.collector != nil {
		o.collector.RecordCacheMiss(tier)
	}
}

func (o *Orchestrator) recordSearch(strategyTag string, success bool, duration time.Duration, count int) {
	if o.collector == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	o.collector.RecordSearch(strategyTag, status, duration, count)
}

func (o *Orchestrator) recordUpstream(client string, err error, duration time.Duration) {
	if o.collector == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	o.collector.RecordUpstreamRequest(client, status, duration)
}

func (o *Orchestrator) logMetric(ctx context.Context, userID int64, query string, count int, strategyTag string, elapsed time.Duration, success bool, errMsg string) {
	if o.metrics == nil {
		return
	}
	o.metrics.Log(ctx, types.SearchMetric{
		UserID:       userID,
		Query:        query,
		ResultsCount: count,
		StrategyTag:  strategyTag,
		ExecMS:       elapsed.Milliseconds(),
		Success:      success,
		Error:        errMsg,
		Timestamp:    time.Now(),
	})
}
