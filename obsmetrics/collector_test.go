package obsmetrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var namespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&namespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector_RegistersAllMetrics(t *testing.T) {
	c := NewCollector(nextTestNamespace(), nil)

	assert.NotNil(t, c.httpRequestsTotal)
	assert.NotNil(t, c.upstreamRequestsTotal)
	assert.NotNil(t, c.searchRequestsTotal)
	assert.NotNil(t, c.cacheHits)
}

func TestRecordHTTPRequest(t *testing.T) {
	c := NewCollector(nextTestNamespace(), nil)

	c.RecordHTTPRequest("GET", "/v1/search", 200, 50*time.Millisecond)
	count := testutil.CollectAndCount(c.httpRequestsTotal)
	assert.Greater(t, count, 0)
}

func TestRecordUpstreamRequest(t *testing.T) {
	c := NewCollector(nextTestNamespace(), nil)

	c.RecordUpstreamRequest("gql_v2", "success", 120*time.Millisecond)
	count := testutil.CollectAndCount(c.upstreamRequestsTotal)
	assert.Greater(t, count, 0)
}

func TestSetCircuitState(t *testing.T) {
	c := NewCollector(nextTestNamespace(), nil)

	c.SetCircuitState("rest_v3", 2)
	count := testutil.CollectAndCount(c.upstreamCircuitState)
	assert.Greater(t, count, 0)
}

func TestRecordSearch(t *testing.T) {
	c := NewCollector(nextTestNamespace(), nil)

	c.RecordSearch("hybrid", "success", 800*time.Millisecond, 12)
	assert.Greater(t, testutil.CollectAndCount(c.searchRequestsTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(c.searchResultsReturned), 0)
}

func TestCacheHitMiss(t *testing.T) {
	c := NewCollector(nextTestNamespace(), nil)

	c.RecordCacheHit("local")
	c.RecordCacheMiss("redis")
	assert.Greater(t, testutil.CollectAndCount(c.cacheHits), 0)
	assert.Greater(t, testutil.CollectAndCount(c.cacheMisses), 0)
}

func TestRejectionCounters(t *testing.T) {
	c := NewCollector(nextTestNamespace(), nil)

	c.RecordRateLimitRejection("per_user")
	c.RecordQuotaRejection("usage_limit_exceeded")
	assert.Greater(t, testutil.CollectAndCount(c.rateLimitRejections), 0)
	assert.Greater(t, testutil.CollectAndCount(c.quotaRejections), 0)
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector(nextTestNamespace(), nil)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			c.RecordHTTPRequest("GET", "/v1/search", 200, 10*time.Millisecond)
			c.RecordSearch("single", "success", 100*time.Millisecond, 3)
			c.RecordCacheHit("local")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Greater(t, testutil.CollectAndCount(c.httpRequestsTotal), 0)
}
