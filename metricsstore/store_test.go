package metricsstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zakupai/search-core/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedMetric(t *testing.T, s *Store, userID int64, query string, success bool, ts time.Time) {
	t.Helper()
	s.Log(t.Context(), types.SearchMetric{
		UserID:       userID,
		Query:        query,
		ResultsCount: 5,
		StrategyTag:  "hybrid",
		ExecMS:       120,
		Success:      success,
		Timestamp:    ts,
	})
}

func TestLog_PersistsRow(t *testing.T) {
	s := newTestStore(t)
	seedMetric(t, s, 1, "橋梁建設", true, time.Now())

	var count int64
	s.db().Model(&searchMetricRow{}).Count(&count)
	require.EqualValues(t, 1, count)
}

func TestPopularQueries_RanksByFrequency(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	seedMetric(t, s, 1, "бетон", true, now)
	seedMetric(t, s, 2, "бетон", true, now)
	seedMetric(t, s, 3, "щебень", true, now)
	seedMetric(t, s, 4, "неудачный", false, now)

	rows, err := s.PopularQueries(t.Context(), 30, 10)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	require.Equal(t, "бетон", rows[0].Query)
	require.EqualValues(t, 2, rows[0].Count)
}

func TestPopularQueries_ExcludesOutsideWindow(t *testing.T) {
	s := newTestStore(t)
	seedMetric(t, s, 1, "old", true, time.Now().AddDate(0, 0, -90))

	rows, err := s.PopularQueries(t.Context(), 7, 10)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestUserAnalyticsFor_ReturnsNilWhenNoActivity(t *testing.T) {
	s := newTestStore(t)

	analytics, err := s.UserAnalyticsFor(t.Context(), 999, 30)
	require.NoError(t, err)
	require.Nil(t, analytics)
}

func TestUserAnalyticsFor_SummarizesActivity(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	seedMetric(t, s, 7, "цемент", true, now)
	seedMetric(t, s, 7, "цемент", true, now)
	seedMetric(t, s, 7, "арматура", true, now)

	analytics, err := s.UserAnalyticsFor(t.Context(), 7, 30)
	require.NoError(t, err)
	require.NotNil(t, analytics)
	require.EqualValues(t, 3, analytics.TotalSearches)
	require.EqualValues(t, 2, analytics.UniqueQueries)
	require.Equal(t, "цемент", analytics.MostSearchedQuery)
}

func TestSystemStatsFor_AggregatesAcrossUsers(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	seedMetric(t, s, 1, "a", true, now)
	seedMetric(t, s, 2, "b", true, now)
	seedMetric(t, s, 1, "c", false, now)

	stats, err := s.SystemStatsFor(t.Context(), 30)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.TotalSearches)
	require.EqualValues(t, 2, stats.ActiveUsers)
	require.EqualValues(t, 1, stats.ErrorCount)
	require.Contains(t, stats.StrategyUsage, "hybrid")
}

func TestTopUsers_OrdersByActivity(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	seedMetric(t, s, 1, "a", true, now)
	seedMetric(t, s, 1, "b", true, now)
	seedMetric(t, s, 2, "c", true, now)

	top, err := s.TopUsers(t.Context(), 30, 5)
	require.NoError(t, err)
	require.NotEmpty(t, top)
	require.EqualValues(t, 1, top[0].UserID)
	require.EqualValues(t, 2, top[0].SearchCount)
}

func TestCleanupOlderThan_DeletesOnlyStaleRows(t *testing.T) {
	s := newTestStore(t)
	seedMetric(t, s, 1, "fresh", true, time.Now())
	seedMetric(t, s, 1, "stale", true, time.Now().AddDate(0, 0, -100))

	result, err := s.CleanupOlderThan(t.Context(), 30)
	require.NoError(t, err)
	require.Equal(t, 1, result.DeletedCount)
	require.EqualValues(t, 2, result.TotalBefore)
	require.EqualValues(t, 1, result.TotalAfter)
}

func TestAutoCleanupBySize_NoopWhenUnderLimit(t *testing.T) {
	s := newTestStore(t)
	seedMetric(t, s, 1, "a", true, time.Now())

	result, err := s.AutoCleanupBySize(t.Context(), 9999)
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestSizeMB_ReflectsExistingFile(t *testing.T) {
	s := newTestStore(t)
	seedMetric(t, s, 1, "a", true, time.Now())

	require.Greater(t, s.SizeMB(), 0.0)
}
