// Package metricsstore is the append-only search_metrics log (§4.7):
// per-request records used for popular-query, per-user, and system-wide
// analytics, plus retention cleanup by age and by database size.
package metricsstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/zakupai/search-core/internal/database"
	"github.com/zakupai/search-core/types"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// searchMetricRow is the GORM model backing search_metrics.
type searchMetricRow struct {
	ID           uint      `gorm:"primaryKey"`
	UserID       int64     `gorm:"index;not null"`
	Query        string    `gorm:"index;not null"`
	ResultsCount int       `gorm:"not null"`
	StrategyTag  string    `gorm:"not null"`
	ExecMS       int64     `gorm:"not null"`
	Success      bool      `gorm:"not null"`
	ErrorMessage string
	Timestamp    time.Time `gorm:"index;not null"`
	CreatedAt    time.Time
}

func (searchMetricRow) TableName() string { return "search_metrics" }

// Store is the append-only metrics log backed by SQLite, pooled through
// database.PoolManager for its health-check loop and connection limits.
type Store struct {
	pool   *database.PoolManager
	path   string
	logger *zap.Logger
}

// sqlitePoolConfig caps the pool at a single writer connection: SQLite
// serializes writes, and extra idle connections just contend for the file
// lock instead of adding throughput.
func sqlitePoolConfig() database.PoolConfig {
	cfg := database.DefaultPoolConfig()
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1
	return cfg
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open metrics database: %w", err)
	}
	if err := db.AutoMigrate(&searchMetricRow{}); err != nil {
		return nil, fmt.Errorf("migrate metrics schema: %w", err)
	}

	pool, err := database.NewPoolManager(db, sqlitePoolConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("init metrics pool: %w", err)
	}

	logger.Info("metrics store initialized", zap.String("path", path))
	return &Store{pool: pool, path: path, logger: logger.With(zap.String("component", "metrics_store"))}, nil
}

func (s *Store) db() *gorm.DB { return s.pool.DB() }

// Log records one completed search. Failure to log never propagates:
// callers treat metrics as best-effort.
func (s *Store) Log(ctx context.Context, m types.SearchMetric) {
	row := searchMetricRow{
		UserID:       m.UserID,
		Query:        m.Query,
		ResultsCount: m.ResultsCount,
		StrategyTag:  m.StrategyTag,
		ExecMS:       m.ExecMS,
		Success:      m.Success,
		ErrorMessage: m.Error,
		Timestamp:    m.Timestamp,
	}
	if err := s.db().WithContext(ctx).Create(&row).Error; err != nil {
		s.logger.Warn("failed to log search metric", zap.Error(err))
	}
}

// PopularQuery is one row of the popular-queries report.
type PopularQuery struct {
	Query        string    `json:"query"`
	Count        int64     `json:"count"`
	LastSearched time.Time `json:"last_searched"`
}

// PopularQueries returns the most frequent successful, non-empty queries
// within the last `days` days.
func (s *Store) PopularQueries(ctx context.Context, days, limit int) ([]PopularQuery, error) {
	since := time.Now().AddDate(0, 0, -days)

	var rows []PopularQuery
	err := s.db().WithContext(ctx).Model(&searchMetricRow{}).
		Select("query, COUNT(*) as count, MAX(timestamp) as last_searched").
		Where("timestamp >= ? AND success = ? AND query != ''", since, true).
		Group("query").
		Order("count DESC, last_searched DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// UserAnalytics summarizes one user's search activity over a window.
type UserAnalytics struct {
	UserID               int64     `json:"user_id"`
	TotalSearches        int64     `json:"total_searches"`
	UniqueQueries        int64     `json:"unique_queries"`
	MostSearchedQuery    string    `json:"most_searched_query"`
	LastActivity         time.Time `json:"last_activity"`
	AvgResultsPerSearch  float64   `json:"avg_results_per_search"`
}

// UserAnalyticsFor returns nil if the user has no successful searches in
// the window.
func (s *Store) UserAnalyticsFor(ctx context.Context, userID int64, days int) (*UserAnalytics, error) {
	since := time.Now().AddDate(0, 0, -days)

	var summary struct {
		TotalSearches int64
		UniqueQueries int64
		AvgResults    float64
		LastActivity  time.Time
	}
	err := s.db().WithContext(ctx).Model(&searchMetricRow{}).
		Select("COUNT(*) as total_searches, COUNT(DISTINCT query) as unique_queries, AVG(CAST(results_count AS REAL)) as avg_results, MAX(timestamp) as last_activity").
		Where("user_id = ? AND timestamp >= ? AND success = ?", userID, since, true).
		Scan(&summary).Error
	if err != nil {
		return nil, err
	}
	if summary.TotalSearches == 0 {
		return nil, nil
	}

	var mostSearched string
	s.db().WithContext(ctx).Model(&searchMetricRow{}).
		Select("query").
		Where("user_id = ? AND timestamp >= ? AND success = ? AND query != ''", userID, since, true).
		Group("query").
		Order("COUNT(*) DESC").
		Limit(1).
		Scan(&mostSearched)
	if mostSearched == "" {
		mostSearched = "N/A"
	}

	return &UserAnalytics{
		UserID:              userID,
		TotalSearches:       summary.TotalSearches,
		UniqueQueries:       summary.UniqueQueries,
		MostSearchedQuery:   mostSearched,
		LastActivity:        summary.LastActivity,
		AvgResultsPerSearch: summary.AvgResults,
	}, nil
}

// SystemStats is the system-wide report over a window.
type SystemStats struct {
	TotalSearches       int64            `json:"total_searches"`
	ActiveUsers         int64            `json:"active_users"`
	AvgResultsPerSearch float64          `json:"avg_results_per_search"`
	AvgExecutionMS      float64          `json:"avg_execution_ms"`
	SuccessRatePct      float64          `json:"success_rate_pct"`
	StrategyUsage       map[string]int64 `json:"strategy_usage"`
	ErrorCount          int64            `json:"error_count"`
}

// SystemStatsFor computes the system-wide report over the last `days` days.
func (s *Store) SystemStatsFor(ctx context.Context, days int) (SystemStats, error) {
	since := time.Now().AddDate(0, 0, -days)

	var agg struct {
		TotalSearches int64
		ActiveUsers   int64
		AvgResults    float64
		AvgExecMS     float64
		SuccessRate   float64
	}
	err := s.db().WithContext(ctx).Model(&searchMetricRow{}).
		Select(`COUNT(*) as total_searches,
			COUNT(DISTINCT user_id) as active_users,
			AVG(CAST(results_count AS REAL)) as avg_results,
			AVG(CAST(exec_ms AS REAL)) as avg_exec_ms,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) * 100.0 / COUNT(*) as success_rate`).
		Where("timestamp >= ?", since).
		Scan(&agg).Error
	if err != nil {
		return SystemStats{}, err
	}

	var strategyRows []struct {
		StrategyTag string
		Count       int64
	}
	if err := s.db().WithContext(ctx).Model(&searchMetricRow{}).
		Select("strategy_tag, COUNT(*) as count").
		Where("timestamp >= ?", since).
		Group("strategy_tag").
		Scan(&strategyRows).Error; err != nil {
		return SystemStats{}, err
	}
	usage := make(map[string]int64, len(strategyRows))
	for _, r := range strategyRows {
		usage[r.StrategyTag] = r.Count
	}

	var errorCount int64
	if err := s.db().WithContext(ctx).Model(&searchMetricRow{}).
		Where("timestamp >= ? AND success = ?", since, false).
		Count(&errorCount).Error; err != nil {
		return SystemStats{}, err
	}

	return SystemStats{
		TotalSearches:       agg.TotalSearches,
		ActiveUsers:         agg.ActiveUsers,
		AvgResultsPerSearch: agg.AvgResults,
		AvgExecutionMS:      agg.AvgExecMS,
		SuccessRatePct:      agg.SuccessRate,
		StrategyUsage:       usage,
		ErrorCount:          errorCount,
	}, nil
}

// TopUser is one row of the top-active-users report.
type TopUser struct {
	UserID        int64     `json:"user_id"`
	SearchCount   int64     `json:"search_count"`
	UniqueQueries int64     `json:"unique_queries"`
	LastActivity  time.Time `json:"last_activity"`
}

// TopUsers returns the most active users over the last `days` days.
func (s *Store) TopUsers(ctx context.Context, days, limit int) ([]TopUser, error) {
	since := time.Now().AddDate(0, 0, -days)

	var rows []TopUser
	err := s.db().WithContext(ctx).Model(&searchMetricRow{}).
		Select("user_id, COUNT(*) as search_count, COUNT(DISTINCT query) as unique_queries, MAX(timestamp) as last_activity").
		Where("timestamp >= ? AND success = ?", since, true).
		Group("user_id").
		Order("search_count DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// CleanupResult reports the outcome of a retention sweep.
type CleanupResult struct {
	DeletedCount int   `json:"deleted_count"`
	TotalBefore  int64 `json:"total_before"`
	TotalAfter   int64 `json:"total_after"`
	DaysKept     int   `json:"days_kept"`
}

// CleanupOlderThan deletes rows older than daysToKeep and vacuums the file.
func (s *Store) CleanupOlderThan(ctx context.Context, daysToKeep int) (CleanupResult, error) {
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)

	var totalBefore int64
	if err := s.db().WithContext(ctx).Model(&searchMetricRow{}).Count(&totalBefore).Error; err != nil {
		return CleanupResult{}, err
	}

	res := s.db().WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&searchMetricRow{})
	if res.Error != nil {
		return CleanupResult{}, res.Error
	}

	var totalAfter int64
	if err := s.db().WithContext(ctx).Model(&searchMetricRow{}).Count(&totalAfter).Error; err != nil {
		return CleanupResult{}, err
	}

	s.db().WithContext(ctx).Exec("VACUUM")

	return CleanupResult{
		DeletedCount: int(res.RowsAffected),
		TotalBefore:  totalBefore,
		TotalAfter:   totalAfter,
		DaysKept:     daysToKeep,
	}, nil
}

// SizeMB returns the current database file size in megabytes.
func (s *Store) SizeMB() float64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return float64(info.Size()) / (1024 * 1024)
}

// AutoCleanupBySize enforces maxSizeMB by progressively shortening retention
// (§6's metrics_max_size_mb), first to 60 days then to 30 if still over.
func (s *Store) AutoCleanupBySize(ctx context.Context, maxSizeMB float64) (*CleanupResult, error) {
	if s.SizeMB() <= maxSizeMB {
		return nil, nil
	}

	result, err := s.CleanupOlderThan(ctx, 60)
	if err != nil {
		return nil, err
	}
	if s.SizeMB() > maxSizeMB {
		result, err = s.CleanupOlderThan(ctx, 30)
		if err != nil {
			return nil, err
		}
	}
	return &result, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.pool.Close()
}
