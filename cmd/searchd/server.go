// Package main provides the search-core server implementation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zakupai/search-core/cache"
	"github.com/zakupai/search-core/config"
	"github.com/zakupai/search-core/internal/redisconn"
	"github.com/zakupai/search-core/internal/server"
	"github.com/zakupai/search-core/metricsstore"
	"github.com/zakupai/search-core/morphology"
	"github.com/zakupai/search-core/obsmetrics"
	"github.com/zakupai/search-core/orchestrator"
	"github.com/zakupai/search-core/ratelimit"
	"github.com/zakupai/search-core/ratelimit/quota"
	"github.com/zakupai/search-core/refdata"
	"github.com/zakupai/search-core/strategy"
	"github.com/zakupai/search-core/upstream"
	"github.com/zakupai/search-core/upstream/gqlv2"
	"github.com/zakupai/search-core/upstream/gqlv3"
	"github.com/zakupai/search-core/upstream/restv3"
	"github.com/zakupai/search-core/upstream/webhook"
)

// Server is the search-core HTTP service.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	collector       *obsmetrics.Collector
	orchestrator    *orchestrator.Orchestrator
	metrics         *metricsstore.Store
	refdata         *refdata.Registry
	upstreamClients []upstream.Client

	perUserLimiter  *ratelimit.SlidingWindowLimiter
	searchOpLimiter *ratelimit.OperationLimiter
	quotaClient     *quota.Client

	cancelBackground context.CancelFunc
	wg               sync.WaitGroup
}

// NewServer builds every component the service needs but does not start
// listening; call Start for that.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	bgCtx, cancel := context.WithCancel(context.Background())
	s.cancelBackground = cancel

	s.collector = obsmetrics.NewCollector("search_core", logger)
	s.refdata = refdata.New()

	metricsStore, err := metricsstore.Open(cfg.Metrics.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open metrics store: %w", err)
	}
	s.metrics = metricsStore

	clients := s.buildUpstreamClients()
	s.upstreamClients = clients
	selector := strategy.NewSelector(clients, logger)
	morph := morphology.NewEngine()

	searchCache, err := s.buildCache(bgCtx)
	if err != nil {
		return nil, fmt.Errorf("build cache: %w", err)
	}

	s.orchestrator = orchestrator.New(selector, morph, searchCache, s.metrics, s.collector, cfg.Orchestrator.EnvelopeTimeout, logger)

	s.perUserLimiter = ratelimit.NewSlidingWindowLimiter(cfg.RateLimit.PerUserRPM, time.Minute)
	s.searchOpLimiter = ratelimit.NewOperationLimiter(float64(cfg.RateLimit.SearchOpPerSec), cfg.RateLimit.SearchOpPerSec)

	if cfg.HasBilling() {
		policy := quota.FailClosed
		if !cfg.Billing.FailClosed {
			policy = quota.FailOpen
		}
		s.quotaClient = quota.NewClient(cfg.Billing.URL, policy, cfg.Billing.Timeout, logger)
	}

	if cfg.Metrics.CleanupOnStart {
		s.runMetricsCleanup(bgCtx)
	}

	return s, nil
}

// buildUpstreamClients constructs only the clients whose credentials are
// configured (spec.md §6: a missing token/URL disables the client), wrapping
// each in retry + circuit breaking.
func (s *Server) buildUpstreamClients() []upstream.Client {
	cfg := s.cfg
	var clients []upstream.Client

	timeout := cfg.Upstream.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if cfg.HasGQLv2() {
		c := gqlv2.NewClient(cfg.Upstream.GQLv2Token, timeout, s.logger)
		clients = append(clients, upstream.NewResilient(c, nil, nil, s.logger))
	}
	if cfg.HasGQLv3() {
		g3 := gqlv3.NewClient(cfg.Upstream.GQLv3Token, timeout, s.logger)
		clients = append(clients, upstream.NewResilient(g3, nil, nil, s.logger))

		r3 := restv3.NewClient(cfg.Upstream.GQLv3Token, timeout, s.logger)
		clients = append(clients, upstream.NewResilient(r3, nil, nil, s.logger))
	}
	if cfg.HasWebhook() {
		wc := webhook.NewClient(cfg.Upstream.WebhookURL, timeout, s.logger)
		clients = append(clients, upstream.NewResilient(wc, nil, nil, s.logger))
	}

	s.logger.Info("upstream clients configured", zap.Int("count", len(clients)))
	return clients
}

// buildCache wires the local LRU tier, plus an optional Redis tier when
// cfg.Cache.RedisAddr is set.
func (s *Server) buildCache(ctx context.Context) (*cache.SearchCache, error) {
	cfg := s.cfg

	cacheConfig := cache.DefaultConfig()
	if cfg.Cache.TTL > 0 {
		cacheConfig.LocalTTL = cfg.Cache.TTL
		cacheConfig.RedisTTL = cfg.Cache.TTL
	}
	if cfg.Cache.LocalMaxSize > 0 {
		cacheConfig.LocalMaxSize = cfg.Cache.LocalMaxSize
	}

	if cfg.Cache.RedisAddr == "" {
		return cache.New(nil, cacheConfig, s.logger), nil
	}

	redisConfig := redisconn.DefaultConfig()
	redisConfig.Addr = cfg.Cache.RedisAddr
	redisConfig.Password = cfg.Cache.RedisPassword
	redisConfig.DB = cfg.Cache.RedisDB

	rdb, err := redisconn.Connect(ctx, redisConfig, s.logger)
	if err != nil {
		s.logger.Warn("redis unavailable, continuing with local cache tier only", zap.Error(err))
		return cache.New(nil, cacheConfig, s.logger), nil
	}

	return cache.New(rdb, cacheConfig, s.logger), nil
}

// runMetricsCleanup performs the configured retention sweep once at startup.
func (s *Server) runMetricsCleanup(ctx context.Context) {
	result, err := s.metrics.CleanupOlderThan(ctx, s.cfg.Metrics.RetentionDays)
	if err != nil {
		s.logger.Warn("metrics cleanup on start failed", zap.Error(err))
		return
	}
	s.logger.Info("metrics cleanup on start complete",
		zap.Int("deleted", result.DeletedCount),
		zap.Int64("remaining", result.TotalAfter))
}

// Start brings up the HTTP and metrics listeners, non-blocking.
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/version", s.handleVersion)

	mux.HandleFunc("/v1/search", s.handleSearch)
	mux.HandleFunc("/v1/lots/", s.handleGetLot)
	mux.HandleFunc("/v1/reference/trade-methods", s.handleTradeMethod)
	mux.HandleFunc("/v1/reference/lot-statuses", s.handleLotStatus)
	mux.HandleFunc("/v1/stats/popular-queries", s.handlePopularQueries)
	mux.HandleFunc("/v1/stats/users/", s.handleUserAnalytics)
	mux.HandleFunc("/v1/stats/system", s.handleSystemStats)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	handler := Chain(mux,
		Recovery(s.logger),
		OTelTracing(),
		RequestID(),
		RequestLogger(s.logger),
		SecurityHeaders(),
		MetricsMiddleware(s.collector),
		CORS(nil),
		RateLimiter(s.perUserLimiter, s.collector, skipAuthPaths),
		APIKeyAuth(s.quotaClient, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     120 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("http server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a shutdown signal arrives, then cleans up.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown gracefully stops every component.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown...")

	ctx := context.Background()

	if s.cancelBackground != nil {
		s.cancelBackground()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.metrics != nil {
		if err := s.metrics.Close(); err != nil {
			s.logger.Error("metrics store close error", zap.Error(err))
		}
	}

	s.wg.Wait()

	s.logger.Info("graceful shutdown complete")
}
