package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zakupai/search-core/api"
	"github.com/zakupai/search-core/internal/ctxkeys"
	"github.com/zakupai/search-core/strategy"
	"github.com/zakupai/search-core/types"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "NOT_READY", "metrics store unavailable", true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

// handleSearch handles POST /v1/search.
// @Summary Federated search
// @Description Runs a keyword/filter search across the configured upstream
// @Description data sources, merging, deduplicating, and ranking results.
// @Accept json
// @Produce json
// @Param request body api.SearchRequest true "Search request"
// @Success 200 {object} api.SearchResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /v1/search [post]
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST", false)
		return
	}

	var req api.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION", "malformed request body: "+err.Error(), false)
		return
	}

	if !s.searchOpLimiter.Allow(apiKeyOrAnon(r)) {
		writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "search operation rate exceeded", true)
		return
	}

	query := types.SearchQuery{
		Keyword:            req.Keyword,
		CustomerBIN:        req.CustomerBIN,
		TradeMethodIDs:     req.TradeMethodIDs,
		StatusIDs:          req.StatusIDs,
		AmountRange:        req.AmountRange,
		AnnouncementNumber: req.AnnouncementNumber,
		DateRanges:         req.DateRanges,
		Limit:              req.Limit,
		Offset:             req.Offset,
	}

	override := strategy.Mode("")
	switch strings.ToLower(req.Strategy) {
	case "single":
		override = strategy.ModeSingle
	case "hybrid":
		override = strategy.ModeHybrid
	}

	userID, _ := ctxkeys.UserID(r.Context())

	result, err := s.orchestrator.Search(r.Context(), userID, query, override)
	if err != nil {
		writeSearchError(w, err)
		return
	}

	resp := api.SearchResponse{
		Results: result.Results,
		Diagnostics: api.Diagnostics{
			Strategy:  result.Diagnostics.Strategy,
			PerClient: result.Diagnostics.PerClient,
		},
	}
	for _, ce := range result.Diagnostics.Errors {
		resp.Diagnostics.Errors = append(resp.Diagnostics.Errors, api.ClientError{
			Client: ce.Client,
			Kind:   string(types.KindOf(ce.Err)),
			Error:  ce.Err.Error(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleGetLot handles GET /v1/lots/{number}, trying every configured
// client in turn and returning the first hit.
// @Summary Single-lot lookup
// @Produce json
// @Param number path string true "Lot number"
// @Success 200 {object} api.LotResponse
// @Router /v1/lots/{number} [get]
func (s *Server) handleGetLot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use GET", false)
		return
	}

	lotNumber := strings.TrimPrefix(r.URL.Path, "/v1/lots/")
	if lotNumber == "" {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION", "missing lot number", false)
		return
	}

	for _, client := range s.upstreamClients {
		lot, err := client.GetLotByNumber(r.Context(), lotNumber)
		if err != nil {
			s.logger.Warn("lot lookup failed", zap.String("client", client.Name()), zap.Error(err))
			continue
		}
		if lot != nil {
			writeJSON(w, http.StatusOK, api.LotResponse{Lot: lot, Found: true})
			return
		}
	}

	writeJSON(w, http.StatusOK, api.LotResponse{Found: false})
}

func (s *Server) handleTradeMethod(w http.ResponseWriter, r *http.Request) {
	idParam := r.URL.Query().Get("id")
	if idParam == "" {
		writeJSON(w, http.StatusOK, map[string]string{})
		return
	}
	id, err := strconv.Atoi(idParam)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION", "id must be an integer", false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": s.refdata.TradeMethodName(id)})
}

func (s *Server) handleLotStatus(w http.ResponseWriter, r *http.Request) {
	idParam := r.URL.Query().Get("id")
	if idParam == "" {
		writeJSON(w, http.StatusOK, map[string]string{})
		return
	}
	id, err := strconv.Atoi(idParam)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION", "id must be an integer", false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": s.refdata.LotStatusName(id)})
}

func (s *Server) handlePopularQueries(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7)
	limit := queryInt(r, "limit", 20)

	queries, err := s.metrics.PopularQueries(r.Context(), days, limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load popular queries", true)
		return
	}
	writeJSON(w, http.StatusOK, queries)
}

func (s *Server) handleUserAnalytics(w http.ResponseWriter, r *http.Request) {
	idParam := strings.TrimPrefix(r.URL.Path, "/v1/stats/users/")
	userID, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION", "invalid user id", false)
		return
	}

	days := queryInt(r, "days", 30)
	analytics, err := s.metrics.UserAnalyticsFor(r.Context(), userID, days)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load user analytics", true)
		return
	}
	if analytics == nil {
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "no analytics for this user", false)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (s *Server) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7)
	stats, err := s.metrics.SystemStatsFor(r.Context(), days)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load system stats", true)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func apiKeyOrAnon(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeSearchError maps a types.SearchError (or generic error) to the
// api.ErrorResponse envelope with the matching HTTP status.
func writeSearchError(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case types.FailureValidation:
		status = http.StatusBadRequest
	case types.FailureUnauthorized:
		status = http.StatusUnauthorized
	case types.FailureRateLimited:
		status = http.StatusTooManyRequests
	case types.FailureNotFound:
		status = http.StatusNotFound
	case types.FailureTimeout:
		status = http.StatusGatewayTimeout
	case types.FailureNetwork, types.FailureProtocol:
		status = http.StatusBadGateway
	}
	writeJSONError(w, status, strings.ToUpper(string(kind)), err.Error(), types.IsRetryable(err))
}
