package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"PoolHub/internal/core"
	"PoolHub/internal/ingestion"
	"PoolHub/internal/observability"
	"PoolHub/internal/pool"
	"PoolHub/internal/query"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HTTPServer serves the JSON query API plus the operational endpoints
// (/healthz, /readyz, /metrics). Handlers are thin: parse, delegate to the
// query service or engine, encode.
type HTTPServer struct {
	httpServer *http.Server
	addr       string
	qs         *query.QueryService
	engine     *core.Engine
	admin      *ingestion.AdminInjectService
	health     *observability.HealthChecker
	metrics    *observability.Metrics
	log        zerolog.Logger
}

func NewHTTPServer(
	addr string,
	qs *query.QueryService,
	engine *core.Engine,
	admin *ingestion.AdminInjectService,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *HTTPServer {
	return &HTTPServer{
		addr:    addr,
		qs:      qs,
		engine:  engine,
		admin:   admin,
		health:  health,
		metrics: metrics,
		log:     logger,
	}
}

// Start starts the HTTP server (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.health.LivenessHandler)
	mux.HandleFunc("/readyz", s.health.ReadinessHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/keys/state", s.instrument("key_state", s.handleKeyState))
	mux.HandleFunc("GET /v1/investors/state", s.instrument("investor_state", s.handleInvestorState))
	mux.HandleFunc("GET /v1/pools/price", s.instrument("pool_price", s.handlePoolPrice))
	mux.HandleFunc("GET /v1/settlements", s.instrument("settlements", s.handleSettlements))
	mux.HandleFunc("GET /v1/prices/history", s.instrument("price_history", s.handlePriceHistory))
	mux.HandleFunc("GET /v1/events", s.instrument("events", s.handleEvents))
	mux.HandleFunc("POST /v1/admin/hub-report", s.instrument("hub_report", s.handleHubReport))
	mux.HandleFunc("POST /v1/admin/approve", s.instrument("admin_approve", s.handleAdminApprove))
	mux.HandleFunc("POST /v1/admin/settle", s.instrument("admin_settle", s.handleAdminSettle))
	mux.HandleFunc("POST /v1/admin/network-report", s.instrument("admin_network_report", s.handleAdminNetworkReport))

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		if s.metrics != nil {
			s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
			s.metrics.QueryRequests.WithLabelValues(endpoint, "ok").Inc()
		}
	}
}

// --- handlers ---

func (s *HTTPServer) handleKeyState(w http.ResponseWriter, r *http.Request) {
	p, k, err := keyParams(r)
	if err != nil {
		s.fail(w, "key_state", http.StatusBadRequest, err)
		return
	}

	resp, err := s.qs.GetKeyState(r.Context(), p, k)
	if err != nil {
		s.fail(w, "key_state", http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleInvestorState(w http.ResponseWriter, r *http.Request) {
	p, k, err := keyParams(r)
	if err != nil {
		s.fail(w, "investor_state", http.StatusBadRequest, err)
		return
	}
	investor, err := uuid.Parse(r.URL.Query().Get("investor"))
	if err != nil {
		s.fail(w, "investor_state", http.StatusBadRequest, fmt.Errorf("investor: %w", err))
		return
	}

	resp, err := s.qs.GetInvestorState(r.Context(), p, k, investor)
	if err != nil {
		s.fail(w, "investor_state", http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handlePoolPrice(w http.ResponseWriter, r *http.Request) {
	p, err := poolParam(r)
	if err != nil {
		s.fail(w, "pool_price", http.StatusBadRequest, err)
		return
	}

	resp, err := s.qs.GetPoolPrice(r.Context(), p)
	if err != nil {
		s.fail(w, "pool_price", http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleSettlements(w http.ResponseWriter, r *http.Request) {
	p, err := poolParam(r)
	if err != nil {
		s.fail(w, "settlements", http.StatusBadRequest, err)
		return
	}
	investor, err := uuid.Parse(r.URL.Query().Get("investor"))
	if err != nil {
		s.fail(w, "settlements", http.StatusBadRequest, fmt.Errorf("investor: %w", err))
		return
	}

	limit := limitParam(r, 50, 500)
	after := cursorParam(r)

	entries, err := s.qs.GetSettlementHistory(r.Context(), p, investor, limit, after)
	if err != nil {
		s.fail(w, "settlements", http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"settlements": entries})
}

func (s *HTTPServer) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	p, err := poolParam(r)
	if err != nil {
		s.fail(w, "price_history", http.StatusBadRequest, err)
		return
	}

	limit := limitParam(r, 50, 500)
	after := cursorParam(r)

	entries, err := s.qs.GetPriceHistory(r.Context(), p, limit, after)
	if err != nil {
		s.fail(w, "price_history", http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prices": entries})
}

func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	partition := r.URL.Query().Get("partition")
	if partition == "" {
		s.fail(w, "events", http.StatusBadRequest, fmt.Errorf("partition is required"))
		return
	}

	limit := limitParam(r, 100, 1000)
	from := int64(0)
	if v := r.URL.Query().Get("from_sequence"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.fail(w, "events", http.StatusBadRequest, fmt.Errorf("from_sequence: %w", err))
			return
		}
		from = parsed
	}

	entries, err := s.qs.GetEventHistory(r.Context(), partition, limit, from)
	if err != nil {
		s.fail(w, "events", http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": entries})
}

// handleHubReport triggers a hub-side valuation: NAV derived from the
// accounting ledger, fed through the normal report pipeline.
func (s *HTTPServer) handleHubReport(w http.ResponseWriter, r *http.Request) {
	p, err := poolParam(r)
	if err != nil {
		s.fail(w, "hub_report", http.StatusBadRequest, err)
		return
	}
	issuance, err := strconv.ParseInt(r.URL.Query().Get("issuance"), 10, 64)
	if err != nil {
		s.fail(w, "hub_report", http.StatusBadRequest, fmt.Errorf("issuance: %w", err))
		return
	}

	if err := s.engine.ReportHubValuation(p, issuance); err != nil {
		s.fail(w, "hub_report", http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// handleAdminApprove injects a manual epoch approval. Operator fallback for
// when the pool manager's NATS producer is down.
func (s *HTTPServer) handleAdminApprove(w http.ResponseWriter, r *http.Request) {
	p, k, err := keyParams(r)
	if err != nil {
		s.fail(w, "admin_approve", http.StatusBadRequest, err)
		return
	}
	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		s.fail(w, "admin_approve", http.StatusBadRequest, fmt.Errorf("amount: %w", err))
		return
	}
	seq, err := strconv.ParseInt(r.URL.Query().Get("sequence"), 10, 64)
	if err != nil {
		s.fail(w, "admin_approve", http.StatusBadRequest, fmt.Errorf("sequence: %w", err))
		return
	}

	switch r.URL.Query().Get("direction") {
	case "deposit":
		err = s.admin.InjectApproveDeposits(r.Context(), p, k.ShareClass, k.Asset, amount, seq)
	case "redeem":
		err = s.admin.InjectApproveRedeems(r.Context(), p, k.ShareClass, k.Asset, amount, seq)
	default:
		s.fail(w, "admin_approve", http.StatusBadRequest, fmt.Errorf("direction must be deposit or redeem"))
		return
	}
	if err != nil {
		s.fail(w, "admin_approve", http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// handleAdminSettle injects a manual IssueShares or RevokeShares operation.
func (s *HTTPServer) handleAdminSettle(w http.ResponseWriter, r *http.Request) {
	p, k, err := keyParams(r)
	if err != nil {
		s.fail(w, "admin_settle", http.StatusBadRequest, err)
		return
	}
	seq, err := strconv.ParseInt(r.URL.Query().Get("sequence"), 10, 64)
	if err != nil {
		s.fail(w, "admin_settle", http.StatusBadRequest, fmt.Errorf("sequence: %w", err))
		return
	}

	switch r.URL.Query().Get("direction") {
	case "deposit":
		err = s.admin.InjectIssueShares(r.Context(), p, k.ShareClass, k.Asset, seq)
	case "redeem":
		err = s.admin.InjectRevokeShares(r.Context(), p, k.ShareClass, k.Asset, seq)
	default:
		s.fail(w, "admin_settle", http.StatusBadRequest, fmt.Errorf("direction must be deposit or redeem"))
		return
	}
	if err != nil {
		s.fail(w, "admin_settle", http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// handleAdminNetworkReport injects a network report, e.g. to unblock a spoke
// whose gateway lost its producer state.
func (s *HTTPServer) handleAdminNetworkReport(w http.ResponseWriter, r *http.Request) {
	p, err := poolParam(r)
	if err != nil {
		s.fail(w, "admin_network_report", http.StatusBadRequest, err)
		return
	}
	network, err := strconv.ParseUint(r.URL.Query().Get("network"), 10, 32)
	if err != nil {
		s.fail(w, "admin_network_report", http.StatusBadRequest, fmt.Errorf("network: %w", err))
		return
	}
	issuance, err := strconv.ParseInt(r.URL.Query().Get("issuance"), 10, 64)
	if err != nil {
		s.fail(w, "admin_network_report", http.StatusBadRequest, fmt.Errorf("issuance: %w", err))
		return
	}
	navVal, err := strconv.ParseInt(r.URL.Query().Get("nav"), 10, 64)
	if err != nil {
		s.fail(w, "admin_network_report", http.StatusBadRequest, fmt.Errorf("nav: %w", err))
		return
	}
	seq, err := strconv.ParseInt(r.URL.Query().Get("sequence"), 10, 64)
	if err != nil {
		s.fail(w, "admin_network_report", http.StatusBadRequest, fmt.Errorf("sequence: %w", err))
		return
	}

	if err := s.admin.InjectNetworkReport(r.Context(), p, pool.NetworkID(network), issuance, navVal, seq); err != nil {
		s.fail(w, "admin_network_report", http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *HTTPServer) fail(w http.ResponseWriter, endpoint string, code int, err error) {
	if s.metrics != nil {
		s.metrics.QueryErrors.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	}
	s.log.Warn().Str("endpoint", endpoint).Int("code", code).Err(err).Msg("query failed")
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// --- param helpers ---

func poolParam(r *http.Request) (pool.PoolID, error) {
	raw := r.URL.Query().Get("pool")
	if raw == "" {
		return 0, fmt.Errorf("pool is required")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("pool: %w", err)
	}
	return pool.PoolID(id), nil
}

func keyParams(r *http.Request) (pool.PoolID, pool.Key, error) {
	p, err := poolParam(r)
	if err != nil {
		return 0, pool.Key{}, err
	}
	shareClass := r.URL.Query().Get("share_class")
	asset := r.URL.Query().Get("asset")
	if shareClass == "" || asset == "" {
		return 0, pool.Key{}, fmt.Errorf("share_class and asset are required")
	}
	return p, pool.NewKey(pool.ShareClassID(shareClass), pool.AssetID(asset)), nil
}

func limitParam(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		return def
	}
	return n
}

func cursorParam(r *http.Request) *int64 {
	raw := r.URL.Query().Get("after_sequence")
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
