// Package api provides the HTTP control plane for a Tessera node:
// status and peer inspection, churn history, and start/stop control of
// the p2p layer.
package api

import (
	"encoding/json"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tessera-network/tessera/internal/health"
	"github.com/tessera-network/tessera/internal/infra/sqlite"
	"github.com/tessera-network/tessera/internal/p2p"
)

// Version is set at build time via ldflags.
var Version = "dev"

// NodeRunner controls the p2p layer of the running node. Implemented
// by the daemon.
type NodeRunner interface {
	StartP2P() error
	StopP2P() error
	Running() bool
}

// Server is the Tessera HTTP API server.
type Server struct {
	mgr            *p2p.Manager
	db             *sqlite.DB
	health         *health.Checker
	runner         NodeRunner
	nodeID         string
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(mgr *p2p.Manager, db *sqlite.DB, checker *health.Checker, runner NodeRunner, nodeID string) *Server {
	return &Server{mgr: mgr, db: db, health: checker, runner: runner, nodeID: nodeID}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/version", s.handleVersion)
		r.Get("/peers", s.handlePeers)
		r.Get("/candidates", s.handleCandidates)
		r.Get("/history", s.handleHistory)
		r.Post("/connect", s.handleConnect)
	})

	// Sandbox-style lifecycle control of the p2p layer.
	r.Post("/start", s.handleStart)
	r.Post("/stop", s.handleStop)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := s.health.Statuses()
	code := http.StatusOK
	if !s.health.IsHealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"healthy": s.health.IsHealthy(),
		"checks":  statuses,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	th := s.mgr.Threshold()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"node_id":    s.nodeID,
		"running":    s.runner.Running(),
		"peers":      s.mgr.PeerCount(),
		"candidates": s.mgr.CandidateCount(),
		"peers_low":  th.Low(),
		"peers_high": th.High(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": Version,
	})
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": s.mgr.PeerCount(),
		"peers": s.mgr.PeerIDs(),
	})
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":      s.mgr.CandidateCount(),
		"candidates": s.mgr.Candidates(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := s.db.RecentPeerEvents(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []sqlite.PeerEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	addr, err := netip.ParseAddrPort(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "address must be host:port")
		return
	}

	s.mgr.Dial(addr)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "dialing",
		"address": addr.String(),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.runner.Running() {
		writeError(w, http.StatusConflict, "p2p layer already running")
		return
	}
	if err := s.runner.StartP2P(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.runner.Running() {
		writeError(w, http.StatusConflict, "p2p layer is not running")
		return
	}
	if err := s.runner.StopP2P(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}
