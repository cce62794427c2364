package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"

	"github.com/tessera-network/tessera/internal/health"
	"github.com/tessera-network/tessera/internal/infra/sqlite"
	"github.com/tessera-network/tessera/internal/p2p"
)

type noopNetwork struct{}

func (noopNetwork) Connect(addr netip.AddrPort) {}
func (noopNetwork) Disconnect(id string)        {}

type fakeRunner struct {
	mu      sync.Mutex
	running bool
}

func (f *fakeRunner) StartP2P() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

func (f *fakeRunner) StopP2P() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

func (f *fakeRunner) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func newTestServer(t *testing.T) (*Server, *sqlite.DB, *fakeRunner) {
	t.Helper()

	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	th, err := p2p.NewThreshold(0, 5)
	if err != nil {
		t.Fatalf("NewThreshold(): %v", err)
	}
	mgr, err := p2p.NewManager(p2p.Config{Threshold: th}, noopNetwork{},
		func(ctx context.Context, endpoints []string) []netip.AddrPort { return nil })
	if err != nil {
		t.Fatalf("NewManager(): %v", err)
	}

	checker := health.NewChecker(db, t.TempDir(), func() *p2p.Manager { return nil })
	runner := &fakeRunner{running: true}

	return NewServer(mgr, db, checker, runner, "test-node"), db, runner
}

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

// ─── Status and version ─────────────────────────────────────────────────────

func TestAPI_Status(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, "GET", "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]interface{}
	json.NewDecoder(w.Body).Decode(&body)
	if body["node_id"] != "test-node" {
		t.Errorf("node_id = %v, want test-node", body["node_id"])
	}
	if body["running"] != true {
		t.Errorf("running = %v, want true", body["running"])
	}
	if body["peers_high"] != float64(5) {
		t.Errorf("peers_high = %v, want 5", body["peers_high"])
	}
}

func TestAPI_Version(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, "GET", "/api/version")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAPI_Health(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, "GET", "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]interface{}
	json.NewDecoder(w.Body).Decode(&body)
	if body["healthy"] != true {
		t.Errorf("healthy = %v, want true", body["healthy"])
	}
}

// ─── Peers and candidates ───────────────────────────────────────────────────

func TestAPI_Peers_Empty(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, "GET", "/api/peers")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]interface{}
	json.NewDecoder(w.Body).Decode(&body)
	if body["count"] != float64(0) {
		t.Errorf("count = %v, want 0", body["count"])
	}
}

func TestAPI_Candidates_Empty(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, "GET", "/api/candidates")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

// ─── Churn history ──────────────────────────────────────────────────────────

func TestAPI_History(t *testing.T) {
	srv, db, _ := newTestServer(t)

	db.RecordPeerEvent("run-1", "10.0.0.1:9732", "connected")
	db.RecordPeerEvent("run-1", "10.0.0.1:9732", "terminated")

	w := doRequest(t, srv, "GET", "/api/history?limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var body struct {
		Events []sqlite.PeerEvent `json:"events"`
	}
	json.NewDecoder(w.Body).Decode(&body)
	if len(body.Events) != 2 {
		t.Errorf("events = %d, want 2", len(body.Events))
	}
}

func TestAPI_History_BadLimit(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, "GET", "/api/history?limit=potato")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── Manual dial ────────────────────────────────────────────────────────────

func TestAPI_Connect(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := strings.NewReader(`{"address": "203.0.113.1:9732"}`)
	req := httptest.NewRequest("POST", "/api/connect", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
}

func TestAPI_Connect_BadAddress(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := strings.NewReader(`{"address": "not-an-address"}`)
	req := httptest.NewRequest("POST", "/api/connect", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── Lifecycle control ──────────────────────────────────────────────────────

func TestAPI_StopThenStart(t *testing.T) {
	srv, _, runner := newTestServer(t)

	w := doRequest(t, srv, "POST", "/stop")
	if w.Code != http.StatusOK {
		t.Fatalf("stop status = %d, want %d", w.Code, http.StatusOK)
	}
	if runner.Running() {
		t.Error("runner should be stopped")
	}

	// Stopping twice conflicts.
	w = doRequest(t, srv, "POST", "/stop")
	if w.Code != http.StatusConflict {
		t.Errorf("second stop status = %d, want %d", w.Code, http.StatusConflict)
	}

	w = doRequest(t, srv, "POST", "/start")
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, want %d", w.Code, http.StatusOK)
	}
	if !runner.Running() {
		t.Error("runner should be running")
	}

	// Starting twice conflicts.
	w = doRequest(t, srv, "POST", "/start")
	if w.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want %d", w.Code, http.StatusConflict)
	}
}

// ─── Metrics ────────────────────────────────────────────────────────────────

func TestAPI_MetricsGated(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, "GET", "/metrics")
	if w.Code == http.StatusOK {
		t.Error("/metrics should not be mounted unless enabled")
	}

	srv.EnableMetrics()
	w = doRequest(t, srv, "GET", "/metrics")
	if w.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want %d", w.Code, http.StatusOK)
	}
}
