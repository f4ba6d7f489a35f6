package target

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vehicleops-load/internal/config"
	"vehicleops-load/internal/load"
	"vehicleops-load/internal/telemetry"
)

func quietServer(opts Options) *Server {
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(opts)
}

func post(t *testing.T, h http.Handler, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, DefaultPath, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

func TestHandleEventRouting(t *testing.T) {
	s := quietServer(Options{})
	h := s.Handler()

	gen := telemetry.NewSeededGenerator(3)
	for _, idx := range []int{0, 1, 999} {
		rec := gen.BuildRecord(idx, telemetry.RunConfig{VirtualUsers: 10, Iterations: 1000})
		data, _ := json.Marshal(rec)
		resp := post(t, h, string(data))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("index %d: expected 200, got %d", idx, resp.StatusCode)
		}
		var out map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out["message"] != "Event received" || out["event_id"] == "" {
			t.Errorf("unexpected body: %+v", out)
		}
	}
	st := s.Stats()
	if st.Received != 3 || st.Positions != 2 || st.Emergencies != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestHandleEventRejects(t *testing.T) {
	s := quietServer(Options{})
	h := s.Handler()

	if resp := post(t, h, "{not json"); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("malformed body: expected 500, got %d", resp.StatusCode)
	}
	if resp := post(t, h, `{"type":"Position"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing plate: expected 400, got %d", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodGet, DefaultPath, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: expected 405, got %d", w.Code)
	}
	if got := s.Stats().Rejected; got != 2 {
		t.Errorf("expected 2 rejected, got %d", got)
	}
}

func TestHandleEventInjectedFailures(t *testing.T) {
	s := quietServer(Options{FailureRate: 1, Seed: 1})
	resp := post(t, s.Handler(), `{"type":"Position","vehicle_plate":"ABC-123","coordinates":{"latitude":"1.000000","longitude":"2.000000"},"status":"OK"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if got := s.Stats().Injected; got != 1 {
		t.Errorf("expected 1 injected failure, got %d", got)
	}
}

func TestRunnerAgainstTarget(t *testing.T) {
	s := quietServer(Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	cfg := &config.LoadTestConfig{
		TargetURL:    srv.URL + DefaultPath,
		VirtualUsers: 4,
		Iterations:   40,
		Duration:     10 * time.Second,
		Timeout:      5 * time.Second,
		Executor:     config.ExecutorPerVUIterations,
	}
	r := load.NewRunner(cfg, load.NewHTTPTransport(load.TransportOptions{Timeout: cfg.Timeout}), nil)
	ctx := context.Background()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	st := s.Stats()
	if st.Received != 40 || st.Emergencies != 1 {
		t.Errorf("unexpected target stats: %+v", st)
	}
	checks := r.Checks().Snapshot()
	if len(checks) != 1 || checks[0].Passes != 40 || checks[0].Fails != 0 {
		t.Errorf("unexpected checks: %+v", checks)
	}
}

func TestHandleStats(t *testing.T) {
	s := quietServer(Options{})
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	var st Stats
	if err := json.NewDecoder(w.Result().Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Received != 0 {
		t.Errorf("expected empty stats, got %+v", st)
	}
}
