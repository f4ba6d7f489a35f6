// Local stand-in for the event-notification endpoint
package target

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"vehicleops-load/internal/telemetry"
)

// DefaultPath is where the hosted endpoint lives.
const DefaultPath = "/prod/event-notification"

// Stats counts what the endpoint has received.
type Stats struct {
	Received    int64 `json:"received"`
	Positions   int64 `json:"positions"`
	Emergencies int64 `json:"emergencies"`
	Rejected    int64 `json:"rejected"`
	Injected    int64 `json:"injected_failures"`
}

// Server accepts vehicle events the way the hosted intake does.
type Server struct {
	path        string
	failureRate float64
	log         *slog.Logger

	mu    sync.Mutex
	rng   *rand.Rand
	stats Stats
}

// Options configures a Server.
type Options struct {
	Path        string
	FailureRate float64
	Seed        int64
	Logger      *slog.Logger
}

// NewServer creates a target server.
func NewServer(opts Options) *Server {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Server{
		path:        opts.Path,
		failureRate: opts.FailureRate,
		log:         opts.Logger,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Handler returns the routes served by the target.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleEvent)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("target listening", "addr", addr, "path", s.path, "failure_rate", s.failureRate)
	return srv.ListenAndServe()
}

// Stats returns a copy of the counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var rec telemetry.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.reject()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rec.VehiclePlate == "" || rec.Type == "" {
		s.reject()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing vehicle_plate or type"})
		return
	}

	s.mu.Lock()
	s.stats.Received++
	inject := s.failureRate > 0 && s.rng.Float64() < s.failureRate
	if inject {
		s.stats.Injected++
	}
	s.mu.Unlock()
	if inject {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "injected failure"})
		return
	}

	eventID := uuid.NewString()
	switch rec.Type {
	case telemetry.TypeEmergency:
		s.mu.Lock()
		s.stats.Emergencies++
		s.mu.Unlock()
		s.log.Warn("emergency alert",
			"event_id", eventID,
			"vehicle_plate", rec.VehiclePlate,
			"latitude", rec.Coordinates.Latitude,
			"longitude", rec.Coordinates.Longitude)
	default:
		s.mu.Lock()
		s.stats.Positions++
		s.mu.Unlock()
		s.log.Debug("position stored", "event_id", eventID, "vehicle_plate", rec.VehiclePlate)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Event received", "event_id": eventID})
}

func (s *Server) reject() {
	s.mu.Lock()
	s.stats.Rejected++
	s.mu.Unlock()
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
