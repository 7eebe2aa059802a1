package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
)

// Server exposes the run's latest metrics over HTTP for ad-hoc inspection.
// It implements Sink, so it can sit in a Multi next to the persistent sinks.
type Server struct {
	mu      sync.Mutex
	runID   string
	updates int
	latest  Record
}

// NewServer creates a metrics server for the given run.
func NewServer(runID string) *Server {
	return &Server{runID: runID}
}

func (s *Server) Emit(update int, values Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	s.latest = Record{Update: update, Values: values}
}

func (s *Server) Close() error { return nil }

// Handler returns the HTTP handler serving /healthz, /stats, and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.mu.Lock()
		payload := map[string]any{
			"run_id":         s.runID,
			"updates_logged": s.updates,
			"latest_update":  s.latest.Update,
		}
		s.mu.Unlock()
		writeJSON(w, payload)
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.mu.Lock()
		payload := map[string]any{
			"run_id":  s.runID,
			"update":  s.latest.Update,
			"metrics": s.latest.Values,
		}
		s.mu.Unlock()
		writeJSON(w, payload)
	})
	return mux
}

// Serve starts the server on addr in a background goroutine. Errors are
// reported through errFn; serving is strictly best-effort.
func (s *Server) Serve(addr string, errFn func(error)) {
	go func() {
		if err := http.ListenAndServe(addr, s.Handler()); err != nil && errFn != nil {
			errFn(err)
		}
	}()
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}
