// Package status exposes a running simulation over HTTP.
//
// Endpoints:
//
//	GET /health               200 while the process is up
//	GET /status               current round, history summary, per-worker counters
//	GET /rounds               finished rounds, oldest first
//	GET /rounds/{generation}  one finished round; 404 if unknown
//
// The current round's secret is never served; finished rounds are.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dreamware/cracker/internal/history"
	"github.com/dreamware/cracker/internal/round"
)

// RoundSource provides the live round view.
type RoundSource interface {
	View() round.View
}

// WorkerSource provides per-worker counters.
type WorkerSource interface {
	Stats() []round.WorkerStats
}

// HistorySource provides finished rounds.
type HistorySource interface {
	List() []history.Entry
	Get(generation uint64) (history.Entry, error)
	Stats() history.Stats
}

// Status is the body of GET /status.
type Status struct {
	round.View
	RunID   string              `json:"run_id"`
	History history.Stats       `json:"history"`
	Workers []round.WorkerStats `json:"workers"`
}

// Server serves the status API.
type Server struct {
	rounds  RoundSource
	workers WorkerSource
	history HistorySource
	router  chi.Router
	runID   string
}

// NewServer creates a status server for one run.
func NewServer(runID string, rounds RoundSource, workers WorkerSource, hist HistorySource) *Server {
	s := &Server{
		runID:   runID,
		rounds:  rounds,
		workers: workers,
		history: hist,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/status", s.handleStatus)
	r.Route("/rounds", func(r chi.Router) {
		r.Get("/", s.handleListRounds)
		r.Get("/{generation}", s.handleGetRound)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully with a 5 second deadline.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("status server listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Println("status server stopped")
	return <-errc
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Status{
		View:    s.rounds.View(),
		RunID:   s.runID,
		History: s.history.Stats(),
		Workers: s.workers.Stats(),
	})
}

func (s *Server) handleListRounds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Rounds []history.Entry `json:"rounds"`
	}{Rounds: s.history.List()})
}

func (s *Server) handleGetRound(w http.ResponseWriter, r *http.Request) {
	gen, err := strconv.ParseUint(chi.URLParam(r, "generation"), 10, 64)
	if err != nil {
		http.Error(w, "bad generation", http.StatusBadRequest)
		return
	}
	entry, err := s.history.Get(gen)
	if errors.Is(err, history.ErrRoundNotFound) {
		http.Error(w, "round not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("status: encode response: %v", err)
	}
}
