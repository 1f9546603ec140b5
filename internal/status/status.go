// Package status serves a read-only JSON snapshot of the running
// coordinator for operators. It never mutates coordination state: the
// dispatcher hands it a plain copy after every loop iteration, and the
// HTTP handler only reads the most recent copy.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// SimSnapshot is one simulator's state as of the last published Snapshot.
type SimSnapshot struct {
	Name              string        `json:"name"`
	Ordinal           int           `json:"ordinal"`
	TimeDelta         time.Duration `json:"time_delta"`
	TimeRequested     time.Duration `json:"time_requested"`
	TimeLastProcessed time.Duration `json:"time_last_processed"`
	Processing        bool          `json:"processing"`
	MessagesPending   bool          `json:"messages_pending"`
}

// Snapshot is the coordinator's state as of one loop iteration boundary.
type Snapshot struct {
	TimeGranted time.Duration `json:"time_granted"`
	NProcessing int           `json:"n_processing"`
	Expected    int           `json:"expected_sims"`
	Registered  int           `json:"registered"`
	Departed    int           `json:"departed"`
	Simulators  []SimSnapshot `json:"simulators"`
}

// Server is the optional HTTP introspection endpoint.
type Server struct {
	httpServer *http.Server

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewServer builds a status server bound to addr; it does not start
// listening until Start is called.
func NewServer(addr string) *Server {
	s := &Server{}

	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Start begins serving in the background. Listen errors other than a clean
// shutdown are logged, not fatal, since the status endpoint is pure
// observability and its failure must never affect coordination.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("status server stopped")
		}
	}()
}

// Publish replaces the snapshot served by /status.
func (s *Server) Publish(snap Snapshot) {
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		logrus.WithError(err).Error("failed to encode status snapshot")
	}
}

// Close shuts the HTTP server down within ctx's deadline.
func (s *Server) Close(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
