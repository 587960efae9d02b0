package server

import (
	"net/http"

	"github.com/teranos/smartcoat/async"
	"github.com/teranos/smartcoat/version"
)

// StatusResponse is the /api/status payload
type StatusResponse struct {
	Version version.Info        `json:"version"`
	State   string              `json:"state"`
	Clients int                 `json:"clients"`
	Workers int                 `json:"workers"`
	Depth   int                 `json:"depth"`
	Stats   *async.QueueStats   `json:"stats"`
	Metrics async.SystemMetrics `json:"metrics"`
}

// HandleStatus reports server, queue, and worker health
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	queue := s.pool.GetQueue()
	stats, err := queue.GetStats(r.Context())
	if err != nil {
		handleError(w, s.logger, err, "Could not load queue stats")
		return
	}

	s.mu.RLock()
	clients := len(s.clients)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, StatusResponse{
		Version: version.Get(),
		State:   stateString(s.getState()),
		Clients: clients,
		Workers: s.pool.Workers(),
		Depth:   queue.Depth(),
		Stats:   stats,
		Metrics: s.pool.GetSystemMetrics(),
	})
}

// HandleHealth is the liveness probe. No rate limit and no queue reads,
// it must answer even when the store is struggling.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	s.mu.RLock()
	clients := len(s.clients)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"version":    version.Version,
		"commit":     version.CommitHash,
		"build_time": version.BuildTime,
		"clients":    clients,
	})
}
