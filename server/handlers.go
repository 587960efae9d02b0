package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/teranos/smartcoat/async"
	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/ingest"
	"github.com/teranos/smartcoat/sequence"
	"github.com/teranos/smartcoat/sym"
	"github.com/teranos/smartcoat/version"
)

const (
	// defaultRunLimit is how many runs a list request returns by default
	defaultRunLimit = 50
	// maxRunLimit caps the limit query parameter
	maxRunLimit = 200
)

// routes wires the HTTP surface. Rate limiting covers the API endpoints
// only; health checks and the WebSocket upgrade stay exempt.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/optimize", s.withRateLimit(s.HandleOptimize))
	mux.HandleFunc("/api/runs", s.withRateLimit(s.HandleRuns))
	mux.HandleFunc("/api/runs/", s.withRateLimit(s.HandleRun))
	mux.HandleFunc("/api/status", s.withRateLimit(s.HandleStatus))
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/ws", s.HandleWebSocket)
	return s.corsMiddleware(mux)
}

// checkOrigin reports whether a browser origin may talk to this server.
// An empty origin (curl, same-origin, native clients) is always allowed.
func (s *Server) checkOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.GetServerAllowedOrigins() {
		if allowed == "*" || strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// corsMiddleware handles CORS headers and preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit enforces the per-client request budget on a handler
func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.allowRequest(r) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

// allowRequest checks the caller's rate limiter, creating one on first
// contact. Limiters are keyed by remote host so one noisy client cannot
// starve the rest.
func (s *Server) allowRequest(r *http.Request) bool {
	perMinute := s.cfg.Server.RateLimitPerMinute
	if perMinute <= 0 {
		return true
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	s.limitersMu.Lock()
	limiter, ok := s.limiters[host]
	if !ok {
		burst := s.cfg.Server.RateBurst
		if burst <= 0 {
			burst = perMinute
		}
		limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
		s.limiters[host] = limiter
	}
	s.limitersMu.Unlock()

	if !limiter.Allow() {
		s.logger.Debugw("Rate limit exceeded",
			"remote", host,
			"path", r.URL.Path,
		)
		return false
	}
	return true
}

// SolveRequest is the JSON body for both synchronous solves and queued
// runs. Jobs and the changeover table each come inline or by the name of
// a stored set; inline wins when both are present.
type SolveRequest struct {
	JobSet string               `json:"job_set,omitempty"`
	Jobs   []ingest.ScenarioJob `json:"jobs,omitempty"`

	ChangeoverSet     string                  `json:"changeover_set,omitempty"`
	Chemicals         []string                `json:"chemicals,omitempty"`
	DefaultChangeover *int                    `json:"default_changeover,omitempty"`
	Changeovers       []ingest.TransitionSpec `json:"changeovers,omitempty"`

	Anchor        string `json:"anchor,omitempty"`
	Strategy      string `json:"strategy,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
	Workers       int    `json:"workers,omitempty"`
}

// OptimizeResponse is the payload for a synchronous solve
type OptimizeResponse struct {
	Result   sequence.Result   `json:"result"`
	Timeline sequence.Timeline `json:"timeline"`
}

// resolveSolveRequest turns an API request into a solve submission,
// loading stored sets and applying config defaults with per-request
// overrides on top.
func (s *Server) resolveSolveRequest(ctx context.Context, req SolveRequest) (async.Request, error) {
	var areq async.Request

	switch {
	case len(req.Jobs) > 0:
		jobs := make([]coat.Job, len(req.Jobs))
		for i, j := range req.Jobs {
			jobs[i] = coat.Job{
				ID:       j.ID,
				Chemical: j.Chemical,
				Slide:    j.Slide,
				Priority: j.Priority,
				Minutes:  j.Minutes,
			}
		}
		areq.Jobs = jobs
	case req.JobSet != "":
		set, err := s.store.GetJobSet(ctx, req.JobSet)
		if err != nil {
			return async.Request{}, errors.Wrapf(err, "job set %q", req.JobSet)
		}
		areq.Jobs = set.Jobs
		areq.JobSetID = set.ID
		areq.JobSetName = set.Name
	default:
		return async.Request{}, errors.Mark(
			errors.New("request needs inline jobs or a job_set name"),
			errors.ErrInvalidRequest)
	}

	switch {
	case len(req.Chemicals) > 0:
		table, err := ingest.BuildTable(req.Chemicals, req.DefaultChangeover, req.Changeovers)
		if err != nil {
			return async.Request{}, errors.Mark(
				errors.Wrap(err, "changeover table"),
				errors.ErrInvalidRequest)
		}
		areq.Table = table
	case req.ChangeoverSet != "":
		set, err := s.store.GetChangeoverSet(ctx, req.ChangeoverSet)
		if err != nil {
			return async.Request{}, errors.Wrapf(err, "changeover set %q", req.ChangeoverSet)
		}
		areq.Table = set.Table
	default:
		return async.Request{}, errors.Mark(
			errors.New("request needs inline chemicals or a changeover_set name"),
			errors.ErrInvalidRequest)
	}

	areq.AnchorJob = req.Anchor

	cfg := s.cfg.SequenceSolverConfig()
	if req.Strategy != "" {
		strategy, err := sequence.ParseStrategy(req.Strategy)
		if err != nil {
			return async.Request{}, errors.Mark(err, errors.ErrInvalidRequest)
		}
		cfg.Strategy = strategy
	}
	if req.MaxIterations > 0 {
		cfg.MaxIterations = req.MaxIterations
	}
	if req.Workers > 0 {
		cfg.Workers = req.Workers
	}
	areq.Config = cfg

	opts := s.cfg.MatrixOptions()
	areq.Matrix = &opts

	return areq, nil
}

// HandleOptimize runs a solve inline and returns the route and timeline.
// Nothing is recorded in the store; callers wanting history use /api/runs.
func (s *Server) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req SolveRequest
	if err := readJSON(w, r, &req); err != nil {
		handleError(w, s.logger, err, "Invalid solve request")
		return
	}

	areq, err := s.resolveSolveRequest(r.Context(), req)
	if err != nil {
		handleError(w, s.logger, err, "Could not resolve solve request")
		return
	}

	list, err := coat.NewJobList(areq.Jobs...)
	if err != nil {
		handleError(w, s.logger, errors.Mark(err, errors.ErrInvalidRequest), "Invalid job set")
		return
	}
	if err := list.Validate(areq.Table.Chemicals()); err != nil {
		handleError(w, s.logger, errors.Mark(err, errors.ErrInvalidRequest), "Invalid job set")
		return
	}

	anchor := 0
	if areq.AnchorJob != "" {
		anchor = -1
		for i, j := range list.Jobs() {
			if j.ID == areq.AnchorJob {
				anchor = i
				break
			}
		}
		if anchor < 0 {
			handleError(w, s.logger,
				errors.Mark(errors.Newf("anchor job %q is not in the job set", areq.AnchorJob),
					errors.ErrInvalidRequest),
				"Invalid anchor")
			return
		}
	}

	opts := sequence.DefaultMatrixOptions()
	if areq.Matrix != nil {
		opts = *areq.Matrix
	}
	matrix, err := sequence.BuildMatrix(list.Jobs(), areq.Table, opts)
	if err != nil {
		handleError(w, s.logger, errors.Mark(err, errors.ErrInvalidRequest), "Could not build cost matrix")
		return
	}

	solver, err := sequence.NewSolver(areq.Config)
	if err != nil {
		handleError(w, s.logger, errors.Mark(err, errors.ErrInvalidRequest), "Invalid solver configuration")
		return
	}

	solveCtx := r.Context()
	if s.cfg.Solver.DeadlineMS > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(solveCtx, time.Duration(s.cfg.Solver.DeadlineMS)*time.Millisecond)
		defer cancel()
	}

	res, err := solver.Solve(solveCtx, matrix, anchor)
	if err != nil {
		if errors.Is(err, sequence.ErrNoFeasibleSequence) {
			writeWrappedError(w, s.logger, err, "No feasible sequence", http.StatusUnprocessableEntity)
			return
		}
		handleError(w, s.logger, err, "Solve failed")
		return
	}

	tl, err := sequence.Assemble(res, matrix)
	if err != nil {
		handleError(w, s.logger, err, "Could not assemble timeline")
		return
	}

	s.logger.Infow(fmt.Sprintf("%s Solve completed", sym.Seq),
		"jobs", list.Len(),
		"total_cost", res.TotalCost,
		"strategy", res.Strategy,
		"duration", res.Duration,
	)
	writeJSON(w, http.StatusOK, OptimizeResponse{Result: res, Timeline: tl})
}

// HandleRuns serves the run collection: POST enqueues a background solve,
// GET lists run history newest first.
func (s *Server) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost, http.MethodGet) {
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.handleEnqueueRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	}
}

func (s *Server) handleEnqueueRun(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if err := readJSON(w, r, &req); err != nil {
		handleError(w, s.logger, err, "Invalid solve request")
		return
	}

	areq, err := s.resolveSolveRequest(r.Context(), req)
	if err != nil {
		handleError(w, s.logger, err, "Could not resolve solve request")
		return
	}

	job, err := s.pool.GetQueue().Enqueue(r.Context(), areq)
	if err != nil {
		handleError(w, s.logger, err, "Could not enqueue run")
		return
	}

	s.logger.Infow(fmt.Sprintf("%s Run enqueued", sym.Run),
		"run_id", shortID(job.RunID),
		"jobs", job.JobCount,
		"strategy", job.Strategy,
	)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := parseIntQueryParam(r, "limit", defaultRunLimit, 1, maxRunLimit)

	runs, err := s.store.ListRuns(r.Context(), status, limit)
	if err != nil {
		handleError(w, s.logger, err, "Could not list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// HandleRun serves a single run: GET returns the live snapshot when the
// run is still in the queue and the stored row otherwise, DELETE cancels
// a queued run.
func (s *Server) HandleRun(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodDelete) {
		return
	}

	parts := extractPathParts(r.URL.Path, "/api/runs/")
	if len(parts) != 1 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "run ID required")
		return
	}
	runID := parts[0]

	switch r.Method {
	case http.MethodGet:
		if job, ok := s.pool.GetQueue().Get(runID); ok {
			writeJSON(w, http.StatusOK, job)
			return
		}
		run, err := s.store.GetRun(r.Context(), runID)
		if err != nil {
			handleError(w, s.logger, err, "Run not found")
			return
		}
		writeJSON(w, http.StatusOK, run)

	case http.MethodDelete:
		if err := s.pool.GetQueue().Cancel(r.Context(), runID, "canceled via API"); err != nil {
			if errors.IsNotFoundError(err) {
				handleError(w, s.logger, err, "Run not found")
				return
			}
			// Runs already started or finished cannot be withdrawn
			writeWrappedError(w, s.logger, err, "Cannot cancel run", http.StatusConflict)
			return
		}
		s.logger.Infow("Run canceled", "run_id", shortID(runID))
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "canceled",
			"run_id": runID,
		})
	}
}

// HandleWebSocket upgrades a connection and attaches it to the hub. The
// version handshake goes out before the pumps start so it is always the
// first frame a client sees.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.getState() != ServerStateRunning {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin: func(r *http.Request) bool {
			return s.checkOrigin(r.Header.Get("Origin"))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	client := newClient(s, conn)

	if err := conn.WriteJSON(VersionMessage{Type: "version", Version: version.Get()}); err != nil {
		s.logger.Warnw("Failed to send version handshake",
			"client_id", client.id,
			"error", err,
		)
		conn.Close()
		return
	}

	s.register <- client

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sendInitialRunsToClient(client)
	}()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}
