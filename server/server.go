// Package server exposes solve runs over HTTP and WebSocket. The JSON API
// accepts solve submissions (inline jobs or stored sets), lists run history,
// and reports queue health; the WebSocket hub pushes run progress and
// completion events to connected clients as the worker pool executes.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/smartcoat/async"
	"github.com/teranos/smartcoat/config"
	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/store"
	"github.com/teranos/smartcoat/sym"
)

const (
	// MaxClients is the maximum number of concurrent WebSocket clients
	MaxClients = 100

	// ShutdownTimeout is how long to wait for graceful shutdown. The worker
	// pool alone may take up to 10s to let an in-flight solve checkpoint its
	// best route, so this leaves room for the remaining goroutines.
	ShutdownTimeout = 30 * time.Second

	// httpShutdownTimeout bounds how long in-flight HTTP requests get to finish
	httpShutdownTimeout = 5 * time.Second
)

// ServerState represents the server lifecycle state
type ServerState int32

const (
	ServerStateRunning  ServerState = iota // normal operation
	ServerStateDraining                    // graceful shutdown in progress
	ServerStateStopped                     // shutdown complete
)

// Server owns the HTTP API and the WebSocket hub for one smartcoat process.
// It does not own the worker pool's goroutines but does sequence its shutdown,
// so queued runs are canceled before client connections drop.
type Server struct {
	store *store.Store
	pool  *async.WorkerPool
	cfg   *config.Config

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// Per-client API rate limiters keyed by remote host
	limiters   map[string]*rate.Limiter
	limitersMu sync.Mutex

	lastStatus *cachedQueueStatus // last broadcast queue status for change detection

	httpServer *http.Server

	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	broadcastDrops atomic.Int64
	state          atomic.Int32

	logger *zap.SugaredLogger
}

// NewServer creates a server over the given store and worker pool. The config
// supplies the listen port, allowed origins, and rate limits.
func NewServer(st *store.Store, pool *async.WorkerPool, cfg *config.Config, logger *zap.SugaredLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		store:      st,
		pool:       pool,
		cfg:        cfg,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		limiters:   make(map[string]*rate.Limiter),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger.Named("server"),
	}
}

// getState returns the current server state
func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

// setState atomically updates the server state
func (s *Server) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", "new_state", stateString(newState))
}

// stateString returns human-readable state name
func stateString(state ServerState) string {
	switch state {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Run starts the hub event loop
func (s *Server) Run() {
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debugw("Server hub stopping due to context cancellation")
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		}
	}
}

// handleClientRegister handles a new client connection
func (s *Server) handleClientRegister(client *Client) {
	s.mu.Lock()

	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxClients,
		)
		client.close()
		return
	}

	s.clients[client] = true
	totalClients := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected",
		"client_id", client.id,
		"total_clients", totalClients,
	)
}

// handleClientUnregister handles a client disconnection
func (s *Server) handleClientUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		totalClients := len(s.clients)
		s.mu.Unlock()

		client.close()

		s.logger.Infow("Client disconnected",
			"client_id", client.id,
			"total_clients", totalClients,
		)
	} else {
		s.mu.Unlock()
	}
}

// broadcastMessage sends a message to all connected clients.
// Returns the number of clients that accepted the message (channel not full).
func (s *Server) broadcastMessage(msg interface{}) int {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		select {
		case client.send <- msg:
			sent++
		default:
			// Channel full, skip. A client this far behind catches up from
			// the run history it requests on its own schedule.
			s.broadcastDrops.Add(1)
		}
	}
	return sent
}

// Start binds the listen port and serves until Stop or a listener error.
// The hub and the queue broadcasters start first so WebSocket clients
// connecting immediately after bind see run updates.
func (s *Server) Start() error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run()
	}()

	s.startRunUpdateBroadcaster()
	s.startQueueStatusBroadcaster()

	port := s.cfg.Server.Port
	if port == 0 {
		port = config.DefaultServerPort
	}
	actualPort, err := findAvailablePort(port)
	if err != nil {
		return errors.Wrap(err, "failed to find available port")
	}
	if actualPort != port {
		s.logger.Infow("Port in use, using alternative",
			"requested_port", port,
			"actual_port", actualPort,
		)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", actualPort))
	if err != nil {
		return errors.Wrapf(err, "listen on port %d", actualPort)
	}

	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infow(fmt.Sprintf("%s Server ready", sym.Run),
		"url", fmt.Sprintf("http://localhost:%d", actualPort),
		"port", actualPort,
	)

	err = s.httpServer.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server. Order matters: stop accepting
// requests, then stop the pool so queued runs are canceled while the store
// is still reachable, then drop WebSocket clients.
func (s *Server) Stop() error {
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnw("HTTP server shutdown error", "error", err)
		}
	}

	if s.pool != nil {
		s.logger.Infow("Stopping worker pool")
		s.pool.Stop()
	}

	// Close client connections before cancelling the context so readPump
	// unblocks from its socket read rather than timing out.
	s.mu.Lock()
	clientsToClose := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clientsToClose = append(clientsToClose, client)
		delete(s.clients, client)
	}
	s.mu.Unlock()

	if len(clientsToClose) > 0 {
		s.logger.Infow("Closing client connections", "count", len(clientsToClose))
		for _, client := range clientsToClose {
			client.conn.Close()
		}
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infow("All goroutines stopped cleanly")
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Goroutine shutdown timed out, forcing exit",
			"timeout", ShutdownTimeout,
		)
	}

	s.setState(ServerStateStopped)
	s.logger.Infow(fmt.Sprintf("%s Server shutdown complete", sym.RunClose),
		"broadcast_drops", s.broadcastDrops.Load(),
	)
	return nil
}

// isPortAvailable checks if a port is available for binding
func isPortAvailable(port int) bool {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}

// findAvailablePort tries the requested port first, then the default and
// fallback ports, then a high range as a last resort.
func findAvailablePort(requestedPort int) (int, error) {
	if isPortAvailable(requestedPort) {
		return requestedPort, nil
	}

	preferredPorts := []int{config.DefaultServerPort, config.FallbackServerPort}
	for _, port := range preferredPorts {
		if port != requestedPort && isPortAvailable(port) {
			return port, nil
		}
	}

	fallbackStart := 58077
	for i := 0; i < 10; i++ {
		port := fallbackStart + i
		if isPortAvailable(port) {
			return port, nil
		}
	}

	return 0, errors.Newf("no available ports found (tried %d, %d, %d, and range 58077-58086)",
		requestedPort, config.DefaultServerPort, config.FallbackServerPort)
}
