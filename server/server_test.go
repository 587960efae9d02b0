package server

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/smartcoat/async"
	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/config"
	sctest "github.com/teranos/smartcoat/internal/testing"
	"github.com/teranos/smartcoat/sequence"
	"github.com/teranos/smartcoat/store"
)

// newTestServer wires a server over a fresh in-memory database. The worker
// pool is created but not started; tests that need execution start it
// through s.pool.
func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	db := sctest.CreateTestDB(t)
	st := store.NewStore(db)
	queue := async.NewQueue(st)
	pool := async.NewWorkerPool(context.Background(), queue,
		async.PoolConfig{Workers: 1, PollInterval: 20 * time.Millisecond},
		zap.NewNop().Sugar())

	cfg := &config.Config{}
	cfg.Solver.Strategy = "local-search"
	cfg.Solver.Workers = 1
	cfg.Solver.FallbackChangeover = -1

	return NewServer(st, pool, cfg, zap.NewNop().Sugar()), st
}

// testSolveRequest returns a three-job submission whose best route from A
// is A, C, B at a total cost of 47.
func testSolveRequest(t *testing.T) async.Request {
	t.Helper()
	table, err := coat.NewChangeoverTable([]string{"C1", "C2"})
	if err != nil {
		t.Fatalf("NewChangeoverTable failed: %v", err)
	}
	if err := table.SetMinutes("C1", "C2", 15); err != nil {
		t.Fatalf("SetMinutes failed: %v", err)
	}
	if err := table.SetMinutes("C2", "C1", 15); err != nil {
		t.Fatalf("SetMinutes failed: %v", err)
	}
	return async.Request{
		Jobs: []coat.Job{
			{ID: "A", Chemical: "C1", Slide: "frosted", Priority: coat.PriorityUrgent, Minutes: 30},
			{ID: "B", Chemical: "C2", Slide: "plain", Priority: coat.PriorityLow, Minutes: 20},
			{ID: "C", Chemical: "C1", Slide: "plain", Priority: coat.PriorityNormal, Minutes: 25},
		},
		Table:     table,
		AnchorJob: "A",
		Config:    sequence.SolverConfig{Strategy: sequence.StrategyLocalSearch, Workers: 1},
	}
}

func TestServerStateLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	if got := s.getState(); got != ServerStateRunning {
		t.Fatalf("expected new server in running state, got %s", stateString(got))
	}
	s.setState(ServerStateDraining)
	if got := s.getState(); got != ServerStateDraining {
		t.Errorf("expected draining, got %s", stateString(got))
	}
	s.setState(ServerStateStopped)
	if got := s.getState(); got != ServerStateStopped {
		t.Errorf("expected stopped, got %s", stateString(got))
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state ServerState
		want  string
	}{
		{ServerStateRunning, "running"},
		{ServerStateDraining, "draining"},
		{ServerStateStopped, "stopped"},
		{ServerState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := stateString(tt.state); got != tt.want {
			t.Errorf("stateString(%d) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestClientRegisterUnregister(t *testing.T) {
	s, _ := newTestServer(t)
	go s.Run()
	defer s.cancel()

	client := &Client{server: s, send: make(chan interface{}, 1), id: "test-client"}
	s.register <- client
	time.Sleep(50 * time.Millisecond)

	s.mu.RLock()
	count := len(s.clients)
	s.mu.RUnlock()
	if count != 1 {
		t.Fatalf("expected 1 registered client, got %d", count)
	}

	s.unregister <- client
	time.Sleep(50 * time.Millisecond)

	s.mu.RLock()
	count = len(s.clients)
	s.mu.RUnlock()
	if count != 0 {
		t.Errorf("expected 0 clients after unregister, got %d", count)
	}

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected send channel closed after unregister")
		}
	default:
		t.Error("expected send channel closed after unregister")
	}
}

func TestMaxClientsRejectsOverflow(t *testing.T) {
	s, _ := newTestServer(t)

	s.mu.Lock()
	for i := 0; i < MaxClients; i++ {
		filler := &Client{server: s, send: make(chan interface{}), id: fmt.Sprintf("c%d", i)}
		s.clients[filler] = true
	}
	s.mu.Unlock()

	extra := &Client{server: s, send: make(chan interface{}, 1), id: "overflow"}
	s.handleClientRegister(extra)

	s.mu.RLock()
	count := len(s.clients)
	s.mu.RUnlock()
	if count != MaxClients {
		t.Errorf("expected %d clients, got %d", MaxClients, count)
	}
	if _, ok := <-extra.send; ok {
		t.Error("expected overflow client send channel closed")
	}
}

func TestBroadcastMessageSkipsFullChannels(t *testing.T) {
	s, _ := newTestServer(t)

	ready := &Client{server: s, send: make(chan interface{}, 1), id: "ready"}
	full := &Client{server: s, send: make(chan interface{}), id: "full"}

	s.mu.Lock()
	s.clients[ready] = true
	s.clients[full] = true
	s.mu.Unlock()

	sent := s.broadcastMessage("hello")
	if sent != 1 {
		t.Errorf("expected 1 delivery, got %d", sent)
	}
	if got := s.broadcastDrops.Load(); got != 1 {
		t.Errorf("expected 1 drop recorded, got %d", got)
	}
	if msg := <-ready.send; msg != "hello" {
		t.Errorf("expected broadcast payload, got %v", msg)
	}
}

func TestCheckOrigin(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8080", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		if got := s.checkOrigin(tt.origin); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}

	// Configured origins replace the localhost defaults
	s.cfg.Server.AllowedOrigins = []string{"https://app.example"}
	if !s.checkOrigin("https://app.example") {
		t.Error("expected configured origin allowed")
	}
	if s.checkOrigin("http://localhost:3000") {
		t.Error("expected localhost rejected once origins are configured")
	}
}

func TestStatusChanged(t *testing.T) {
	s, _ := newTestServer(t)

	first := &cachedQueueStatus{queued: 1, running: 0, clients: 2}
	if !s.statusChanged(first) {
		t.Error("expected change against empty history")
	}
	s.lastStatus = first

	same := &cachedQueueStatus{queued: 1, running: 0, clients: 2}
	if s.statusChanged(same) {
		t.Error("expected unchanged status detected")
	}
	if !s.statusChanged(&cachedQueueStatus{queued: 1, running: 1, clients: 2}) {
		t.Error("expected running transition detected")
	}
}

func TestStopCancelsQueuedRuns(t *testing.T) {
	s, st := newTestServer(t)
	s.wg.Add(1)
	go func() { defer s.wg.Done(); s.Run() }()
	s.startRunUpdateBroadcaster()
	s.startQueueStatusBroadcaster()

	job, err := s.pool.GetQueue().Enqueue(context.Background(), testSolveRequest(t))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := s.getState(); got != ServerStateStopped {
		t.Errorf("expected stopped state, got %s", stateString(got))
	}

	run, err := st.GetRun(context.Background(), job.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != store.RunStatusCanceled {
		t.Errorf("expected queued run canceled on shutdown, got %q", run.Status)
	}
}

func TestIsPortAvailable(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	if isPortAvailable(port) {
		t.Errorf("expected port %d busy while listener held", port)
	}
	listener.Close()
	if !isPortAvailable(port) {
		t.Errorf("expected port %d free after close", port)
	}
}

func TestFindAvailablePortSkipsBusy(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer listener.Close()
	busy := listener.Addr().(*net.TCPAddr).Port

	port, err := findAvailablePort(busy)
	if err != nil {
		t.Fatalf("findAvailablePort failed: %v", err)
	}
	if port == busy {
		t.Errorf("expected a different port than busy %d", busy)
	}
	if !isPortAvailable(port) {
		t.Errorf("expected returned port %d to be available", port)
	}
}
