package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teranos/smartcoat/async"
	"github.com/teranos/smartcoat/sequence"
	"github.com/teranos/smartcoat/store"
	"github.com/teranos/smartcoat/version"
)

// dialWS connects to the test server's WebSocket endpoint and consumes the
// version handshake
func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	var hello struct {
		Type    string       `json:"type"`
		Version version.Info `json:"version"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read version handshake: %v", err)
	}
	if hello.Type != "version" {
		t.Fatalf("expected version as first frame, got %q", hello.Type)
	}
	if hello.Version.GoVersion == "" {
		t.Error("expected Go version in handshake")
	}
	return conn
}

// wsFrame is a partially decoded server frame
type wsFrame struct {
	Type string          `json:"type"`
	Run  json.RawMessage `json:"run"`
}

// readFrameOfType skips frames until one of the wanted type arrives
func readFrameOfType(t *testing.T, conn *websocket.Conn, wantType string) wsFrame {
	t.Helper()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("waiting for %q frame: %v", wantType, err)
		}
		if frame.Type == wantType {
			return frame
		}
	}
}

func TestWebSocketPingPong(t *testing.T) {
	_, _, ts := startTestServer(t)
	conn := dialWS(t, ts)

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	readFrameOfType(t, conn, "pong")
}

func TestWebSocketGetRunSnapshot(t *testing.T) {
	s, _, ts := startTestServer(t)

	job, err := s.pool.GetQueue().Enqueue(context.Background(), testSolveRequest(t))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	conn := dialWS(t, ts)
	if err := conn.WriteJSON(map[string]string{"type": "get_run", "run_id": job.RunID}); err != nil {
		t.Fatalf("write get_run: %v", err)
	}

	frame := readFrameOfType(t, conn, "run_update")
	var snapshot async.Job
	if err := json.Unmarshal(frame.Run, &snapshot); err != nil {
		t.Fatalf("decode run snapshot: %v", err)
	}
	if snapshot.RunID != job.RunID {
		t.Errorf("expected run %s, got %s", job.RunID, snapshot.RunID)
	}
	if snapshot.Status != async.StatusQueued {
		t.Errorf("expected queued snapshot, got %q", snapshot.Status)
	}
}

func TestWebSocketStreamsRunToCompletion(t *testing.T) {
	s, st, ts := startTestServer(t)
	conn := dialWS(t, ts)

	job, err := s.pool.GetQueue().Enqueue(context.Background(), testSolveRequest(t))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	s.pool.Start()

	var completed async.Job
	for {
		frame := readFrameOfType(t, conn, "run_update")
		var update async.Job
		if err := json.Unmarshal(frame.Run, &update); err != nil {
			t.Fatalf("decode run update: %v", err)
		}
		if update.RunID != job.RunID {
			continue
		}
		if update.Status == async.StatusFailed {
			t.Fatalf("run failed unexpectedly: %s", update.Error)
		}
		if update.Status == async.StatusCompleted {
			completed = update
			break
		}
	}

	if completed.Result == nil || completed.Result.TotalCost != 47 {
		t.Fatalf("expected completed result with cost 47, got %+v", completed.Result)
	}
	if completed.Timeline == nil || completed.Timeline.TotalSpan != 90 {
		t.Fatalf("expected 90 minute timeline, got %+v", completed.Timeline)
	}

	run, err := st.GetRun(context.Background(), job.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != store.RunStatusCompleted {
		t.Errorf("expected completed row, got %q", run.Status)
	}
}

func TestWebSocketInitialRunRecords(t *testing.T) {
	_, st, ts := startTestServer(t)
	ctx := context.Background()

	// An archived run from a previous session
	run, err := st.CreateRun(ctx, "", sequence.StrategyLocalSearch, "A")
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := st.MarkRunStarted(ctx, run.ID); err != nil {
		t.Fatalf("MarkRunStarted failed: %v", err)
	}
	result := sequence.Result{
		JobIDs:    []string{"A", "C", "B"},
		TotalCost: 47,
		Strategy:  sequence.StrategyLocalSearch,
	}
	if err := st.CompleteRun(ctx, run.ID, result); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}

	conn := dialWS(t, ts)

	frame := readFrameOfType(t, conn, "run_record")
	var record store.Run
	if err := json.Unmarshal(frame.Run, &record); err != nil {
		t.Fatalf("decode run record: %v", err)
	}
	if record.ID != run.ID {
		t.Errorf("expected archived run %s, got %s", run.ID, record.ID)
	}
	if record.Status != store.RunStatusCompleted {
		t.Errorf("expected completed record, got %q", record.Status)
	}
	if record.TotalCost != 47 {
		t.Errorf("expected total cost 47, got %d", record.TotalCost)
	}
}

func TestWebSocketQueueStatusBroadcast(t *testing.T) {
	_, _, ts := startTestServer(t)
	conn := dialWS(t, ts)

	// First status tick after a client appears always broadcasts
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var status QueueStatusMessage
		if err := conn.ReadJSON(&status); err != nil {
			t.Fatalf("waiting for queue status: %v", err)
		}
		if status.Type != "queue_status" {
			continue
		}
		if status.State != "running" {
			t.Errorf("expected running state, got %q", status.State)
		}
		if status.Stats == nil {
			t.Error("expected stats in queue status")
		}
		if status.Clients != 1 {
			t.Errorf("expected 1 client counted, got %d", status.Clients)
		}
		return
	}
}

func TestWebSocketRejectsWhenDraining(t *testing.T) {
	s, _, ts := startTestServer(t)
	s.setState(ServerStateDraining)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected dial rejected while draining")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 refusing the upgrade, got %+v", resp)
	}
}
