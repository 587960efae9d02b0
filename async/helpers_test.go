package async

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/smartcoat/coat"
	sctest "github.com/teranos/smartcoat/internal/testing"
	"github.com/teranos/smartcoat/sequence"
	"github.com/teranos/smartcoat/store"
)

// newTestQueue returns a queue backed by a fresh in-memory database
func newTestQueue(t *testing.T) (*Queue, *store.Store) {
	t.Helper()
	db := sctest.CreateTestDB(t)
	st := store.NewStore(db)
	return NewQueue(st), st
}

// solveRequest returns a three-job submission whose best route from A is
// A, C, B at a total cost of 47.
func solveRequest(t *testing.T) Request {
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
	return Request{
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

// waitForTerminal drains subscriber events until the run reaches a terminal
// status or the deadline passes, returning every snapshot seen for the run
func waitForTerminal(t *testing.T, ch chan *Job, runID string, timeout time.Duration) []*Job {
	t.Helper()
	deadline := time.After(timeout)
	var events []*Job
	for {
		select {
		case job := <-ch:
			if job.RunID != runID {
				continue
			}
			events = append(events, job)
			if job.Terminal() {
				return events
			}
		case <-deadline:
			t.Fatalf("run %s did not finish within %v (saw %d events)", runID, timeout, len(events))
		}
	}
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
