package async

import (
	"testing"

	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/sequence"
)

func TestNewJobDefaults(t *testing.T) {
	job := NewJob("run-1", solveRequest(t))

	if job.RunID != "run-1" {
		t.Errorf("expected run ID run-1, got %q", job.RunID)
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status queued, got %q", job.Status)
	}
	if job.JobCount != 3 {
		t.Errorf("expected job count 3, got %d", job.JobCount)
	}
	if job.Strategy != sequence.StrategyLocalSearch {
		t.Errorf("expected local-search strategy, got %q", job.Strategy)
	}
	if job.Progress.Total != len(phases) {
		t.Errorf("expected progress total %d, got %d", len(phases), job.Progress.Total)
	}
	if job.Progress.Current != 0 {
		t.Errorf("expected progress current 0, got %d", job.Progress.Current)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
	if job.Terminal() {
		t.Error("queued job must not be terminal")
	}
}

func TestNewJobCopiesJobSlice(t *testing.T) {
	req := solveRequest(t)
	job := NewJob("run-1", req)

	req.Jobs[0].ID = "mutated"
	if job.request.Jobs[0].ID != "A" {
		t.Errorf("job payload shares caller slice: got %q", job.request.Jobs[0].ID)
	}
}

func TestJobPhaseProgression(t *testing.T) {
	job := NewJob("run-1", solveRequest(t))

	job.Start()
	if job.Status != StatusRunning {
		t.Fatalf("expected running after Start, got %q", job.Status)
	}
	if job.StartedAt == nil {
		t.Error("expected started_at to be set")
	}

	steps := []struct {
		phase   Phase
		current int
	}{
		{PhaseValidate, 1},
		{PhaseMatrix, 2},
		{PhaseConstruct, 3},
		{PhaseImprove, 4},
		{PhaseAssemble, 5},
	}
	for _, step := range steps {
		job.SetPhase(step.phase)
		if job.Phase != step.phase {
			t.Errorf("expected phase %q, got %q", step.phase, job.Phase)
		}
		if job.Progress.Current != step.current {
			t.Errorf("phase %q: expected progress %d, got %d", step.phase, step.current, job.Progress.Current)
		}
	}
	if pct := job.Progress.Percentage(); pct != 100 {
		t.Errorf("expected 100%% after final phase, got %.1f", pct)
	}
}

func TestJobTerminalStates(t *testing.T) {
	res := &sequence.Result{TotalCost: 47, JobIDs: []string{"A", "C", "B"}}
	tl := &sequence.Timeline{TotalSpan: 90}

	completed := NewJob("run-1", solveRequest(t))
	completed.Start()
	completed.Complete(res, tl, 512)
	if completed.Status != StatusCompleted || !completed.Terminal() {
		t.Errorf("expected terminal completed, got %q", completed.Status)
	}
	if completed.Result == nil || completed.Result.TotalCost != 47 {
		t.Error("expected result attached on completion")
	}
	if completed.Timeline == nil || completed.Timeline.TotalSpan != 90 {
		t.Error("expected timeline attached on completion")
	}
	if completed.MemoryMB != 512 {
		t.Errorf("expected memory snapshot 512, got %.1f", completed.MemoryMB)
	}
	if completed.Progress.Current != completed.Progress.Total {
		t.Error("expected progress pinned to total on completion")
	}
	if completed.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	failed := NewJob("run-2", solveRequest(t))
	failed.Start()
	failed.Fail(errors.New("no feasible sequence"))
	if failed.Status != StatusFailed || !failed.Terminal() {
		t.Errorf("expected terminal failed, got %q", failed.Status)
	}
	if failed.Error != "no feasible sequence" {
		t.Errorf("expected error message preserved, got %q", failed.Error)
	}

	canceled := NewJob("run-3", solveRequest(t))
	canceled.Cancel("shutdown before execution")
	if canceled.Status != StatusCanceled || !canceled.Terminal() {
		t.Errorf("expected terminal canceled, got %q", canceled.Status)
	}
	if canceled.Error != "shutdown before execution" {
		t.Errorf("expected cancel reason preserved, got %q", canceled.Error)
	}
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range []string{"queued", "running", "completed", "failed", "canceled"} {
		if !IsValidStatus(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	for _, s := range []string{"", "paused", "done", "QUEUED"} {
		if IsValidStatus(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestProgressPercentage(t *testing.T) {
	if pct := (Progress{}).Percentage(); pct != 0 {
		t.Errorf("zero-total progress should be 0%%, got %.1f", pct)
	}
	if pct := (Progress{Current: 2, Total: 5}).Percentage(); pct != 40 {
		t.Errorf("expected 40%%, got %.1f", pct)
	}
}
