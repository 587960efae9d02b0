package store

import (
	"context"
	"testing"

	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/errors"
	sctest "github.com/teranos/smartcoat/internal/testing"
)

func sampleJobs() []coat.Job {
	return []coat.Job{
		{ID: "A", Chemical: "C1", Slide: "standard", Priority: coat.PriorityUrgent, Minutes: 30},
		{ID: "B", Chemical: "C2", Slide: "large", Priority: coat.PriorityLow, Minutes: 20},
		{ID: "C", Chemical: "C1", Priority: coat.PriorityNormal, Minutes: 25},
	}
}

func TestSaveJobSet_CreatesAndRetrieves(t *testing.T) {
	db := sctest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	saved, err := store.SaveJobSet(ctx, "monday-batch", sampleJobs())
	if err != nil {
		t.Fatalf("SaveJobSet failed: %v", err)
	}
	if saved.ID == "" {
		t.Error("expected non-empty ID")
	}
	if saved.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	got, err := store.GetJobSet(ctx, "monday-batch")
	if err != nil {
		t.Fatalf("GetJobSet failed: %v", err)
	}
	if got.ID != saved.ID {
		t.Errorf("expected ID %q, got %q", saved.ID, got.ID)
	}
	if len(got.Jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(got.Jobs))
	}
	// Input order must survive the round trip
	for i, want := range sampleJobs() {
		if got.Jobs[i] != want {
			t.Errorf("job[%d]: expected %+v, got %+v", i, want, got.Jobs[i])
		}
	}
}

func TestSaveJobSet_ReplaceKeepsID(t *testing.T) {
	db := sctest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	first, err := store.SaveJobSet(ctx, "batch", sampleJobs())
	if err != nil {
		t.Fatalf("first SaveJobSet failed: %v", err)
	}

	replacement := []coat.Job{
		{ID: "X", Chemical: "C3", Priority: coat.PriorityNormal, Minutes: 45},
	}
	second, err := store.SaveJobSet(ctx, "batch", replacement)
	if err != nil {
		t.Fatalf("second SaveJobSet failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected stable ID %q, got %q", first.ID, second.ID)
	}

	got, err := store.GetJobSet(ctx, "batch")
	if err != nil {
		t.Fatalf("GetJobSet failed: %v", err)
	}
	if len(got.Jobs) != 1 {
		t.Fatalf("expected 1 job after replace, got %d", len(got.Jobs))
	}
	if got.Jobs[0].ID != "X" {
		t.Errorf("expected replacement job X, got %q", got.Jobs[0].ID)
	}

	// Old job rows must not linger
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM jobs WHERE set_id = ?", first.ID).Scan(&count); err != nil {
		t.Fatalf("count jobs failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 job row, got %d", count)
	}
}

func TestSaveJobSet_RejectsBadInput(t *testing.T) {
	db := sctest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	if _, err := store.SaveJobSet(ctx, "", sampleJobs()); !errors.IsInvalidRequestError(err) {
		t.Errorf("empty name: expected invalid request, got %v", err)
	}
	if _, err := store.SaveJobSet(ctx, "empty", nil); !errors.IsInvalidRequestError(err) {
		t.Errorf("no jobs: expected invalid request, got %v", err)
	}

	dupes := []coat.Job{
		{ID: "A", Chemical: "C1", Priority: 1, Minutes: 10},
		{ID: "A", Chemical: "C2", Priority: 2, Minutes: 20},
	}
	if _, err := store.SaveJobSet(ctx, "dupes", dupes); !errors.Is(err, coat.ErrInvalidJob) {
		t.Errorf("duplicate IDs: expected ErrInvalidJob, got %v", err)
	}

	bad := []coat.Job{{ID: "A", Chemical: "C1", Priority: 9, Minutes: 10}}
	if _, err := store.SaveJobSet(ctx, "bad", bad); !errors.Is(err, coat.ErrInvalidJob) {
		t.Errorf("bad priority: expected ErrInvalidJob, got %v", err)
	}

	// Nothing should have been written by the rejected saves
	sets, err := store.ListJobSets(ctx)
	if err != nil {
		t.Fatalf("ListJobSets failed: %v", err)
	}
	if len(sets) != 0 {
		t.Errorf("expected no stored sets, got %d", len(sets))
	}
}

func TestGetJobSet_NotFound(t *testing.T) {
	db := sctest.CreateTestDB(t)
	store := NewStore(db)

	_, err := store.GetJobSet(context.Background(), "missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListJobSets_ReturnsSummaries(t *testing.T) {
	db := sctest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	if _, err := store.SaveJobSet(ctx, "alpha", sampleJobs()); err != nil {
		t.Fatalf("SaveJobSet alpha failed: %v", err)
	}
	single := []coat.Job{{ID: "Z", Chemical: "C4", Priority: 2, Minutes: 15}}
	if _, err := store.SaveJobSet(ctx, "beta", single); err != nil {
		t.Fatalf("SaveJobSet beta failed: %v", err)
	}

	sets, err := store.ListJobSets(ctx)
	if err != nil {
		t.Fatalf("ListJobSets failed: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("expected 2 sets, got %d", len(sets))
	}

	counts := make(map[string]int, len(sets))
	for _, s := range sets {
		counts[s.Name] = s.JobCount
	}
	if counts["alpha"] != 3 {
		t.Errorf("expected alpha job count 3, got %d", counts["alpha"])
	}
	if counts["beta"] != 1 {
		t.Errorf("expected beta job count 1, got %d", counts["beta"])
	}
}

func TestDeleteJobSet_CascadesToJobs(t *testing.T) {
	db := sctest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	saved, err := store.SaveJobSet(ctx, "doomed", sampleJobs())
	if err != nil {
		t.Fatalf("SaveJobSet failed: %v", err)
	}

	if err := store.DeleteJobSet(ctx, "doomed"); err != nil {
		t.Fatalf("DeleteJobSet failed: %v", err)
	}

	if _, err := store.GetJobSet(ctx, "doomed"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM jobs WHERE set_id = ?", saved.ID).Scan(&count); err != nil {
		t.Fatalf("count jobs failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected cascade to remove job rows, found %d", count)
	}

	if err := store.DeleteJobSet(ctx, "doomed"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for second delete, got %v", err)
	}
}
