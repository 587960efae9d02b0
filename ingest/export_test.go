package ingest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/sequence"
)

func solvedTimeline() sequence.Timeline {
	return sequence.Timeline{
		Tasks: []sequence.ScheduledTask{
			{
				Job:         coat.Job{ID: "A", Chemical: "C1", Slide: "standard", Priority: 1, Minutes: 30},
				StartMinute: 0, Minutes: 30, GapBefore: 0,
			},
			{
				Job:         coat.Job{ID: "C", Chemical: "C1", Priority: 2, Minutes: 25},
				StartMinute: 30, Minutes: 25, GapBefore: 0,
			},
			{
				Job:         coat.Job{ID: "B", Chemical: "C2", Slide: "large", Priority: 3, Minutes: 20},
				StartMinute: 70, Minutes: 20, GapBefore: 15,
			},
		},
		Gaps:      []sequence.GapMark{{AtMinute: 55, Minutes: 15, From: "C1", To: "C2"}},
		TotalSpan: 90,
	}
}

func TestWriteRouteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRouteCSV(&buf, solvedTimeline()); err != nil {
		t.Fatalf("WriteRouteCSV failed: %v", err)
	}

	want := "Position,Job_ID,Chemical_Type,Slide_Type,Priority,Start_min,Estimated_Time_mins,Changeover_before_mins\n" +
		"1,A,C1,standard,1,0,30,0\n" +
		"2,C,C1,,2,30,25,0\n" +
		"3,B,C2,large,3,70,20,15\n"
	if buf.String() != want {
		t.Errorf("sheet mismatch:\nwant:\n%s\ngot:\n%s", want, buf.String())
	}
}

func TestWriteRouteCSV_EmptyTimeline(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRouteCSV(&buf, sequence.Timeline{}); err != nil {
		t.Fatalf("WriteRouteCSV failed: %v", err)
	}
	want := "Position,Job_ID,Chemical_Type,Slide_Type,Priority,Start_min,Estimated_Time_mins,Changeover_before_mins\n"
	if buf.String() != want {
		t.Errorf("expected header only, got:\n%s", buf.String())
	}
}

// The exported sheet keeps the import column names, so a solved route reads
// back in as a job list.
func TestWriteRouteCSV_ReimportsAsJobs(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRouteCSV(&buf, solvedTimeline()); err != nil {
		t.Fatalf("WriteRouteCSV failed: %v", err)
	}

	jobs, err := ReadJobsCSV(&buf)
	if err != nil {
		t.Fatalf("ReadJobsCSV on exported sheet failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	wantOrder := []string{"A", "C", "B"}
	for i, id := range wantOrder {
		if jobs[i].ID != id {
			t.Errorf("job[%d]: expected %q, got %q", i, id, jobs[i].ID)
		}
	}
	if jobs[2].Minutes != 20 || jobs[2].Priority != 3 || jobs[2].Chemical != "C2" {
		t.Errorf("job B fields lost in round trip: %+v", jobs[2])
	}
}

func TestWriteRouteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route.csv")
	if err := WriteRouteCSVFile(path, solvedTimeline()); err != nil {
		t.Fatalf("WriteRouteCSVFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read exported sheet: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty sheet")
	}

	if err := WriteRouteCSVFile(filepath.Join(t.TempDir(), "no", "dir", "route.csv"), solvedTimeline()); err == nil {
		t.Error("expected error for unwritable path")
	}
}
