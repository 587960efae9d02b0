package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/errors"
)

func TestReadJobsCSV(t *testing.T) {
	input := strings.Join([]string{
		"Job_ID,Chemical_Type,Slide_Type,Priority,Estimated_Time_mins",
		"A,C1,standard,1,30",
		"B,C2,large,3,20",
		"C,C1,,2,25",
	}, "\n")

	jobs, err := ReadJobsCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadJobsCSV failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}

	want := []coat.Job{
		{ID: "A", Chemical: "C1", Slide: "standard", Priority: 1, Minutes: 30},
		{ID: "B", Chemical: "C2", Slide: "large", Priority: 3, Minutes: 20},
		{ID: "C", Chemical: "C1", Slide: "", Priority: 2, Minutes: 25},
	}
	for i, w := range want {
		if jobs[i] != w {
			t.Errorf("job[%d]: expected %+v, got %+v", i, w, jobs[i])
		}
	}
}

func TestReadJobsCSV_ColumnOrderAndExtras(t *testing.T) {
	// Shuffled columns, an extra Operator column, stray spaces, and a BOM
	input := strings.Join([]string{
		"\ufeffPriority, Job_ID ,Operator,Estimated_Time_mins,Chemical_Type,Slide_Type",
		"2, JOB-7 ,dana,45, C3 ,thin",
	}, "\n")

	jobs, err := ReadJobsCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadJobsCSV failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	want := coat.Job{ID: "JOB-7", Chemical: "C3", Slide: "thin", Priority: 2, Minutes: 45}
	if jobs[0] != want {
		t.Errorf("expected %+v, got %+v", want, jobs[0])
	}
}

func TestReadJobsCSV_HeaderCaseInsensitive(t *testing.T) {
	input := strings.Join([]string{
		"job_id,chemical_type,slide_type,priority,estimated_time_mins",
		"A,C1,standard,1,30",
	}, "\n")

	jobs, err := ReadJobsCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadJobsCSV failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "A" {
		t.Errorf("expected job A, got %+v", jobs)
	}
}

func TestReadJobsCSV_Errors(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantInMsg   string
		wantInvalid bool
	}{
		{
			name:        "empty input",
			input:       "",
			wantInMsg:   "empty",
			wantInvalid: true,
		},
		{
			name:        "header only",
			input:       "Job_ID,Chemical_Type,Slide_Type,Priority,Estimated_Time_mins\n",
			wantInMsg:   "no job rows",
			wantInvalid: true,
		},
		{
			name:        "missing columns",
			input:       "Job_ID,Priority\nA,1\n",
			wantInMsg:   "Chemical_Type",
			wantInvalid: true,
		},
		{
			name:        "repeated column",
			input:       "Job_ID,Job_ID,Chemical_Type,Slide_Type,Priority,Estimated_Time_mins\nA,A,C1,s,1,30\n",
			wantInMsg:   "repeats column",
			wantInvalid: true,
		},
		{
			name: "priority not a number",
			input: "Job_ID,Chemical_Type,Slide_Type,Priority,Estimated_Time_mins\n" +
				"A,C1,standard,urgent,30\n",
			wantInMsg:   "row 2",
			wantInvalid: true,
		},
		{
			name: "minutes not a number",
			input: "Job_ID,Chemical_Type,Slide_Type,Priority,Estimated_Time_mins\n" +
				"A,C1,standard,1,30\n" +
				"B,C2,large,2,lots\n",
			wantInMsg:   "row 3",
			wantInvalid: true,
		},
		{
			name: "jagged row",
			input: "Job_ID,Chemical_Type,Slide_Type,Priority,Estimated_Time_mins\n" +
				"A,C1,standard,1\n",
			wantInMsg: "row 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadJobsCSV(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantInMsg) {
				t.Errorf("expected message containing %q, got %q", tt.wantInMsg, err.Error())
			}
			if tt.wantInvalid && !errors.IsInvalidRequestError(err) {
				t.Errorf("expected invalid request marker, got %v", err)
			}
		})
	}
}

func TestReadJobsCSV_RowValidation(t *testing.T) {
	input := strings.Join([]string{
		"Job_ID,Chemical_Type,Slide_Type,Priority,Estimated_Time_mins",
		"A,C1,standard,1,30",
		"B,C2,large,9,20",
	}, "\n")

	_, err := ReadJobsCSV(strings.NewReader(input))
	if !errors.Is(err, coat.ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob, got %v", err)
	}
	if !strings.Contains(err.Error(), "row 3") {
		t.Errorf("expected row number in message, got %q", err.Error())
	}
}

func TestReadJobsCSV_DuplicateID(t *testing.T) {
	input := strings.Join([]string{
		"Job_ID,Chemical_Type,Slide_Type,Priority,Estimated_Time_mins",
		"A,C1,standard,1,30",
		"B,C2,large,2,20",
		"A,C1,thin,3,15",
	}, "\n")

	_, err := ReadJobsCSV(strings.NewReader(input))
	if !errors.Is(err, coat.ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob, got %v", err)
	}
	if !strings.Contains(err.Error(), "row 4") || !strings.Contains(err.Error(), "row 2") {
		t.Errorf("expected both row numbers in message, got %q", err.Error())
	}
}

func TestReadJobsCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.csv")
	content := "Job_ID,Chemical_Type,Slide_Type,Priority,Estimated_Time_mins\nA,C1,standard,1,30\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp sheet: %v", err)
	}

	jobs, err := ReadJobsCSVFile(path)
	if err != nil {
		t.Fatalf("ReadJobsCSVFile failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "A" {
		t.Errorf("expected job A, got %+v", jobs)
	}

	if _, err := ReadJobsCSVFile(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}
