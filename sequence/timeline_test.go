package sequence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/smartcoat/coat"
)

func TestAssembleWorkedExample(t *testing.T) {
	m, err := BuildMatrix(workedExampleJobs(), workedExampleTable(t), DefaultMatrixOptions())
	require.NoError(t, err)
	s, err := NewSolver(DefaultSolverConfig())
	require.NoError(t, err)
	res, err := s.Solve(context.Background(), m, 0)
	require.NoError(t, err)

	tl, err := Assemble(res, m)
	require.NoError(t, err)
	require.Len(t, tl.Tasks, 3)

	assert.Equal(t, "A", tl.Tasks[0].Job.ID)
	assert.Zero(t, tl.Tasks[0].StartMinute)
	assert.Zero(t, tl.Tasks[0].GapBefore)
	assert.Equal(t, 30, tl.Tasks[0].Minutes)

	assert.Equal(t, "C", tl.Tasks[1].Job.ID)
	assert.Equal(t, 30, tl.Tasks[1].StartMinute, "same chemical, no gap")
	assert.Zero(t, tl.Tasks[1].GapBefore)

	assert.Equal(t, "B", tl.Tasks[2].Job.ID)
	assert.Equal(t, 15, tl.Tasks[2].GapBefore)
	assert.Equal(t, 70, tl.Tasks[2].StartMinute)

	require.Len(t, tl.Gaps, 1)
	assert.Equal(t, GapMark{AtMinute: 55, Minutes: 15, From: "C1", To: "C2"}, tl.Gaps[0])
	assert.Equal(t, 90, tl.TotalSpan)
}

func TestAssembleSpanIsDurationsPlusGaps(t *testing.T) {
	table, err := coat.NewUniformChangeoverTable([]string{"C1", "C2", "C3"}, 9)
	require.NoError(t, err)
	jobs := []coat.Job{
		{ID: "a", Chemical: "C2", Priority: 2, Minutes: 14},
		{ID: "b", Chemical: "C1", Priority: 1, Minutes: 33},
		{ID: "c", Chemical: "C3", Priority: 3, Minutes: 8},
		{ID: "d", Chemical: "C1", Priority: 2, Minutes: 21},
	}
	m, err := BuildMatrix(jobs, table, DefaultMatrixOptions())
	require.NoError(t, err)
	s, err := NewSolver(DefaultSolverConfig())
	require.NoError(t, err)
	res, err := s.Solve(context.Background(), m, 0)
	require.NoError(t, err)

	tl, err := Assemble(res, m)
	require.NoError(t, err)

	durations, gaps := 0, 0
	for _, task := range tl.Tasks {
		durations += task.Minutes
		gaps += task.GapBefore
	}
	assert.Equal(t, durations+gaps, tl.TotalSpan)

	marked := 0
	for _, g := range tl.Gaps {
		marked += g.Minutes
	}
	assert.Equal(t, gaps, marked, "every positive gap carries a marker")
}

func TestAssembleSingleJob(t *testing.T) {
	table, err := coat.NewChangeoverTable([]string{"C1", "C2"})
	require.NoError(t, err)
	m, err := BuildMatrix(
		[]coat.Job{{ID: "solo", Chemical: "C2", Priority: 1, Minutes: 55}},
		table, DefaultMatrixOptions())
	require.NoError(t, err)

	tl, err := Assemble(Result{Order: []int{0}}, m)
	require.NoError(t, err)
	require.Len(t, tl.Tasks, 1)
	assert.Empty(t, tl.Gaps)
	assert.Equal(t, 55, tl.TotalSpan)
}

func TestAssembleFallbackGapsMatchCosting(t *testing.T) {
	// The pair C2->C1 is undefined and resolved through the fallback; the
	// timeline must schedule the same minutes the matrix was costed with.
	table, err := coat.NewChangeoverTable([]string{"C1", "C2"})
	require.NoError(t, err)
	require.NoError(t, table.SetMinutes("C1", "C2", 15))
	jobs := []coat.Job{
		{ID: "A", Chemical: "C2", Priority: 2, Minutes: 10},
		{ID: "B", Chemical: "C1", Priority: 2, Minutes: 10},
	}
	m, err := BuildMatrix(jobs, table, MatrixOptions{FallbackMinutes: 7})
	require.NoError(t, err)

	tl, err := Assemble(Result{Order: []int{0, 1}}, m)
	require.NoError(t, err)
	require.Len(t, tl.Gaps, 1)
	assert.Equal(t, 7, tl.Gaps[0].Minutes)
	assert.Equal(t, 10+7+10, tl.TotalSpan)
}

func TestAssembleRejectsBadRoutes(t *testing.T) {
	m, err := BuildMatrix(workedExampleJobs(), workedExampleTable(t), DefaultMatrixOptions())
	require.NoError(t, err)

	cases := []struct {
		name  string
		order []int
	}{
		{"short", []int{0, 1}},
		{"duplicate", []int{0, 1, 1}},
		{"out of range", []int{0, 1, 7}},
		{"empty", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Assemble(Result{Order: tc.order}, m)
			require.Error(t, err)
		})
	}
}

func TestAssembleNilMatrix(t *testing.T) {
	_, err := Assemble(Result{Order: []int{0}}, nil)
	require.Error(t, err)
}
