package coat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/smartcoat/errors"
)

func TestJobListAppendIsPure(t *testing.T) {
	original, err := NewJobList(Job{ID: "A", Chemical: "C1", Priority: 1, Minutes: 30})
	require.NoError(t, err)

	extended, err := original.Append(Job{ID: "B", Chemical: "C2", Priority: 3, Minutes: 20})
	require.NoError(t, err)

	// The original value is untouched
	assert.Equal(t, 1, original.Len())
	assert.Equal(t, 2, extended.Len())
}

func TestJobListAppendRejectsDuplicateID(t *testing.T) {
	list, err := NewJobList(Job{ID: "A", Chemical: "C1", Priority: 1, Minutes: 30})
	require.NoError(t, err)

	_, err = list.Append(Job{ID: "A", Chemical: "C2", Priority: 2, Minutes: 10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidJob))
	assert.Contains(t, err.Error(), `duplicate job ID "A"`)
}

func TestJobListClear(t *testing.T) {
	list, err := NewJobList(
		Job{ID: "A", Chemical: "C1", Priority: 1, Minutes: 30},
		Job{ID: "B", Chemical: "C2", Priority: 3, Minutes: 20},
	)
	require.NoError(t, err)

	cleared := list.Clear()
	assert.Equal(t, 0, cleared.Len())
	assert.Equal(t, 2, list.Len(), "Clear must not mutate the receiver")
}

func TestJobListJobsReturnsCopy(t *testing.T) {
	list, err := NewJobList(Job{ID: "A", Chemical: "C1", Priority: 1, Minutes: 30})
	require.NoError(t, err)

	jobs := list.Jobs()
	jobs[0].ID = "mutated"

	again := list.Jobs()
	assert.Equal(t, "A", again[0].ID)
}

func TestJobListByID(t *testing.T) {
	list, err := NewJobList(
		Job{ID: "A", Chemical: "C1", Priority: 1, Minutes: 30},
		Job{ID: "B", Chemical: "C2", Priority: 3, Minutes: 20},
	)
	require.NoError(t, err)

	job, ok := list.ByID("B")
	require.True(t, ok)
	assert.Equal(t, "C2", job.Chemical)

	_, ok = list.ByID("missing")
	assert.False(t, ok)
}

func TestJobListValidateReportsRecordNumber(t *testing.T) {
	list, err := NewJobList(
		Job{ID: "A", Chemical: "C1", Priority: 1, Minutes: 30},
		Job{ID: "B", Chemical: "C7", Priority: 2, Minutes: 20},
	)
	require.NoError(t, err)

	err = list.Validate([]string{"C1", "C2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 2")
	assert.True(t, errors.Is(err, ErrInvalidJob))
}

func TestNewJobListRejectsDuplicates(t *testing.T) {
	_, err := NewJobList(
		Job{ID: "A", Chemical: "C1", Priority: 1, Minutes: 30},
		Job{ID: "A", Chemical: "C2", Priority: 2, Minutes: 20},
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidJob))
}
