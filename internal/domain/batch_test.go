package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatchJob(t *testing.T) {
	t.Parallel()

	job, err := NewBatchJob(5, 2)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, 5, job.TotalItems)
	assert.False(t, job.IsTerminal())

	_, err = NewBatchJob(0, 2)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = NewBatchJob(3, 0)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestBatchJob_ValidateCounters(t *testing.T) {
	t.Parallel()

	job, err := NewBatchJob(3, 1)
	require.NoError(t, err)

	job.ProcessedItems = 2
	job.SuccessfulItems = 1
	job.FailedItems = 0
	assert.Error(t, job.Validate(), "processed must equal successful + failed")

	job.FailedItems = 1
	assert.NoError(t, job.Validate())

	job.ProcessedItems, job.SuccessfulItems = 4, 3
	assert.Error(t, job.Validate(), "processed cannot exceed total")
}

func TestJobStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
}

func TestBatchItem_Transitions(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	item, err := NewBatchItem(uuid.New(), "  img-1 ")
	require.NoError(t, err)
	assert.Equal(t, "img-1", item.ImageRef)
	assert.Equal(t, ItemStatusPending, item.Status)

	require.NoError(t, item.MarkProcessing(now))
	assert.Equal(t, ItemStatusProcessing, item.Status)

	require.NoError(t, item.MarkFailed(4, errors.New("boom"), now))
	assert.Equal(t, ItemStatusFailed, item.Status)
	assert.Equal(t, 4, item.Attempts)
	assert.Equal(t, "boom", item.LastError)

	assert.ErrorIs(t, item.MarkSucceeded(1, 2, now), ErrItemTerminal)
	assert.ErrorIs(t, item.MarkProcessing(now), ErrItemTerminal)

	_, err = NewBatchItem(uuid.New(), " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBatchJob_CloneIsDeep(t *testing.T) {
	t.Parallel()

	job, err := NewBatchJob(1, 1)
	require.NoError(t, err)
	started := time.Now().UTC()
	job.StartedAt = &started

	c := job.Clone()
	*c.StartedAt = started.Add(time.Hour)
	assert.Equal(t, started, *job.StartedAt)
}
