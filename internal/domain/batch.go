package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a batch job.
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether the status is one a job never leaves.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// ItemStatus represents the processing state of a single batch item.
type ItemStatus string

// Possible item status values
const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusSucceeded  ItemStatus = "succeeded"
	ItemStatusFailed     ItemStatus = "failed"
)

// IsTerminal reports whether the item has finished, successfully or not.
func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusSucceeded || s == ItemStatusFailed
}

// BatchJob is one submission of images for annotation. It is mutated only by
// the batch manager and becomes immutable once its status is terminal.
type BatchJob struct {
	ID              uuid.UUID  `json:"id"`
	Status          JobStatus  `json:"status"`
	TotalItems      int        `json:"total_items"`
	ProcessedItems  int        `json:"processed_items"`
	SuccessfulItems int        `json:"successful_items"`
	FailedItems     int        `json:"failed_items"`
	Concurrency     int        `json:"concurrency"`
	CancelRequested bool       `json:"cancel_requested"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
}

// NewBatchJob creates a pending job for total items.
func NewBatchJob(total, concurrency int) (*BatchJob, error) {
	job := &BatchJob{
		ID:          uuid.New(),
		Status:      JobStatusPending,
		TotalItems:  total,
		Concurrency: concurrency,
		CreatedAt:   time.Now().UTC(),
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// Validate checks the job's counters against its invariants.
func (j *BatchJob) Validate() error {
	if j.ID == uuid.Nil {
		return fmt.Errorf("%w: job ID cannot be empty", ErrValidation)
	}
	if j.TotalItems <= 0 {
		return fmt.Errorf("%w: job must contain at least one item", ErrValidation)
	}
	if j.Concurrency <= 0 {
		return fmt.Errorf("%w: job concurrency must be positive", ErrValidation)
	}
	if j.ProcessedItems != j.SuccessfulItems+j.FailedItems {
		return fmt.Errorf("%w: processed %d != successful %d + failed %d",
			ErrValidation, j.ProcessedItems, j.SuccessfulItems, j.FailedItems)
	}
	if j.ProcessedItems > j.TotalItems {
		return fmt.Errorf("%w: processed %d exceeds total %d",
			ErrValidation, j.ProcessedItems, j.TotalItems)
	}
	return nil
}

// IsTerminal reports whether the job has left the processing state for good.
func (j *BatchJob) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Clone returns a deep copy of the job.
func (j *BatchJob) Clone() *BatchJob {
	c := *j
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.CancelledAt = cloneTime(j.CancelledAt)
	return &c
}

// BatchItem is the unit of work for one image inside a job.
type BatchItem struct {
	ID             uuid.UUID  `json:"id"`
	JobID          uuid.UUID  `json:"job_id"`
	ImageRef       string     `json:"image_ref"`
	Status         ItemStatus `json:"status"`
	Attempts       int        `json:"attempts"`
	LastError      string     `json:"last_error,omitempty"`
	CandidateCount int        `json:"candidate_count"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// NewBatchItem creates a pending item for imageRef.
func NewBatchItem(jobID uuid.UUID, imageRef string) (*BatchItem, error) {
	item := &BatchItem{
		ID:        uuid.New(),
		JobID:     jobID,
		ImageRef:  strings.TrimSpace(imageRef),
		Status:    ItemStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if item.JobID == uuid.Nil {
		return nil, fmt.Errorf("%w: item job ID cannot be empty", ErrValidation)
	}
	if item.ImageRef == "" {
		return nil, fmt.Errorf("%w: image reference cannot be empty", ErrValidation)
	}
	return item, nil
}

// MarkProcessing records that a worker has claimed the item.
func (i *BatchItem) MarkProcessing(now time.Time) error {
	if i.Status.IsTerminal() {
		return ErrItemTerminal
	}
	i.Status = ItemStatusProcessing
	i.StartedAt = &now
	return nil
}

// MarkSucceeded finalizes the item after its candidates were stored.
func (i *BatchItem) MarkSucceeded(attempts, candidates int, now time.Time) error {
	if i.Status.IsTerminal() {
		return ErrItemTerminal
	}
	i.Status = ItemStatusSucceeded
	i.Attempts = attempts
	i.CandidateCount = candidates
	i.LastError = ""
	i.FinishedAt = &now
	return nil
}

// MarkFailed finalizes the item with the last error seen and the attempt count.
func (i *BatchItem) MarkFailed(attempts int, cause error, now time.Time) error {
	if i.Status.IsTerminal() {
		return ErrItemTerminal
	}
	i.Status = ItemStatusFailed
	i.Attempts = attempts
	if cause != nil {
		i.LastError = cause.Error()
	}
	i.FinishedAt = &now
	return nil
}

// Clone returns a deep copy of the item.
func (i *BatchItem) Clone() *BatchItem {
	c := *i
	c.StartedAt = cloneTime(i.StartedAt)
	c.FinishedAt = cloneTime(i.FinishedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
