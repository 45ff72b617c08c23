package batch

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
)

// Progress is a point-in-time view of a job.
type Progress struct {
	JobID           uuid.UUID        `json:"job_id"`
	Status          domain.JobStatus `json:"status"`
	TotalItems      int              `json:"total_items"`
	ProcessedItems  int              `json:"processed_items"`
	SuccessfulItems int              `json:"successful_items"`
	FailedItems     int              `json:"failed_items"`
	PendingItems    int              `json:"pending_items"`
	Concurrency     int              `json:"concurrency"`
	CancelRequested bool             `json:"cancel_requested"`
	Error           string           `json:"error,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	CancelledAt     *time.Time       `json:"cancelled_at,omitempty"`
}

// ProgressOf builds the progress view of job.
func ProgressOf(job *domain.BatchJob) Progress {
	c := job.Clone()
	return Progress{
		JobID:           c.ID,
		Status:          c.Status,
		TotalItems:      c.TotalItems,
		ProcessedItems:  c.ProcessedItems,
		SuccessfulItems: c.SuccessfulItems,
		FailedItems:     c.FailedItems,
		PendingItems:    c.TotalItems - c.ProcessedItems,
		Concurrency:     c.Concurrency,
		CancelRequested: c.CancelRequested,
		Error:           c.Error,
		CreatedAt:       c.CreatedAt,
		StartedAt:       c.StartedAt,
		CompletedAt:     c.CompletedAt,
		CancelledAt:     c.CancelledAt,
	}
}

// Percent returns the share of processed items in [0,100].
func (p Progress) Percent() float64 {
	if p.TotalItems == 0 {
		return 0
	}
	return 100 * float64(p.ProcessedItems) / float64(p.TotalItems)
}

// Done reports whether the job reached a terminal status.
func (p Progress) Done() bool {
	return p.Status.IsTerminal()
}

// HasFailures reports whether any item failed.
func (p Progress) HasFailures() bool {
	return p.FailedItems > 0
}
