package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/annotation"
	"github.com/phrazzld/aves-annotator/internal/config"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/events"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/platform/memory"
	"github.com/phrazzld/aves-annotator/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeProcessor finalizes items the way the annotation worker does.
type fakeProcessor struct {
	items    store.ItemStore
	fn       func(ctx context.Context, item *domain.BatchItem) error
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (p *fakeProcessor) Process(ctx context.Context, item *domain.BatchItem) annotation.Result {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}

	var err error
	if p.fn != nil {
		err = p.fn(ctx, item)
	}
	now := time.Now().UTC()
	if err != nil {
		_ = item.MarkFailed(1, err, now)
	} else {
		_ = item.MarkSucceeded(1, 1, now)
	}
	_ = p.items.UpdateItem(context.Background(), item)
	return annotation.Result{ItemID: item.ID, Status: item.Status, Attempts: 1, Err: err}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recordingEmitter) EmitEvent(_ context.Context, e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEmitter) finished() []events.BatchFinished {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.BatchFinished
	for _, e := range r.events {
		var p events.BatchFinished
		if e.Type == events.TypeBatchFinished && e.UnmarshalPayload(&p) == nil {
			out = append(out, p)
		}
	}
	return out
}

var testBatchConfig = config.BatchConfig{DefaultConcurrency: 2, MaxConcurrency: 4}

func newManager(t *testing.T, fn func(ctx context.Context, item *domain.BatchItem) error) (*Manager, *memory.BatchStore, *fakeProcessor, *recordingEmitter) {
	t.Helper()
	st := memory.NewBatchStore()
	proc := &fakeProcessor{items: st, fn: fn}
	em := &recordingEmitter{}
	m := NewManager(st, st, proc, testBatchConfig, logger.Discard(), WithEmitter(em))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, st, proc, em
}

func refs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("img-%d", i+1)
	}
	return out
}

func waitDone(t *testing.T, m *Manager, id uuid.UUID) Progress {
	t.Helper()
	var p Progress
	require.Eventually(t, func() bool {
		got, err := m.GetJobProgress(context.Background(), id)
		if err != nil {
			return false
		}
		p = got
		return got.Done()
	}, 5*time.Second, 2*time.Millisecond)
	return p
}

func TestStartBatch_Validation(t *testing.T) {
	t.Parallel()

	m, _, _, _ := newManager(t, nil)
	ctx := context.Background()

	tests := []struct {
		name        string
		refs        []string
		concurrency int
	}{
		{"empty batch", nil, 1},
		{"blank reference", []string{"img-1", "  "}, 1},
		{"negative concurrency", []string{"img-1"}, -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.StartBatch(ctx, tc.refs, tc.concurrency)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	active, err := m.ListActiveJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestStartBatch_CompletesAllItems(t *testing.T) {
	t.Parallel()

	m, st, proc, em := newManager(t, func(context.Context, *domain.BatchItem) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	ctx := context.Background()

	id, err := m.StartBatch(ctx, refs(5), 2)
	require.NoError(t, err)

	p := waitDone(t, m, id)
	assert.Equal(t, domain.JobStatusCompleted, p.Status)
	assert.Equal(t, 5, p.TotalItems)
	assert.Equal(t, 5, p.ProcessedItems)
	assert.Equal(t, 5, p.SuccessfulItems)
	assert.Equal(t, 0, p.PendingItems)
	assert.NotNil(t, p.CompletedAt)
	assert.InDelta(t, 100.0, p.Percent(), 1e-9)
	assert.LessOrEqual(t, proc.peak.Load(), int32(2))

	stored, err := st.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.NoError(t, stored.Validate())

	items, err := m.ListItems(ctx, id)
	require.NoError(t, err)
	require.Len(t, items, 5)
	for i, item := range items {
		assert.Equal(t, fmt.Sprintf("img-%d", i+1), item.ImageRef)
		assert.Equal(t, domain.ItemStatusSucceeded, item.Status)
	}

	require.Eventually(t, func() bool { return len(em.finished()) == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, id, em.finished()[0].JobID)
	assert.Equal(t, domain.JobStatusCompleted, em.finished()[0].Status)
}

func TestStartBatch_ItemFailuresDoNotFailJob(t *testing.T) {
	t.Parallel()

	m, _, _, _ := newManager(t, func(_ context.Context, item *domain.BatchItem) error {
		if item.ImageRef == "img-2" || item.ImageRef == "img-4" {
			return fmt.Errorf("%w: bad image", domain.ErrPermanentService)
		}
		return nil
	})

	id, err := m.StartBatch(context.Background(), refs(5), 3)
	require.NoError(t, err)

	p := waitDone(t, m, id)
	assert.Equal(t, domain.JobStatusCompleted, p.Status)
	assert.Equal(t, 5, p.ProcessedItems)
	assert.Equal(t, 3, p.SuccessfulItems)
	assert.Equal(t, 2, p.FailedItems)
	assert.True(t, p.HasFailures())
}

func TestStartBatch_ConcurrencyDefaultsAndClamp(t *testing.T) {
	t.Parallel()

	m, _, _, _ := newManager(t, nil)
	ctx := context.Background()

	id, err := m.StartBatch(ctx, refs(1), 0)
	require.NoError(t, err)
	p := waitDone(t, m, id)
	assert.Equal(t, testBatchConfig.DefaultConcurrency, p.Concurrency)

	id, err = m.StartBatch(ctx, refs(1), 100)
	require.NoError(t, err)
	p = waitDone(t, m, id)
	assert.Equal(t, testBatchConfig.MaxConcurrency, p.Concurrency)
}

func TestCancelJob_StopsNewItems(t *testing.T) {
	t.Parallel()

	started := make(chan string, 5)
	gate := make(chan struct{})
	m, _, _, _ := newManager(t, func(_ context.Context, item *domain.BatchItem) error {
		started <- item.ImageRef
		<-gate
		return nil
	})
	ctx := context.Background()

	id, err := m.StartBatch(ctx, refs(5), 2)
	require.NoError(t, err)

	<-started
	<-started

	active, err := m.ListActiveJobs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.JobStatusProcessing, active[0].Status)

	accepted, err := m.CancelJob(ctx, id)
	require.NoError(t, err)
	assert.True(t, accepted)
	close(gate)

	p := waitDone(t, m, id)
	assert.Equal(t, domain.JobStatusCancelled, p.Status)
	assert.Equal(t, 2, p.ProcessedItems)
	assert.Equal(t, 2, p.SuccessfulItems)
	assert.Equal(t, 3, p.PendingItems)
	assert.NotNil(t, p.CancelledAt)
	assert.Empty(t, started, "no item may start after cancellation")

	items, err := m.ListItems(ctx, id)
	require.NoError(t, err)
	var terminal, pending int
	for _, item := range items {
		switch {
		case item.Status.IsTerminal():
			terminal++
		case item.Status == domain.ItemStatusPending:
			pending++
		}
	}
	assert.Equal(t, 2, terminal)
	assert.Equal(t, 3, pending)

	accepted, err = m.CancelJob(ctx, id)
	require.NoError(t, err)
	assert.False(t, accepted, "terminal jobs cannot be cancelled")
}

func TestCancelJob_AllItemsInFlight(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 2)
	gate := make(chan struct{})
	m, _, _, em := newManager(t, func(_ context.Context, _ *domain.BatchItem) error {
		started <- struct{}{}
		<-gate
		return nil
	})
	ctx := context.Background()

	id, err := m.StartBatch(ctx, refs(2), 2)
	require.NoError(t, err)
	<-started
	<-started

	accepted, err := m.CancelJob(ctx, id)
	require.NoError(t, err)
	require.True(t, accepted)

	accepted, err = m.CancelJob(ctx, id)
	require.NoError(t, err)
	assert.True(t, accepted, "repeated cancel of a running job is accepted")
	close(gate)

	p := waitDone(t, m, id)
	assert.Equal(t, domain.JobStatusCancelled, p.Status)
	assert.Equal(t, 2, p.ProcessedItems)
	assert.Equal(t, 2, p.SuccessfulItems)
	assert.Equal(t, 0, p.PendingItems)
	assert.NotNil(t, p.CancelledAt)
	assert.Nil(t, p.CompletedAt)

	require.Eventually(t, func() bool { return len(em.finished()) == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, domain.JobStatusCancelled, em.finished()[0].Status)
}

func TestCancelJob_IdleJob(t *testing.T) {
	t.Parallel()

	m, st, _, _ := newManager(t, nil)
	ctx := context.Background()

	job, err := domain.NewBatchJob(2, 1)
	require.NoError(t, err)
	require.NoError(t, st.CreateJob(ctx, job))

	accepted, err := m.CancelJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, accepted)

	p, err := m.GetJobProgress(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, p.Status)
}

func TestUnknownJob(t *testing.T) {
	t.Parallel()

	m, _, _, _ := newManager(t, nil)
	ctx := context.Background()

	_, err := m.GetJobProgress(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = m.CancelJob(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = m.ListItems(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type failingItems struct {
	*memory.BatchStore
}

func (failingItems) CreateItems(context.Context, []*domain.BatchItem) error {
	return errors.New("disk full")
}

func TestStartBatch_SetupFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	st := memory.NewBatchStore()
	em := &recordingEmitter{}
	m := NewManager(st, failingItems{st}, &fakeProcessor{items: st}, testBatchConfig, logger.Discard(), WithEmitter(em))
	defer func() { _ = m.Shutdown(context.Background()) }()

	_, err := m.StartBatch(context.Background(), refs(2), 1)
	require.Error(t, err)

	jobs, err := st.ListJobsByStatus(context.Background(), domain.JobStatusFailed)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Contains(t, jobs[0].Error, "disk full")
	require.Len(t, em.finished(), 1)
	assert.Equal(t, domain.JobStatusFailed, em.finished()[0].Status)
}

func TestFailOrphanedJobs(t *testing.T) {
	t.Parallel()

	m, st, _, _ := newManager(t, nil)
	ctx := context.Background()

	orphan, err := domain.NewBatchJob(1, 1)
	require.NoError(t, err)
	orphan.Status = domain.JobStatusProcessing
	require.NoError(t, st.CreateJob(ctx, orphan))

	n, err := m.FailOrphanedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := m.GetJobProgress(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, p.Status)
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	t.Run("waits for running jobs", func(t *testing.T) {
		t.Parallel()
		m, _, _, _ := newManager(t, func(context.Context, *domain.BatchItem) error {
			time.Sleep(10 * time.Millisecond)
			return nil
		})
		id, err := m.StartBatch(context.Background(), refs(3), 1)
		require.NoError(t, err)

		require.NoError(t, m.Shutdown(context.Background()))
		p, err := m.GetJobProgress(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, p.Status)

		_, err = m.StartBatch(context.Background(), refs(1), 1)
		assert.ErrorIs(t, err, ErrShuttingDown)
	})

	t.Run("cancels jobs when the deadline passes", func(t *testing.T) {
		t.Parallel()
		m, _, _, _ := newManager(t, func(ctx context.Context, _ *domain.BatchItem) error {
			<-ctx.Done()
			return ctx.Err()
		})
		id, err := m.StartBatch(context.Background(), refs(4), 2)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, m.Shutdown(ctx), context.DeadlineExceeded)

		p, err := m.GetJobProgress(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCancelled, p.Status)
		assert.Equal(t, p.ProcessedItems, p.FailedItems)
		assert.LessOrEqual(t, p.ProcessedItems, 2)
	})
}
