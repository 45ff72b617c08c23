package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/annotation"
	"github.com/phrazzld/aves-annotator/internal/config"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/events"
	"github.com/phrazzld/aves-annotator/internal/observability/metrics"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/store"
	"golang.org/x/sync/errgroup"
)

// ErrShuttingDown is returned by StartBatch once Shutdown has been called.
var ErrShuttingDown = errors.New("batch manager is shutting down")

// ItemProcessor runs one item to a terminal state. *annotation.Worker
// satisfies it.
type ItemProcessor interface {
	Process(ctx context.Context, item *domain.BatchItem) annotation.Result
}

// run is the in-memory state of a job that is executing.
type run struct {
	mu     sync.Mutex
	job    *domain.BatchJob
	cancel context.CancelFunc
}

// Manager starts, tracks and cancels batch jobs.
type Manager struct {
	jobs      store.JobStore
	items     store.ItemStore
	processor ItemProcessor
	emitter   events.EventEmitter
	metrics   *metrics.PipelineMetrics
	logger    *slog.Logger
	cfg       config.BatchConfig
	now       func() time.Time

	mu      sync.Mutex
	running map[uuid.UUID]*run
	closed  bool
	wg      sync.WaitGroup

	baseCtx context.Context
	stopAll context.CancelFunc
}

// Option configures optional collaborators of a Manager.
type Option func(*Manager)

// WithEmitter publishes batch.finished events.
func WithEmitter(e events.EventEmitter) Option {
	return func(m *Manager) { m.emitter = e }
}

// WithMetrics records job and item metrics.
func WithMetrics(pm *metrics.PipelineMetrics) Option {
	return func(m *Manager) { m.metrics = pm }
}

// NewManager creates a Manager. Concurrency requests of 0 use
// cfg.DefaultConcurrency; larger requests are clamped to cfg.MaxConcurrency.
func NewManager(
	jobs store.JobStore,
	items store.ItemStore,
	processor ItemProcessor,
	cfg config.BatchConfig,
	log *slog.Logger,
	opts ...Option,
) *Manager {
	if jobs == nil || items == nil || processor == nil {
		panic("batch: job store, item store and processor are required")
	}
	if cfg.DefaultConcurrency <= 0 {
		cfg.DefaultConcurrency = 1
	}
	if cfg.MaxConcurrency < cfg.DefaultConcurrency {
		cfg.MaxConcurrency = cfg.DefaultConcurrency
	}
	if log == nil {
		log = slog.Default()
	}

	baseCtx, stopAll := context.WithCancel(context.Background())
	m := &Manager{
		jobs:      jobs,
		items:     items,
		processor: processor,
		emitter:   events.NopEmitter{},
		logger:    log.With(slog.String("component", "batch_manager")),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		running:   make(map[uuid.UUID]*run),
		baseCtx:   baseCtx,
		stopAll:   stopAll,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartBatch persists a job with one item per image reference and starts
// processing it in the background. It returns as soon as the job is stored.
func (m *Manager) StartBatch(ctx context.Context, imageRefs []string, concurrency int) (uuid.UUID, error) {
	if len(imageRefs) == 0 {
		return uuid.Nil, fmt.Errorf("%w: batch must contain at least one image", domain.ErrInvalidInput)
	}
	for i, ref := range imageRefs {
		if strings.TrimSpace(ref) == "" {
			return uuid.Nil, fmt.Errorf("%w: image reference %d is blank", domain.ErrInvalidInput, i)
		}
	}
	concurrency, err := m.resolveConcurrency(concurrency)
	if err != nil {
		return uuid.Nil, err
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return uuid.Nil, ErrShuttingDown
	}

	log := logger.FromContextOrDefault(ctx, m.logger)

	job, err := domain.NewBatchJob(len(imageRefs), concurrency)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := m.jobs.CreateJob(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create batch job: %w", err)
	}

	items := make([]*domain.BatchItem, 0, len(imageRefs))
	for _, ref := range imageRefs {
		item, err := domain.NewBatchItem(job.ID, ref)
		if err != nil {
			return uuid.Nil, m.failSetup(ctx, log, job, err)
		}
		items = append(items, item)
	}
	if err := m.items.CreateItems(ctx, items); err != nil {
		return uuid.Nil, m.failSetup(ctx, log, job, err)
	}

	runCtx, cancel := context.WithCancel(m.baseCtx)
	r := &run{job: job, cancel: cancel}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return uuid.Nil, m.failSetup(ctx, log, job, ErrShuttingDown)
	}
	m.running[job.ID] = r
	m.wg.Add(1)
	m.mu.Unlock()

	log.InfoContext(ctx, "Batch job submitted",
		"job_id", job.ID,
		"total_items", job.TotalItems,
		"concurrency", concurrency)

	go m.execute(runCtx, r, items)
	return job.ID, nil
}

func (m *Manager) resolveConcurrency(requested int) (int, error) {
	switch {
	case requested < 0:
		return 0, fmt.Errorf("%w: concurrency must be at least 1", domain.ErrInvalidInput)
	case requested == 0:
		return m.cfg.DefaultConcurrency, nil
	case requested > m.cfg.MaxConcurrency:
		return m.cfg.MaxConcurrency, nil
	default:
		return requested, nil
	}
}

// failSetup records a job-level fault and returns the original error.
func (m *Manager) failSetup(ctx context.Context, log *slog.Logger, job *domain.BatchJob, cause error) error {
	now := m.now()
	job.Status = domain.JobStatusFailed
	job.Error = cause.Error()
	job.CompletedAt = &now
	if err := m.jobs.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
		log.ErrorContext(ctx, "Failed to record job setup failure",
			"job_id", job.ID,
			"error", err)
	}
	m.metrics.JobSetupFailed()
	m.publishFinished(ctx, log, job)

	log.ErrorContext(ctx, "Batch job setup failed",
		"job_id", job.ID,
		"error", cause)
	return fmt.Errorf("failed to set up batch job %s: %w", job.ID, cause)
}

// execute drives one job from processing to a terminal status.
func (m *Manager) execute(ctx context.Context, r *run, items []*domain.BatchItem) {
	defer m.wg.Done()
	defer r.cancel()

	log := m.logger.With(slog.String("job_id", r.job.ID.String()))
	ctx = logger.WithLogger(ctx, log)

	r.mu.Lock()
	started := m.now()
	r.job.Status = domain.JobStatusProcessing
	r.job.StartedAt = &started
	m.persistJob(ctx, log, r.job)
	concurrency := r.job.Concurrency
	r.mu.Unlock()
	m.metrics.JobStarted()

	queue := make(chan *domain.BatchItem)

	var g errgroup.Group
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for item := range queue {
				if !m.claim(ctx, log, r, item) {
					continue
				}
				res := m.processor.Process(ctx, item)
				m.record(ctx, log, r, res)
			}
			return nil
		})
	}

feed:
	for _, item := range items {
		if m.cancelRequested(r) {
			break
		}
		select {
		case queue <- item:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	_ = g.Wait()

	m.finish(ctx, log, r)
}

// claim marks item as processing unless the job was cancelled. It is the
// only place a new item can start.
func (m *Manager) claim(ctx context.Context, log *slog.Logger, r *run, item *domain.BatchItem) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx.Err() != nil {
		r.job.CancelRequested = true
	}
	if r.job.CancelRequested {
		return false
	}
	if err := item.MarkProcessing(m.now()); err != nil {
		log.WarnContext(ctx, "Skipping item that is already terminal",
			"item_id", item.ID)
		return false
	}
	if err := m.items.UpdateItem(context.WithoutCancel(ctx), item); err != nil {
		log.ErrorContext(ctx, "Failed to persist item claim",
			"item_id", item.ID,
			"error", err)
	}
	return true
}

// record folds one item result into the job counters.
func (m *Manager) record(ctx context.Context, log *slog.Logger, r *run, res annotation.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.job.ProcessedItems++
	if res.Succeeded() {
		r.job.SuccessfulItems++
	} else {
		r.job.FailedItems++
	}
	m.persistJob(ctx, log, r.job)
}

func (m *Manager) cancelRequested(r *run) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job.CancelRequested
}

func (m *Manager) finish(ctx context.Context, log *slog.Logger, r *run) {
	r.mu.Lock()
	now := m.now()
	if r.job.CancelRequested {
		r.job.Status = domain.JobStatusCancelled
		r.job.CancelledAt = &now
	} else {
		r.job.Status = domain.JobStatusCompleted
		r.job.CompletedAt = &now
	}
	if err := r.job.Validate(); err != nil {
		log.ErrorContext(ctx, "Job counters inconsistent", "error", err)
	}
	m.persistJob(ctx, log, r.job)
	snapshot := r.job.Clone()
	r.mu.Unlock()

	m.mu.Lock()
	delete(m.running, snapshot.ID)
	m.mu.Unlock()

	m.metrics.JobFinished(string(snapshot.Status))
	m.publishFinished(ctx, log, snapshot)

	log.InfoContext(ctx, "Batch job finished",
		"status", snapshot.Status,
		"processed_items", snapshot.ProcessedItems,
		"successful_items", snapshot.SuccessfulItems,
		"failed_items", snapshot.FailedItems)
}

// persistJob stores a snapshot of job. Callers hold the run lock so that
// snapshots are written in counter order.
func (m *Manager) persistJob(ctx context.Context, log *slog.Logger, job *domain.BatchJob) {
	if err := m.jobs.UpdateJob(context.WithoutCancel(ctx), job.Clone()); err != nil {
		log.ErrorContext(ctx, "Failed to persist job state",
			"status", job.Status,
			"error", err)
	}
}

func (m *Manager) publishFinished(ctx context.Context, log *slog.Logger, job *domain.BatchJob) {
	evt, err := events.NewBatchFinished(job)
	if err != nil {
		log.ErrorContext(ctx, "Failed to build batch.finished event", "error", err)
		return
	}
	if err := m.emitter.EmitEvent(context.WithoutCancel(ctx), evt); err != nil {
		log.WarnContext(ctx, "batch.finished subscriber failed", "error", err)
	}
}

// GetJobProgress returns the current counters and status of a job.
func (m *Manager) GetJobProgress(ctx context.Context, id uuid.UUID) (Progress, error) {
	if r := m.lookup(id); r != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		return ProgressOf(r.job), nil
	}

	job, err := m.jobs.GetJob(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	return ProgressOf(job), nil
}

// CancelJob requests cancellation. It reports false when the job is already
// terminal or every item has finished. Items already running finish; no new
// item starts. An accepted cancellation always ends the job as cancelled.
func (m *Manager) CancelJob(ctx context.Context, id uuid.UUID) (bool, error) {
	log := logger.FromContextOrDefault(ctx, m.logger).With(slog.String("job_id", id.String()))

	if r := m.lookup(id); r != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		switch {
		case r.job.IsTerminal():
			return false, nil
		case r.job.CancelRequested:
			return true, nil
		case r.job.ProcessedItems >= r.job.TotalItems:
			return false, nil
		}
		r.job.CancelRequested = true
		m.persistJob(ctx, log, r.job)
		log.InfoContext(ctx, "Batch job cancellation requested")
		return true, nil
	}

	job, err := m.jobs.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	if job.IsTerminal() {
		return false, nil
	}

	// Not executing in this process: nothing can start, cancel it directly.
	now := m.now()
	job.CancelRequested = true
	job.Status = domain.JobStatusCancelled
	job.CancelledAt = &now
	if err := m.jobs.UpdateJob(ctx, job); err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}
	log.InfoContext(ctx, "Idle batch job cancelled")
	return true, nil
}

// ListActiveJobs returns jobs that are pending or processing.
func (m *Manager) ListActiveJobs(ctx context.Context) ([]*domain.BatchJob, error) {
	return m.jobs.ListJobsByStatus(ctx, domain.JobStatusPending, domain.JobStatusProcessing)
}

// ListItems returns the items of a job in submission order.
func (m *Manager) ListItems(ctx context.Context, id uuid.UUID) ([]*domain.BatchItem, error) {
	if _, err := m.jobs.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return m.items.ListItems(ctx, id)
}

// FailOrphanedJobs marks active jobs that are not executing in this process
// as failed. It is called on startup to close out jobs interrupted by a
// restart.
func (m *Manager) FailOrphanedJobs(ctx context.Context) (int, error) {
	active, err := m.ListActiveJobs(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, job := range active {
		if m.lookup(job.ID) != nil {
			continue
		}
		now := m.now()
		job.Status = domain.JobStatusFailed
		job.Error = "interrupted before completion"
		job.CompletedAt = &now
		if err := m.jobs.UpdateJob(ctx, job); err != nil {
			return n, fmt.Errorf("failed to close orphaned job %s: %w", job.ID, err)
		}
		n++
	}
	if n > 0 {
		m.logger.WarnContext(ctx, "Closed orphaned batch jobs", "count", n)
	}
	return n, nil
}

// Shutdown stops accepting jobs and waits for running ones. When ctx expires
// first, running jobs are cancelled and Shutdown waits for their in-flight
// items to unwind before returning ctx's error.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.stopAll()
		return nil
	case <-ctx.Done():
		m.logger.WarnContext(ctx, "Shutdown deadline reached, cancelling running jobs")
		m.mu.Lock()
		for _, r := range m.running {
			r.mu.Lock()
			if r.job.ProcessedItems < r.job.TotalItems {
				r.job.CancelRequested = true
			}
			r.mu.Unlock()
		}
		m.mu.Unlock()
		m.stopAll()
		<-done
		return ctx.Err()
	}
}

func (m *Manager) lookup(id uuid.UUID) *run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[id]
}
