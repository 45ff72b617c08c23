package annotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/observability/metrics"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/store"
	"github.com/phrazzld/aves-annotator/internal/vision"
	"github.com/sethvargo/go-retry"
)

// TokenSource hands out rate limit tokens. *ratelimit.Limiter satisfies it.
type TokenSource interface {
	WaitForToken(ctx context.Context, timeout time.Duration) error
}

// Result summarizes the processing of one item.
type Result struct {
	ItemID     uuid.UUID
	Status     domain.ItemStatus
	Attempts   int
	Candidates int
	Dropped    int
	Err        error
}

// Succeeded reports whether the item finished successfully.
func (r Result) Succeeded() bool {
	return r.Status == domain.ItemStatusSucceeded
}

// Deps groups the collaborators of a Worker.
type Deps struct {
	Limiter    TokenSource
	Client     vision.Client
	Prompter   *vision.Prompter
	Catalog    store.ImageCatalog
	Candidates store.CandidateStore
	Items      store.ItemStore
	Metrics    *metrics.PipelineMetrics
	Logger     *slog.Logger
}

// Worker annotates batch items. A single Worker is shared by every goroutine
// of every job; it holds no per-item state.
type Worker struct {
	limiter        TokenSource
	client         vision.Client
	prompter       *vision.Prompter
	catalog        store.ImageCatalog
	candidates     store.CandidateStore
	items          store.ItemStore
	metrics        *metrics.PipelineMetrics
	logger         *slog.Logger
	policy         RetryPolicy
	acquireTimeout time.Duration
	now            func() time.Time
}

// NewWorker creates a Worker. It panics when a required dependency is nil.
func NewWorker(deps Deps, policy RetryPolicy, acquireTimeout time.Duration) *Worker {
	if deps.Limiter == nil || deps.Client == nil || deps.Catalog == nil ||
		deps.Candidates == nil || deps.Items == nil {
		panic("annotation: limiter, client, catalog, candidate store and item store are required")
	}
	prompter := deps.Prompter
	if prompter == nil {
		prompter = vision.DefaultPrompter()
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		limiter:        deps.Limiter,
		client:         deps.Client,
		prompter:       prompter,
		catalog:        deps.Catalog,
		candidates:     deps.Candidates,
		items:          deps.Items,
		metrics:        deps.Metrics,
		logger:         log.With(slog.String("component", "annotation_worker")),
		policy:         policy,
		acquireTimeout: acquireTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Process annotates item and finalizes it as succeeded or failed. The final
// item state is persisted even when ctx has been cancelled.
func (w *Worker) Process(ctx context.Context, item *domain.BatchItem) Result {
	log := logger.FromContextOrDefault(ctx, w.logger).With(
		slog.String("job_id", item.JobID.String()),
		slog.String("item_id", item.ID.String()),
		slog.String("image_ref", item.ImageRef))

	if item.Status.IsTerminal() {
		return w.result(item, 0, domain.ErrItemTerminal)
	}

	img, err := w.catalog.GetImage(ctx, item.ImageRef)
	if err != nil {
		if store.IsNotFoundError(err) {
			err = fmt.Errorf("%w: unknown image %q", domain.ErrPermanentService, item.ImageRef)
		}
		return w.fail(ctx, log, item, 0, err)
	}

	prompt, err := w.prompter.AnnotationPrompt(img.Species)
	if err != nil {
		return w.fail(ctx, log, item, 0, fmt.Errorf("%w: %v", domain.ErrPermanentService, err))
	}

	req := vision.Request{
		ImageID:  img.ID,
		ImageURI: img.URI,
		Species:  img.Species,
		Prompt:   prompt,
	}

	resp, attempts, err := w.annotate(ctx, log, req)
	if err != nil {
		return w.fail(ctx, log, item, attempts, err)
	}

	valid, rejected := vision.ValidateCandidates(item.ID, img.Species, resp, w.now())
	for _, r := range rejected {
		log.WarnContext(ctx, "Dropping malformed candidate",
			"index", r.Index,
			"error", r.Err)
	}
	w.metrics.CandidatesProcessed(len(valid), len(rejected))

	if len(valid) > 0 {
		if err := w.candidates.SaveCandidates(ctx, valid); err != nil {
			return w.fail(ctx, log, item, attempts, fmt.Errorf("failed to store candidates: %w", err))
		}
	}

	if err := item.MarkSucceeded(attempts, len(valid), w.now()); err != nil {
		return w.result(item, len(rejected), err)
	}
	w.persist(ctx, log, item)
	w.metrics.ItemFinished(string(domain.ItemStatusSucceeded))

	log.InfoContext(ctx, "Item annotated",
		"attempts", attempts,
		"candidates", len(valid),
		"dropped", len(rejected))
	return w.result(item, len(rejected), nil)
}

// annotate runs the token-wait plus vision call loop, returning the response
// and the number of attempts made.
func (w *Worker) annotate(
	ctx context.Context,
	log *slog.Logger,
	req vision.Request,
) (*vision.Response, int, error) {
	var (
		resp     *vision.Response
		attempts int
	)
	maxAttempts := w.policy.MaxAttempts()

	err := retry.Do(ctx, w.policy.backoff(), func(ctx context.Context) error {
		attempts++
		log.InfoContext(ctx, "Making annotation attempt",
			"attempt", attempts,
			"max_attempts", maxAttempts)

		waitStart := time.Now()
		if err := w.limiter.WaitForToken(ctx, w.acquireTimeout); err != nil {
			timedOut := errors.Is(err, domain.ErrRateLimitTimeout)
			w.metrics.LimiterWaited(time.Since(waitStart), timedOut)
			if timedOut {
				log.WarnContext(ctx, "Rate limit token not acquired",
					"attempt", attempts,
					"timeout", w.acquireTimeout)
				return retry.RetryableError(err)
			}
			return err
		}
		w.metrics.LimiterWaited(time.Since(waitStart), false)

		callStart := time.Now()
		r, err := w.client.Annotate(ctx, req)
		elapsed := time.Since(callStart)
		switch {
		case err == nil:
			w.metrics.AnnotationAttempt(attempts, metrics.OutcomeSuccess, elapsed)
			resp = r
			return nil
		case domain.IsTransient(err):
			w.metrics.AnnotationAttempt(attempts, metrics.OutcomeTransient, elapsed)
			log.WarnContext(ctx, "Transient vision service error",
				"attempt", attempts,
				"max_attempts", maxAttempts,
				"error", err)
			return retry.RetryableError(err)
		case ctx.Err() != nil:
			w.metrics.AnnotationAttempt(attempts, metrics.OutcomeCancelled, elapsed)
			return ctx.Err()
		default:
			w.metrics.AnnotationAttempt(attempts, metrics.OutcomePermanent, elapsed)
			log.WarnContext(ctx, "Permanent vision service error, not retrying",
				"attempt", attempts,
				"error", err)
			return err
		}
	})
	if err != nil {
		if domain.IsTransient(err) {
			log.WarnContext(ctx, "Maximum annotation attempts reached",
				"attempts", attempts)
		}
		return nil, attempts, err
	}
	return resp, attempts, nil
}

func (w *Worker) fail(
	ctx context.Context,
	log *slog.Logger,
	item *domain.BatchItem,
	attempts int,
	cause error,
) Result {
	if err := item.MarkFailed(attempts, cause, w.now()); err != nil {
		return w.result(item, 0, err)
	}
	w.persist(ctx, log, item)
	w.metrics.ItemFinished(string(domain.ItemStatusFailed))

	log.ErrorContext(ctx, "Item annotation failed",
		"attempts", attempts,
		"error", cause)
	return w.result(item, 0, cause)
}

// persist saves the final item state, detached from cancellation so a
// shutdown never leaves a finished item recorded as processing.
func (w *Worker) persist(ctx context.Context, log *slog.Logger, item *domain.BatchItem) {
	if err := w.items.UpdateItem(context.WithoutCancel(ctx), item); err != nil {
		log.ErrorContext(ctx, "Failed to persist item state",
			"status", item.Status,
			"error", err)
	}
}

func (w *Worker) result(item *domain.BatchItem, dropped int, err error) Result {
	return Result{
		ItemID:     item.ID,
		Status:     item.Status,
		Attempts:   item.Attempts,
		Candidates: item.CandidateCount,
		Dropped:    dropped,
		Err:        err,
	}
}
