package annotation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/platform/memory"
	"github.com/phrazzld/aves-annotator/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenFunc func(ctx context.Context, timeout time.Duration) error

func (f tokenFunc) WaitForToken(ctx context.Context, timeout time.Duration) error {
	return f(ctx, timeout)
}

var unlimited = tokenFunc(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })

func goodResponse() *vision.Response {
	return &vision.Response{Annotations: []vision.CandidateSchema{
		{
			SpanishTerm: "pico",
			EnglishTerm: "beak",
			BoundingBox: vision.BoxSchema{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.2},
			Type:        "anatomical",
			Confidence:  0.9,
		},
		{
			SpanishTerm: "ala",
			EnglishTerm: "wing",
			BoundingBox: vision.BoxSchema{X: 0.4, Y: 0.4, Width: 0.3, Height: 0.2},
			Type:        "Anatomical",
			Confidence:  0.8,
		},
		{
			SpanishTerm: "",
			EnglishTerm: "tail",
			BoundingBox: vision.BoxSchema{X: 0.4, Y: 0.4, Width: 0.3, Height: 0.2},
			Type:        "anatomical",
			Confidence:  0.8,
		},
	}}
}

type fixture struct {
	worker     *Worker
	batches    *memory.BatchStore
	candidates *memory.CandidateStore
	item       *domain.BatchItem
	calls      *atomic.Int32
}

func newFixture(t *testing.T, limiter TokenSource, client func(call int32) (*vision.Response, error)) *fixture {
	t.Helper()

	img, err := domain.NewImage("img-1", "https://example.com/mallard.jpg", "Mallard")
	require.NoError(t, err)

	batches := memory.NewBatchStore()
	candidates := memory.NewCandidateStore()

	job, err := domain.NewBatchJob(1, 1)
	require.NoError(t, err)
	require.NoError(t, batches.CreateJob(context.Background(), job))

	item, err := domain.NewBatchItem(job.ID, "img-1")
	require.NoError(t, err)
	require.NoError(t, batches.CreateItems(context.Background(), []*domain.BatchItem{item}))
	require.NoError(t, item.MarkProcessing(time.Now()))

	calls := &atomic.Int32{}
	vc := vision.ClientFunc(func(ctx context.Context, req vision.Request) (*vision.Response, error) {
		n := calls.Add(1)
		assert.Equal(t, "Mallard", req.Species)
		assert.Contains(t, req.Prompt, "Mallard")
		return client(n)
	})

	w := NewWorker(Deps{
		Limiter:    limiter,
		Client:     vc,
		Catalog:    memory.NewImageCatalog(img),
		Candidates: candidates,
		Items:      batches,
		Logger:     logger.Discard(),
	}, RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, time.Second)

	return &fixture{worker: w, batches: batches, candidates: candidates, item: item, calls: calls}
}

func TestWorker_SuccessStoresValidCandidates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, unlimited, func(int32) (*vision.Response, error) { return goodResponse(), nil })

	res := f.worker.Process(context.Background(), f.item)
	require.NoError(t, res.Err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 1, res.Dropped)

	stored, err := f.candidates.ListCandidates(context.Background(), f.item.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "Mallard", stored[0].Species)
	assert.Equal(t, domain.FeatureAnatomical, stored[1].Type)

	persisted, err := f.batches.GetItem(context.Background(), f.item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusSucceeded, persisted.Status)
	assert.Equal(t, 2, persisted.CandidateCount)
}

func TestWorker_AlwaysTransientExhaustsRetries(t *testing.T) {
	t.Parallel()

	f := newFixture(t, unlimited, func(int32) (*vision.Response, error) {
		return nil, fmt.Errorf("%w: status 503", domain.ErrTransientService)
	})

	res := f.worker.Process(context.Background(), f.item)
	assert.Equal(t, domain.ItemStatusFailed, res.Status)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, int32(4), f.calls.Load())
	assert.ErrorIs(t, res.Err, domain.ErrTransientService)

	persisted, err := f.batches.GetItem(context.Background(), f.item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusFailed, persisted.Status)
	assert.Equal(t, 4, persisted.Attempts)
	assert.Contains(t, persisted.LastError, "status 503")
}

func TestWorker_TransientThenSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, unlimited, func(n int32) (*vision.Response, error) {
		if n < 3 {
			return nil, domain.ErrTransientService
		}
		return goodResponse(), nil
	})

	res := f.worker.Process(context.Background(), f.item)
	require.NoError(t, res.Err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, 3, res.Attempts)
}

func TestWorker_PermanentErrorStopsImmediately(t *testing.T) {
	t.Parallel()

	f := newFixture(t, unlimited, func(int32) (*vision.Response, error) {
		return nil, vision.ErrInvalidResponse
	})

	res := f.worker.Process(context.Background(), f.item)
	assert.Equal(t, domain.ItemStatusFailed, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.ErrorIs(t, res.Err, domain.ErrPermanentService)
}

func TestWorker_RateLimitTimeoutIsRetried(t *testing.T) {
	t.Parallel()

	var waits atomic.Int32
	limiter := tokenFunc(func(context.Context, time.Duration) error {
		waits.Add(1)
		return domain.ErrRateLimitTimeout
	})
	f := newFixture(t, limiter, func(int32) (*vision.Response, error) { return goodResponse(), nil })

	res := f.worker.Process(context.Background(), f.item)
	assert.Equal(t, domain.ItemStatusFailed, res.Status)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, int32(4), waits.Load())
	assert.Equal(t, int32(0), f.calls.Load())
	assert.ErrorIs(t, res.Err, domain.ErrRateLimitTimeout)
}

func TestWorker_UnknownImageFailsWithoutCallingService(t *testing.T) {
	t.Parallel()

	f := newFixture(t, unlimited, func(int32) (*vision.Response, error) { return goodResponse(), nil })
	f.item.ImageRef = "img-unknown"

	res := f.worker.Process(context.Background(), f.item)
	assert.Equal(t, domain.ItemStatusFailed, res.Status)
	assert.Equal(t, 0, res.Attempts)
	assert.Equal(t, int32(0), f.calls.Load())
	assert.ErrorIs(t, res.Err, domain.ErrPermanentService)
}

func TestWorker_CancellationFinalizesItem(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, unlimited, func(int32) (*vision.Response, error) {
		cancel()
		return nil, domain.ErrTransientService
	})

	res := f.worker.Process(ctx, f.item)
	assert.Equal(t, domain.ItemStatusFailed, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, errors.Is(res.Err, context.Canceled))

	persisted, err := f.batches.GetItem(context.Background(), f.item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusFailed, persisted.Status)
}

func TestWorker_TerminalItemIsNotReprocessed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, unlimited, func(int32) (*vision.Response, error) { return goodResponse(), nil })
	require.NoError(t, f.item.MarkFailed(2, errors.New("earlier"), time.Now()))

	res := f.worker.Process(context.Background(), f.item)
	assert.ErrorIs(t, res.Err, domain.ErrItemTerminal)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, int32(0), f.calls.Load())

	stored, err := f.candidates.ListCandidates(context.Background(), f.item.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxRetries: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond}
	assert.Equal(t, 4, p.MaxAttempts())

	b := p.backoff()
	var delays []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			break
		}
		delays = append(delays, d)
	}
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}, delays)

	zero := RetryPolicy{MaxRetries: 0}
	_, stop := zero.backoff().Next()
	assert.True(t, stop)
	assert.Equal(t, 1, zero.MaxAttempts())
}
