package batch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/phrazzld/aves-annotator/internal/annotation"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/platform/memory"
	"github.com/phrazzld/aves-annotator/internal/ratelimit"
	"github.com/phrazzld/aves-annotator/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_WorkerAndLimiter(t *testing.T) {
	t.Parallel()

	var images []*domain.Image
	for i := 1; i <= 5; i++ {
		img, err := domain.NewImage(fmt.Sprintf("img-%d", i), fmt.Sprintf("https://example.com/%d.jpg", i), "Mallard")
		require.NoError(t, err)
		images = append(images, img)
	}

	limiter, err := ratelimit.New(5, 0)
	require.NoError(t, err)

	client := vision.ClientFunc(func(_ context.Context, req vision.Request) (*vision.Response, error) {
		if req.ImageID == "img-3" {
			return nil, fmt.Errorf("%w: status 400", domain.ErrPermanentService)
		}
		return &vision.Response{Annotations: []vision.CandidateSchema{{
			SpanishTerm: "pico",
			EnglishTerm: "beak",
			BoundingBox: vision.BoxSchema{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.2},
			Type:        "anatomical",
			Confidence:  0.9,
		}}}, nil
	})

	batches := memory.NewBatchStore()
	candidates := memory.NewCandidateStore()
	worker := annotation.NewWorker(annotation.Deps{
		Limiter:    limiter,
		Client:     client,
		Catalog:    memory.NewImageCatalog(images...),
		Candidates: candidates,
		Items:      batches,
		Logger:     logger.Discard(),
	}, annotation.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}, 50*time.Millisecond)

	m := NewManager(batches, batches, worker, testBatchConfig, logger.Discard())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	id, err := m.StartBatch(context.Background(), refs(5), 2)
	require.NoError(t, err)

	p := waitDone(t, m, id)
	assert.Equal(t, domain.JobStatusCompleted, p.Status)
	assert.Equal(t, 5, p.ProcessedItems)
	assert.Equal(t, 4, p.SuccessfulItems)
	assert.Equal(t, 1, p.FailedItems)
	assert.InDelta(t, 0, limiter.Available(), 1e-9, "one token per attempt")

	items, err := m.ListItems(context.Background(), id)
	require.NoError(t, err)
	for _, item := range items {
		stored, err := candidates.ListCandidates(context.Background(), item.ID)
		require.NoError(t, err)
		if item.ImageRef == "img-3" {
			assert.Equal(t, domain.ItemStatusFailed, item.Status)
			assert.Equal(t, 1, item.Attempts)
			assert.Empty(t, stored)
			continue
		}
		assert.Equal(t, domain.ItemStatusSucceeded, item.Status)
		assert.Len(t, stored, 1)
	}
}
