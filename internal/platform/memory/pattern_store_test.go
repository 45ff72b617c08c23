package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func incrementSamples(current *domain.Pattern) (*domain.Pattern, error) {
	if current == nil {
		current = domain.NewPattern(domain.PatternKey{}, 0.5, time.Now().UTC())
	}
	current.SampleCount++
	return current, nil
}

func TestPatternStore_UpdateCreatesAndGets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewPatternStore()
	key := domain.NewPatternKey("Mallard", "pico")

	_, err := s.GetPattern(ctx, key)
	assert.ErrorIs(t, err, store.ErrPatternNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	p, err := s.UpdatePattern(ctx, key, incrementSamples)
	require.NoError(t, err)
	assert.Equal(t, key, p.Key)
	assert.Equal(t, 1, p.SampleCount)

	got, err := s.GetPattern(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SampleCount)

	// Returned patterns are copies.
	got.SampleCount = 99
	again, err := s.GetPattern(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, again.SampleCount)
}

func TestPatternStore_UpdateErrorLeavesPatternUntouched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewPatternStore()
	key := domain.NewPatternKey("Mallard", "pico")
	_, err := s.UpdatePattern(ctx, key, incrementSamples)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = s.UpdatePattern(ctx, key, func(current *domain.Pattern) (*domain.Pattern, error) {
		current.SampleCount = 42
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetPattern(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SampleCount)
}

func TestPatternStore_ConcurrentUpdatesSameKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewPatternStore()
	key := domain.NewPatternKey("Mallard", "pico")

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdatePattern(ctx, key, incrementSamples)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetPattern(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, n, got.SampleCount, "no update may be lost")
}

func TestPatternStore_DifferentKeysDoNotBlock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewPatternStore()
	slow := domain.NewPatternKey("Mallard", "pico")
	fast := domain.NewPatternKey("Mallard", "ala")

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.UpdatePattern(ctx, slow, func(current *domain.Pattern) (*domain.Pattern, error) {
			close(entered)
			<-release
			return incrementSamples(current)
		})
	}()
	<-entered

	_, err := s.UpdatePattern(ctx, fast, incrementSamples)
	require.NoError(t, err, "update on another key must complete while the first is held")

	close(release)
	<-done
}

func TestPatternStore_ListPatterns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewPatternStore()
	for _, k := range []domain.PatternKey{
		domain.NewPatternKey("Mallard", "pico"),
		domain.NewPatternKey("Mallard", "ala"),
		domain.NewPatternKey("Robin", "pecho"),
	} {
		_, err := s.UpdatePattern(ctx, k, incrementSamples)
		require.NoError(t, err)
	}

	all, err := s.ListPatterns(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ala", all[0].Key.Term)

	mallard, err := s.ListPatterns(ctx, " MALLARD ")
	require.NoError(t, err)
	assert.Len(t, mallard, 2)
}
