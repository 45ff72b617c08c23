package events

import (
	"context"
	"errors"
	"testing"

	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFinishedEvent(t *testing.T) *Event {
	t.Helper()
	event, err := NewEvent(TypeBatchFinished, BatchFinished{TotalItems: 1, ProcessedItems: 1})
	require.NoError(t, err)
	return event
}

func TestInMemoryEventEmitter_NoHandlers(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEventEmitter(logger.Discard())
	assert.NoError(t, emitter.EmitEvent(context.Background(), newFinishedEvent(t)))
}

func TestInMemoryEventEmitter_RoutesByType(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEventEmitter(logger.Discard())
	finished := &MockEventHandler{}
	feedback := &MockEventHandler{}
	all := &MockEventHandler{}

	var order []string
	emitter.RegisterHandler(HandlerFunc(func(context.Context, *Event) error {
		order = append(order, "catch-all")
		return nil
	}))
	emitter.Subscribe(TypeBatchFinished, HandlerFunc(func(context.Context, *Event) error {
		order = append(order, "typed")
		return nil
	}))
	emitter.Subscribe(TypeBatchFinished, finished)
	emitter.Subscribe(TypeFeedbackRecorded, feedback)
	emitter.RegisterHandler(all)

	event := newFinishedEvent(t)
	require.NoError(t, emitter.EmitEvent(context.Background(), event))

	assert.Equal(t, 1, finished.HandledCount)
	assert.Same(t, event, finished.LastEvent)
	assert.Equal(t, 0, feedback.HandledCount)
	assert.Equal(t, 1, all.HandledCount)
	assert.Equal(t, []string{"typed", "catch-all"}, order)
}

func TestInMemoryEventEmitter_FailuresDoNotStopDelivery(t *testing.T) {
	t.Parallel()

	buf, log := logger.NewTestLogger(t)
	emitter := NewInMemoryEventEmitter(log)

	first := &MockEventHandler{HandlerError: errors.New("store unavailable")}
	panicking := HandlerFunc(func(context.Context, *Event) error { panic("boom") })
	last := &MockEventHandler{}

	emitter.Subscribe(TypeBatchFinished, first)
	emitter.Subscribe(TypeBatchFinished, panicking)
	emitter.Subscribe(TypeBatchFinished, last)

	err := emitter.EmitEvent(context.Background(), newFinishedEvent(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
	assert.Contains(t, err.Error(), "handler panicked on batch.finished: boom")

	assert.Equal(t, 1, first.HandledCount)
	assert.Equal(t, 1, last.HandledCount)
	logger.AssertLogContains(t, buf, "event handler failed")
}
