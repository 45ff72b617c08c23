package learning

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/events"
	"github.com/phrazzld/aves-annotator/internal/observability/metrics"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/store"
)

// Invalidator drops cached state derived from a pattern.
type Invalidator interface {
	Invalidate(key domain.PatternKey)
}

// BatchResult counts the outcome of applying a set of events.
type BatchResult struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (r *BatchResult) add(o BatchResult) {
	r.Applied += o.Applied
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

// Learner maintains patterns from reviewer feedback.
type Learner struct {
	patterns     store.PatternStore
	feedback     store.FeedbackStore
	params       Params
	invalidators []Invalidator
	metrics      *metrics.PipelineMetrics
	logger       *slog.Logger
	now          func() time.Time

	// replayed holds, per key, the events folded by the last Rebuild. An
	// Apply for one of them that was queued behind the rebuild is dropped.
	replayedMu sync.Mutex
	replayed   map[domain.PatternKey]map[uuid.UUID]struct{}
}

var _ events.EventHandler = (*Learner)(nil)

// Option configures optional collaborators of a Learner.
type Option func(*Learner)

// WithInvalidator registers a cache to invalidate after every pattern write.
func WithInvalidator(inv Invalidator) Option {
	return func(l *Learner) { l.invalidators = append(l.invalidators, inv) }
}

// WithMetrics records pattern updates.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(l *Learner) { l.metrics = m }
}

// NewLearner creates a Learner. The feedback store is used by Rebuild to
// replay history.
func NewLearner(
	patterns store.PatternStore,
	feedback store.FeedbackStore,
	params Params,
	log *slog.Logger,
	opts ...Option,
) (*Learner, error) {
	if patterns == nil || feedback == nil {
		return nil, fmt.Errorf("%w: pattern and feedback stores are required", domain.ErrInvalidInput)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	l := &Learner{
		patterns: patterns,
		feedback: feedback,
		params:   params,
		logger:   log.With(slog.String("component", "pattern_learner")),
		now:      func() time.Time { return time.Now().UTC() },
		replayed: make(map[domain.PatternKey]map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Params returns the tunables the learner was built with.
func (l *Learner) Params() Params {
	return l.params
}

// Apply folds one event into its pattern. It never fails: malformed events
// are skipped and store failures are logged and counted.
func (l *Learner) Apply(ctx context.Context, event *domain.FeedbackEvent) BatchResult {
	log := logger.FromContextOrDefault(ctx, l.logger)

	if event == nil {
		l.metrics.PatternUpdate(metrics.PatternSkipped)
		return BatchResult{Skipped: 1}
	}
	if err := event.Validate(); err != nil {
		log.WarnContext(ctx, "Skipping malformed feedback event",
			"feedback_id", event.ID,
			"error", err)
		l.metrics.PatternUpdate(metrics.PatternSkipped)
		return BatchResult{Skipped: 1}
	}

	key := event.Key()
	replay := false
	updated, err := l.patterns.UpdatePattern(ctx, key, func(current *domain.Pattern) (*domain.Pattern, error) {
		if replay = l.wasReplayed(key, event.ID); replay {
			return current, nil
		}
		now := l.now()
		if current == nil {
			current = domain.NewPattern(key, l.params.InitialConfidence, now)
		}
		Fold(current, event, l.params, now)
		return current, nil
	})
	if err == nil && replay {
		l.forgetReplayed(key, event.ID)
		log.DebugContext(ctx, "Feedback already folded by rebuild",
			"pattern_key", key.String(),
			"feedback_id", event.ID)
		l.metrics.PatternUpdate(metrics.PatternSkipped)
		return BatchResult{Skipped: 1}
	}
	if err != nil {
		log.ErrorContext(ctx, "Failed to update pattern",
			"pattern_key", key.String(),
			"feedback_id", event.ID,
			"error", err)
		l.metrics.PatternUpdate(metrics.PatternFailed)
		return BatchResult{Failed: 1}
	}

	l.invalidate(key)
	l.metrics.PatternUpdate(metrics.PatternUpdated)
	log.DebugContext(ctx, "Pattern updated",
		"pattern_key", key.String(),
		"action", event.Action,
		"sample_count", updated.SampleCount,
		"confidence", updated.Confidence)
	return BatchResult{Applied: 1}
}

// ApplyBatch applies events in order.
func (l *Learner) ApplyBatch(ctx context.Context, evts []*domain.FeedbackEvent) BatchResult {
	var res BatchResult
	for _, e := range evts {
		res.add(l.Apply(ctx, e))
	}
	return res
}

// HandleEvent implements events.EventHandler for feedback.recorded events.
func (l *Learner) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Type != events.TypeFeedbackRecorded {
		return nil
	}

	var payload events.FeedbackRecorded
	if err := event.UnmarshalPayload(&payload); err != nil {
		l.logger.WarnContext(ctx, "Discarding undecodable feedback event",
			"event_id", event.ID,
			"error", err)
		return nil
	}

	if res := l.Apply(ctx, &payload.Feedback); res.Failed > 0 {
		return fmt.Errorf("pattern update failed for feedback %s", payload.Feedback.ID)
	}
	return nil
}

// GetPattern returns the stored pattern for key.
func (l *Learner) GetPattern(ctx context.Context, key domain.PatternKey) (*domain.Pattern, error) {
	return l.patterns.GetPattern(ctx, key)
}

// ListPatterns returns stored patterns; an empty species lists all.
func (l *Learner) ListPatterns(ctx context.Context, species string) ([]*domain.Pattern, error) {
	return l.patterns.ListPatterns(ctx, species)
}

// Reset discards everything learned for key. The feedback log is untouched,
// so Rebuild can restore the pattern.
func (l *Learner) Reset(ctx context.Context, key domain.PatternKey) (*domain.Pattern, error) {
	p, _, err := l.replace(ctx, key, false)
	return p, err
}

// Rebuild resets key and replays its feedback history in order. The history
// is read while the key is locked, so feedback applied concurrently is either
// part of the replay or folded in after it.
func (l *Learner) Rebuild(ctx context.Context, key domain.PatternKey) (*domain.Pattern, BatchResult, error) {
	p, res, err := l.replace(ctx, key, true)
	if err != nil {
		return nil, BatchResult{}, err
	}

	l.logger.InfoContext(ctx, "Pattern rebuilt",
		"pattern_key", key.String(),
		"applied", res.Applied,
		"skipped", res.Skipped)
	return p, res, nil
}

func (l *Learner) replace(ctx context.Context, key domain.PatternKey, replay bool) (*domain.Pattern, BatchResult, error) {
	if key.IsZero() {
		return nil, BatchResult{}, fmt.Errorf("%w: pattern key requires species and term", domain.ErrInvalidInput)
	}

	var res BatchResult
	p, err := l.patterns.UpdatePattern(ctx, key, func(current *domain.Pattern) (*domain.Pattern, error) {
		res = BatchResult{}
		var history []*domain.FeedbackEvent
		if replay {
			var err error
			history, err = l.feedback.ListByKey(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("failed to load feedback for %s: %w", key, err)
			}
		}

		now := l.now()
		fresh := domain.NewPattern(key, l.params.InitialConfidence, now)
		if current != nil {
			fresh.CreatedAt = current.CreatedAt
		}
		folded := make(map[uuid.UUID]struct{}, len(history))
		for _, e := range history {
			if err := e.Validate(); err != nil {
				res.Skipped++
				continue
			}
			Fold(fresh, e, l.params, now)
			folded[e.ID] = struct{}{}
			res.Applied++
		}
		l.setReplayed(key, folded)
		return fresh, nil
	})
	if err != nil {
		l.setReplayed(key, nil)
		return nil, BatchResult{}, fmt.Errorf("failed to reset pattern %s: %w", key, err)
	}

	l.invalidate(key)
	return p, res, nil
}

func (l *Learner) setReplayed(key domain.PatternKey, ids map[uuid.UUID]struct{}) {
	l.replayedMu.Lock()
	defer l.replayedMu.Unlock()
	if len(ids) == 0 {
		delete(l.replayed, key)
		return
	}
	l.replayed[key] = ids
}

func (l *Learner) wasReplayed(key domain.PatternKey, id uuid.UUID) bool {
	l.replayedMu.Lock()
	defer l.replayedMu.Unlock()
	_, ok := l.replayed[key][id]
	return ok
}

func (l *Learner) forgetReplayed(key domain.PatternKey, id uuid.UUID) {
	l.replayedMu.Lock()
	defer l.replayedMu.Unlock()
	delete(l.replayed[key], id)
}

func (l *Learner) invalidate(key domain.PatternKey) {
	for _, inv := range l.invalidators {
		inv.Invalidate(key)
	}
}
