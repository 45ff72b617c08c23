// Package prediction adjusts raw annotation boxes using learned patterns
// before they are shown to reviewers.
package prediction

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/observability/metrics"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/store"
)

// Prediction is the adjusted position of one candidate.
type Prediction struct {
	// Box is the box to show: raw plus the learned mean delta when Applied,
	// otherwise the raw box unchanged.
	Box    domain.BoundingBox `json:"box"`
	RawBox domain.BoundingBox `json:"raw_box"`

	// Confidence is the pattern confidence, zero when no pattern exists.
	Confidence  float64 `json:"confidence"`
	SampleCount int     `json:"sample_count"`

	Applied bool `json:"applied"`
	// Degraded is set when too little feedback exists to adjust the box.
	Degraded bool `json:"degraded"`
	// Suppressed marks usable patterns whose confidence fell below the
	// suppression threshold; reviewers should treat the candidate as suspect.
	Suppressed bool `json:"suppressed"`
}

// Config holds the predictor tunables.
type Config struct {
	MinSamples    int
	SuppressBelow float64
	// CacheTTL bounds how long a pattern is served from memory. Zero
	// disables caching.
	CacheTTL time.Duration
}

type cachedPattern struct {
	pattern *domain.Pattern
}

// Predictor implements position prediction. It is safe for concurrent use.
type Predictor struct {
	patterns store.PatternStore
	cfg      Config
	cache    *cache.Cache
	metrics  *metrics.PipelineMetrics
	logger   *slog.Logger

	// generations counts invalidations per key. A store read is cached only
	// if no invalidation landed while it was in flight.
	genMu       sync.Mutex
	generations map[domain.PatternKey]uint64
}

// NewPredictor creates a Predictor reading from patterns.
func NewPredictor(
	patterns store.PatternStore,
	cfg Config,
	m *metrics.PipelineMetrics,
	log *slog.Logger,
) *Predictor {
	if patterns == nil {
		panic("pattern store cannot be nil")
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 1
	}
	if log == nil {
		log = slog.Default()
	}

	p := &Predictor{
		patterns: patterns,
		cfg:      cfg,
		metrics:  m,
		logger:   log.With(slog.String("component", "position_predictor")),
	}
	if cfg.CacheTTL > 0 {
		p.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
		p.generations = make(map[domain.PatternKey]uint64)
	}
	return p
}

// Predict adjusts rawBox for (species, term). It never fails: a missing
// pattern or an unreadable store yields the raw box flagged as degraded.
func (p *Predictor) Predict(ctx context.Context, species, term string, rawBox domain.BoundingBox) Prediction {
	out := Prediction{Box: rawBox, RawBox: rawBox, Degraded: true}

	key := domain.NewPatternKey(species, term)
	if key.IsZero() {
		p.metrics.Prediction(metrics.PredictionDegraded)
		return out
	}

	pattern := p.lookup(ctx, key)
	if pattern != nil {
		out.Confidence = pattern.Confidence
		out.SampleCount = pattern.SampleCount
	}

	if !pattern.IsUsable(p.cfg.MinSamples) {
		p.metrics.Prediction(metrics.PredictionDegraded)
		return out
	}

	out.Box = rawBox.Add(pattern.MeanDelta)
	out.Applied = true
	out.Degraded = false
	if pattern.Confidence < p.cfg.SuppressBelow {
		out.Suppressed = true
		p.metrics.Prediction(metrics.PredictionSuppressed)
	} else {
		p.metrics.Prediction(metrics.PredictionApplied)
	}
	return out
}

// Invalidate drops the cached pattern for key. The learner calls it after
// every write.
func (p *Predictor) Invalidate(key domain.PatternKey) {
	if p.cache == nil {
		return
	}
	p.genMu.Lock()
	defer p.genMu.Unlock()
	p.generations[key]++
	p.cache.Delete(key.String())
}

func (p *Predictor) generation(key domain.PatternKey) uint64 {
	p.genMu.Lock()
	defer p.genMu.Unlock()
	return p.generations[key]
}

// remember caches pattern unless key was invalidated after gen was read.
func (p *Predictor) remember(key domain.PatternKey, gen uint64, pattern *domain.Pattern) {
	p.genMu.Lock()
	defer p.genMu.Unlock()
	if p.generations[key] != gen {
		return
	}
	p.cache.SetDefault(key.String(), cachedPattern{pattern: pattern})
}

func (p *Predictor) lookup(ctx context.Context, key domain.PatternKey) *domain.Pattern {
	var gen uint64
	if p.cache != nil {
		if v, ok := p.cache.Get(key.String()); ok {
			p.metrics.PredictionCacheLookup(true)
			return v.(cachedPattern).pattern
		}
		p.metrics.PredictionCacheLookup(false)
		gen = p.generation(key)
	}

	pattern, err := p.patterns.GetPattern(ctx, key)
	switch {
	case err == nil:
	case store.IsNotFoundError(err):
		pattern = nil
	default:
		logger.FromContextOrDefault(ctx, p.logger).WarnContext(ctx, "Pattern lookup failed, serving raw box",
			"pattern_key", key.String(),
			"error", err)
		return nil
	}

	if p.cache != nil {
		p.remember(key, gen, pattern)
	}
	return pattern
}
