package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/aves-annotator/internal/annotation"
	"github.com/phrazzld/aves-annotator/internal/api"
	"github.com/phrazzld/aves-annotator/internal/auth"
	"github.com/phrazzld/aves-annotator/internal/batch"
	"github.com/phrazzld/aves-annotator/internal/config"
	"github.com/phrazzld/aves-annotator/internal/events"
	"github.com/phrazzld/aves-annotator/internal/feedback"
	"github.com/phrazzld/aves-annotator/internal/learning"
	"github.com/phrazzld/aves-annotator/internal/observability/metrics"
	"github.com/phrazzld/aves-annotator/internal/platform/gemini"
	"github.com/phrazzld/aves-annotator/internal/prediction"
	"github.com/phrazzld/aves-annotator/internal/ratelimit"
	"github.com/phrazzld/aves-annotator/internal/review"
	"github.com/phrazzld/aves-annotator/internal/vision"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// application holds the wired pipeline and the resources that need cleanup
// on shutdown.
type application struct {
	cfg    *config.Config
	logger *slog.Logger
	stores *storeSet

	registry  *prometheus.Registry
	metrics   *metrics.PipelineMetrics
	limiter   *ratelimit.Limiter
	manager   *batch.Manager
	learner   *learning.Learner
	predictor *prediction.Predictor
	capture   *feedback.Capture
	review    *review.Service
	tokens    auth.TokenService
}

// newApplication wires every component on top of stores. A nil client
// selects the Gemini vision client from cfg.LLM.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	log *slog.Logger,
	stores *storeSet,
	client vision.Client,
) (*application, error) {
	app := &application{
		cfg:      cfg,
		logger:   log,
		stores:   stores,
		registry: prometheus.NewRegistry(),
	}

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var err error
	app.metrics, err = metrics.NewPipelineMetrics(app.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	if client == nil {
		client, err = gemini.New(ctx, cfg.LLM, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vision client: %w", err)
		}
		log.Info("vision client initialized", "model", cfg.LLM.ModelName)
	}

	prompter := vision.DefaultPrompter()
	if cfg.LLM.PromptTemplatePath != "" {
		prompter, err = vision.NewPrompter(cfg.LLM.PromptTemplatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompt template: %w", err)
		}
	}

	app.limiter, err = ratelimit.NewFromConfig(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	worker := annotation.NewWorker(annotation.Deps{
		Limiter:    app.limiter,
		Client:     client,
		Prompter:   prompter,
		Catalog:    stores.catalog,
		Candidates: stores.candidates,
		Items:      stores.items,
		Metrics:    app.metrics,
		Logger:     log,
	}, annotation.PolicyFromConfig(cfg.Retry), cfg.RateLimit.AcquireTimeout)

	app.predictor = prediction.NewPredictor(stores.patterns, prediction.Config{
		MinSamples:    cfg.Learning.MinSamples,
		SuppressBelow: cfg.Prediction.SuppressBelow,
		CacheTTL:      cfg.Prediction.CacheTTL,
	}, app.metrics, log)

	app.learner, err = learning.NewLearner(
		stores.patterns,
		stores.feedback,
		learning.ParamsFromConfig(cfg.Learning),
		log,
		learning.WithInvalidator(app.predictor),
		learning.WithMetrics(app.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern learner: %w", err)
	}

	emitter := events.NewInMemoryEventEmitter(log)
	emitter.Subscribe(events.TypeFeedbackRecorded, app.learner)

	app.manager = batch.NewManager(stores.jobs, stores.items, worker, cfg.Batch, log,
		batch.WithEmitter(emitter),
		batch.WithMetrics(app.metrics))

	app.capture = feedback.NewCapture(stores.feedback, emitter, log,
		feedback.WithItemStore(stores.items),
		feedback.WithCandidateStore(stores.candidates),
		feedback.WithMetrics(app.metrics))

	app.review = review.NewService(stores.jobs, stores.items, stores.candidates, app.predictor, app.capture, log)

	if cfg.Auth.AuthEnabled() {
		app.tokens, err = auth.NewTokenService(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize token service: %w", err)
		}
		log.Info("reviewer authentication enabled", "token_lifetime", cfg.Auth.TokenLifetime.String())
	} else {
		log.Warn("auth.jwt_secret is empty, API routes are unauthenticated")
	}

	if n, err := app.manager.FailOrphanedJobs(ctx); err != nil {
		return nil, fmt.Errorf("failed to close orphaned jobs: %w", err)
	} else if n > 0 {
		log.Info("closed jobs interrupted by a previous run", "count", n)
	}

	return app, nil
}

// router builds the HTTP handler for the API server.
func (app *application) router() http.Handler {
	deps := api.RouterDeps{
		Logger:   app.logger,
		Batches:  app.manager,
		Review:   app.review,
		Patterns: app.learner,
		Images:   app.stores.catalog,
		Metrics:  promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{Registry: app.registry}),
		Health:   app.stores.ping,
	}
	if app.tokens != nil {
		deps.Tokens = app.tokens
	}
	return api.NewRouter(deps)
}

// shutdown waits for running jobs, then releases the stores.
func (app *application) shutdown(ctx context.Context) error {
	err := app.manager.Shutdown(ctx)
	if err != nil {
		app.logger.Error("batch manager shutdown incomplete", "error", err)
	}
	if cerr := app.stores.Close(); cerr != nil {
		app.logger.Error("error closing database connection", "error", cerr)
		if err == nil {
			err = cerr
		}
	}
	app.logger.Info("application shutdown completed")
	return err
}
