package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/phrazzld/aves-annotator/internal/auth"
	"github.com/phrazzld/aves-annotator/internal/config"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "cli-test-secret-that-is-long-enough-123"

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "error", ShutdownTimeout: 5 * time.Second},
		Auth:   config.AuthConfig{TokenLifetime: time.Hour},
		LLM:    config.LLMConfig{ModelName: "test-model", RequestTimeout: time.Second},
		RateLimit: config.RateLimitConfig{
			Capacity:        10,
			RefillPerMinute: 600,
			AcquireTimeout:  time.Second,
		},
		Retry: config.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Batch: config.BatchConfig{DefaultConcurrency: 2, MaxConcurrency: 4},
		Learning: config.LearningConfig{
			MinSamples:         3,
			ApprovalIncrement:  0.05,
			RejectionDecrement: 0.1,
			CorrectionWeight:   1.5,
			ObservationWeight:  1,
			InitialConfidence:  0.5,
		},
		Prediction: config.PredictionConfig{SuppressBelow: 0.2, CacheTTL: time.Minute},
	}
}

var beakClient = vision.ClientFunc(func(context.Context, vision.Request) (*vision.Response, error) {
	return &vision.Response{Annotations: []vision.CandidateSchema{{
		SpanishTerm: "pico",
		EnglishTerm: "beak",
		BoundingBox: vision.BoxSchema{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.1},
		Type:        "anatomical",
		Confidence:  0.8,
	}}}, nil
})

func newTestApp(t *testing.T) *application {
	t.Helper()
	app, err := newApplication(context.Background(), testConfig(), logger.Discard(), newMemoryStores(), beakClient)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.shutdown(ctx)
	})
	return app
}

func TestNewApplication_RequiresVisionKey(t *testing.T) {
	t.Parallel()

	_, err := newApplication(context.Background(), testConfig(), logger.Discard(), newMemoryStores(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vision client")
}

func TestRunBatch(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	ctx := context.Background()
	img, err := domain.NewImage("mallard-1", "/photos/mallard-1.jpg", "Mallard")
	require.NoError(t, err)
	require.NoError(t, app.stores.catalog.SaveImage(ctx, img))

	var out bytes.Buffer
	err = runBatch(ctx, app, &out, []string{"mallard-1", "missing"}, 2, 5*time.Millisecond)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "started with 2 image(s)")
	assert.Contains(t, got, "completed 2/2 processed, 1 succeeded, 1 failed")
	assert.Contains(t, got, "✓ mallard-1: 1 candidate(s)")
	assert.Contains(t, got, "pico")
	assert.Contains(t, got, "x=0.100 y=0.200 w=0.300 h=0.100")
	assert.Contains(t, got, "✗ missing:")
	assert.Contains(t, got, "unknown image")
}

func TestRunBatch_RejectsEmptyBatch(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	err := runBatch(context.Background(), app, &bytes.Buffer{}, nil, 0, time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRunOptions_ImageRefs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    runOptions
		args    []string
		want    []string
		wantErr string
	}{
		{"catalog ids", runOptions{}, []string{"a", "b"}, []string{"a", "b"}, ""},
		{"files with species", runOptions{images: []string{"x.jpg"}, species: "Mallard"}, []string{"a"}, []string{"a", "x.jpg"}, ""},
		{"files without species", runOptions{images: []string{"x.jpg"}}, nil, nil, "--species"},
		{"nothing", runOptions{}, nil, nil, "no images"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tc.opts.imageRefs(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenIssue(t *testing.T) {
	path := writeConfig(t, "server:\n  log_level: error\nauth:\n  jwt_secret: "+testSecret+"\n")

	out, err := execute(t, "--config", path, "token", "issue", "--reviewer", "alice")
	require.NoError(t, err)

	tokens, err := auth.NewTokenService(config.AuthConfig{JWTSecret: testSecret, TokenLifetime: time.Hour})
	require.NoError(t, err)
	claims, err := tokens.ValidateToken(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.ReviewerID)
}

func TestCommands_ConfigurationErrors(t *testing.T) {
	path := writeConfig(t, "server:\n  log_level: error\n")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"token without secret", []string{"token", "issue", "--reviewer", "alice"}, "jwt_secret"},
		{"migrate without database", []string{"migrate", "up"}, "database.url"},
		{"migrate unknown command", []string{"migrate", "sideways"}, "invalid argument"},
		{"run with files but no species", []string{"run", "--image", "a.jpg"}, "--species"},
		{"bad log level", []string{"--log-level", "loud", "token", "issue", "--reviewer", "a"}, "invalid log level"},
		{"images add missing flags", []string{"images", "add", "--id", "x"}, "required flag"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"--config", path}, tc.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
