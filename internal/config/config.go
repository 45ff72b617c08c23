package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	LLM        LLMConfig        `mapstructure:"llm" validate:"required"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" validate:"required"`
	Retry      RetryConfig      `mapstructure:"retry" validate:"required"`
	Batch      BatchConfig      `mapstructure:"batch" validate:"required"`
	Learning   LearningConfig   `mapstructure:"learning" validate:"required"`
	Prediction PredictionConfig `mapstructure:"prediction" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"omitempty,oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// An empty URL selects the in-memory stores.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// UsePostgres reports whether a database URL was configured.
func (c DatabaseConfig) UsePostgres() bool {
	return c.URL != ""
}

// AuthConfig contains reviewer authentication settings. An empty secret
// disables bearer-token verification.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// AuthEnabled reports whether reviewer tokens are required.
func (c AuthConfig) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// LLMConfig contains the vision service settings.
type LLMConfig struct {
	GeminiAPIKey   string        `mapstructure:"gemini_api_key"`
	ModelName      string        `mapstructure:"model_name" validate:"required"`
	Temperature    float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	// PromptTemplatePath overrides the built-in annotation prompt.
	PromptTemplatePath string `mapstructure:"prompt_template_path" validate:"omitempty,file"`
}

// RateLimitConfig configures the shared token bucket guarding the vision
// service. A refill of zero drains the bucket permanently.
type RateLimitConfig struct {
	Capacity        int           `mapstructure:"capacity" validate:"gt=0"`
	RefillPerMinute float64       `mapstructure:"refill_per_minute" validate:"gte=0"`
	AcquireTimeout  time.Duration `mapstructure:"acquire_timeout" validate:"gt=0"`
}

// RetryConfig configures exponential backoff for transient vision errors.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`
	BaseDelay  time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	MaxDelay   time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay"`
}

// BatchConfig configures job execution.
type BatchConfig struct {
	DefaultConcurrency int `mapstructure:"default_concurrency" validate:"gt=0"`
	MaxConcurrency     int `mapstructure:"max_concurrency" validate:"gtefield=DefaultConcurrency"`
}

// LearningConfig holds the pattern learner tunables.
type LearningConfig struct {
	MinSamples         int     `mapstructure:"min_samples" validate:"gt=0"`
	ApprovalIncrement  float64 `mapstructure:"approval_increment" validate:"gte=0,lte=1"`
	RejectionDecrement float64 `mapstructure:"rejection_decrement" validate:"gte=0,lte=1"`
	CorrectionWeight   float64 `mapstructure:"correction_weight" validate:"gt=0"`
	ObservationWeight  float64 `mapstructure:"observation_weight" validate:"gt=0"`
	InitialConfidence  float64 `mapstructure:"initial_confidence" validate:"gte=0,lte=1"`
}

// PredictionConfig holds the position predictor tunables.
type PredictionConfig struct {
	SuppressBelow float64       `mapstructure:"suppress_below" validate:"gte=0,lte=1"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
}
