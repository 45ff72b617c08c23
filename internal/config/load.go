package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, so server.port is
// read from ANNOTATOR_SERVER_PORT.
const EnvPrefix = "ANNOTATOR"

// setDefaults registers a default for every key. Viper only consults the
// environment for keys it knows about, so keys without a meaningful default
// are still registered with an empty value.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime", 24*time.Hour)

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.request_timeout", 60*time.Second)
	v.SetDefault("llm.prompt_template_path", "")

	v.SetDefault("rate_limit.capacity", 10)
	v.SetDefault("rate_limit.refill_per_minute", 60.0)
	v.SetDefault("rate_limit.acquire_timeout", 30*time.Second)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.max_delay", 30*time.Second)

	v.SetDefault("batch.default_concurrency", 4)
	v.SetDefault("batch.max_concurrency", 16)

	v.SetDefault("learning.min_samples", 3)
	v.SetDefault("learning.approval_increment", 0.05)
	v.SetDefault("learning.rejection_decrement", 0.10)
	v.SetDefault("learning.correction_weight", 1.5)
	v.SetDefault("learning.observation_weight", 1.0)
	v.SetDefault("learning.initial_confidence", 0.5)

	v.SetDefault("prediction.suppress_below", 0.2)
	v.SetDefault("prediction.cache_ttl", time.Minute)
}

// Load reads configuration from defaults, an optional config file and
// environment variables, in increasing order of precedence. When configFile
// is empty, config.yaml is looked up in the working directory and silently
// skipped if absent. The result is validated before it is returned.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tag constraints on cfg.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
