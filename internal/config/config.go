// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	Scoring  ScoringConfig  `mapstructure:"scoring" yaml:"scoring"`
	Semantic SemanticConfig `mapstructure:"semantic" yaml:"semantic"`
	Gateway  GatewayConfig  `mapstructure:"gateway" yaml:"gateway"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Patterns PatternConfig  `mapstructure:"patterns" yaml:"patterns"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// ScoreThresholds drive the confidence-based routing decision. This is the
// primary cost-control mechanism: the LLM is only consulted below the
// try-multiple band.
type ScoreThresholds struct {
	// Direct accepts the top match outright.
	Direct float64 `mapstructure:"direct" yaml:"direct"`
	// TryMultiple submits the top two matches for live validation.
	TryMultiple float64 `mapstructure:"try_multiple" yaml:"try_multiple"`
	// LLMFallback is the floor below which escalation is unconditional.
	LLMFallback float64 `mapstructure:"llm_fallback" yaml:"llm_fallback"`
}

// Weights scale the individual scoring signals. Each term is capped before
// weighting; negative signals are summed then clamped.
type Weights struct {
	RoleMatch         float64 `mapstructure:"role_match" yaml:"role_match"`
	LabelSimilarity   float64 `mapstructure:"label_similarity" yaml:"label_similarity"`
	I18nNormalization float64 `mapstructure:"i18n_normalization" yaml:"i18n_normalization"`
	StableAttributes  float64 `mapstructure:"stable_attributes" yaml:"stable_attributes"`
	ContextBoost      float64 `mapstructure:"context_boost" yaml:"context_boost"`
	NegativeSignals   float64 `mapstructure:"negative_signals" yaml:"negative_signals"`
}

// ScoringConfig bundles thresholds, weights, and the synonym table.
type ScoringConfig struct {
	Thresholds ScoreThresholds     `mapstructure:"thresholds" yaml:"thresholds"`
	Weights    Weights             `mapstructure:"weights" yaml:"weights"`
	Synonyms   map[string][]string `mapstructure:"synonyms" yaml:"synonyms"`
}

// ResolverConfig tunes the orchestrator's escalation loop.
type ResolverConfig struct {
	// MaxExtraAttempts bounds escalation retries beyond the first attempt.
	MaxExtraAttempts int           `mapstructure:"max_extra_attempts" yaml:"max_extra_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	// EscalationCandidates caps how many heuristic candidates travel with
	// an escalation request as context.
	EscalationCandidates int           `mapstructure:"escalation_candidates" yaml:"escalation_candidates"`
	ValidationTimeout    time.Duration `mapstructure:"validation_timeout" yaml:"validation_timeout"`
}

// SemanticConfig controls the optional embedding retrieval layer.
type SemanticConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Model is the embedding model identifier.
	Model  string `mapstructure:"model" yaml:"model"`
	APIKey string `mapstructure:"api_key" yaml:"-"`
	// BatchSize caps texts per provider call; BatchConcurrency caps
	// in-flight batches.
	BatchSize        int     `mapstructure:"batch_size" yaml:"batch_size"`
	BatchConcurrency int     `mapstructure:"batch_concurrency" yaml:"batch_concurrency"`
	RequestsPerSec   float64 `mapstructure:"requests_per_sec" yaml:"requests_per_sec"`
	// CachedFingerprints bounds how many screen indexes stay resident.
	CachedFingerprints int `mapstructure:"cached_fingerprints" yaml:"cached_fingerprints"`
	MaxResults         int `mapstructure:"max_results" yaml:"max_results"`
}

// GatewayConfig configures the disambiguation provider client.
type GatewayConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// StoreConfig locates the persisted selector heuristics file.
type StoreConfig struct {
	// Path is the selector store file. "~" expands to the home directory.
	Path string `mapstructure:"path" yaml:"path"`
	// MaxLearned caps the learned selector list; oldest entries are
	// evicted first.
	MaxLearned int `mapstructure:"max_learned" yaml:"max_learned"`
}

// BrowserConfig holds settings for the headless browser adapter.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	EvaluateTimeout   time.Duration `mapstructure:"evaluate_timeout" yaml:"evaluate_timeout"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// PatternConfig holds the DOM query patterns used by the graph builder.
// Every field has a compiled-in default so a partial file still works.
type PatternConfig struct {
	ButtonTexts            []string `mapstructure:"button_texts" yaml:"button_texts"`
	InteractiveButtonQuery string   `mapstructure:"interactive_button_query" yaml:"interactive_button_query"`
	InteractiveInputQuery  string   `mapstructure:"interactive_input_query" yaml:"interactive_input_query"`
	NavigationContainers   []string `mapstructure:"navigation_containers" yaml:"navigation_containers"`
	ModalSelectors         []string `mapstructure:"modal_selectors" yaml:"modal_selectors"`
	LandmarkQuery          string   `mapstructure:"landmark_query" yaml:"landmark_query"`
}

// NewDefaultConfig creates a new configuration struct populated with
// default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with compiled-in defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("gateway.api_key", "LOCUS_GATEWAY_API_KEY")
	v.BindEnv("semantic.api_key", "LOCUS_EMBEDDING_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in file paths to the user's home directory.
func (c *Config) expandPaths() error {
	for name, path := range map[string]*string{
		"store.path":      &c.Store.Path,
		"logger.log_file": &c.Logger.LogFile,
	} {
		if *path == "" {
			continue
		}
		expanded, err := homedir.Expand(*path)
		if err != nil {
			return fmt.Errorf("failed to expand %s: %w", name, err)
		}
		*path = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	t := c.Scoring.Thresholds
	if t.Direct < t.TryMultiple {
		return fmt.Errorf("scoring.thresholds.direct (%.2f) must be >= try_multiple (%.2f)", t.Direct, t.TryMultiple)
	}
	if t.Direct > 1.0 || t.TryMultiple < 0 {
		return fmt.Errorf("scoring thresholds must lie in [0,1]")
	}
	w := c.Scoring.Weights
	for name, val := range map[string]float64{
		"role_match":         w.RoleMatch,
		"label_similarity":   w.LabelSimilarity,
		"i18n_normalization": w.I18nNormalization,
		"stable_attributes":  w.StableAttributes,
		"context_boost":      w.ContextBoost,
	} {
		if val < 0 || val > 1 {
			return fmt.Errorf("scoring.weights.%s must lie in [0,1]", name)
		}
	}
	if c.Resolver.MaxExtraAttempts < 0 {
		return fmt.Errorf("resolver.max_extra_attempts must not be negative")
	}
	if c.Semantic.Enabled {
		if c.Semantic.BatchSize <= 0 || c.Semantic.BatchConcurrency <= 0 {
			return fmt.Errorf("semantic.batch_size and semantic.batch_concurrency must be positive")
		}
	}
	if c.Store.MaxLearned <= 0 {
		return fmt.Errorf("store.max_learned must be positive")
	}
	return nil
}
