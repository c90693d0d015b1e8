// Package config provides configuration loading, validation, and management
// for the playbook generation service. It handles YAML config files, env
// secret resolution, and model settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"messagecraft/pkg/logx"
)

// Supported LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Model name constants.
const (
	ModelClaudeSonnet = "claude-sonnet-4-5"
	ModelGPT4o        = "gpt-4o"
	ModelGeminiFlash  = "gemini-2.0-flash"
)

// Reflection defaults, overridable per request.
const (
	DefaultQualityThreshold    = 8.0
	DefaultMaxReflectionCycles = 3
)

// ModelCfg defines the configuration for an LLM model.
type ModelCfg struct {
	Provider       string  `yaml:"provider"`
	Name           string  `yaml:"name"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSec     int     `yaml:"timeout_sec"`
	CpmTokensIn    float64 `yaml:"cpm_tokens_in"`  // cost per million input tokens, USD
	CpmTokensOut   float64 `yaml:"cpm_tokens_out"` // cost per million output tokens, USD
	PromptBudget   int     `yaml:"prompt_budget"`  // max prompt tokens before truncation
	APIKeyEnv      string  `yaml:"api_key_env"`    // env var holding the API key
	OllamaHost     string  `yaml:"ollama_host,omitempty"`
	MaxRetries     int     `yaml:"max_retries"`
	RetryBackoffMS int     `yaml:"retry_backoff_ms"`
}

// ReflectionCfg holds defaults for the quality-gated reflection loop.
type ReflectionCfg struct {
	QualityThreshold float64 `yaml:"quality_threshold"`
	MaxCycles        int     `yaml:"max_cycles"`
}

// ServerCfg holds HTTP server settings.
type ServerCfg struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
}

// DatabaseCfg holds sqlite settings.
type DatabaseCfg struct {
	Path string `yaml:"path"`
}

// MetricsCfg holds the Prometheus query endpoint for usage reporting.
type MetricsCfg struct {
	PrometheusURL string `yaml:"prometheus_url"`
	QueryTimeout  int    `yaml:"query_timeout_sec"`
}

// CreditsCfg holds credit accounting settings.
type CreditsCfg struct {
	InitialBalance int `yaml:"initial_balance"` // credits granted on registration
}

// Config is the root configuration for the service.
type Config struct {
	Model      ModelCfg      `yaml:"model"`
	Fallback   *ModelCfg     `yaml:"fallback,omitempty"` // optional secondary model
	Reflection ReflectionCfg `yaml:"reflection"`
	Server     ServerCfg     `yaml:"server"`
	Database   DatabaseCfg   `yaml:"database"`
	Metrics    MetricsCfg    `yaml:"metrics"`
	Credits    CreditsCfg    `yaml:"credits"`
}

//nolint:gochecknoglobals // Intentional global singleton, guarded by mutex
var (
	config *Config
	mu     sync.RWMutex

	logger = logx.NewLogger("config")
)

// Timeout returns the per-request timeout for the model.
func (m *ModelCfg) Timeout() time.Duration {
	if m.TimeoutSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(m.TimeoutSec) * time.Second
}

// APIKey resolves the model's API key from the environment.
// Ollama needs no key and always resolves to "".
func (m *ModelCfg) APIKey() (string, error) {
	if m.Provider == ProviderOllama {
		return "", nil
	}
	if m.APIKeyEnv == "" {
		return "", fmt.Errorf("model %s: api_key_env not configured", m.Name)
	}
	key := os.Getenv(m.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("model %s: %s not set in environment", m.Name, m.APIKeyEnv)
	}
	return key, nil
}

// GetConfig returns the current global config BY VALUE (copy, not reference).
// This prevents external mutation. Must call LoadConfig first.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTesting sets the global config for testing purposes.
// Pass nil to reset.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
}

// LoadConfig loads configuration from the given YAML file into the global
// singleton, applying defaults for missing fields and validating the result.
//
// Behavior:
// - Missing file: creates a new config with defaults and saves it
// - Existing file: loads and validates, applying defaults for missing fields
// - Unparseable file: returns an error to avoid overwriting user changes
//
// This should typically be called once at application startup.
func LoadConfig(configPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		logger.Info("📝 Config file not found, creating new config at %s", configPath)
		config = createDefaultConfig()
		if err := validateConfig(config); err != nil {
			return fmt.Errorf("default config validation failed: %w", err)
		}
		if err := saveConfigLocked(configPath); err != nil {
			return fmt.Errorf("failed to save initial config: %w", err)
		}
		logger.Info("✅ New config file created and validated")
		return nil
	}

	logger.Info("📝 Loading config from %s", configPath)
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	loaded := createDefaultConfig()
	if err := yaml.Unmarshal(data, loaded); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	applyDefaults(loaded)
	if err := validateConfig(loaded); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	config = loaded
	logger.Info("✅ Config loaded: model=%s/%s threshold=%.1f max_cycles=%d",
		loaded.Model.Provider, loaded.Model.Name,
		loaded.Reflection.QualityThreshold, loaded.Reflection.MaxCycles)
	return nil
}

func saveConfigLocked(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil { //nolint:gosec // Config contains no secrets
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func createDefaultConfig() *Config {
	return &Config{
		Model: ModelCfg{
			Provider:       ProviderAnthropic,
			Name:           ModelClaudeSonnet,
			MaxTokens:      4096,
			Temperature:    0.7,
			TimeoutSec:     120,
			CpmTokensIn:    3.0,
			CpmTokensOut:   15.0,
			PromptBudget:   8000,
			APIKeyEnv:      "ANTHROPIC_API_KEY",
			MaxRetries:     3,
			RetryBackoffMS: 1000,
		},
		Reflection: ReflectionCfg{
			QualityThreshold: DefaultQualityThreshold,
			MaxCycles:        DefaultMaxReflectionCycles,
		},
		Server: ServerCfg{
			Addr:            ":8080",
			ShutdownTimeout: 15,
		},
		Database: DatabaseCfg{
			Path: "messagecraft.db",
		},
		Metrics: MetricsCfg{
			QueryTimeout: 10,
		},
		Credits: CreditsCfg{
			InitialBalance: 10,
		},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = 4096
	}
	if cfg.Model.TimeoutSec == 0 {
		cfg.Model.TimeoutSec = 120
	}
	if cfg.Model.PromptBudget == 0 {
		cfg.Model.PromptBudget = 8000
	}
	if cfg.Model.MaxRetries == 0 {
		cfg.Model.MaxRetries = 3
	}
	if cfg.Model.RetryBackoffMS == 0 {
		cfg.Model.RetryBackoffMS = 1000
	}
	if cfg.Reflection.QualityThreshold == 0 {
		cfg.Reflection.QualityThreshold = DefaultQualityThreshold
	}
	if cfg.Reflection.MaxCycles == 0 {
		cfg.Reflection.MaxCycles = DefaultMaxReflectionCycles
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "messagecraft.db"
	}
	if cfg.Metrics.QueryTimeout == 0 {
		cfg.Metrics.QueryTimeout = 10
	}
	if cfg.Credits.InitialBalance == 0 {
		cfg.Credits.InitialBalance = 10
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Model.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama:
	default:
		return fmt.Errorf("unknown provider: %s", cfg.Model.Provider)
	}
	if cfg.Model.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if cfg.Fallback != nil {
		switch cfg.Fallback.Provider {
		case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama:
		default:
			return fmt.Errorf("unknown fallback provider: %s", cfg.Fallback.Provider)
		}
	}
	if cfg.Reflection.QualityThreshold < 1 || cfg.Reflection.QualityThreshold > 10 {
		return fmt.Errorf("quality_threshold must be in [1, 10], got %.2f", cfg.Reflection.QualityThreshold)
	}
	if cfg.Reflection.MaxCycles < 0 {
		return fmt.Errorf("max_cycles must be >= 0, got %d", cfg.Reflection.MaxCycles)
	}
	return nil
}
