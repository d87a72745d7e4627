// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Context ContextConfig `mapstructure:"context" yaml:"context"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMProvider identifies a completion backend implementation.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
)

// LLMConfig configures the completion service: one model per tier plus a
// global outbound rate limit shared by all callers.
type LLMConfig struct {
	FastModel       string                    `mapstructure:"fast_model" yaml:"fast_model"`
	PowerfulModel   string                    `mapstructure:"powerful_model" yaml:"powerful_model"`
	Models          map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
	RequestsPerSec  float64                   `mapstructure:"requests_per_sec" yaml:"requests_per_sec"`
	RequestBurst    int                       `mapstructure:"request_burst" yaml:"request_burst"`
	ParseTimeout    time.Duration             `mapstructure:"parse_timeout" yaml:"parse_timeout"`
	PlanTimeout     time.Duration             `mapstructure:"plan_timeout" yaml:"plan_timeout"`
	EvaluateTimeout time.Duration             `mapstructure:"evaluate_timeout" yaml:"evaluate_timeout"`
}

// LLMModelConfig defines the configuration for a single model endpoint.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// AgentConfig bounds the interleaved execution loop and the recovery engine.
type AgentConfig struct {
	MaxSteps          int           `mapstructure:"max_steps" yaml:"max_steps"`
	StepDelay         time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
	ExecTimeout       time.Duration `mapstructure:"exec_timeout" yaml:"exec_timeout"`
	PerErrorRetries   int           `mapstructure:"per_error_retries" yaml:"per_error_retries"`
	GlobalRetryBudget int           `mapstructure:"global_retry_budget" yaml:"global_retry_budget"`
	BackoffBase       time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`
}

// CacheConfig bounds the selector cache.
type CacheConfig struct {
	TTL               time.Duration `mapstructure:"ttl" yaml:"ttl"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	PrefetchThreshold int           `mapstructure:"prefetch_threshold" yaml:"prefetch_threshold"`
	MaxEntries        int           `mapstructure:"max_entries" yaml:"max_entries"`
}

// ContextConfig sets the complexity-tiered token budgets for the context
// compressor and its summarization thresholds.
type ContextConfig struct {
	TrivialBudget    int `mapstructure:"trivial_budget" yaml:"trivial_budget"`
	SimpleBudget     int `mapstructure:"simple_budget" yaml:"simple_budget"`
	ModerateBudget   int `mapstructure:"moderate_budget" yaml:"moderate_budget"`
	ComplexBudget    int `mapstructure:"complex_budget" yaml:"complex_budget"`
	ExpertBudget     int `mapstructure:"expert_budget" yaml:"expert_budget"`
	SummaryBatchSize int `mapstructure:"summary_batch_size" yaml:"summary_batch_size"`
	SessionFoldCount int `mapstructure:"session_fold_count" yaml:"session_fold_count"`
}

// BrowserConfig configures the chromedp-backed page adapters.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	ExecTimeout     time.Duration `mapstructure:"exec_timeout" yaml:"exec_timeout"`
	SnapshotTokens  int           `mapstructure:"snapshot_tokens" yaml:"snapshot_tokens"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.log_file", "webpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- LLM --
	v.SetDefault("llm.fast_model", "fast")
	v.SetDefault("llm.powerful_model", "powerful")
	v.SetDefault("llm.requests_per_sec", 2.0)
	v.SetDefault("llm.request_burst", 4)
	v.SetDefault("llm.parse_timeout", "12s")
	v.SetDefault("llm.plan_timeout", "15s")
	v.SetDefault("llm.evaluate_timeout", "12s")

	// -- Agent --
	v.SetDefault("agent.max_steps", 15)
	v.SetDefault("agent.step_delay", "300ms")
	v.SetDefault("agent.exec_timeout", "30s")
	v.SetDefault("agent.per_error_retries", 3)
	v.SetDefault("agent.global_retry_budget", 10)
	v.SetDefault("agent.backoff_base", "1s")
	v.SetDefault("agent.backoff_max", "30s")

	// -- Selector cache --
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.sweep_interval", "5m")
	v.SetDefault("cache.prefetch_threshold", 3)
	v.SetDefault("cache.max_entries", 2000)

	// -- Context compressor --
	v.SetDefault("context.trivial_budget", 500)
	v.SetDefault("context.simple_budget", 1000)
	v.SetDefault("context.moderate_budget", 2000)
	v.SetDefault("context.complex_budget", 4000)
	v.SetDefault("context.expert_budget", 8000)
	v.SetDefault("context.summary_batch_size", 10)
	v.SetDefault("context.session_fold_count", 5)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_timeout", "30s")
	v.SetDefault("browser.snapshot_tokens", 4000)
	v.SetDefault("browser.ignore_tls_errors", false)
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with pure defaults, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("llm.models.fast.api_key", "WEBPILOT_FAST_API_KEY")
	v.BindEnv("llm.models.powerful.api_key", "WEBPILOT_POWERFUL_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Unmarshal does not push BindEnv values through map-typed sections on
	// every viper version; pick the keys up directly as a backstop.
	for name, m := range cfg.LLM.Models {
		if m.APIKey == "" {
			if key := os.Getenv(fmt.Sprintf("WEBPILOT_%s_API_KEY", upperASCII(name))); key != "" {
				m.APIKey = key
				cfg.LLM.Models[name] = m
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func upperASCII(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.Agent.PerErrorRetries <= 0 || c.Agent.GlobalRetryBudget <= 0 {
		return fmt.Errorf("agent retry budgets must be positive")
	}
	if c.Agent.BackoffBase <= 0 || c.Agent.BackoffMax < c.Agent.BackoffBase {
		return fmt.Errorf("agent.backoff_max must be >= agent.backoff_base > 0")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be a positive duration")
	}
	if c.Context.TrivialBudget <= 0 || c.Context.ExpertBudget < c.Context.TrivialBudget {
		return fmt.Errorf("context budgets must be positive and ordered")
	}
	if c.LLM.RequestsPerSec <= 0 {
		return fmt.Errorf("llm.requests_per_sec must be positive")
	}
	return nil
}

// Budget returns the token budget for a named complexity tier. Unknown
// tiers fall back to the moderate budget.
func (c *ContextConfig) Budget(tier string) int {
	switch tier {
	case "trivial":
		return c.TrivialBudget
	case "simple":
		return c.SimpleBudget
	case "moderate":
		return c.ModerateBudget
	case "complex":
		return c.ComplexBudget
	case "expert":
		return c.ExpertBudget
	default:
		return c.ModerateBudget
	}
}
