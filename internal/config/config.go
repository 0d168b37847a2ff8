package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/ai"
)

// EnvPrefix namespaces environment overrides, e.g. RISKMETRICS_MODEL.
const EnvPrefix = "RISKMETRICS"

// Global configuration structure.
type Global struct {
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	Model       string  `mapstructure:"model" yaml:"model"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`

	// Insight dispatch
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	MaxAttempts    int `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelayMs   int `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms"`
	HTTPTimeoutSec int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`

	// Local runtimes (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`

	OutputDir  string `mapstructure:"output_dir" yaml:"output_dir"`
	LogDir     string `mapstructure:"log_dir" yaml:"log_dir"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// Analysis defaults; callers may override per run.
	AdaptiveScaling            bool     `mapstructure:"adaptive_scaling" yaml:"adaptive_scaling"`
	UseLLM                     bool     `mapstructure:"use_llm" yaml:"use_llm"`
	FilterMetricsWithoutLimits bool     `mapstructure:"filter_metrics_without_limits" yaml:"filter_metrics_without_limits"`
	PriorityMetrics            []string `mapstructure:"priority_metrics" yaml:"priority_metrics"`
}

// RetryDelay returns RetryDelayMs as a duration.
func (c *Global) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// HTTPTimeout returns the provider client timeout; zero means the client default.
func (c *Global) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// Validate rejects settings the application cannot run with.
func (c *Global) Validate() error {
	if _, ok := ai.GetRuntime(c.Provider, ai.RuntimeConfig{}); !ok {
		return fmt.Errorf("unknown provider %q (want one of %s)", c.Provider, strings.Join(ai.Providers(), ", "))
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.RetryDelayMs < 0 || c.HTTPTimeoutSec < 0 {
		return fmt.Errorf("retry_delay_ms and http_timeout_sec must not be negative")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2]")
	}
	return nil
}

// DefaultPath is ~/.riskmetrics/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".riskmetrics", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to DefaultPath, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadDotEnv loads .env from the working directory when present. Existing
// environment variables win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. The API key also falls back to
// GEMINI_API_KEY / GOOGLE_API_KEY / OPENROUTER_API_KEY by provider.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("api_key", "")
	v.SetDefault("provider", ai.ProviderGemini)
	v.SetDefault("model", ai.DefaultModel)
	v.SetDefault("temperature", ai.DefaultTemperature)
	v.SetDefault("max_concurrency", 4)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("retry_delay_ms", 2000)
	v.SetDefault("http_timeout_sec", 0)
	v.SetDefault("ollama_host", ai.DefaultOllamaHost)
	v.SetDefault("output_dir", "Output")
	v.SetDefault("log_dir", "logs")
	v.SetDefault("listen_addr", "127.0.0.1:8501")
	v.SetDefault("adaptive_scaling", true)
	v.SetDefault("use_llm", true)
	v.SetDefault("filter_metrics_without_limits", false)
	v.SetDefault("priority_metrics", []string{"VaR", "SVaR", "STTHH"})

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// A missing file is fine; `config set` creates it. A broken one is not.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Provider = strings.ToLower(c.Provider)
	if c.APIKey == "" {
		c.APIKey = keyFromEnv(c.Provider)
	}
	return &c, nil
}

func keyFromEnv(provider string) string {
	var names []string
	switch provider {
	case ai.ProviderGemini:
		names = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case ai.ProviderOpenRouter:
		names = []string{"OPENROUTER_API_KEY"}
	}
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// Set assigns one key from its string form, as used by `config set`.
func (c *Global) Set(key, value string) error {
	v := viper.New()
	v.Set(key, value)
	switch key {
	case "api_key":
		c.APIKey = value
	case "provider":
		c.Provider = strings.ToLower(value)
	case "model":
		c.Model = value
	case "temperature":
		c.Temperature = v.GetFloat64(key)
	case "max_concurrency":
		c.MaxConcurrency = v.GetInt(key)
	case "max_attempts":
		c.MaxAttempts = v.GetInt(key)
	case "retry_delay_ms":
		c.RetryDelayMs = v.GetInt(key)
	case "http_timeout_sec":
		c.HTTPTimeoutSec = v.GetInt(key)
	case "ollama_host":
		c.OllamaHost = value
	case "output_dir":
		c.OutputDir = value
	case "log_dir":
		c.LogDir = value
	case "listen_addr":
		c.ListenAddr = value
	case "adaptive_scaling":
		c.AdaptiveScaling = v.GetBool(key)
	case "use_llm":
		c.UseLLM = v.GetBool(key)
	case "filter_metrics_without_limits":
		c.FilterMetricsWithoutLimits = v.GetBool(key)
	case "priority_metrics":
		c.PriorityMetrics = splitList(value)
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return c.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MaskedKey shows only the last four characters of the API key.
func (c *Global) MaskedKey() string {
	if len(c.APIKey) <= 4 {
		return strings.Repeat("*", len(c.APIKey))
	}
	return strings.Repeat("*", len(c.APIKey)-4) + c.APIKey[len(c.APIKey)-4:]
}
