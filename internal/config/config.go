package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	// Assistant
	APIKey           string  `mapstructure:"api_key" yaml:"api_key"`
	Provider         string  `mapstructure:"provider" yaml:"provider"`
	Model            string  `mapstructure:"model" yaml:"model"`
	BaseURL          string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Temperature      float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens        int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	PromptTokenLimit int     `mapstructure:"prompt_token_limit" yaml:"prompt_token_limit"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`

	// Clustering
	MaxK            int     `mapstructure:"max_k" yaml:"max_k"`
	Seed            int64   `mapstructure:"seed" yaml:"seed"`
	NInit           int     `mapstructure:"n_init" yaml:"n_init"`
	MaxIter         int     `mapstructure:"max_iter" yaml:"max_iter"`
	Tolerance       float64 `mapstructure:"tolerance" yaml:"tolerance"`
	FallbackK       int     `mapstructure:"fallback_k" yaml:"fallback_k"`
	KneeSensitivity float64 `mapstructure:"knee_sensitivity" yaml:"knee_sensitivity"`
	CacheSize       int     `mapstructure:"cache_size" yaml:"cache_size"`
	ChartBins       int     `mapstructure:"chart_bins" yaml:"chart_bins"`

	// Server and logging
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	LogFormat  string `mapstructure:"log_format" yaml:"log_format"`
}

var defaults = map[string]any{
	"provider":            "groq",
	"model":               "openai/gpt-oss-120b",
	"temperature":         1.0,
	"max_tokens":          0,
	"prompt_token_limit":  0,
	"http_timeout_sec":    60,
	"retry_max_attempts":  1,
	"retry_base_delay_ms": 500,
	"retry_max_delay_ms":  4000,
	"ollama_host":         "http://127.0.0.1:11434",
	"max_k":               10,
	"seed":                42,
	"n_init":              10,
	"max_iter":            300,
	"tolerance":           1e-4,
	"fallback_k":          0,
	"knee_sensitivity":    1.0,
	"cache_size":          16,
	"chart_bins":          15,
	"listen_addr":         "127.0.0.1:8080",
	"log_format":          "text",
}

// Keys lists every configuration key in sorted order.
func Keys() []string {
	out := make([]string, 0, len(defaults)+2)
	for k := range defaults {
		out = append(out, k)
	}
	out = append(out, "api_key", "base_url")
	sort.Strings(out)
	return out
}

// Dir returns ~/.clusterlens.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".clusterlens"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.clusterlens/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	// api keys live here, keep it private
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. OPENAI_API_KEY is accepted
// when CLUSTERLENS_API_KEY is unset.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("CLUSTERLENS")
	v.AutomaticEnv()
	if err := v.BindEnv("api_key", "CLUSTERLENS_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}
	_ = v.BindEnv("base_url")

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		// an explicit --config must exist; the default file is optional
		if cfgFile != "" || !errors.As(err, &nf) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Set parses value for key and stores it on c.
func (c *Global) Set(key, value string) error {
	var err error
	switch strings.ToLower(key) {
	case "api_key":
		c.APIKey = value
	case "provider":
		c.Provider = strings.ToLower(value)
	case "model":
		c.Model = value
	case "base_url":
		c.BaseURL = value
	case "temperature":
		c.Temperature, err = cast.ToFloat64E(value)
	case "max_tokens":
		c.MaxTokens, err = cast.ToIntE(value)
	case "prompt_token_limit":
		c.PromptTokenLimit, err = cast.ToIntE(value)
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = cast.ToIntE(value)
	case "retry_max_attempts":
		c.RetryMaxAttempts, err = cast.ToIntE(value)
	case "retry_base_delay_ms":
		c.RetryBaseDelayMs, err = cast.ToIntE(value)
	case "retry_max_delay_ms":
		c.RetryMaxDelayMs, err = cast.ToIntE(value)
	case "ollama_host":
		c.OllamaHost = value
	case "max_k":
		c.MaxK, err = cast.ToIntE(value)
	case "seed":
		c.Seed, err = cast.ToInt64E(value)
	case "n_init":
		c.NInit, err = cast.ToIntE(value)
	case "max_iter":
		c.MaxIter, err = cast.ToIntE(value)
	case "tolerance":
		c.Tolerance, err = cast.ToFloat64E(value)
	case "fallback_k":
		c.FallbackK, err = cast.ToIntE(value)
	case "knee_sensitivity":
		c.KneeSensitivity, err = cast.ToFloat64E(value)
	case "cache_size":
		c.CacheSize, err = cast.ToIntE(value)
	case "chart_bins":
		c.ChartBins, err = cast.ToIntE(value)
	case "listen_addr":
		c.ListenAddr = value
	case "log_format":
		switch value {
		case "text", "json":
			c.LogFormat = value
		default:
			return fmt.Errorf("log_format must be text or json, got %q", value)
		}
	default:
		return fmt.Errorf("unknown key: %s (known: %s)", key, strings.Join(Keys(), ", "))
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

// HTTPTimeout returns the configured request timeout.
func (c *Global) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// RetryDelays returns the base and max backoff delays.
func (c *Global) RetryDelays() (time.Duration, time.Duration) {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond, time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

// Redacted returns a copy with the API key masked for display.
func (c *Global) Redacted() Global {
	out := *c
	if n := len(out.APIKey); n > 0 {
		if n > 4 {
			out.APIKey = strings.Repeat("*", n-4) + out.APIKey[n-4:]
		} else {
			out.APIKey = "****"
		}
	}
	return out
}
