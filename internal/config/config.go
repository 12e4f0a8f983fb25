// Package config loads application configuration from a YAML file, the
// environment, and .env files, in the usual viper precedence order.
// Provider credentials live here and are injected into the pipeline at
// construction; no component reads the environment on its own.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App     App     `mapstructure:"app"`
	AI      AI      `mapstructure:"ai"`
	Extract Extract `mapstructure:"extract"`
	Resolve Resolve `mapstructure:"resolve"`
	Cluster Cluster `mapstructure:"cluster"`
	Retry   Retry   `mapstructure:"retry"`
}

// App holds general application configuration.
type App struct {
	DataDir    string `mapstructure:"data_dir"`
	LogLevel   string `mapstructure:"log_level"`
	PrettyLogs bool   `mapstructure:"pretty_logs"`
}

// AI holds provider configuration. Order ranks the fallback chain; entries
// without credentials are skipped at construction time.
type AI struct {
	Order       []string     `mapstructure:"order"`
	CallTimeout string       `mapstructure:"call_timeout"`
	OpenAI      OpenAIConfig `mapstructure:"openai"`
	Gemini      GeminiConfig `mapstructure:"gemini"`
	Ollama      OllamaConfig `mapstructure:"ollama"`
}

// OpenAIConfig holds configuration for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// GeminiConfig holds Gemini REST configuration.
type GeminiConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// OllamaConfig holds local Ollama configuration.
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// Extract holds content extraction configuration.
type Extract struct {
	ReaderBaseURL string  `mapstructure:"reader_base_url"`
	QualityFloor  float64 `mapstructure:"quality_floor"`
	Timeout       string  `mapstructure:"timeout"`
}

// Resolve holds URL resolution configuration.
type Resolve struct {
	AggregatorHost string `mapstructure:"aggregator_host"`
}

// Cluster holds duplicate-clustering thresholds.
type Cluster struct {
	TitleThreshold     float64 `mapstructure:"title_threshold"`
	URLThreshold       float64 `mapstructure:"url_threshold"`
	RequireBothSimilar bool    `mapstructure:"require_both_similar"`
}

// Retry holds backoff configuration for network stages.
type Retry struct {
	MaxAttempts  int    `mapstructure:"max_attempts"`
	InitialDelay string `mapstructure:"initial_delay"`
}

// Load reads configuration. cfgFile, when non-empty, points at an explicit
// config file; otherwise curator.yaml is searched in the working directory
// and $HOME/.curator. A missing config file is not an error; defaults and
// environment variables still apply.
func Load(cfgFile string) (*Config, error) {
	// .env files are a convenience for local development; absence is fine.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("curator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".curator"))
		}
	}

	v.SetEnvPrefix("CURATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bare provider keys in the environment beat empty config values, so a
	// .env with OPENAI_API_KEY / GEMINI_API_KEY just works.
	if v.GetString("ai.openai.api_key") == "" {
		v.Set("ai.openai.api_key", os.Getenv("OPENAI_API_KEY"))
	}
	if v.GetString("ai.gemini.api_key") == "" {
		v.Set("ai.gemini.api_key", os.Getenv("GEMINI_API_KEY"))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.data_dir", ".curator")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.pretty_logs", false)

	v.SetDefault("ai.order", []string{"openai", "gemini", "ollama"})
	v.SetDefault("ai.call_timeout", "45s")
	v.SetDefault("ai.openai.model", "gpt-4o-mini")
	v.SetDefault("ai.openai.base_url", "https://api.openai.com")
	v.SetDefault("ai.gemini.model", "gemini-flash-lite-latest")
	v.SetDefault("ai.ollama.base_url", "http://localhost:11434")
	v.SetDefault("ai.ollama.model", "llama3.2:3b")

	v.SetDefault("extract.reader_base_url", "https://r.jina.ai")
	v.SetDefault("extract.quality_floor", 0.3)
	v.SetDefault("extract.timeout", "30s")

	v.SetDefault("resolve.aggregator_host", "news.google.com")

	v.SetDefault("cluster.title_threshold", 0.7)
	v.SetDefault("cluster.url_threshold", 0.8)
	v.SetDefault("cluster.require_both_similar", false)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", "1s")
}

// Duration parses s, returning fallback for empty or malformed values.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
