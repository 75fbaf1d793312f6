package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the immutable process configuration. It is loaded once at startup
// and passed into component constructors; nothing reads configuration globally
// at runtime.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	SerpAPI  SerpAPIConfig  `mapstructure:"serpapi"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Database DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// SerpAPIConfig holds the search provider credential and outbound pacing.
type SerpAPIConfig struct {
	APIKey  string  `mapstructure:"api_key"`
	BaseURL string  `mapstructure:"base_url"`
	RPS     float64 `mapstructure:"rps"`
	Jitter  float64 `mapstructure:"jitter"`
}

// OpenAIConfig holds the language-model provider settings.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type FetchConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	Fingerprint   string        `mapstructure:"fingerprint"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	// ProxyFile lists proxy URLs, one per line. Empty means direct fetches.
	ProxyFile string `mapstructure:"proxy_file"`
}

type PipelineConfig struct {
	// Investigate enables the agent-tool investigation stage between ranking
	// analysis and the analysis role.
	Investigate bool `mapstructure:"investigate"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "postgres" or "sqlite"
	DSN    string `mapstructure:"dsn"`
}

// Load reads configuration from the given file (optional) and RANKPILOT_*
// environment variables, applying defaults for anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("logging.level", "info")
	v.SetDefault("serpapi.base_url", "https://serpapi.com/search.json")
	v.SetDefault("serpapi.rps", 0)
	v.SetDefault("serpapi.jitter", 0)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.fingerprint", "chrome")
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.proxy_file", "")
	v.SetDefault("pipeline.investigate", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:rankpilot.db")

	v.SetEnvPrefix("RANKPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
