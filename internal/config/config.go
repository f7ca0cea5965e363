package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources  Sources  `yaml:"sources"`
	Curation Curation `yaml:"curation"`
	Ingest   Ingest   `yaml:"ingest"`
	Output   Output   `yaml:"output"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
}

type Sources struct {
	Feeds []Feed `yaml:"feeds"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// Curation configures the LLM that rewrites, rates and categorises
// ingested articles.
type Curation struct {
	Provider    string        `yaml:"provider" env:"NEWSAI_LLM_PROVIDER"`
	Model       string        `yaml:"model"`
	OllamaURL   string        `yaml:"ollama_url" env:"NEWSAI_OLLAMA_URL"`
	OpenAIModel string        `yaml:"openai_model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	MaxTokens   int           `yaml:"max_tokens"`
	MaxAge      time.Duration `yaml:"max_age"`

	// RequestsPerMinute caps LLM calls across workers; 0 means unlimited.
	RequestsPerMinute int `yaml:"requests_per_minute" env:"NEWSAI_LLM_RPM"`
}

type Ingest struct {
	// Schedule is a cron spec; empty disables scheduled ingestion in serve.
	Schedule     string `yaml:"schedule" env:"NEWSAI_INGEST_SCHEDULE"`
	Workers      int    `yaml:"workers"`
	PerFeedLimit int    `yaml:"per_feed_limit"`
}

type Output struct {
	DataDir string `yaml:"data_dir" env:"NEWSAI_DATA_DIR"`
}

type Server struct {
	Port              int           `yaml:"port" env:"NEWSAI_PORT"`
	SessionSecret     string        `yaml:"session_secret" env:"NEWSAI_SESSION_SECRET"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	SecureCookies     bool          `yaml:"secure_cookies" env:"NEWSAI_SECURE_COOKIES"`
	AuthRatePerMinute int           `yaml:"auth_rate_per_minute"`
}

type Logging struct {
	Level string `yaml:"level" env:"NEWSAI_LOG_LEVEL"`
}

// ConfigDir returns the XDG config directory for newsai.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "newsai")
}

// DataDir returns the XDG data directory for newsai.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "newsai")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/newsai/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'newsai init' to create a default config",
		xdgConfig,
	)
}

// Load reads a config YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Curation: Curation{
			Provider:    "ollama",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   1024,
			MaxAge:      24 * time.Hour,
		},
		Ingest: Ingest{
			Workers:      4,
			PerFeedLimit: 20,
		},
		Server: Server{
			Port:              8000,
			SessionTTL:        30 * 24 * time.Hour,
			AuthRatePerMinute: 20,
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides file values with NEWSAI_* variables that are set.
func applyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	return nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Curation.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown curation provider %q (want ollama or openai)", c.Curation.Provider)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.SessionTTL <= 0 {
		return fmt.Errorf("server.session_ttl must be positive")
	}
	if c.Curation.RequestsPerMinute < 0 {
		return fmt.Errorf("curation.requests_per_minute must not be negative")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses logging.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.Logging.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid logging.level %q: %w", c.Logging.Level, err)
	}
	return lvl, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the SQLite database location inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "newsai.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
