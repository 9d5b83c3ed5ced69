package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/cwygoda/pagebrief/internal/adapter/firecrawl"
	"github.com/cwygoda/pagebrief/internal/domain"
	"github.com/cwygoda/pagebrief/internal/poller"
)

// Config holds application configuration.
type Config struct {
	APIKey    string    `toml:"api_key"`
	APIURL    string    `toml:"api_url"`
	Prompt    string    `toml:"prompt"`
	Port      int       `toml:"port"`
	LogLevel  string    `toml:"log_level"`
	LogFormat string    `toml:"log_format"`
	Poll      Poll      `toml:"poll"`
	RateLimit RateLimit `toml:"rate_limit"`
}

// Poll configures how extraction jobs are awaited.
type Poll struct {
	Interval       time.Duration `toml:"interval"`
	MaxAttempts    int           `toml:"max_attempts"`
	Timeout        time.Duration `toml:"timeout"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// RateLimit configures outbound and inbound request limits.
// Zero rates disable the corresponding limiter.
type RateLimit struct {
	OutboundRPS float64 `toml:"outbound_rps"`
	PerIPRPS    float64 `toml:"per_ip_rps"`
	Burst       int     `toml:"burst"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		APIURL:    firecrawl.DefaultBaseURL,
		Prompt:    firecrawl.DefaultPrompt,
		Port:      8080,
		LogLevel:  "info",
		LogFormat: "text",
		Poll: Poll{
			Interval:       poller.DefaultInterval,
			MaxAttempts:    poller.DefaultMaxAttempts,
			Timeout:        poller.DefaultTimeout,
			RequestTimeout: firecrawl.DefaultTimeout,
		},
		RateLimit: RateLimit{
			PerIPRPS: 1,
			Burst:    10,
		},
	}
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "pagebrief", "config.toml")
}

// Load builds a Config from defaults, the TOML file at path, a .env file in
// the working directory and the process environment, in increasing order of
// precedence. An empty path selects DefaultConfigPath and tolerates its
// absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	dotenv, err := godotenv.Read()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}
	lookup := func(key string) (string, bool) {
		if v := os.Getenv(key); v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("FIRECRAWL_API_KEY"); ok && v != "" {
		c.APIKey = strings.TrimSpace(v)
	}
	if v, ok := lookup("FIRECRAWL_API_URL"); ok && v != "" {
		c.APIURL = v
	}
	if v, ok := lookup("PAGEBRIEF_PORT"); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PAGEBRIEF_PORT %q is not a number", domain.ErrConfiguration, v)
		}
		c.Port = p
	}
	if v, ok := lookup("PAGEBRIEF_LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate reports the first setting that prevents the service from running.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: FIRECRAWL_API_KEY is not set", domain.ErrConfiguration)
	}
	if c.APIURL == "" {
		return fmt.Errorf("%w: api_url is empty", domain.ErrConfiguration)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", domain.ErrConfiguration, c.Port)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", domain.ErrConfiguration)
	}
	if c.Poll.MaxAttempts < 0 || c.Poll.Timeout < 0 || c.Poll.RequestTimeout < 0 {
		return fmt.Errorf("%w: poll limits must not be negative", domain.ErrConfiguration)
	}
	if c.RateLimit.OutboundRPS < 0 || c.RateLimit.PerIPRPS < 0 {
		return fmt.Errorf("%w: rate limits must not be negative", domain.ErrConfiguration)
	}
	if _, err := c.level(); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: log format %q is not text or json", domain.ErrConfiguration, c.LogFormat)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// NewLogger builds a logger writing to w at the configured level and format.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func (c *Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", domain.ErrConfiguration, c.LogLevel)
	}
	return level, nil
}
