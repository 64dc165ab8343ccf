// Package config handles TOML-based configuration loading and validation.
// Values are merged as defaults < config file < environment; command-line
// flags are applied on top by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"

	"mediagrab/internal/httputil"
	"mediagrab/internal/quality"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MEDIAGRAB_"

// Config holds all application configuration.
type Config struct {
	DataDir  string `toml:"data_dir" env:"DATA_DIR"`
	Quality  string `toml:"quality" env:"QUALITY"`
	Identity string `toml:"identity" env:"IDENTITY"`
	Debug    bool   `toml:"debug" env:"DEBUG"`

	// NotifyWebhook receives finished results for requests that name a
	// target e-mail. Empty disables notifications.
	NotifyWebhook string `toml:"notify_webhook" env:"NOTIFY_WEBHOOK"`

	Tool      ToolConfig      `toml:"tool" envPrefix:"TOOL_"`
	Retention RetentionConfig `toml:"retention" envPrefix:"RETENTION_"`
	Quota     QuotaConfig     `toml:"quota" envPrefix:"QUOTA_"`
	Scrape    ScrapeConfig    `toml:"scrape" envPrefix:"SCRAPE_"`
	Fshare    FshareConfig    `toml:"fshare" envPrefix:"FSHARE_"`
}

// ToolConfig configures the yt-dlp invocation.
type ToolConfig struct {
	Binary        string        `toml:"binary" env:"BINARY"`
	Timeout       time.Duration `toml:"timeout" env:"TIMEOUT"`
	ProbeTimeout  time.Duration `toml:"probe_timeout" env:"PROBE_TIMEOUT"`
	ProbeCacheTTL time.Duration `toml:"probe_cache_ttl" env:"PROBE_CACHE_TTL"`
	AudioBitrates []string      `toml:"audio_bitrates" env:"AUDIO_BITRATES" envSeparator:","`
}

// RetentionConfig bounds how long artifacts and history entries live.
type RetentionConfig struct {
	MaxAge        time.Duration `toml:"max_age" env:"MAX_AGE"`
	SweepInterval time.Duration `toml:"sweep_interval" env:"SWEEP_INTERVAL"`
	MaxHistory    int           `toml:"max_history" env:"MAX_HISTORY"`
}

// QuotaConfig sets the default storage limit and the seeded admins.
type QuotaConfig struct {
	DefaultLimit int64    `toml:"default_limit" env:"DEFAULT_LIMIT"`
	Admins       []string `toml:"admins" env:"ADMINS" envSeparator:","`
}

// ScrapeConfig configures the HTTP-based fallback strategies.
type ScrapeConfig struct {
	Timeout         time.Duration `toml:"timeout" env:"TIMEOUT"`
	TransferTimeout time.Duration `toml:"transfer_timeout" env:"TRANSFER_TIMEOUT"`
	MaxBytes        int64         `toml:"max_bytes" env:"MAX_BYTES"`
	TikWM           string        `toml:"tikwm" env:"TIKWM"`
	Tiklydown       string        `toml:"tiklydown" env:"TIKLYDOWN"`
	Instagram       string        `toml:"instagram" env:"INSTAGRAM"`
	OGProxy         string        `toml:"og_proxy" env:"OG_PROXY"`
}

// FshareConfig holds the Fshare account. Credentials are usually supplied
// through the environment or a .env file rather than the config file.
type FshareConfig struct {
	BaseURL    string        `toml:"base_url" env:"BASE_URL"`
	Email      string        `toml:"email" env:"EMAIL"`
	Password   string        `toml:"password" env:"PASSWORD"`
	AppKey     string        `toml:"app_key" env:"APP_KEY"`
	UserAgent  string        `toml:"user_agent" env:"USER_AGENT"`
	SessionTTL time.Duration `toml:"session_ttl" env:"SESSION_TTL"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir:  defaultDataDir(),
		Quality:  quality.Default,
		Identity: "local",
		Tool: ToolConfig{
			Binary:        "yt-dlp",
			Timeout:       180 * time.Second,
			ProbeTimeout:  45 * time.Second,
			ProbeCacheTTL: 10 * time.Minute,
			AudioBitrates: []string{"320K", "128K"},
		},
		Retention: RetentionConfig{
			MaxAge:        7 * 24 * time.Hour,
			SweepInterval: 6 * time.Hour,
			MaxHistory:    100,
		},
		Quota: QuotaConfig{
			DefaultLimit: 5 << 30,
		},
		Scrape: ScrapeConfig{
			Timeout:         30 * time.Second,
			TransferTimeout: 180 * time.Second,
			MaxBytes:        2 << 30,
			TikWM:           "https://www.tikwm.com/api/",
			Tiklydown:       "https://api.tiklydown.eu.org/api/download",
			Instagram:       "https://www.instagram.com/p/%s/?__a=1&__d=dis",
		},
		Fshare: FshareConfig{
			BaseURL:    "https://api.fshare.vn",
			SessionTTL: 6 * time.Hour,
		},
	}
}

// defaultDataDir returns the XDG-compliant cache directory.
func defaultDataDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "mediagrab")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mediagrab")
	}
	return filepath.Join(home, ".cache", "mediagrab")
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mediagrab"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "mediagrab"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at path (the default location when empty),
// overlays MEDIAGRAB_* environment variables and validates the result.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		p, err := ConfigPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if q := strings.ToLower(strings.TrimSpace(c.Quality)); quality.Normalize(q) != q {
		return fmt.Errorf("unsupported quality %q (valid: default, highest, or a height such as 720p)", c.Quality)
	}
	if c.Identity == "" {
		return fmt.Errorf("identity cannot be empty")
	}

	if c.Tool.Binary == "" {
		return fmt.Errorf("tool.binary cannot be empty")
	}
	if c.Tool.Timeout <= 0 || c.Tool.ProbeTimeout <= 0 {
		return fmt.Errorf("tool timeouts must be positive")
	}
	if c.Tool.ProbeTimeout > c.Tool.Timeout {
		return fmt.Errorf("tool.probe_timeout (%s) exceeds tool.timeout (%s)", c.Tool.ProbeTimeout, c.Tool.Timeout)
	}
	if len(c.Tool.AudioBitrates) == 0 {
		return fmt.Errorf("tool.audio_bitrates needs at least one bitrate")
	}

	if c.Retention.MaxAge <= 0 || c.Retention.SweepInterval <= 0 {
		return fmt.Errorf("retention.max_age and retention.sweep_interval must be positive")
	}
	if c.Retention.MaxHistory < 1 {
		return fmt.Errorf("retention.max_history must be at least 1, got %d", c.Retention.MaxHistory)
	}

	if c.Quota.DefaultLimit < -1 || c.Quota.DefaultLimit == 0 {
		return fmt.Errorf("quota.default_limit must be positive or -1, got %d", c.Quota.DefaultLimit)
	}

	if c.Scrape.Timeout <= 0 || c.Scrape.TransferTimeout <= 0 {
		return fmt.Errorf("scrape timeouts must be positive")
	}
	if c.Scrape.MaxBytes <= 0 {
		return fmt.Errorf("scrape.max_bytes must be positive")
	}
	endpoints := map[string]string{
		"scrape.tikwm":     c.Scrape.TikWM,
		"scrape.tiklydown": c.Scrape.Tiklydown,
		"scrape.instagram": c.Scrape.Instagram,
		"fshare.base_url":  c.Fshare.BaseURL,
	}
	if c.Scrape.OGProxy != "" {
		endpoints["scrape.og_proxy"] = c.Scrape.OGProxy
	}
	if c.NotifyWebhook != "" {
		endpoints["notify_webhook"] = c.NotifyWebhook
	}
	for name, u := range endpoints {
		if err := httputil.ValidateURL(u); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if !strings.Contains(c.Scrape.Instagram, "%s") {
		return fmt.Errorf("scrape.instagram must contain %%s for the post shortcode")
	}

	return nil
}

// ExpandDataDir resolves ~ in the data directory path.
func (c *Config) ExpandDataDir() (string, error) {
	dir := c.DataDir
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return filepath.Abs(dir)
}
