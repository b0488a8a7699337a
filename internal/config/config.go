package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Strava endpoints used when the config does not override them.
const (
	DefaultAPIBaseURL  = "https://www.strava.com/api/v3"
	DefaultAuthURL     = "https://www.strava.com/oauth/authorize"
	DefaultTokenURL    = "https://www.strava.com/oauth/token"
	DefaultRedirectURL = "http://localhost"
)

// Config holds application configuration.
type Config struct {
	// ExportDir is the directory track files are written to.
	// Empty means <base dir>/gpx (see ResolveExportDir).
	ExportDir string `json:"export_dir,omitempty"`

	// PageSize is the number of activities requested per listing page.
	PageSize int `json:"page_size"`

	// RequestTimeoutSeconds bounds every HTTP call to the activity source.
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`

	// LimitPer15Minutes and LimitPerDay pace API calls below the account's rate limits.
	// Windows are aligned to UTC, matching how Strava resets them.
	LimitPer15Minutes int `json:"limit_per_15_minutes"`
	LimitPerDay       int `json:"limit_per_day"`

	// ClientID and ClientSecret identify the registered API application.
	// When empty, the values saved by `stravagpx auth` are used.
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`

	APIBaseURL  string `json:"api_base_url,omitempty"`
	AuthURL     string `json:"auth_url,omitempty"`
	TokenURL    string `json:"token_url,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// LogFormat is "console" (human readable, stderr) or "json".
	LogFormat string `json:"log_format,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PageSize:              100,
		RequestTimeoutSeconds: 300,
		LimitPer15Minutes:     90,
		LimitPerDay:           900,
		APIBaseURL:            DefaultAPIBaseURL,
		AuthURL:               DefaultAuthURL,
		TokenURL:              DefaultTokenURL,
		RedirectURL:           DefaultRedirectURL,
		LogLevel:              "info",
		LogFormat:             "console",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.stravagpx.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithLocal loads configuration from both the global base dir and the nearest
// .stravagpx/config.json found walking upward from startDir.
// Local config takes precedence; either or both may be missing.
func LoadWithLocal(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	local, err := loadFileRaw(FindLocalConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), local), nil
}

// FindLocalConfig walks upward from startDir to find the nearest .stravagpx/config.json.
// Returns the path if found, or empty string if not found.
func FindLocalConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".stravagpx", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence when non-zero.
func Merge(base, overlay *Config) *Config {
	return &Config{
		ExportDir:             pickString(base.ExportDir, overlay.ExportDir),
		PageSize:              pickInt(base.PageSize, overlay.PageSize),
		RequestTimeoutSeconds: pickInt(base.RequestTimeoutSeconds, overlay.RequestTimeoutSeconds),
		LimitPer15Minutes:     pickInt(base.LimitPer15Minutes, overlay.LimitPer15Minutes),
		LimitPerDay:           pickInt(base.LimitPerDay, overlay.LimitPerDay),
		ClientID:              pickString(base.ClientID, overlay.ClientID),
		ClientSecret:          pickString(base.ClientSecret, overlay.ClientSecret),
		APIBaseURL:            pickString(base.APIBaseURL, overlay.APIBaseURL),
		AuthURL:               pickString(base.AuthURL, overlay.AuthURL),
		TokenURL:              pickString(base.TokenURL, overlay.TokenURL),
		RedirectURL:           pickString(base.RedirectURL, overlay.RedirectURL),
		LogLevel:              pickString(base.LogLevel, overlay.LogLevel),
		LogFormat:             pickString(base.LogFormat, overlay.LogFormat),
	}
}

// Validate checks that numeric limits are usable and enums are known.
func (c *Config) Validate() error {
	if c.PageSize <= 0 || c.PageSize > 200 {
		return fmt.Errorf("page_size must be between 1 and 200, got %d", c.PageSize)
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("request_timeout_seconds must be positive, got %d", c.RequestTimeoutSeconds)
	}
	if c.LimitPer15Minutes <= 0 || c.LimitPerDay <= 0 {
		return fmt.Errorf("rate limits must be positive, got %d/15m and %d/day", c.LimitPer15Minutes, c.LimitPerDay)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}

// RequestTimeout returns RequestTimeoutSeconds as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ResolveExportDir returns ExportDir, defaulting to baseDir/gpx.
func (c *Config) ResolveExportDir(baseDir string) string {
	if c.ExportDir == "" {
		return filepath.Join(baseDir, "gpx")
	}
	return c.ExportDir
}

func pickString(base, overlay string) string {
	if s := strings.TrimSpace(overlay); s != "" {
		return s
	}
	return base
}

func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}
