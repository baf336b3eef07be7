package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pagemark/pagemark/internal/note"
)

// DefaultSyncInterval is the fixed reconciliation period. Failures are
// retried on the next tick with no additional backoff.
const DefaultSyncInterval = 5 * time.Minute

// Config holds application configuration.
type Config struct {
	// Tier is the account tier gating retention limits: "free" or "premium"
	Tier string `json:"tier"`

	// SyncIntervalMinutes is the periodic sync interval. 0 means the default
	// (5 minutes).
	SyncIntervalMinutes int `json:"sync_interval_minutes,omitempty"`

	// RemoteURL is the base URL of the remote store. Empty disables sync.
	RemoteURL string `json:"remote_url,omitempty"`

	// UserID identifies the account on the remote store.
	UserID string `json:"user_id,omitempty"`

	// LogLevel is the logrus level name ("debug", "info", "warn", "error").
	LogLevel string `json:"log_level,omitempty"`

	// AllowedPaths is an allowlist of directories for import/export outside
	// baseDir/exports. Paths should be absolute.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits open database connections. 0 means sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits idle database connections. 0 means sql.DB default.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Tier:     string(note.TierFree),
		LogLevel: "info",
	}
}

// Load loads configuration from baseDir/config.json, applies defaults, and
// then applies environment overrides (a .env file is honored if present).
// Credentials (auth token, passphrase) are read from the environment by the
// callers that need them and never live in the config file.
func Load(baseDir string) (*Config, error) {
	fileCfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	cfg := Merge(DefaultConfig(), fileCfg)
	applyEnv(cfg)
	return cfg, nil
}

// SyncInterval returns the effective periodic sync interval.
func (c *Config) SyncInterval() time.Duration {
	if c.SyncIntervalMinutes > 0 {
		return time.Duration(c.SyncIntervalMinutes) * time.Minute
	}
	return DefaultSyncInterval
}

// TierLimits returns the retention limits for the configured tier.
func (c *Config) TierLimits() note.TierLimits {
	return note.LimitsFor(note.Tier(c.Tier))
}

// SyncConfigured reports whether enough remote settings exist to sync.
func (c *Config) SyncConfigured() bool {
	return c.RemoteURL != "" && c.UserID != ""
}

// applyEnv overrides config values from the environment.
func applyEnv(cfg *Config) {
	godotenv.Load()

	if v := os.Getenv("PAGEMARK_REMOTE_URL"); v != "" {
		cfg.RemoteURL = v
	}
	if v := os.Getenv("PAGEMARK_USER_ID"); v != "" {
		cfg.UserID = v
	}
	if v := os.Getenv("PAGEMARK_TIER"); v != "" {
		cfg.Tier = v
	}
	if v := os.Getenv("PAGEMARK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.Tier = overlay.Tier
	if result.Tier == "" {
		result.Tier = base.Tier
	}

	result.SyncIntervalMinutes = overlay.SyncIntervalMinutes
	if result.SyncIntervalMinutes == 0 {
		result.SyncIntervalMinutes = base.SyncIntervalMinutes
	}

	result.RemoteURL = overlay.RemoteURL
	if result.RemoteURL == "" {
		result.RemoteURL = base.RemoteURL
	}

	result.UserID = overlay.UserID
	if result.UserID == "" {
		result.UserID = base.UserID
	}

	result.LogLevel = overlay.LogLevel
	if result.LogLevel == "" {
		result.LogLevel = base.LogLevel
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
