// Package config loads the application settings that are ambient to every
// component (data directory, remote-client tunables, tick cadence). It does
// not load the operator policy — see internal/policy for that.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds the tunables that are not part of the operator-authored
// policy file.
type Config struct {
	DataDir string `json:"data_dir"`

	TickInterval     time.Duration `json:"-"`
	TickIntervalSecs int           `json:"tick_interval_seconds"`

	SelfHealInterval     time.Duration `json:"-"`
	SelfHealIntervalSecs int           `json:"self_heal_interval_seconds"`

	Remote RemoteConfig `json:"remote"`
}

// RemoteConfig tunes the NextDNS client (C2).
type RemoteConfig struct {
	BaseURL          string        `json:"base_url"`
	ProfileID        string        `json:"profile_id"`
	RequestTimeout   time.Duration `json:"-"`
	RequestTimeoutMS int           `json:"request_timeout_ms"`
	MaxRetries       int           `json:"max_retries"`
	CacheTTL         time.Duration `json:"-"`
	CacheTTLSecs     int           `json:"cache_ttl_seconds"`
	RateLimitReq     int           `json:"rate_limit_requests"`
	RateLimitWindow  time.Duration `json:"-"`
	RateLimitSecs    int           `json:"rate_limit_window_seconds"`
}

func defaults() *Config {
	c := &Config{
		DataDir:              defaultDataDir(),
		TickIntervalSecs:     120,
		SelfHealIntervalSecs: 300,
		Remote: RemoteConfig{
			BaseURL:          "https://api.nextdns.io",
			RequestTimeoutMS: 10_000,
			MaxRetries:       3,
			CacheTTLSecs:     60,
			RateLimitReq:     30,
			RateLimitSecs:    60,
		},
	}
	c.resolveDurations()
	return c
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".domainguard"
	}
	return filepath.Join(home, ".domainguard")
}

func (c *Config) resolveDurations() {
	c.TickInterval = time.Duration(c.TickIntervalSecs) * time.Second
	c.SelfHealInterval = time.Duration(c.SelfHealIntervalSecs) * time.Second
	c.Remote.RequestTimeout = time.Duration(c.Remote.RequestTimeoutMS) * time.Millisecond
	c.Remote.CacheTTL = time.Duration(c.Remote.CacheTTLSecs) * time.Second
	c.Remote.RateLimitWindow = time.Duration(c.Remote.RateLimitSecs) * time.Second
}

// Load reads path, falling back to defaults for any zero-valued field left
// unset by the file. A missing file is not an error — defaults are
// returned as-is, matching the teacher's config.Load tolerance for a
// not-yet-created settings file on first run.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var onDisk Config
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyOverride(cfg, &onDisk)
	cfg.resolveDurations()
	return cfg, nil
}

func applyOverride(base, override *Config) {
	if override.DataDir != "" {
		base.DataDir = override.DataDir
	}
	if override.TickIntervalSecs != 0 {
		base.TickIntervalSecs = override.TickIntervalSecs
	}
	if override.SelfHealIntervalSecs != 0 {
		base.SelfHealIntervalSecs = override.SelfHealIntervalSecs
	}
	r, or := &base.Remote, &override.Remote
	if or.BaseURL != "" {
		r.BaseURL = or.BaseURL
	}
	if or.ProfileID != "" {
		r.ProfileID = or.ProfileID
	}
	if or.RequestTimeoutMS != 0 {
		r.RequestTimeoutMS = or.RequestTimeoutMS
	}
	if or.MaxRetries != 0 {
		r.MaxRetries = or.MaxRetries
	}
	if or.CacheTTLSecs != 0 {
		r.CacheTTLSecs = or.CacheTTLSecs
	}
	if or.RateLimitReq != 0 {
		r.RateLimitReq = or.RateLimitReq
	}
	if or.RateLimitSecs != 0 {
		r.RateLimitSecs = or.RateLimitSecs
	}
}

// PolicyPath is the conventional location of the operator policy file
// within the data directory.
func (c *Config) PolicyPath() string { return filepath.Join(c.DataDir, "policy.json") }

// PendingPath is the pending-action store file.
func (c *Config) PendingPath() string { return filepath.Join(c.DataDir, "pending.json") }

// PausePath is the pause override marker file.
func (c *Config) PausePath() string { return filepath.Join(c.DataDir, ".paused") }

// PanicPath is the panic override marker file.
func (c *Config) PanicPath() string { return filepath.Join(c.DataDir, ".panic") }

// PinHashPath, PinSessionPath, and PinAttemptsPath are the PIN gate's state
// files.
func (c *Config) PinHashPath() string     { return filepath.Join(c.DataDir, ".pin_hash") }
func (c *Config) PinSessionPath() string  { return filepath.Join(c.DataDir, ".pin_session") }
func (c *Config) PinAttemptsPath() string { return filepath.Join(c.DataDir, ".pin_attempts") }

// UnlockRequestsPath is the locked-item unlock-request store.
func (c *Config) UnlockRequestsPath() string {
	return filepath.Join(c.DataDir, "unlock_requests.json")
}

// RunLockPath is the single-flight tick run-token.
func (c *Config) RunLockPath() string { return filepath.Join(c.DataDir, "run.lock") }

// AuditLogPath is the append-only audit log.
func (c *Config) AuditLogPath() string { return filepath.Join(c.DataDir, "logs", "audit.log") }

// WatchdogDisableMarkerPath is the timestamp marker `watchdog disable`
// writes. watchdog.Runner checks it before each in-process tick; the
// self-heal task and OS-scheduled `sync` runs do not read it.
func (c *Config) WatchdogDisableMarkerPath() string {
	return filepath.Join(c.DataDir, ".watchdog_disabled")
}
