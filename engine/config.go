package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/boostme/boostme/notify"
)

// Config is the engine's YAML configuration.
type Config struct {
	// DBPath is the SQLite file holding catalog, settings and the
	// delivery trail.
	DBPath string `yaml:"db_path"`
	// CatalogURL is the remote quote service base URL. Empty disables sync.
	CatalogURL string `yaml:"catalog_url"`
	// MirrorURL is the relay base URL for settings mirroring. Empty
	// disables mirroring.
	MirrorURL string `yaml:"mirror_url"`
	// AllowPrivateHosts permits loopback/private catalog and mirror URLs.
	AllowPrivateHosts bool `yaml:"allow_private_hosts"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sync      SyncConfig      `yaml:"sync"`
	Ranking   RankingConfig   `yaml:"ranking"`

	// Sinks are the notification display surfaces. An empty list falls
	// back to the structured log.
	Sinks []notify.WebhookConfig `yaml:"sinks"`
}

// SchedulerConfig tunes the notification timer. Durations are written in
// Go duration syntax ("15s", "20m").
type SchedulerConfig struct {
	// StartDelay is the first-fire delay after Start or Boost.
	StartDelay time.Duration `yaml:"-"`
	// Volatility is the maximum jitter magnitude applied to each interval.
	Volatility time.Duration `yaml:"-"`
	// ActiveHours is the span of a notification day; the nominal interval
	// is ActiveHours divided by the daily quota.
	ActiveHours float64 `yaml:"active_hours"`
	// MinInterval is the floor after jitter.
	MinInterval time.Duration `yaml:"-"`
}

// UnmarshalYAML parses duration fields, keeping prior values when a field
// is omitted so file values overlay the defaults.
func (c *SchedulerConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		StartDelay  string   `yaml:"start_delay"`
		Volatility  string   `yaml:"volatility"`
		ActiveHours *float64 `yaml:"active_hours"`
		MinInterval string   `yaml:"min_interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.ActiveHours != nil {
		c.ActiveHours = *raw.ActiveHours
	}
	return setDurations([]durField{
		{raw.StartDelay, &c.StartDelay},
		{raw.Volatility, &c.Volatility},
		{raw.MinInterval, &c.MinInterval},
	})
}

// SyncConfig tunes catalog refresh.
type SyncConfig struct {
	// Interval between periodic catalog syncs.
	Interval time.Duration `yaml:"-"`
	// StartupDelay before the post-start sync.
	StartupDelay time.Duration `yaml:"-"`
	// PageRate caps page fetches per second.
	PageRate float64 `yaml:"page_rate"`
}

// UnmarshalYAML parses duration fields, keeping prior values when omitted.
func (c *SyncConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Interval     string   `yaml:"interval"`
		StartupDelay string   `yaml:"startup_delay"`
		PageRate     *float64 `yaml:"page_rate"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.PageRate != nil {
		c.PageRate = *raw.PageRate
	}
	return setDurations([]durField{
		{raw.Interval, &c.Interval},
		{raw.StartupDelay, &c.StartupDelay},
	})
}

type durField struct {
	lit string
	dst *time.Duration
}

// setDurations parses each non-empty duration literal into its target.
func setDurations(fields []durField) error {
	for _, f := range fields {
		if f.lit == "" {
			continue
		}
		d, err := time.ParseDuration(f.lit)
		if err != nil {
			return fmt.Errorf("config: bad duration %q: %w", f.lit, err)
		}
		*f.dst = d
	}
	return nil
}

// RankingConfig tunes quote selection.
type RankingConfig struct {
	// Mode is "timefit" or "affinity".
	Mode string `yaml:"mode"`
	// StrictBoost narrows the boosted pool to exactly one ranking signal.
	StrictBoost bool `yaml:"strict_boost"`
	// BoostThreshold is the boosted-pool size that triggers a narrowed draw.
	BoostThreshold int `yaml:"boost_threshold"`
	// MaxBodyLen drops quotes with longer bodies (runes).
	MaxBodyLen int `yaml:"max_body_len"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		DBPath: "db/boostme.db",
		Scheduler: SchedulerConfig{
			StartDelay:  15 * time.Second,
			Volatility:  20 * time.Minute,
			ActiveHours: 14,
			MinInterval: time.Minute,
		},
		Sync: SyncConfig{
			Interval:     12 * time.Hour,
			StartupDelay: 30 * time.Second,
			PageRate:     5,
		},
		Ranking: RankingConfig{
			Mode:           "affinity",
			BoostThreshold: 3,
			MaxBodyLen:     300,
		},
	}
}

// LoadConfig reads path and overlays it on the defaults. A missing file
// yields the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is required")
	}
	if c.Scheduler.ActiveHours <= 0 || c.Scheduler.ActiveHours > 24 {
		return fmt.Errorf("config: scheduler.active_hours must be in (0, 24], got %v", c.Scheduler.ActiveHours)
	}
	if c.Scheduler.Volatility < 0 {
		return fmt.Errorf("config: scheduler.volatility must be >= 0")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("config: sync.interval must be > 0")
	}
	switch c.Ranking.Mode {
	case "timefit", "affinity":
	default:
		return fmt.Errorf("config: ranking.mode must be timefit or affinity, got %q", c.Ranking.Mode)
	}
	return nil
}
