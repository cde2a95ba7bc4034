package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Engine EngineConfig `yaml:"engine"`
	Audit  AuditConfig  `yaml:"audit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	// RateLimit is the sustained action-dispatch rate allowed per client,
	// in requests per second. RateBurst is the burst allowance.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
	Events LogSettings `yaml:"events"`
}

// EngineConfig holds the itinerary engine's tunables. These were implicit
// constants in earlier iterations; they are named here so operators can adjust
// them without a rebuild.
type EngineConfig struct {
	// TriggerDelayThreshold is the accumulated drift beyond which a delay
	// trigger fires.
	TriggerDelayThreshold Duration `yaml:"trigger_delay_threshold"`
	// CompressionFloor is the minimum slot duration the compress-remaining
	// strategy may shrink a slot to.
	CompressionFloor Duration `yaml:"compression_floor"`
	// LocationMismatchRadiusKm is how far from the expected venue the
	// traveler may be before a location trigger fires.
	LocationMismatchRadiusKm float64 `yaml:"location_mismatch_radius_km"`
	// UndoHistoryDepth bounds the per-trip snapshot stack.
	UndoHistoryDepth int `yaml:"undo_history_depth"`
	// QueueCap bounds the per-trip pending event backlog.
	QueueCap int `yaml:"queue_cap"`
	// DefaultEventTTL is the expiry applied by factory constructors that
	// produce perishable events.
	DefaultEventTTL Duration `yaml:"default_event_ttl"`
	// PollLimitMax caps the limit argument accepted by queue polls.
	PollLimitMax int `yaml:"poll_limit_max"`
}

// AuditConfig holds settings for the sqlite audit log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:   "localhost:1872",
			RateLimit: 10,
			RateBurst: 20,
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
		},
		Engine: EngineConfig{
			TriggerDelayThreshold:    Duration(20 * time.Minute),
			CompressionFloor:         Duration(30 * time.Minute),
			LocationMismatchRadiusKm: 2.0,
			UndoHistoryDepth:         5,
			QueueCap:                 64,
			DefaultEventTTL:          Duration(2 * time.Hour),
			PollLimitMax:             20,
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    "./data/tripflow.db",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it is created with default values.
// If the file exists, defaults are merged with existing values but never
// saved back to disk, preserving user formatting and comments.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Engine.UndoHistoryDepth < 1 {
		return fmt.Errorf("engine.undo_history_depth must be >= 1, got %d", c.Engine.UndoHistoryDepth)
	}
	if c.Engine.QueueCap < 1 {
		return fmt.Errorf("engine.queue_cap must be >= 1, got %d", c.Engine.QueueCap)
	}
	if c.Engine.TriggerDelayThreshold < 0 {
		return fmt.Errorf("engine.trigger_delay_threshold must not be negative")
	}
	if c.Engine.CompressionFloor < 0 {
		return fmt.Errorf("engine.compression_floor must not be negative")
	}
	if c.Engine.LocationMismatchRadiusKm < 0 {
		return fmt.Errorf("engine.location_mismatch_radius_km must not be negative")
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Tripflow Configuration
# ---------------------
# Duration units: ns, us, ms, s, m, h, d (day), w (week)

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
