package config

import (
	"os"
	"path/filepath"
)

// Config represents the main mnemo configuration
type Config struct {
	// Store is the document store directory
	StorePath string `json:"store_path" mapstructure:"store_path"`

	// Index is the search index artifact path
	IndexPath string `json:"index_path" mapstructure:"index_path"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Allow-lists; empty means unrestricted
	Categories []string `json:"categories" mapstructure:"categories"`
	Tags       []string `json:"tags" mapstructure:"tags"`

	// Consistency tuning
	Consistency ConsistencyConfig `json:"consistency" mapstructure:"consistency"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Maintenance configuration
	Maintenance MaintenanceConfig `json:"maintenance" mapstructure:"maintenance"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// ConsistencyConfig tunes staleness detection
type ConsistencyConfig struct {
	// ToleranceMs is the staleness tolerance window in milliseconds
	ToleranceMs int `json:"tolerance_ms" mapstructure:"tolerance_ms"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// MaintenanceConfig holds the maintenance daemon configuration
type MaintenanceConfig struct {
	// Schedule is a cron expression for the periodic repair/staleness sweep
	Schedule string `json:"schedule" mapstructure:"schedule"`
	// Watch enables the fsnotify store watcher
	Watch bool `json:"watch" mapstructure:"watch"`
}

// MetricsConfig holds the metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Consistency: ConsistencyConfig{
			ToleranceMs: 5000,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
		Maintenance: MaintenanceConfig{
			Schedule: "*/15 * * * *",
			Watch:    true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9149",
		},
	}
}

// ApplyDefaults fills derived paths that were not set explicitly
func (c *Config) ApplyDefaults() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		c.DataDir = filepath.Join(home, ".mnemo")
	}
	if c.StorePath == "" {
		c.StorePath = filepath.Join(c.DataDir, "memory")
	}
	if c.IndexPath == "" {
		c.IndexPath = filepath.Join(c.DataDir, "index.db")
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.DataDir, "mnemo.log")
	}
	return nil
}
