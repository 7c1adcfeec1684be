package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort               = 8000
	defaultDataDir            = "downloads"
	defaultMaxConcurrentTasks = 3
	defaultMaxPendingTasks    = 50
	defaultTaskTTL            = 2 * time.Hour
	defaultCleanupInterval    = 30 * time.Minute
	defaultShutdownTimeout    = 5 * time.Minute
	defaultExtractTimeout     = 60 * time.Second
	defaultDiskPressure       = 90
	defaultLogLevel           = "info"
)

// Config describes runtime configuration for the service.
type Config struct {
	Port               int           `yaml:"port"`
	DataDir            string        `yaml:"data_dir"`
	MaxConcurrentTasks int           `yaml:"max_concurrent_tasks"`
	MaxPendingTasks    int           `yaml:"max_pending_tasks"`
	TaskTTL            time.Duration `yaml:"task_ttl"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	ExtractTimeout     time.Duration `yaml:"extract_timeout"`
	YouTubeOnly        bool          `yaml:"youtube_only"`
	LogLevel           string        `yaml:"log_level"`
	YTDLP              YTDLP         `yaml:"ytdlp"`

	// DiskPressurePercent is the data dir disk usage at which expired
	// tasks are evicted after half the TTL.
	DiskPressurePercent float64 `yaml:"disk_pressure_percent"`
}

// YTDLP holds options for the yt-dlp collaborator.
type YTDLP struct {
	// Install downloads a managed yt-dlp binary at startup instead of relying on PATH.
	Install bool `yaml:"install"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Port:               defaultPort,
		DataDir:            defaultDataDir,
		MaxConcurrentTasks: defaultMaxConcurrentTasks,
		MaxPendingTasks:    defaultMaxPendingTasks,
		TaskTTL:            defaultTaskTTL,
		CleanupInterval:    defaultCleanupInterval,
		ShutdownTimeout:    defaultShutdownTimeout,
		ExtractTimeout:     defaultExtractTimeout,
		LogLevel:           defaultLogLevel,

		DiskPressurePercent: defaultDiskPressure,
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks limits that cannot be defaulted.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	// values < 1 are not allowed
	if c.MaxConcurrentTasks < 1 {
		return fmt.Errorf("invalid max_concurrent_tasks: %d (must be >= 1)", c.MaxConcurrentTasks)
	}
	if c.MaxPendingTasks < c.MaxConcurrentTasks {
		return fmt.Errorf("invalid max_pending_tasks: %d (must be >= max_concurrent_tasks)", c.MaxPendingTasks)
	}
	if c.TaskTTL <= 0 || c.CleanupInterval <= 0 || c.ShutdownTimeout <= 0 || c.ExtractTimeout <= 0 {
		return errors.New("durations must be positive")
	}
	if c.DiskPressurePercent <= 0 || c.DiskPressurePercent > 100 {
		return fmt.Errorf("invalid disk_pressure_percent: %g (must be in (0, 100])", c.DiskPressurePercent)
	}
	return nil
}

func (c *Config) normalize() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.MaxPendingTasks == 0 {
		c.MaxPendingTasks = defaultMaxPendingTasks
	}
	if c.TaskTTL == 0 {
		c.TaskTTL = defaultTaskTTL
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = defaultCleanupInterval
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.ExtractTimeout == 0 {
		c.ExtractTimeout = defaultExtractTimeout
	}
	if c.DiskPressurePercent == 0 {
		c.DiskPressurePercent = defaultDiskPressure
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}
