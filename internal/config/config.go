package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Settings represents the complete cache configuration.
type Settings struct {
	// CacheDir is the root directory for blobs and the index file.
	CacheDir string `yaml:"cache_dir"`
	// MaxSize is a human-readable size budget ("10GB", "512MB", plain bytes).
	MaxSize string `yaml:"max_size"`
	// TTL is the logical lifetime of an entry; zero disables expiry
	// (a zero-TTL entry configured explicitly expires immediately).
	TTL *time.Duration `yaml:"ttl"`

	Compression CompressionConfig `yaml:"compression"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`

	// Link strategy preferences. Accepted for forward compatibility with the
	// environment materializer; the cache itself does not act on them.
	PreferHardlinks bool `yaml:"prefer_hardlinks"`
	CopyOnWrite     bool `yaml:"copy_on_write"`
}

// CompressionConfig represents compression settings.
type CompressionConfig struct {
	// Level is one of "none", "fast", "default", "max".
	Level string `yaml:"level"`
}

// MetricsConfig represents metrics settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// NewDefault returns settings with sensible defaults.
func NewDefault() *Settings {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Settings{
		CacheDir: filepath.Join(home, ".cache", "pycache"),
		MaxSize:  "10GB",
		TTL:      nil,
		Compression: CompressionConfig{
			Level: "default",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "pycache",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// LoadFromFile loads settings from a YAML file.
func (s *Settings) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv applies environment variable overrides.
func (s *Settings) LoadFromEnv() error {
	if val := os.Getenv("PYCACHE_DIR"); val != "" {
		s.CacheDir = val
	}
	if val := os.Getenv("PYCACHE_MAX_SIZE"); val != "" {
		s.MaxSize = val
	}
	if val := os.Getenv("PYCACHE_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			s.TTL = &duration
		}
	}
	if val := os.Getenv("PYCACHE_COMPRESSION_LEVEL"); val != "" {
		s.Compression.Level = val
	}
	if val := os.Getenv("PYCACHE_METRICS_ENABLED"); val != "" {
		s.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("PYCACHE_LOG_LEVEL"); val != "" {
		s.Logging.Level = val
	}
	if val := os.Getenv("PYCACHE_PREFER_HARDLINKS"); val != "" {
		s.PreferHardlinks = strings.ToLower(val) == "true"
	}
	return nil
}

// MaxSizeBytes parses the configured size budget into bytes.
func (s *Settings) MaxSizeBytes() (int64, error) {
	return ParseSize(s.MaxSize)
}

// Validate validates the settings.
func (s *Settings) Validate() error {
	if s.CacheDir == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}

	if _, err := ParseSize(s.MaxSize); err != nil {
		return fmt.Errorf("invalid max_size: %w", err)
	}

	if s.TTL != nil && *s.TTL < 0 {
		return fmt.Errorf("ttl cannot be negative")
	}

	switch strings.ToLower(s.Compression.Level) {
	case "none", "fast", "default", "max":
	default:
		return fmt.Errorf("invalid compression level: %s (must be one of: none, fast, default, max)",
			s.Compression.Level)
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(s.Logging.Level) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)",
			s.Logging.Level, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// ParseSize parses a human-readable size string ("10GB", "512MB", "1024")
// into a byte count.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Plain byte counts
	if val, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		if val <= 0 {
			return 0, fmt.Errorf("size must be positive: %s", sizeStr)
		}
		return val, nil
	}

	units := []struct {
		suffix     string
		multiplier int64
	}{
		{"TB", 1024 * 1024 * 1024 * 1024},
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	upper := strings.ToUpper(sizeStr)
	for _, unit := range units {
		if strings.HasSuffix(upper, unit.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(upper, unit.suffix))
			if val, err := strconv.ParseFloat(numStr, 64); err == nil {
				bytes := int64(val * float64(unit.multiplier))
				if bytes <= 0 {
					return 0, fmt.Errorf("size must be positive: %s", sizeStr)
				}
				return bytes, nil
			}
		}
	}

	return 0, fmt.Errorf("invalid size format: %s", sizeStr)
}
