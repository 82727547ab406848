// Package config handles configuration loading using viper.
package config

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"firestige.xyz/usbcmp/internal/core"
)

// Config is the top-level configuration. Maps to the `usbcmp:` root key in YAML.
type Config struct {
	Compare CompareConfig `mapstructure:"compare"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// ─── Comparison ───

// CompareConfig controls decoding and canonicalization.
type CompareConfig struct {
	HexDumpBytes int       `mapstructure:"hexdump_bytes"` // payload bytes compared per data frame
	ByteOrder    ByteOrder `mapstructure:"byte_order"`    // little / big
}

// ByteOrder wraps binary.ByteOrder so it can be decoded from "little"/"big".
type ByteOrder struct {
	binary.ByteOrder
}

// ParseByteOrder accepts little/le/big/be, case-insensitive.
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "little", "le", "":
		return ByteOrder{binary.LittleEndian}, nil
	case "big", "be":
		return ByteOrder{binary.BigEndian}, nil
	default:
		return ByteOrder{}, fmt.Errorf("%w: unknown byte order %q (must be little/big)", core.ErrConfigInvalid, s)
	}
}

// ─── Record filter ───

// FilterConfig restricts every source to records of one bus and/or device.
type FilterConfig struct {
	Bus    int `mapstructure:"bus"`    // 0 = any
	Device int `mapstructure:"device"` // 0 = any
}

// Enabled reports whether any filter criterion is set.
func (f FilterConfig) Enabled() bool { return f.Bus != 0 || f.Device != 0 }

// ─── Metrics ───

// MetricsConfig controls the Prometheus textfile written after a run.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"` // empty = disabled
}

// Enabled reports whether a metrics file is written.
func (m MetricsConfig) Enabled() bool { return m.Textfile != "" }

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level"`       // debug / info / warn / error
	Format     string           `mapstructure:"format"`      // text / json / pattern
	Pattern    string           `mapstructure:"pattern"`     // used when format = pattern
	TimeFormat string           `mapstructure:"time_format"` // used when format = pattern
	Outputs    LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains additional log destinations. stderr is always on.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`  // MB
	MaxAgeDays int  `mapstructure:"max_age_days"` // Days
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `usbcmp: ...`.
type configRoot struct {
	Usbcmp Config `mapstructure:"usbcmp"`
}

// Load loads configuration from path. An empty path yields the defaults
// with environment overrides applied (e.g. USBCMP_LOG_LEVEL).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Key "usbcmp.log.level" maps to env "USBCMP_LOG_LEVEL".
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root, viper.DecodeHook(byteOrderHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Usbcmp

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "usbcmp." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Compare defaults
	v.SetDefault("usbcmp.compare.hexdump_bytes", 64)
	v.SetDefault("usbcmp.compare.byte_order", "little")

	// Filter defaults
	v.SetDefault("usbcmp.filter.bus", 0)
	v.SetDefault("usbcmp.filter.device", 0)

	// Metrics defaults
	v.SetDefault("usbcmp.metrics.textfile", "")

	// Log defaults
	v.SetDefault("usbcmp.log.level", "info")
	v.SetDefault("usbcmp.log.format", "text")
	v.SetDefault("usbcmp.log.pattern", "%time [%level] %msg %field%n")
	v.SetDefault("usbcmp.log.time_format", "2006-01-02 15:04:05")
	v.SetDefault("usbcmp.log.outputs.file.enabled", false)
	v.SetDefault("usbcmp.log.outputs.file.path", "/var/log/usbcmp/usbcmp.log")
	v.SetDefault("usbcmp.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("usbcmp.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("usbcmp.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("usbcmp.log.outputs.file.rotation.compress", true)
}

// byteOrderHook decodes byte_order strings into ByteOrder.
func byteOrderHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(ByteOrder{})
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != target {
			return data, nil
		}
		return ParseByteOrder(data.(string))
	}
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json", "pattern":
	default:
		return fmt.Errorf("%w: invalid log format: %s (must be text/json/pattern)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", core.ErrConfigInvalid)
	}

	// ── Compare validation ──
	if cfg.Compare.HexDumpBytes <= 0 {
		return fmt.Errorf("%w: compare.hexdump_bytes must be positive, got %d", core.ErrConfigInvalid, cfg.Compare.HexDumpBytes)
	}
	if cfg.Compare.ByteOrder.ByteOrder == nil {
		cfg.Compare.ByteOrder = ByteOrder{binary.LittleEndian}
	}

	// ── Filter validation ──
	if cfg.Filter.Bus < 0 || cfg.Filter.Bus > 0xffff {
		return fmt.Errorf("%w: filter.bus out of range: %d", core.ErrConfigInvalid, cfg.Filter.Bus)
	}
	if cfg.Filter.Device < 0 || cfg.Filter.Device > 0xff {
		return fmt.Errorf("%w: filter.device out of range: %d", core.ErrConfigInvalid, cfg.Filter.Device)
	}

	return nil
}
