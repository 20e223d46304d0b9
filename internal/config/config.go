// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/gsdump/internal/core"
	"firestige.xyz/gsdump/internal/srtp"
)

// Config represents the complete configuration of a decode run.
// Maps to the `gsdump:` root key in YAML.
type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	SRTP     SRTPConfig     `mapstructure:"srtp" yaml:"srtp"`
	Decoder  DecoderConfig  `mapstructure:"decoder" yaml:"decoder"`
	Probe    ProbeConfig    `mapstructure:"probe" yaml:"probe"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Mux      MuxConfig      `mapstructure:"mux" yaml:"mux"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── SRTP ───

// SRTPConfig holds the master key material. An empty key disables
// decryption.
type SRTPConfig struct {
	Key     string `mapstructure:"key" yaml:"key"`   // base64 master key, or key and salt
	Salt    string `mapstructure:"salt" yaml:"salt"` // base64 master salt when Key holds the key only
	Profile string `mapstructure:"profile" yaml:"profile"`
}

// Enabled reports whether decryption is requested.
func (c SRTPConfig) Enabled() bool { return c.Key != "" }

// ─── Decoding ───

// DecoderConfig controls datagram extraction.
type DecoderConfig struct {
	Teredo bool `mapstructure:"teredo" yaml:"teredo"`
}

// ProbeConfig controls connection-probe correlation.
type ProbeConfig struct {
	Lookback int `mapstructure:"lookback" yaml:"lookback"`
}

// PipelineConfig sizes the frame queue between the capture file reader and
// the decode loop. The reader blocks when the queue is full.
type PipelineConfig struct {
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// MuxConfig holds the RTP payload types of the multiplexed session.
type MuxConfig struct {
	ControlPayloadType   int `mapstructure:"control_payload_type" yaml:"control_payload_type"`
	KeepAlivePayloadType int `mapstructure:"keepalive_payload_type" yaml:"keepalive_payload_type"`
	ProbingPayloadType   int `mapstructure:"probing_payload_type" yaml:"probing_payload_type"`
	ChannelMin           int `mapstructure:"channel_min" yaml:"channel_min"`
	ChannelMax           int `mapstructure:"channel_max" yaml:"channel_max"`
}

// ─── Output ───

// OutputConfig selects the record emitters.
type OutputConfig struct {
	Format      string `mapstructure:"format" yaml:"format"` // text / json / none
	Hexdump     bool   `mapstructure:"hexdump" yaml:"hexdump"`
	RewritePath string `mapstructure:"rewrite_path" yaml:"rewrite_path"` // empty = no rewrite
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"` // empty = disabled
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `gsdump: ...`.
type configRoot struct {
	GSDump Config `mapstructure:"gsdump"`
}

// Load loads configuration from file. An empty path yields the defaults.
// The YAML file uses `gsdump:` as root key; env vars use the GSDUMP_ prefix
// (e.g., GSDUMP_SRTP_KEY).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `gsdump.` key prefix maps to `GSDUMP_` in env vars via the key
	// replacer (e.g., key "gsdump.log.level" → env "GSDUMP_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.GSDump

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "gsdump." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("gsdump.log.level", "info")
	v.SetDefault("gsdump.log.format", "text")
	v.SetDefault("gsdump.log.outputs.file.enabled", false)
	v.SetDefault("gsdump.log.outputs.file.path", "gsdump.log")
	v.SetDefault("gsdump.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("gsdump.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("gsdump.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("gsdump.log.outputs.file.rotation.compress", true)

	// SRTP defaults
	v.SetDefault("gsdump.srtp.key", "")
	v.SetDefault("gsdump.srtp.salt", "")
	v.SetDefault("gsdump.srtp.profile", srtp.ProfileAeadAes128Gcm.String())

	// Decoding defaults
	v.SetDefault("gsdump.decoder.teredo", true)
	v.SetDefault("gsdump.probe.lookback", 64)
	v.SetDefault("gsdump.pipeline.buffer_size", 1024)
	v.SetDefault("gsdump.mux.control_payload_type", 0x61)
	v.SetDefault("gsdump.mux.keepalive_payload_type", 0x65)
	v.SetDefault("gsdump.mux.probing_payload_type", 0x66)
	v.SetDefault("gsdump.mux.channel_min", 0x23)
	v.SetDefault("gsdump.mux.channel_max", 0x3f)

	// Output defaults
	v.SetDefault("gsdump.output.format", "text")
	v.SetDefault("gsdump.output.hexdump", true)
	v.SetDefault("gsdump.output.rewrite_path", "")

	// Metrics defaults
	v.SetDefault("gsdump.metrics.textfile", "")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return invalid("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return invalid("log.outputs.file.path is required when file output is enabled")
	}

	// ── SRTP ──
	if _, err := srtp.ParseProfile(cfg.SRTP.Profile); err != nil {
		return invalid("invalid srtp.profile: %s", cfg.SRTP.Profile)
	}
	if cfg.SRTP.Salt != "" && cfg.SRTP.Key == "" {
		return invalid("srtp.salt requires srtp.key")
	}

	// ── Probe ──
	if cfg.Probe.Lookback <= 0 {
		return invalid("probe.lookback must be positive, got %d", cfg.Probe.Lookback)
	}

	// ── Pipeline ──
	if cfg.Pipeline.BufferSize <= 0 {
		return invalid("pipeline.buffer_size must be positive, got %d", cfg.Pipeline.BufferSize)
	}

	// ── Mux payload types ──
	m := cfg.Mux
	for name, pt := range map[string]int{
		"control_payload_type":   m.ControlPayloadType,
		"keepalive_payload_type": m.KeepAlivePayloadType,
		"probing_payload_type":   m.ProbingPayloadType,
		"channel_min":            m.ChannelMin,
		"channel_max":            m.ChannelMax,
	} {
		if pt < 0 || pt > 127 {
			return invalid("mux.%s must be an RTP payload type (0-127), got %d", name, pt)
		}
	}
	if m.ChannelMin > m.ChannelMax {
		return invalid("mux.channel_min (%d) exceeds mux.channel_max (%d)", m.ChannelMin, m.ChannelMax)
	}
	if m.ControlPayloadType == m.KeepAlivePayloadType ||
		m.ControlPayloadType == m.ProbingPayloadType ||
		m.KeepAlivePayloadType == m.ProbingPayloadType {
		return invalid("mux control, keepalive and probing payload types must differ")
	}

	// ── Output ──
	cfg.Output.Format = strings.ToLower(cfg.Output.Format)
	switch cfg.Output.Format {
	case "text", "json", "none":
	default:
		return invalid("invalid output.format: %s (must be text/json/none)", cfg.Output.Format)
	}
	if cfg.Output.RewritePath != "" && !cfg.SRTP.Enabled() {
		return invalid("output.rewrite_path requires srtp.key")
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
}
