package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/btviz/internal/core"
	"github.com/newthinker/btviz/internal/playback"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Upload    UploadConfig              `mapstructure:"upload"`
	Sessions  SessionsConfig            `mapstructure:"sessions"`
	Playback  PlaybackConfig            `mapstructure:"playback"`
	Export    ExportConfig              `mapstructure:"export"`
	Notifiers map[string]NotifierConfig `mapstructure:"notifiers"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// UploadConfig limits accepted backtest files
type UploadConfig struct {
	MaxBytes         int64 `mapstructure:"max_bytes"`
	StrictValidation bool  `mapstructure:"strict_validation"` // validate every record, not only the first
}

// SessionsConfig bounds the in-memory session store
type SessionsConfig struct {
	Max           int           `mapstructure:"max"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type PlaybackConfig struct {
	DefaultSpeed   float64       `mapstructure:"default_speed"`
	VisibleWindow  int           `mapstructure:"visible_window"`
	AlignTolerance time.Duration `mapstructure:"align_tolerance"` // 0 accepts any nearest candle
}

// ExportConfig selects where rendered reports are archived
type ExportConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifierConfig configures one load notifier. Type defaults to the map key.
type NotifierConfig struct {
	Type    string            `mapstructure:"type"` // "webhook" or "telegram"
	Enabled bool              `mapstructure:"enabled"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`

	// Telegram
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIURL   string `mapstructure:"api_url"`
}

// Kind returns the notifier type, falling back to the config key
func (n NotifierConfig) Kind(name string) string {
	if n.Type != "" {
		return n.Type
	}
	return name
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from file on top of Defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.SetEnvPrefix("BTVIZ")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("upload.max_bytes", d.Upload.MaxBytes)
	v.SetDefault("upload.strict_validation", d.Upload.StrictValidation)
	v.SetDefault("sessions.max", d.Sessions.Max)
	v.SetDefault("sessions.ttl", d.Sessions.TTL)
	v.SetDefault("sessions.sweep_interval", d.Sessions.SweepInterval)
	v.SetDefault("playback.default_speed", d.Playback.DefaultSpeed)
	v.SetDefault("playback.visible_window", d.Playback.VisibleWindow)
	v.SetDefault("playback.align_tolerance", d.Playback.AlignTolerance)
	v.SetDefault("export.type", d.Export.Type)
	v.SetDefault("export.path", d.Export.Path)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Upload: UploadConfig{
			MaxBytes: 50 << 20,
		},
		Sessions: SessionsConfig{
			Max:           20,
			TTL:           2 * time.Hour,
			SweepInterval: time.Minute,
		},
		Playback: PlaybackConfig{
			DefaultSpeed:  playback.DefaultSpeed,
			VisibleWindow: 50,
		},
		Export: ExportConfig{
			Type: "localfs",
			Path: "./reports",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Upload.MaxBytes <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("upload.max_bytes must be positive, got %d", c.Upload.MaxBytes))
	}

	if c.Sessions.Max < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sessions.max cannot be negative, got %d", c.Sessions.Max))
	}
	if c.Sessions.TTL < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sessions.ttl cannot be negative, got %s", c.Sessions.TTL))
	}

	if !playback.ValidSpeed(c.Playback.DefaultSpeed) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("playback.default_speed must be one of %v, got %v", playback.Speeds, c.Playback.DefaultSpeed))
	}
	if c.Playback.VisibleWindow < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("playback.visible_window must be positive, got %d", c.Playback.VisibleWindow))
	}
	if c.Playback.AlignTolerance < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("playback.align_tolerance cannot be negative, got %s", c.Playback.AlignTolerance))
	}

	// Export validation - check the selected backend is configured
	switch c.Export.Type {
	case "localfs":
		if c.Export.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("export.path required when type is localfs"))
		}
	case "s3":
		if c.Export.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("export.s3.bucket required when type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("export.type must be localfs or s3, got %q", c.Export.Type))
	}

	for name, n := range c.Notifiers {
		if !n.Enabled {
			continue
		}
		switch n.Kind(name) {
		case "webhook":
			if n.URL == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("notifiers.%s.url required when enabled", name))
			}
		case "telegram":
			if n.BotToken == "" || n.ChatID == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("notifiers.%s.bot_token and chat_id required when enabled", name))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("notifiers.%s.type must be webhook or telegram, got %q", name, n.Kind(name)))
		}
	}

	return nil
}
