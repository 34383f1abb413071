// Package config provides configuration management for convertarr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultWriteTimeout    = 15 * time.Minute
	defaultShutdownTimeout = 10 * time.Second
	defaultUploadTimeout   = time.Hour
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultMaxUploadSize   = "500MB"
	defaultFFmpegTimeout   = 10 * time.Minute
	defaultProbeTimeout    = 30 * time.Second
	defaultMP3Quality      = 9
	defaultPCMSampleRate   = 22050
	defaultFPS             = 30
	defaultMaxFPS          = 60
	defaultCanvasWidth     = 1920
	defaultCanvasHeight    = 1080
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
	Convert  ConvertConfig  `mapstructure:"convert"`
	Render   RenderConfig   `mapstructure:"render"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// UploadTimeout replaces ReadTimeout on the upload routes, which read
	// bodies up to storage.max_upload_size. Zero keeps ReadTimeout.
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	RequestLogging  bool          `mapstructure:"request_logging"`
}

// StorageConfig holds on-disk layout configuration.
type StorageConfig struct {
	BaseDir   string `mapstructure:"base_dir"`
	UploadDir string `mapstructure:"upload_dir"`
	OutputDir string `mapstructure:"output_dir"`
	// MaxUploadSize is the request payload ceiling.
	// Supports human-readable values like "500MB" or raw byte counts.
	MaxUploadSize ByteSize `mapstructure:"max_upload_size"`
	// OutputRetention deletes artifacts older than this. Zero keeps them forever.
	OutputRetention   time.Duration `mapstructure:"output_retention"`
	RetentionSchedule string        `mapstructure:"retention_schedule"`
}

// DatabaseConfig holds database connection configuration for conversion history.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FFmpegConfig holds external media tool configuration.
type FFmpegConfig struct {
	BinaryPath   string        `mapstructure:"binary_path"` // empty = auto-detect
	ProbePath    string        `mapstructure:"probe_path"`  // empty = auto-detect
	Timeout      time.Duration `mapstructure:"timeout"`     // per invocation
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// ConvertConfig holds conversion parameters and per-direction whitelists.
type ConvertConfig struct {
	VideoExtensions []string `mapstructure:"video_extensions"`
	AudioExtensions []string `mapstructure:"audio_extensions"`
	MP3Quality      int      `mapstructure:"mp3_quality"` // ffmpeg -q:a, 0 (best) to 9
	PCMSampleRate   int      `mapstructure:"pcm_sample_rate"`
	DefaultFPS      int      `mapstructure:"default_fps"`
	MaxFPS          int      `mapstructure:"max_fps"`
	AudioBitrate    string   `mapstructure:"audio_bitrate"`
	VideoCodec      string   `mapstructure:"video_codec"`
}

// RenderConfig holds waveform frame renderer settings.
type RenderConfig struct {
	Width   int `mapstructure:"width"`
	Height  int `mapstructure:"height"`
	Workers int `mapstructure:"workers"` // 0 = one per CPU
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with CONVERTARR_ and use underscores for nesting.
// Example: CONVERTARR_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/convertarr")
		v.AddConfigPath("$HOME/.convertarr")
	}

	v.SetEnvPrefix("CONVERTARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DecodeHook returns the mapstructure hooks used to decode human-readable
// sizes, durations and comma-separated lists.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultWriteTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.upload_timeout", defaultUploadTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_logging", true)

	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("storage.output_dir", "outputs")
	v.SetDefault("storage.max_upload_size", defaultMaxUploadSize)
	v.SetDefault("storage.output_retention", time.Duration(0))
	v.SetDefault("storage.retention_schedule", "@hourly")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "convertarr.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.timeout", defaultFFmpegTimeout)
	v.SetDefault("ffmpeg.probe_timeout", defaultProbeTimeout)

	v.SetDefault("convert.video_extensions", []string{"mp4", "avi", "mov", "mkv"})
	v.SetDefault("convert.audio_extensions", []string{"mp3", "wav", "aac", "m4a"})
	v.SetDefault("convert.mp3_quality", defaultMP3Quality)
	v.SetDefault("convert.pcm_sample_rate", defaultPCMSampleRate)
	v.SetDefault("convert.default_fps", defaultFPS)
	v.SetDefault("convert.max_fps", defaultMaxFPS)
	v.SetDefault("convert.audio_bitrate", "192k")
	v.SetDefault("convert.video_codec", "libx264")

	v.SetDefault("render.width", defaultCanvasWidth)
	v.SetDefault("render.height", defaultCanvasHeight)
	v.SetDefault("render.workers", 0)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	if c.Server.UploadTimeout < 0 {
		return fmt.Errorf("server.upload_timeout must not be negative")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Storage.UploadDir == "" || c.Storage.OutputDir == "" {
		return fmt.Errorf("storage.upload_dir and storage.output_dir are required")
	}
	if c.Storage.UploadPath() == c.Storage.OutputPath() {
		return fmt.Errorf("storage.upload_dir and storage.output_dir must differ")
	}
	if c.Storage.MaxUploadSize <= 0 {
		return fmt.Errorf("storage.max_upload_size must be positive")
	}
	if c.Storage.OutputRetention < 0 {
		return fmt.Errorf("storage.output_retention must not be negative")
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.FFmpeg.Timeout <= 0 {
		return fmt.Errorf("ffmpeg.timeout must be positive")
	}

	if len(c.Convert.VideoExtensions) == 0 || len(c.Convert.AudioExtensions) == 0 {
		return fmt.Errorf("convert.video_extensions and convert.audio_extensions must not be empty")
	}
	if c.Convert.MP3Quality < 0 || c.Convert.MP3Quality > 9 {
		return fmt.Errorf("convert.mp3_quality must be between 0 and 9")
	}
	if c.Convert.PCMSampleRate < 1000 {
		return fmt.Errorf("convert.pcm_sample_rate must be at least 1000")
	}
	if c.Convert.MaxFPS < 1 || c.Convert.DefaultFPS < 1 || c.Convert.DefaultFPS > c.Convert.MaxFPS {
		return fmt.Errorf("convert.default_fps must be between 1 and convert.max_fps")
	}

	if c.Render.Width < 16 || c.Render.Height < 16 {
		return fmt.Errorf("render.width and render.height must be at least 16")
	}
	if c.Render.Workers < 0 {
		return fmt.Errorf("render.workers must not be negative")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UploadPath returns the full path to the upload directory.
func (c *StorageConfig) UploadPath() string {
	return filepath.Join(c.BaseDir, c.UploadDir)
}

// OutputPath returns the full path to the output directory.
func (c *StorageConfig) OutputPath() string {
	return filepath.Join(c.BaseDir, c.OutputDir)
}
