// Package config loads birdsync settings.
//
// Settings live in a flat KEY=VALUE file (the BirdNET-Pi birdnet.conf
// format). Every key can be overridden from the environment with the
// BIRDSYNC_ prefix, e.g. BIRDSYNC_CLOUD_UPLOAD_DIR.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultPath is where the settings file is read from when neither --config
// nor BIRDSYNC_CONFIG is set.
const DefaultPath = "/etc/birdnet/birdnet.conf"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BIRDSYNC"

// Artifact backends.
const (
	BackendHTTP = "http"
	BackendS3   = "s3"
)

type Config struct {
	DBPath           string        `mapstructure:"db_path" yaml:"DB_PATH"`
	UploadDir        string        `mapstructure:"cloud_upload_dir" yaml:"CLOUD_UPLOAD_DIR"`
	SpeciesIDPostURL string        `mapstructure:"speciesid_post_url" yaml:"SPECIESID_POST_URL"`
	AudioPostURL     string        `mapstructure:"audio_post_url" yaml:"AUDIO_POST_URL"`
	ResetDays        int           `mapstructure:"inference_upload_default_resetdays" yaml:"INFERENCE_UPLOAD_DEFAULT_RESETDAYS"`
	BatchLimit       int           `mapstructure:"inference_upload_batch_limit" yaml:"INFERENCE_UPLOAD_BATCH_LIMIT"`
	HTTPTimeout      time.Duration `mapstructure:"inference_upload_http_timeout" yaml:"INFERENCE_UPLOAD_HTTP_TIMEOUT"`
	Schedule         string        `mapstructure:"inference_upload_schedule" yaml:"INFERENCE_UPLOAD_SCHEDULE"`
	WatchDB          bool          `mapstructure:"inference_upload_watch_db" yaml:"INFERENCE_UPLOAD_WATCH_DB"`
	DeviceID         string        `mapstructure:"device_id" yaml:"DEVICE_ID"`

	Artifact ArtifactConfig `mapstructure:",squash" yaml:",inline"`
	Log      LogConfig      `mapstructure:",squash" yaml:",inline"`
}

type ArtifactConfig struct {
	Backend    string `mapstructure:"audio_upload_backend" yaml:"AUDIO_UPLOAD_BACKEND"`
	S3Bucket   string `mapstructure:"audio_s3_bucket" yaml:"AUDIO_S3_BUCKET"`
	S3Prefix   string `mapstructure:"audio_s3_prefix" yaml:"AUDIO_S3_PREFIX"`
	S3Region   string `mapstructure:"audio_s3_region" yaml:"AUDIO_S3_REGION"`
	S3Endpoint string `mapstructure:"audio_s3_endpoint" yaml:"AUDIO_S3_ENDPOINT"`
}

type LogConfig struct {
	Level      string `mapstructure:"log_level" yaml:"LOG_LEVEL"`
	Encoding   string `mapstructure:"log_encoding" yaml:"LOG_ENCODING"`
	File       string `mapstructure:"log_file" yaml:"LOG_FILE"`
	MaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"LOG_MAX_SIZE_MB"`
	MaxBackups int    `mapstructure:"log_max_backups" yaml:"LOG_MAX_BACKUPS"`
	MaxAgeDays int    `mapstructure:"log_max_age_days" yaml:"LOG_MAX_AGE_DAYS"`
}

// Load reads the settings file at path and applies environment overrides.
// With envOnly set the file is not read at all.
func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("db_path", defaultDBPath())
	v.SetDefault("cloud_upload_dir", "")
	v.SetDefault("speciesid_post_url", "")
	v.SetDefault("audio_post_url", "")
	v.SetDefault("inference_upload_default_resetdays", 1)
	v.SetDefault("inference_upload_batch_limit", 100)
	v.SetDefault("inference_upload_http_timeout", "30s")
	v.SetDefault("inference_upload_schedule", "")
	v.SetDefault("inference_upload_watch_db", false)
	v.SetDefault("device_id", "")

	v.SetDefault("audio_upload_backend", BackendHTTP)
	v.SetDefault("audio_s3_bucket", "")
	v.SetDefault("audio_s3_prefix", "")
	v.SetDefault("audio_s3_region", "")
	v.SetDefault("audio_s3_endpoint", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_encoding", "auto")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("log_max_age_days", 28)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read settings %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	cfg.Artifact.Backend = strings.ToLower(strings.TrimSpace(cfg.Artifact.Backend))

	return cfg, nil
}

// Validate reports every missing or out-of-range setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH is required"))
	}
	if c.UploadDir == "" {
		errs = append(errs, errors.New("CLOUD_UPLOAD_DIR is required"))
	}
	if c.SpeciesIDPostURL == "" {
		errs = append(errs, errors.New("SPECIESID_POST_URL is required"))
	}
	switch c.Artifact.Backend {
	case BackendHTTP:
		if c.AudioPostURL == "" {
			errs = append(errs, errors.New("AUDIO_POST_URL is required for the http audio backend"))
		}
	case BackendS3:
		if c.Artifact.S3Bucket == "" {
			errs = append(errs, errors.New("AUDIO_S3_BUCKET is required for the s3 audio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUDIO_UPLOAD_BACKEND must be %q or %q (got %q)", BackendHTTP, BackendS3, c.Artifact.Backend))
	}
	if c.ResetDays <= 0 {
		errs = append(errs, fmt.Errorf("INFERENCE_UPLOAD_DEFAULT_RESETDAYS must be positive (got %d)", c.ResetDays))
	}
	if c.BatchLimit <= 0 {
		errs = append(errs, fmt.Errorf("INFERENCE_UPLOAD_BATCH_LIMIT must be positive (got %d)", c.BatchLimit))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("INFERENCE_UPLOAD_HTTP_TIMEOUT must be positive (got %s)", c.HTTPTimeout))
	}
	return errors.Join(errs...)
}

// ResolvePath picks the settings file: the explicit flag value, then
// BIRDSYNC_CONFIG, then DefaultPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "BirdNET-Pi", "scripts", "birds.db")
}
