// Package config loads the agent configuration from an optional YAML file
// layered under environment variables. Environment always wins, so a
// container can override a baked-in file without editing it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/logship/s3sink/models"
)

type Config struct {
	Env         string `yaml:"env"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
	Tracing     bool   `yaml:"tracing"`

	AWS  AWSConfig  `yaml:"aws"`
	Sink SinkConfig `yaml:"sink"`
}

type AWSConfig struct {
	Region string `yaml:"region"`
	// Endpoint overrides the service endpoint, for LocalStack and other
	// emulators. Path-style addressing is enabled whenever it is set.
	Endpoint string `yaml:"endpoint"`
}

type SinkConfig struct {
	Bucket               string            `yaml:"bucket"`
	Folder               string            `yaml:"folder"`
	Tags                 map[string]string `yaml:"tags"`
	NameFormat           string            `yaml:"name_format"`
	UploadDelay          Duration          `yaml:"upload_delay"`
	BufferSize           int               `yaml:"buffer_size"`
	RotateEvery          Duration          `yaml:"rotate_every"`
	MaxFileSize          int               `yaml:"max_file_size"`
	Compress             bool              `yaml:"compress"`
	SaveLogsInJSON       bool              `yaml:"save_logs_in_json"`
	StorageClass         string            `yaml:"storage_class"`
	ServerSideEncryption string            `yaml:"server_side_encryption"`
	ACL                  string            `yaml:"acl"`
}

// Duration decodes "20s"-style YAML values into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Load reads S3SINK_CONFIG (when set) and then applies environment
// overrides. Validation is limited to what the agent cannot run without;
// sink-level defaults are applied later by models.SinkConfig.
func Load() (Config, error) {
	cfg := Config{
		Env:      models.DefaultEnvironment,
		LogLevel: "info",
	}

	if path := os.Getenv("S3SINK_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if cfg.Sink.Bucket == "" {
		return Config{}, models.ErrBucketRequired
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Env, "APP_ENV")
	setString(&cfg.LogLevel, "S3SINK_LOG_LEVEL")
	setString(&cfg.MetricsAddr, "S3SINK_METRICS_ADDR")
	setBool(&cfg.Tracing, "S3SINK_TRACING")

	setString(&cfg.AWS.Region, "AWS_REGION")
	setString(&cfg.AWS.Endpoint, "S3SINK_ENDPOINT")

	setString(&cfg.Sink.Bucket, "S3SINK_BUCKET")
	setString(&cfg.Sink.Folder, "S3SINK_FOLDER")
	setString(&cfg.Sink.NameFormat, "S3SINK_NAME_FORMAT")
	setDuration(&cfg.Sink.UploadDelay, "S3SINK_UPLOAD_DELAY")
	setInt(&cfg.Sink.BufferSize, "S3SINK_BUFFER_SIZE")
	setDuration(&cfg.Sink.RotateEvery, "S3SINK_ROTATE_EVERY")
	setInt(&cfg.Sink.MaxFileSize, "S3SINK_MAX_FILE_SIZE")
	setBool(&cfg.Sink.Compress, "S3SINK_COMPRESS")
	setBool(&cfg.Sink.SaveLogsInJSON, "S3SINK_SAVE_LOGS_IN_JSON")
	setString(&cfg.Sink.StorageClass, "S3SINK_STORAGE_CLASS")
	setString(&cfg.Sink.ServerSideEncryption, "S3SINK_SSE")
	setString(&cfg.Sink.ACL, "S3SINK_ACL")

	if tags := os.Getenv("S3SINK_TAGS"); tags != "" {
		cfg.Sink.Tags = parseTags(tags)
	}
}

// SinkConfig maps the loaded surface onto the sink's own configuration.
func (c Config) SinkConfig() models.SinkConfig {
	return models.SinkConfig{
		Bucket:               c.Sink.Bucket,
		Folder:               c.Sink.Folder,
		Tags:                 c.Sink.Tags,
		NameFormat:           c.Sink.NameFormat,
		Environment:          c.Env,
		UploadDelay:          time.Duration(c.Sink.UploadDelay),
		BufferSize:           c.Sink.BufferSize,
		RotateEvery:          time.Duration(c.Sink.RotateEvery),
		MaxFileSize:          c.Sink.MaxFileSize,
		Compress:             c.Sink.Compress,
		SaveLogsInJSON:       c.Sink.SaveLogsInJSON,
		StorageClass:         c.Sink.StorageClass,
		ServerSideEncryption: c.Sink.ServerSideEncryption,
		ACL:                  c.Sink.ACL,
	}
}

// parseTags reads "team=infra,app=api" into a tag map. Malformed pairs are
// skipped.
func parseTags(raw string) map[string]string {
	tags := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			continue
		}
		tags[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = Duration(parsed)
		}
	}
}
