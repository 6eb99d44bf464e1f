// Package config loads hadilab process settings from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"hadilab/internal/blob"
	"hadilab/internal/core"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvStorageDriver     = "HADILAB_STORAGE_DRIVER"
	EnvSQLitePath        = "HADILAB_SQLITE_PATH"
	EnvPostgresDSN       = "HADILAB_POSTGRES_DSN"
	EnvBlobDriver        = "HADILAB_BLOB_DRIVER"
	EnvBlobFSRoot        = "HADILAB_BLOB_FS_ROOT"
	EnvBlobS3Bucket      = "HADILAB_BLOB_S3_BUCKET"
	EnvBlobS3Region      = "HADILAB_BLOB_S3_REGION"
	EnvBlobS3Endpoint    = "HADILAB_BLOB_S3_ENDPOINT"
	EnvBlobS3AccessKey   = "HADILAB_BLOB_S3_ACCESS_KEY_ID"
	EnvBlobS3SecretKey   = "HADILAB_BLOB_S3_SECRET_ACCESS_KEY"
	EnvBlobS3Session     = "HADILAB_BLOB_S3_SESSION_TOKEN"
	EnvBlobS3PathStyle   = "HADILAB_BLOB_S3_PATH_STYLE"
	EnvHTTPAddr          = "HADILAB_HTTP_ADDR"
	EnvLogLevel          = "HADILAB_LOG_LEVEL"
	EnvLogFormat         = "HADILAB_LOG_FORMAT"
	EnvDirectorOversight = "HADILAB_DIRECTOR_OVERSIGHT"
	EnvDirectorDelete    = "HADILAB_DIRECTOR_DELETE"
	EnvBootstrapAdmin    = "HADILAB_BOOTSTRAP_ADMIN"
	EnvShutdownTimeout   = "HADILAB_SHUTDOWN_TIMEOUT"
)

// Defaults applied when a variable is unset.
const (
	DefaultHTTPAddr        = ":8080"
	DefaultLogFormat       = "json"
	DefaultShutdownTimeout = 10 * time.Second
)

// Config is the resolved process configuration.
type Config struct {
	Storage         core.StorageConfig
	Blob            blob.Config
	HTTPAddr        string
	LogLevel        slog.Level
	LogFormat       string
	Policy          core.Policy
	BootstrapAdmin  string
	ShutdownTimeout time.Duration
}

// Error reports an unusable environment value.
type Error struct {
	Var    string
	Value  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s=%q: %s", e.Var, e.Value, e.Reason)
}

// Load reads the given .env files (".env" when none are named) into the
// process environment without overriding variables already set, then
// resolves the configuration. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv resolves the configuration from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := reader{getenv: getenv}
	cfg := &Config{
		Storage: core.StorageConfig{
			Driver:      core.StorageDriver(env.str(EnvStorageDriver, string(core.StorageSQLite))),
			SQLitePath:  env.str(EnvSQLitePath, ""),
			PostgresDSN: env.str(EnvPostgresDSN, ""),
		},
		Blob: blob.Config{
			Driver: blob.Driver(env.str(EnvBlobDriver, string(blob.DriverFilesystem))),
			FSRoot: env.str(EnvBlobFSRoot, blob.DefaultFilesystemRoot),
			S3: blob.S3Config{
				Bucket:          env.str(EnvBlobS3Bucket, ""),
				Region:          env.str(EnvBlobS3Region, ""),
				Endpoint:        env.str(EnvBlobS3Endpoint, ""),
				AccessKeyID:     env.str(EnvBlobS3AccessKey, ""),
				SecretAccessKey: env.str(EnvBlobS3SecretKey, ""),
				SessionToken:    env.str(EnvBlobS3Session, ""),
				PathStyle:       env.boolean(EnvBlobS3PathStyle, false),
			},
		},
		HTTPAddr:  env.str(EnvHTTPAddr, DefaultHTTPAddr),
		LogLevel:  env.level(EnvLogLevel),
		LogFormat: strings.ToLower(env.str(EnvLogFormat, DefaultLogFormat)),
		Policy: core.Policy{
			DirectorOversight: env.boolean(EnvDirectorOversight, true),
			DirectorDelete:    env.boolean(EnvDirectorDelete, false),
		},
		BootstrapAdmin:  env.str(EnvBootstrapAdmin, ""),
		ShutdownTimeout: env.duration(EnvShutdownTimeout, DefaultShutdownTimeout),
	}
	if env.err != nil {
		return nil, env.err
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return &Error{Var: EnvPostgresDSN, Reason: "required when " + EnvStorageDriver + "=postgres"}
		}
	default:
		return &Error{Var: EnvStorageDriver, Value: string(c.Storage.Driver), Reason: "expected memory, sqlite or postgres"}
	}
	switch c.Blob.Driver {
	case blob.DriverMemory, blob.DriverFilesystem:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return &Error{Var: EnvBlobS3Bucket, Reason: "required when " + EnvBlobDriver + "=s3"}
		}
	default:
		return &Error{Var: EnvBlobDriver, Value: string(c.Blob.Driver), Reason: "expected memory, fs or s3"}
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return &Error{Var: EnvLogFormat, Value: c.LogFormat, Reason: "expected json or text"}
	}
	return nil
}

// reader keeps the first parse error.
type reader struct {
	getenv func(string) string
	err    error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) fail(key, value, reason string) {
	if r.err == nil {
		r.err = &Error{Var: key, Value: value, Reason: reason}
	}
}

func (r *reader) boolean(key string, def bool) bool {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.fail(key, raw, "expected a boolean")
		return def
	}
	return v
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		r.fail(key, raw, "expected a positive duration")
		return def
	}
	return v
}

func (r *reader) level(key string) slog.Level {
	raw := r.str(key, "")
	if raw == "" {
		return slog.LevelInfo
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		r.fail(key, raw, "expected debug, info, warn or error")
		return slog.LevelInfo
	}
	return lvl
}
