// Package config loads immobilog settings from an optional YAML file and
// IMMOBILOG_* environment variables using viper.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"immobilog/internal/blob"
	"immobilog/internal/core"
)

// EnvPrefix is prepended to every environment override, e.g.
// IMMOBILOG_STORAGE_DRIVER for storage.driver.
const EnvPrefix = "IMMOBILOG"

// Setting keys.
const (
	KeyStorageDriver        = "storage.driver"
	KeyStorageSQLitePath    = "storage.sqlite_path"
	KeyStoragePostgresDSN   = "storage.postgres_dsn"
	KeyStorageRedisAddr     = "storage.redis_addr"
	KeyStorageRedisPassword = "storage.redis_password"
	KeyStorageRedisDB       = "storage.redis_db"
	KeyStorageRedisPrefix   = "storage.redis_prefix"
	KeyBlobDriver           = "blob.driver"
	KeyBlobFSRoot           = "blob.fs_root"
	KeyBlobS3Bucket         = "blob.s3_bucket"
	KeyBlobS3Region         = "blob.s3_region"
	KeyBlobS3Endpoint       = "blob.s3_endpoint"
	KeyBlobS3Prefix         = "blob.s3_prefix"
	KeyBlobS3PathStyle      = "blob.s3_path_style"
	KeyLogLevel             = "log.level"
	KeyLogFormat            = "log.format"
	KeyProtocolsFile        = "protocols.file"
	KeyMetricsFile          = "metrics.file"
	KeyTimezone             = "display.timezone"
)

// Log configures the zap logger.
type Log struct {
	Level  string
	Format string
}

// Config is the resolved application configuration.
type Config struct {
	Storage       core.StorageConfig
	Blob          blob.Config
	Log           Log
	ProtocolsFile string
	MetricsFile   string
	// Timezone names the location used for human-readable timestamps. Empty
	// means the process local time.
	Timezone string
	// File is the config file that was read, if any.
	File string
}

func defaults(v *viper.Viper) {
	v.SetDefault(KeyStorageDriver, string(core.StorageSQLite))
	v.SetDefault(KeyStorageSQLitePath, "immobilog.db")
	v.SetDefault(KeyStorageRedisAddr, "localhost:6379")
	v.SetDefault(KeyStorageRedisPrefix, "immobilog:")
	v.SetDefault(KeyBlobDriver, string(blob.DriverFilesystem))
	v.SetDefault(KeyBlobFSRoot, "exports")
	v.SetDefault(KeyBlobS3Region, "us-east-1")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
}

// Load reads path when non-empty, otherwise an immobilog.yaml in the working
// directory if one exists, then applies environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("immobilog")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Storage: core.StorageConfig{
			Driver:        core.StorageDriver(strings.ToLower(v.GetString(KeyStorageDriver))),
			SQLitePath:    v.GetString(KeyStorageSQLitePath),
			PostgresDSN:   v.GetString(KeyStoragePostgresDSN),
			RedisAddr:     v.GetString(KeyStorageRedisAddr),
			RedisPassword: v.GetString(KeyStorageRedisPassword),
			RedisDB:       v.GetInt(KeyStorageRedisDB),
			RedisPrefix:   v.GetString(KeyStorageRedisPrefix),
		},
		Blob: blob.Config{
			Driver: blob.Driver(strings.ToLower(v.GetString(KeyBlobDriver))),
			FSRoot: v.GetString(KeyBlobFSRoot),
			S3: blob.S3Config{
				Bucket:    v.GetString(KeyBlobS3Bucket),
				Region:    v.GetString(KeyBlobS3Region),
				Endpoint:  v.GetString(KeyBlobS3Endpoint),
				Prefix:    v.GetString(KeyBlobS3Prefix),
				PathStyle: v.GetBool(KeyBlobS3PathStyle),
			},
		},
		Log: Log{
			Level:  strings.ToLower(v.GetString(KeyLogLevel)),
			Format: strings.ToLower(v.GetString(KeyLogFormat)),
		},
		ProtocolsFile: v.GetString(KeyProtocolsFile),
		MetricsFile:   v.GetString(KeyMetricsFile),
		Timezone:      v.GetString(KeyTimezone),
		File:          v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the enumerated settings.
func (c Config) Validate() error {
	var problems []string
	switch c.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite, core.StorageRedis:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			problems = append(problems, KeyStoragePostgresDSN+" is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("%s: unknown driver %q", KeyStorageDriver, c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			problems = append(problems, KeyBlobS3Bucket+" is required for the s3 driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("%s: unknown driver %q", KeyBlobDriver, c.Blob.Driver))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("%s: unknown level %q", KeyLogLevel, c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("%s: unknown format %q", KeyLogFormat, c.Log.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
