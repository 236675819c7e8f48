// Package config loads the factoryd configuration from the environment and
// optional .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"factorycore/internal/core"
	"factorycore/internal/infra/blob"
	blobcore "factorycore/internal/infra/blob/core"
	"factorycore/internal/infra/blob/s3"
	"factorycore/internal/logging"
)

// Prefix is prepended to every environment variable read by Load.
const Prefix = "FACTORY_"

// Config is the complete process configuration.
type Config struct {
	// Storage
	StorageDriver string
	SQLitePath    string
	PostgresDSN   string

	// Blob side-store for factory images; empty driver keeps images inline.
	BlobDriver string
	BlobRoot   string
	S3         S3Config

	// HTTP
	HTTPAddr        string
	BaseURL         string
	JWTSecret       string
	ShutdownTimeout time.Duration

	// Resolvers
	GitHosts []string

	// Logging
	Log logging.Config
}

// S3Config holds the S3 / MinIO blob settings.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// Load reads files (".env" when none are given) into the environment
// without overriding variables already set, then builds and validates the
// configuration. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", string(core.StorageSQLite))),
		SQLitePath:    getEnv("SQLITE_PATH", ""),
		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		BlobDriver:    strings.ToLower(getEnv("BLOB_DRIVER", "")),
		BlobRoot:      getEnv("BLOB_ROOT", ""),
		S3: S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			PathStyle:       getEnvBool("S3_PATH_STYLE", false),
		},
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		BaseURL:         strings.TrimRight(getEnv("BASE_URL", core.DefaultBaseURL), "/"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		GitHosts:        getEnvList("GIT_HOSTS"),
		Log: logging.Config{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			FilePath:   getEnv("LOG_FILE_PATH", "logs/factoryd.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 28),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks option combinations that cannot work.
func (c *Config) Validate() error {
	switch core.StorageDriver(c.StorageDriver) {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		return fmt.Errorf("%sSTORAGE_DRIVER %q is not one of memory, sqlite, postgres", Prefix, c.StorageDriver)
	}
	switch blobcore.Driver(c.BlobDriver) {
	case "", blobcore.DriverFilesystem, blobcore.DriverMemory:
	case blobcore.DriverS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("%sS3_BUCKET is required for the s3 blob driver", Prefix)
		}
	default:
		return fmt.Errorf("%sBLOB_DRIVER %q is not one of fs, memory, s3", Prefix, c.BlobDriver)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("%sHTTP_ADDR is required", Prefix)
	}
	return nil
}

// Storage converts the configuration into core storage settings.
func (c *Config) Storage() core.StorageConfig {
	out := core.StorageConfig{
		Driver:      core.StorageDriver(c.StorageDriver),
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
	}
	if c.BlobDriver != "" {
		out.Blob = &blob.Config{
			Driver: blobcore.Driver(c.BlobDriver),
			FSRoot: c.BlobRoot,
			S3: s3.Config{
				Bucket:          c.S3.Bucket,
				Region:          c.S3.Region,
				Endpoint:        c.S3.Endpoint,
				AccessKeyID:     c.S3.AccessKeyID,
				SecretAccessKey: c.S3.SecretAccessKey,
				PathStyle:       c.S3.PathStyle,
			},
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(Prefix + key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := getEnv(key, ""); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := getEnv(key, ""); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := getEnv(key, ""); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
