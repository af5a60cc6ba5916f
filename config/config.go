package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr     string `yaml:"addr" env:"TAJA_ADDR"`
	LogLevel string `yaml:"logLevel" env:"TAJA_LOG_LEVEL"`

	DBDriver string `yaml:"dbDriver" env:"TAJA_DB_DRIVER"`
	DBDSN    string `yaml:"dbDSN" env:"TAJA_DB_DSN"`

	JWTSecret  string        `yaml:"jwtSecret" env:"TAJA_JWT_SECRET"`
	AccessTTL  time.Duration `yaml:"accessTTL" env:"TAJA_ACCESS_TTL"`
	RefreshTTL time.Duration `yaml:"refreshTTL" env:"TAJA_REFRESH_TTL"`

	OpenCageAPIKey  string        `yaml:"openCageAPIKey" env:"TAJA_OPENCAGE_API_KEY"`
	OpenCageURL     string        `yaml:"openCageURL" env:"TAJA_OPENCAGE_URL"`
	GeocodeCacheTTL time.Duration `yaml:"geocodeCacheTTL" env:"TAJA_GEOCODE_CACHE_TTL"`
	GeocodeCacheMax int           `yaml:"geocodeCacheMax" env:"TAJA_GEOCODE_CACHE_MAX"`
	RedisAddr       string        `yaml:"redisAddr" env:"TAJA_REDIS_ADDR"`
	RedisPassword   string        `yaml:"redisPassword" env:"TAJA_REDIS_PASSWORD"`
	RedisDB         int           `yaml:"redisDB" env:"TAJA_REDIS_DB"`

	PhotoBackend       string `yaml:"photoBackend" env:"TAJA_PHOTO_BACKEND"`
	MediaRoot          string `yaml:"mediaRoot" env:"TAJA_MEDIA_ROOT"`
	MediaURL           string `yaml:"mediaURL" env:"TAJA_MEDIA_URL"`
	GCSBucket          string `yaml:"gcsBucket" env:"TAJA_GCS_BUCKET"`
	GCSCredentialsFile string `yaml:"gcsCredentialsFile" env:"TAJA_GCS_CREDENTIALS_FILE"`
	MaxPhotoBytes      int64  `yaml:"maxPhotoBytes" env:"TAJA_MAX_PHOTO_BYTES"`

	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins" env:"TAJA_CORS_ALLOWED_ORIGINS" envSeparator:","`
}

var (
	cfg Config
	mu  sync.RWMutex
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	PhotoBackendLocal = "local"
	PhotoBackendGCS   = "gcs"

	insecureSecret = "unsafe-secret-key"
)

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Addr:               ":8000",
		LogLevel:           "info",
		DBDriver:           DriverSQLite,
		DBDSN:              "./taja.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on",
		JWTSecret:          insecureSecret,
		AccessTTL:          15 * time.Minute,
		RefreshTTL:         24 * time.Hour,
		OpenCageURL:        "https://api.opencagedata.com/geocode/v1/json",
		GeocodeCacheTTL:    30 * 24 * time.Hour,
		GeocodeCacheMax:    10000,
		PhotoBackend:       PhotoBackendLocal,
		MediaRoot:          "./media",
		MediaURL:           "/media/",
		MaxPhotoBytes:      2 * 1024 * 1024,
		CORSAllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
	}
}

// LoadConfig reads the optional YAML file at path, overlays TAJA_* environment
// variables and stores the result for GetConfig.
func LoadConfig(path string) (Config, error) {
	c := Default()

	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, &c); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	c.DBDriver = strings.TrimSpace(c.DBDriver)
	c.PhotoBackend = strings.ToLower(strings.TrimSpace(c.PhotoBackend))
	if !strings.HasSuffix(c.MediaURL, "/") {
		c.MediaURL += "/"
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	mu.Lock()
	cfg = c
	mu.Unlock()
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unsupported db driver %q", c.DBDriver))
	}
	if c.DBDSN == "" {
		errs = append(errs, errors.New("db dsn is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token ttls must be positive"))
	}
	switch c.PhotoBackend {
	case PhotoBackendLocal:
		if c.MediaRoot == "" {
			errs = append(errs, errors.New("media root is required for the local photo backend"))
		}
	case PhotoBackendGCS:
		if c.GCSBucket == "" {
			errs = append(errs, errors.New("gcs bucket is required for the gcs photo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported photo backend %q", c.PhotoBackend))
	}
	if c.MaxPhotoBytes <= 0 {
		errs = append(errs, errors.New("max photo bytes must be positive"))
	}
	return errors.Join(errs...)
}

// UsesInsecureSecret reports whether the built-in development secret is active.
func (c Config) UsesInsecureSecret() bool {
	return c.JWTSecret == insecureSecret
}

func GetConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}
