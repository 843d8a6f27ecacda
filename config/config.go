// Package config loads service configuration from an optional YAML file,
// CLIMATE_ prefixed environment variables and the legacy unprefixed
// variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CLIMATE_"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	DB         DBConfig         `koanf:"db"`
	Auth       AuthConfig       `koanf:"auth"`
	CORS       CORSConfig       `koanf:"cors"`
	Tracking   TrackingConfig   `koanf:"tracking"`
	ClickHouse ClickHouseConfig `koanf:"clickhouse"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

type ServerConfig struct {
	Port    int    `koanf:"port"`
	Env     string `koanf:"env"`
	GinMode string `koanf:"gin_mode"`
}

type DBConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	APIKey    string        `koanf:"api_key"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

type CORSConfig struct {
	Origin string `koanf:"origin"`
}

type TrackingConfig struct {
	// StrictSessions rejects events that reference unknown sessions.
	StrictSessions bool `koanf:"strict_sessions"`
}

// ClickHouseConfig enables the event mirror when Host is set.
type ClickHouseConfig struct {
	Host          string        `koanf:"host"`
	Port          int           `koanf:"port"`
	Database      string        `koanf:"database"`
	Username      string        `koanf:"username"`
	Password      string        `koanf:"password"`
	BatchSize     int           `koanf:"batch_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

func (c ClickHouseConfig) Enabled() bool { return c.Host != "" }

type TelemetryConfig struct {
	TracingEnabled bool `koanf:"tracing_enabled"`
}

var (
	ErrMissingJWTSecret = errors.New("auth.jwt_secret (JWT_SECRET_KEY) is required")
	ErrInvalidPort      = errors.New("server.port must be between 1 and 65535")
	ErrInvalidDriver    = errors.New("db.driver must be one of sqlite, postgres, memory")
	ErrMissingDSN       = errors.New("db.dsn (DATABASE_URL) is required for postgres")
	ErrInvalidTokenTTL  = errors.New("auth.token_ttl must be positive")
	ErrInvalidBatchSize = errors.New("clickhouse.batch_size must be positive")
)

const (
	DefaultPort          = 8080
	DefaultEnv           = "development"
	DefaultDriver        = DriverSQLite
	DefaultSQLiteDSN     = "climate_data.db"
	DefaultOrigin        = "http://localhost:3000"
	DefaultTokenTTL      = 24 * time.Hour
	DefaultCHPort        = 9000
	DefaultCHBatchSize   = 500
	DefaultFlushInterval = 5 * time.Second
)

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: DefaultPort, Env: DefaultEnv},
		DB:     DBConfig{Driver: DefaultDriver},
		Auth:   AuthConfig{TokenTTL: DefaultTokenTTL},
		CORS:   CORSConfig{Origin: DefaultOrigin},
		Tracking: TrackingConfig{
			StrictSessions: true,
		},
		ClickHouse: ClickHouseConfig{
			Port:          DefaultCHPort,
			BatchSize:     DefaultCHBatchSize,
			FlushInterval: DefaultFlushInterval,
		},
	}
}

// LoadDotEnv loads a .env file if one exists. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Load builds the configuration and returns every validation error found.
// A config file that cannot be read is reported alone.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// CLIMATE_CLICKHOUSE_BATCH_SIZE -> clickhouse.batch_size
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, []error{fmt.Errorf("failed to load environment: %w", err)}
	}

	cfg := defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, []error{fmt.Errorf("failed to decode config: %w", err)}
	}

	loadErrs := applyLegacyEnv(&cfg)
	if cfg.DB.Driver == DriverSQLite && cfg.DB.DSN == "" {
		cfg.DB.DSN = DefaultSQLiteDSN
	}

	return &cfg, append(loadErrs, cfg.Validate()...)
}

// applyLegacyEnv honours the unprefixed variables older deployments set.
func applyLegacyEnv(cfg *Config) []error {
	var errs []error

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PORT: %w", ErrInvalidPort))
		} else {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GIN_MODE"); v != "" {
		cfg.Server.GinMode = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DB.DSN = v
		if os.Getenv(envPrefix+"DB_DRIVER") == "" {
			cfg.DB.Driver = DriverPostgres
		}
	}
	if v := os.Getenv("JWT_SECRET_KEY"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("AUTH_DEFAULT"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("FE_ORIGIN"); v != "" {
		cfg.CORS.Origin = v
	}

	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		cfg.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_NATIVE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CLICKHOUSE_NATIVE_PORT must be a valid integer: %w", err))
		} else {
			cfg.ClickHouse.Port = port
		}
	}
	if v := os.Getenv("CLICKHOUSE_DB_NAME"); v != "" {
		cfg.ClickHouse.Database = v
	}
	if v := os.Getenv("CLICKHOUSE_USERNAME"); v != "" {
		cfg.ClickHouse.Username = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		cfg.ClickHouse.Password = v
	}
	return errs
}

// Validate checks required values and ranges.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	switch c.DB.Driver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.DB.DSN == "" {
			errs = append(errs, ErrMissingDSN)
		}
	default:
		errs = append(errs, ErrInvalidDriver)
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, ErrInvalidTokenTTL)
	}
	if c.ClickHouse.Enabled() && c.ClickHouse.BatchSize <= 0 {
		errs = append(errs, ErrInvalidBatchSize)
	}
	return errs
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}
