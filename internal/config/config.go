// Package config loads server configuration from an optional YAML file and
// ENTITYHUB_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rpggio/entityhub/internal/caller"
	"github.com/rpggio/entityhub/internal/entity"
)

// ErrInvalid indicates a configuration value is out of range.
var ErrInvalid = errors.New("invalid configuration")

// Supported storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
	DriverDynamo = "dynamodb"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	Transport TransportConfig `yaml:"transport"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Driver            string `yaml:"driver"`
	Path              string `yaml:"path"`
	MongoURI          string `yaml:"mongo_uri"`
	MongoDatabase     string `yaml:"mongo_database"`
	DynamoRegion      string `yaml:"dynamo_region"`
	DynamoEndpoint    string `yaml:"dynamo_endpoint"`
	DynamoTablePrefix string `yaml:"dynamo_table_prefix"`
}

type StoreConfig struct {
	Collections    []string            `yaml:"collections"`
	RequiredFields map[string][]string `yaml:"required_fields"`
	DefaultLimit   int                 `yaml:"default_limit"`
	MaxLimit       int                 `yaml:"max_limit"`
	OpTimeout      time.Duration       `yaml:"op_timeout"`
}

type AuthConfig struct {
	Enabled bool         `yaml:"enabled"`
	APIKeys []caller.Key `yaml:"api_keys"`
}

type TransportConfig struct {
	Mode string `yaml:"mode"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// Default returns the configuration used before any file or environment overrides.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Driver:            DriverSQLite,
			Path:              "entityhub.db",
			MongoURI:          "mongodb://localhost:27017",
			MongoDatabase:     "entityhub",
			DynamoRegion:      "us-east-1",
			DynamoTablePrefix: "entityhub_",
		},
		Store: StoreConfig{
			Collections:  append([]string(nil), entity.DefaultCollections...),
			DefaultLimit: 50,
			MaxLimit:     100,
			OpTimeout:    10 * time.Second,
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv("ENTITYHUB_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(getenv, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(getenv func(string) string, cfg *Config) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("ENTITYHUB_SERVER_HOST", &cfg.Server.Host)
	if err := num("ENTITYHUB_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}

	str("ENTITYHUB_DB_DRIVER", &cfg.DB.Driver)
	str("ENTITYHUB_DB_PATH", &cfg.DB.Path)
	str("ENTITYHUB_MONGO_URI", &cfg.DB.MongoURI)
	str("ENTITYHUB_MONGO_DATABASE", &cfg.DB.MongoDatabase)
	str("ENTITYHUB_DYNAMO_REGION", &cfg.DB.DynamoRegion)
	str("ENTITYHUB_DYNAMO_ENDPOINT", &cfg.DB.DynamoEndpoint)
	str("ENTITYHUB_DYNAMO_TABLE_PREFIX", &cfg.DB.DynamoTablePrefix)

	if v := getenv("ENTITYHUB_COLLECTIONS"); v != "" {
		cfg.Store.Collections = splitList(v)
	}
	if err := num("ENTITYHUB_DEFAULT_LIMIT", &cfg.Store.DefaultLimit); err != nil {
		return err
	}
	if err := num("ENTITYHUB_MAX_LIMIT", &cfg.Store.MaxLimit); err != nil {
		return err
	}
	if v := getenv("ENTITYHUB_OP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ENTITYHUB_OP_TIMEOUT: %w", err)
		}
		cfg.Store.OpTimeout = d
	}

	if v := getenv("ENTITYHUB_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ENTITYHUB_AUTH_ENABLED: %w", err)
		}
		cfg.Auth.Enabled = enabled
	}

	str("ENTITYHUB_TRANSPORT", &cfg.Transport.Mode)
	str("ENTITYHUB_LOG_LEVEL", &cfg.Log.Level)
	str("ENTITYHUB_LOG_PATH", &cfg.Log.Path)
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	switch c.DB.Driver {
	case DriverMemory, DriverSQLite, DriverMongo, DriverDynamo:
	default:
		return fmt.Errorf("%w: unknown db driver %q", ErrInvalid, c.DB.Driver)
	}
	switch c.Transport.Mode {
	case "http", "stdio":
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalid, c.Transport.Mode)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Server.Port)
	}
	if len(c.Store.Collections) == 0 {
		return fmt.Errorf("%w: no collections", ErrInvalid)
	}
	for _, name := range c.Store.Collections {
		if err := entity.ValidateCollectionName(name); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	if c.Store.DefaultLimit < 0 || c.Store.MaxLimit < 0 || c.Store.OpTimeout < 0 {
		return fmt.Errorf("%w: limits and timeouts must not be negative", ErrInvalid)
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("%w: auth enabled without api_keys", ErrInvalid)
	}
	return nil
}
