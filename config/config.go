package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cameronmore/go-admin-sessions/env"
)

// Storage backends the daemon can run the admin session on.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Secrets read from the .env file or the process environment.
const (
	PostgresDSNEnv   = "ADMIN_POSTGRES_DSN"
	RedisPasswordEnv = "ADMIN_REDIS_PASSWORD"
)

type Config struct {
	Environment string `toml:"-"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	// logging
	LogLevel    string `toml:"log_level"`
	LogsPath    string `toml:"logs_path"`
	LogToStdout bool   `toml:"log_to_stdout"`
	LogJSON     bool   `toml:"log_json"`
	// session
	SessionTTL Duration `toml:"session_ttl"`
	// storage
	Storage        string `toml:"storage"`
	StorageFile    string `toml:"storage_file"`
	SQLitePath     string `toml:"sqlite_path"`
	RedisAddr      string `toml:"redis_addr"`
	RedisKeyPrefix string `toml:"redis_key_prefix"`

	PostgresDSN   string `toml:"-"`
	RedisPassword string `toml:"-"`
}

// Duration is a time.Duration written as a string ("24h") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(environment string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(environment) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	default:
		return nil, fmt.Errorf("unknown env: %s", environment)
	}
	if cfg == nil {
		return nil, fmt.Errorf("no config section for env: %s", environment)
	}
	cfg.Environment = strings.ToLower(environment)
	return cfg, nil
}

// Loads the config section for environment from the TOML file at tomlPath and fills in secrets from the .env
// file at dotenvPath. A missing .env file is not an error, the process environment is used instead.
func Load(environment, tomlPath, dotenvPath string) (*Config, error) {
	var t Toml
	if _, err := toml.DecodeFile(tomlPath, &t); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", tomlPath, err)
	}
	cfg, err := t.Get(environment)
	if err != nil {
		return nil, err
	}
	if err := cfg.loadSecrets(dotenvPath); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) loadSecrets(dotenvPath string) error {
	envMap := map[string]string{}
	if dotenvPath != "" {
		var err error
		envMap, err = env.ProcessEnv(dotenvPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read %s: %w", dotenvPath, err)
		}
	}
	c.PostgresDSN, _ = env.Lookup(envMap, PostgresDSNEnv)
	c.RedisPassword, _ = env.Lookup(envMap, RedisPasswordEnv)
	return nil
}

func (c *Config) setDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Storage == "" {
		c.Storage = StorageMemory
	}
	if c.SessionTTL.Duration <= 0 {
		c.SessionTTL.Duration = 24 * time.Hour
	}
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StorageFile:
		if c.StorageFile == "" {
			return errors.New("storage_file must be set for file storage")
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite_path must be set for sqlite storage")
		}
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%s must be set for postgres storage", PostgresDSNEnv)
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return errors.New("redis_addr must be set for redis storage")
		}
	default:
		return fmt.Errorf("unknown storage: %s", c.Storage)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
