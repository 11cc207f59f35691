package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the self-service server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Loader   LoaderConfig
}

type ServerConfig struct {
	Port             int
	Env              string
	RemoteUserHeader string
	RateLimit        int
	StatusCacheTTL   time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

// LoaderConfig controls how loaders are named and keyed.
type LoaderConfig struct {
	NamePrefix string
	ExpectEnv  string
	BcryptCost int
}

var namePrefixPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:             envInt("SELFSERVICE_PORT", 2000),
			Env:              envString("SELFSERVICE_ENV", "development"),
			RemoteUserHeader: envString("SELFSERVICE_REMOTE_USER_HEADER", "REMOTE_USER"),
			RateLimit:        envInt("SELFSERVICE_RATE_LIMIT", 30),
			StatusCacheTTL:   envDuration("SELFSERVICE_STATUS_CACHE_TTL", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("SELFSERVICE_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Loader: LoaderConfig{
			NamePrefix: envString("SELFSERVICE_LOADER_PREFIX", "migss"),
			ExpectEnv:  os.Getenv("SELFSERVICE_EXPECT_ENV"),
			BcryptCost: envInt("SELFSERVICE_BCRYPT_COST", 10),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SELFSERVICE_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RemoteUserHeader == "" {
		return fmt.Errorf("SELFSERVICE_REMOTE_USER_HEADER must not be empty")
	}
	if !namePrefixPattern.MatchString(c.Loader.NamePrefix) {
		return fmt.Errorf("SELFSERVICE_LOADER_PREFIX must be alphanumeric, got %q", c.Loader.NamePrefix)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
