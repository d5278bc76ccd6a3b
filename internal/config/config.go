// Package config loads memhive settings from defaults, an optional YAML file,
// an optional .env file and MEMHIVE_* environment variables, in that order of
// increasing precedence. Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backends understood by the CLI.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendEtcd   = "etcd"
)

// Config holds every setting memhive consumes.
type Config struct {
	AgentID   string `yaml:"agent_id"`
	ProjectID string `yaml:"project_id"`
	Backend   string `yaml:"backend"`
	LogLevel  string `yaml:"log_level"`

	Scanner ScannerConfig `yaml:"scanner"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	Redis   RedisConfig   `yaml:"redis"`
	Etcd    EtcdConfig    `yaml:"etcd"`
	Export  ExportConfig  `yaml:"export"`
}

// ScannerConfig toggles the sensitive-content scanner.
type ScannerConfig struct {
	Enabled bool `yaml:"enabled"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Prefix   string `yaml:"prefix"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	Namespace   string        `yaml:"namespace"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// DefaultConfig returns the built-in defaults: a local SQLite store under
// ~/.memhive with scanning enabled.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Backend:  BackendSQLite,
		LogLevel: "info",
		Scanner:  ScannerConfig{Enabled: true},
		SQLite:   SQLiteConfig{Path: filepath.Join(home, ".memhive", "memhive.db")},
		Redis:    RedisConfig{URL: "redis://localhost:6379/0", Prefix: "memhive"},
		Etcd: EtcdConfig{
			Endpoints:   []string{"localhost:2379"},
			Namespace:   "memhive",
			DialTimeout: 5 * time.Second,
		},
		Export: ExportConfig{Dir: "."},
	}
}

// Load builds the configuration. configPath and envFile may be empty, in
// which case $MEMHIVE_CONFIG (or ~/.config/memhive/config.yaml) and ./.env
// are tried and silently skipped when missing. Explicit paths must exist.
func Load(configPath, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := configPath != ""
	if !explicit {
		configPath = defaultConfigPath()
	}
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	explicitEnv := envFile != ""
	if !explicitEnv {
		envFile = ".env"
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(envFile); err != nil {
		if explicitEnv || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfigPath() string {
	if p := os.Getenv("MEMHIVE_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "memhive", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "memhive", "config.yaml")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func loadFromEnv(cfg *Config) error {
	str := map[string]*string{
		"MEMHIVE_AGENT_ID":       &cfg.AgentID,
		"MEMHIVE_PROJECT_ID":     &cfg.ProjectID,
		"MEMHIVE_BACKEND":        &cfg.Backend,
		"MEMHIVE_LOG_LEVEL":      &cfg.LogLevel,
		"MEMHIVE_SQLITE_PATH":    &cfg.SQLite.Path,
		"MEMHIVE_REDIS_URL":      &cfg.Redis.URL,
		"MEMHIVE_REDIS_PREFIX":   &cfg.Redis.Prefix,
		"MEMHIVE_REDIS_USERNAME": &cfg.Redis.Username,
		"MEMHIVE_REDIS_PASSWORD": &cfg.Redis.Password,
		"MEMHIVE_ETCD_NAMESPACE": &cfg.Etcd.Namespace,
		"MEMHIVE_ETCD_USERNAME":  &cfg.Etcd.Username,
		"MEMHIVE_ETCD_PASSWORD":  &cfg.Etcd.Password,
		"MEMHIVE_EXPORT_DIR":     &cfg.Export.Dir,
	}
	for name, dst := range str {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("MEMHIVE_ETCD_ENDPOINTS"); v != "" {
		cfg.Etcd.Endpoints = splitList(v)
	}
	if v := os.Getenv("MEMHIVE_ETCD_DIAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MEMHIVE_ETCD_DIAL_TIMEOUT %q: %w", v, err)
		}
		cfg.Etcd.DialTimeout = d
	}
	if v := os.Getenv("MEMHIVE_SCANNER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid MEMHIVE_SCANNER %q: %w", v, err)
		}
		cfg.Scanner.Enabled = b
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the backend selection and its required settings.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis backend")
		}
	case BackendEtcd:
		if len(c.Etcd.Endpoints) == 0 {
			return fmt.Errorf("etcd.endpoints is required for the etcd backend")
		}
	default:
		return fmt.Errorf("invalid backend %q: expected memory, sqlite, redis or etcd", c.Backend)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
