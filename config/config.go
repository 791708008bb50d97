// Package config loads the im-server JSON configuration file and applies
// defaults for anything the file leaves out.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
)

// ServerConfig holds the listener and capacity settings.
type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	MaxConnections int    `json:"max_connections"`
	WorkerThreads  int    `json:"worker_threads"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LoggingConfig holds the log level and optional file output directory.
// An empty Dir logs to stdout only.
type LoggingConfig struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// DatabaseConfig holds the user store settings.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// CacheConfig selects the user cache backend: "memory", "redis", or "none".
type CacheConfig struct {
	Backend    string `json:"backend"`
	RedisAddr  string `json:"redis_addr"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Logging  LoggingConfig  `json:"logging"`
	Database DatabaseConfig `json:"database"`
	Cache    CacheConfig    `json:"cache"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			MaxConnections: 1024,
			WorkerThreads:  4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Database: DatabaseConfig{
			Path: "im_server.db",
		},
		Cache: CacheConfig{
			Backend:    "memory",
			RedisAddr:  "127.0.0.1:6379",
			TTLSeconds: 300,
		},
	}
}

// Load reads the JSON file at path on top of the defaults, so partial files
// only override what they mention.
//
// Parameters:
//   - path: The configuration file path
//
// Returns:
//   - The merged configuration, or an error if the file cannot be read,
//     parsed, or validated
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxConnections < 1 {
		return fmt.Errorf("server.max_connections must be positive")
	}
	if c.Server.WorkerThreads < 1 {
		return fmt.Errorf("server.worker_threads must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}

	switch c.Cache.Backend {
	case "none":
		return nil
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr must be set for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q is not one of memory, redis, none", c.Cache.Backend)
	}
	if c.Cache.TTLSeconds < 1 {
		return fmt.Errorf("cache.ttl_seconds must be positive")
	}

	return nil
}
