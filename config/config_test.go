package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "memory", cfg.Cache.Backend)
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"host": "127.0.0.1", "port": 9000, "max_connections": 64, "worker_threads": 8},
		"logging": {"level": "debug", "dir": "/tmp/logs"},
		"database": {"path": "/tmp/users.db"},
		"cache": {"backend": "redis", "redis_addr": "10.0.0.5:6379", "ttl_seconds": 60}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
	assert.Equal(t, 64, cfg.Server.MaxConnections)
	assert.Equal(t, 8, cfg.Server.WorkerThreads)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/logs", cfg.Logging.Dir)
	assert.Equal(t, "/tmp/users.db", cfg.Database.Path)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "10.0.0.5:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 60, cfg.Cache.TTLSeconds)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `{"server": {"port": 9999}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 1024, cfg.Server.MaxConnections)
	assert.Equal(t, 4, cfg.Server.WorkerThreads)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "im_server.db", cfg.Database.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"server": `)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"no connections", func(c *Config) { c.Server.MaxConnections = 0 }},
		{"no workers", func(c *Config) { c.Server.WorkerThreads = 0 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"redis without addr", func(c *Config) {
			c.Cache.Backend = "redis"
			c.Cache.RedisAddr = ""
		}},
		{"zero ttl", func(c *Config) { c.Cache.TTLSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateNoneBackendIgnoresTTL(t *testing.T) {
	cfg := Default()
	cfg.Cache.Backend = "none"
	cfg.Cache.RedisAddr = ""
	cfg.Cache.TTLSeconds = 0

	assert.NoError(t, cfg.Validate())
}
