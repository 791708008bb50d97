// Command imserver runs the instant messaging server: it loads the JSON
// configuration, opens the user store and cache, wires the message handlers,
// and serves TCP until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyberinferno/im-server/config"
	"github.com/cyberinferno/im-server/handlers"
	"github.com/cyberinferno/im-server/identity"
	"github.com/cyberinferno/im-server/logger"
	"github.com/cyberinferno/im-server/protocol"
	"github.com/cyberinferno/im-server/registry"
	"github.com/cyberinferno/im-server/router"
	"github.com/cyberinferno/im-server/server"
)

const serviceName = "im-server"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := "config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Close()

	log.Info("starting",
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "addr", Value: cfg.Server.Addr()})

	store, err := identity.NewSQLiteStore(cfg.Database.Path, log)
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer store.Close()

	cache, redisClient := newCache(cfg.Cache, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	users := identity.NewManager(store, cache, log)

	rt := router.New(log)
	rt.Register(protocol.TypeEchoRequest, handlers.NewEcho(log))
	rt.Register(protocol.TypeLoginRequest, handlers.NewLogin(users, log))
	rt.Register(protocol.TypeRegisterRequest, handlers.NewRegister(users, log))

	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr(),
		Workers:        cfg.Server.WorkerThreads,
		MaxConnections: cfg.Server.MaxConnections,
	}, rt, registry.New(log), log)

	if err := srv.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh

	log.Info("shutdown signal received", logger.Field{Key: "signal", Value: sig.String()})
	srv.Stop()

	return nil
}

func newLogger(cfg config.LoggingConfig) (logger.Logger, error) {
	level := logger.ParseLevel(cfg.Level)
	if cfg.Dir == "" {
		return logger.New(serviceName, level), nil
	}
	return logger.NewFile(serviceName, cfg.Dir, level)
}

// newCache builds the user cache for the configured backend. The redis
// client is returned so the caller can close it; it is nil for the other
// backends. A "none" backend returns a nil cache, which the identity manager
// treats as cache-off.
func newCache(cfg config.CacheConfig, log logger.Logger) (identity.UserCache, *redis.Client) {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second

	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		log.Info("using redis user cache", logger.Field{Key: "addr", Value: cfg.RedisAddr})
		return identity.NewRedisCache(client, ttl), client
	case "none":
		return nil, nil
	default:
		return identity.NewMemoryCache(ttl, 2*ttl), nil
	}
}
