// Package server implements the TCP listener, the worker pool, and the
// per-connection session engine of the im-server. The server accepts
// connections, wraps each in a Session bound to the shared router and
// registry, and hands sessions to a fixed pool of workers; each worker runs
// one session's loop at a time, so connections load-balance across workers
// and queue when all workers are busy.
package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/im-server/logger"
	"github.com/cyberinferno/im-server/registry"
	"github.com/cyberinferno/im-server/router"
)

// Config holds the server's listen and capacity settings.
type Config struct {
	// Addr is the "host:port" to listen on.
	Addr string
	// Workers is the number of session workers. Values below 1 fall back to
	// DefaultWorkers.
	Workers int
	// MaxConnections bounds the session queue. Accepts beyond worker plus
	// queue capacity are closed immediately. Values below 1 fall back to
	// DefaultMaxConnections.
	MaxConnections int
}

const (
	DefaultWorkers        = 4
	DefaultMaxConnections = 1024
)

// Server accepts TCP connections and runs them through the worker pool. It
// supports graceful, idempotent Stop.
type Server struct {
	log logger.Logger
	cfg Config

	router   *router.Router
	registry *registry.Registry

	listener net.Listener
	running  atomic.Bool
	nextID   atomic.Uint32

	pending chan *Session
	quit    chan struct{}

	acceptWg sync.WaitGroup
	workerWg sync.WaitGroup
}

// New creates a Server bound to the shared router and registry. The handler
// table must be fully populated before Start is called.
//
// Parameters:
//   - cfg: Listen address and capacity settings
//   - rt: The shared message router
//   - reg: The session registry
//   - log: Logger for server diagnostics
//
// Returns:
//   - A Server ready to Start
func New(cfg Config, rt *router.Router, reg *registry.Registry, log logger.Logger) *Server {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxConnections < 1 {
		cfg.MaxConnections = DefaultMaxConnections
	}

	return &Server{
		log:      log,
		cfg:      cfg,
		router:   rt,
		registry: reg,
		pending:  make(chan *Session, cfg.MaxConnections),
	}
}

// Start binds the listener and launches the accept loop and the worker pool.
// It returns once the server is accepting; it does not block.
//
// Returns:
//   - An error if the server is already running or listening fails
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Error("server already running")
		return fmt.Errorf("server already running")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		s.log.Error("failed to listen", logger.Field{Key: "addr", Value: s.cfg.Addr}, logger.Field{Key: "error", Value: err})
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	s.listener = ln
	s.quit = make(chan struct{})

	for i := 0; i < s.cfg.Workers; i++ {
		s.workerWg.Add(1)
		go s.worker()
	}

	s.acceptWg.Add(1)
	go s.acceptLoop()

	s.log.Info("server started",
		logger.Field{Key: "addr", Value: ln.Addr().String()},
		logger.Field{Key: "workers", Value: s.cfg.Workers},
		logger.Field{Key: "max_connections", Value: s.cfg.MaxConnections})
	return nil
}

// Addr returns the listener's actual address, useful when the configured
// port was 0. Returns an empty string before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// acceptLoop accepts connections until the listener is closed. Each accept
// constructs a session and queues it for a worker without waiting for the
// session to run. Accept errors are logged and the loop continues unless the
// server was stopped.
func (s *Server) acceptLoop() {
	defer s.acceptWg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			s.log.Error("accept error", logger.Field{Key: "error", Value: err})
			continue
		}

		sess := NewSession(s.nextID.Add(1), conn, s.router, s.registry, s.log)

		select {
		case s.pending <- sess:
		default:
			s.log.Warn("connection limit reached, rejecting",
				logger.Field{Key: "remote", Value: conn.RemoteAddr().String()})
			_ = conn.Close()
		}
	}
}

// worker runs queued sessions one at a time. A session occupies its worker
// for the whole connection lifetime; handlers that block on the identity
// service therefore hold a worker, which can starve the pool under sustained
// load. That is a documented scope limitation of this layer.
func (s *Server) worker() {
	defer s.workerWg.Done()

	for {
		select {
		case <-s.quit:
			return
		case sess := <-s.pending:
			if !s.running.Load() {
				_ = sess.Close()
				continue
			}
			sess.Handle()
		}
	}
}

// Stop closes the listener, force-closes all live sessions, stops the worker
// pool, and joins everything before returning. Idempotent; calls after the
// first are no-ops.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		s.log.Info("server not running")
		return
	}

	s.log.Info("stopping server")

	_ = s.listener.Close()
	s.acceptWg.Wait()

	close(s.quit)
	s.registry.ShutdownAll()

	// A worker that dequeued a session just before running flipped can
	// register it after the snapshot above, leaving its socket open and the
	// worker stuck in a read. Keep sweeping until every worker has parked.
	workersDone := make(chan struct{})
	go func() {
		s.workerWg.Wait()
		close(workersDone)
	}()
	sweep := time.NewTicker(10 * time.Millisecond)
	for parked := false; !parked; {
		select {
		case <-workersDone:
			parked = true
		case <-sweep.C:
			s.registry.ShutdownAll()
		}
	}
	sweep.Stop()

	// Sessions still queued never ran; close their sockets directly.
	for {
		select {
		case sess := <-s.pending:
			_ = sess.Close()
		default:
			stats := s.registry.Stats()
			s.log.Info("server stopped",
				logger.Field{Key: "active", Value: stats.Active},
				logger.Field{Key: "max_ever", Value: stats.MaxEver})
			return
		}
	}
}
