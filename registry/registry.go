// Package registry tracks live connections for the whole process. Entries are
// non-owning handles: the registry can look up and force-close a connection
// but never extends its lifetime; each connection's own goroutine remains
// responsible for its teardown.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/im-server/logger"
)

// Conn is the handle the registry keeps for a live connection. Unauthenticated
// connections are tracked the same as authenticated ones.
type Conn interface {
	// ID returns the connection's unique identifier.
	ID() uint32

	// Close force-closes the underlying socket. Must be idempotent.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Stats is a read-only snapshot of the registry population.
type Stats struct {
	Active  int    // Currently registered connections
	MaxEver uint64 // Highest concurrent count ever observed; never decreases
}

// Registry is a concurrency-safe set of live connections keyed by connection
// ID. A single mutex guards the set; the high-water mark is maintained
// lock-free so concurrent registrations never under-count the maximum.
type Registry struct {
	log logger.Logger

	mu    sync.Mutex
	conns map[uint32]Conn

	maxEver atomic.Uint64
}

// New creates an empty Registry.
//
// Parameters:
//   - log: Logger for registry diagnostics
//
// Returns:
//   - A ready-to-use Registry
func New(log logger.Logger) *Registry {
	return &Registry{
		log:   log,
		conns: make(map[uint32]Conn),
	}
}

// Register inserts the connection. It fails without mutation if the
// connection is already present (or nil). Safe for concurrent use.
//
// Parameters:
//   - c: The connection handle to track
//
// Returns:
//   - true if the connection was inserted, false if already present or nil
func (r *Registry) Register(c Conn) bool {
	if c == nil {
		r.log.Error("cannot register nil connection")
		return false
	}

	r.mu.Lock()
	if _, exists := r.conns[c.ID()]; exists {
		r.mu.Unlock()
		r.log.Warn("connection already registered", logger.Field{Key: "conn_id", Value: c.ID()})
		return false
	}

	r.conns[c.ID()] = c
	count := uint64(len(r.conns))
	r.mu.Unlock()

	r.updateMax(count)
	r.log.Info("connection registered",
		logger.Field{Key: "conn_id", Value: c.ID()},
		logger.Field{Key: "active", Value: count})
	return true
}

// Unregister removes the connection. It fails if the connection is absent,
// which is benign: a connection tearing itself down may race with ShutdownAll
// having already cleared the set. Safe for concurrent use.
//
// Parameters:
//   - c: The connection handle to remove
//
// Returns:
//   - true if the connection was removed, false if absent or nil
func (r *Registry) Unregister(c Conn) bool {
	if c == nil {
		r.log.Error("cannot unregister nil connection")
		return false
	}

	r.mu.Lock()
	if _, exists := r.conns[c.ID()]; !exists {
		r.mu.Unlock()
		r.log.Debug("connection not found for unregistration", logger.Field{Key: "conn_id", Value: c.ID()})
		return false
	}

	delete(r.conns, c.ID())
	count := len(r.conns)
	r.mu.Unlock()

	r.log.Info("connection unregistered",
		logger.Field{Key: "conn_id", Value: c.ID()},
		logger.Field{Key: "active", Value: count})
	return true
}

// Lookup returns the registered connection with the given ID, if present.
//
// Parameters:
//   - id: The connection ID to look up
//
// Returns:
//   - The connection and true if found, or nil and false otherwise
func (r *Registry) Lookup(id uint32) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	return c, ok
}

// ShutdownAll snapshots the current set, clears it, and force-closes every
// connection's socket. Per-connection close errors are logged and do not
// abort the remaining closures. Each connection's own teardown path still
// runs when its read loop observes the closed socket; its unregistration
// finds the entry already absent, which is a no-op. Safe to call repeatedly
// and with zero active connections.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	snapshot := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		snapshot = append(snapshot, c)
	}
	r.conns = make(map[uint32]Conn)
	r.mu.Unlock()

	if len(snapshot) == 0 {
		r.log.Info("no active connections to shut down")
		return
	}

	r.log.Info("shutting down connections", logger.Field{Key: "count", Value: len(snapshot)})
	for _, c := range snapshot {
		if err := c.Close(); err != nil {
			r.log.Warn("error closing connection",
				logger.Field{Key: "conn_id", Value: c.ID()},
				logger.Field{Key: "error", Value: err})
		}
	}
}

// Stats returns a read-only snapshot of the population counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	active := len(r.conns)
	r.mu.Unlock()

	return Stats{
		Active:  active,
		MaxEver: r.maxEver.Load(),
	}
}

// updateMax raises the high-water mark to count using a compare-and-retry
// loop; it never lowers it.
func (r *Registry) updateMax(count uint64) {
	for {
		cur := r.maxEver.Load()
		if count <= cur {
			return
		}
		if r.maxEver.CompareAndSwap(cur, count) {
			return
		}
	}
}
