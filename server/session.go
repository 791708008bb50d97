package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/im-server/logger"
	"github.com/cyberinferno/im-server/protocol"
	"github.com/cyberinferno/im-server/registry"
	"github.com/cyberinferno/im-server/router"
)

// readChunkSize is the size of the per-read buffer. Received bytes are
// appended to the session's inbound accumulator until full frames emerge.
const readChunkSize = 4096

// ErrSessionClosed is returned by Send after the session has been closed.
var ErrSessionClosed = errors.New("session is closed")

// Session owns one client socket and runs its read-decode-dispatch-write
// loop. A single goroutine (the worker running Handle) performs all reads;
// writes are serialized by a per-session mutex so handler replies and
// server-initiated sends never interleave on the wire.
type Session struct {
	id   uint32
	conn net.Conn
	log  logger.Logger

	router   *router.Router
	registry *registry.Registry

	// readBuf accumulates inbound bytes; owned exclusively by the Handle
	// goroutine.
	readBuf []byte

	writeMu sync.Mutex
	closed  atomic.Bool

	authMu        sync.RWMutex
	authenticated bool
	userID        int64
	username      string
}

// NewSession creates a session for an accepted connection. The session is
// inert until Handle runs it.
//
// Parameters:
//   - id: The unique session ID assigned by the server
//   - conn: The accepted client socket
//   - rt: The shared message router
//   - reg: The session registry to register with
//   - log: Base logger; session ID and remote address are attached
//
// Returns:
//   - The new session
func NewSession(id uint32, conn net.Conn, rt *router.Router, reg *registry.Registry, log logger.Logger) *Session {
	return &Session{
		id:       id,
		conn:     conn,
		log:      log.With(logger.Field{Key: "session_id", Value: id}, logger.Field{Key: "remote", Value: conn.RemoteAddr().String()}),
		router:   rt,
		registry: reg,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() uint32 {
	return s.id
}

// RemoteAddr returns the client's remote address.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// Handle runs the session's main loop until the peer disconnects, a fatal
// I/O error occurs, or the session is force-closed. It registers the session
// with the registry before the first read and guarantees teardown on exit.
func (s *Session) Handle() {
	defer func() {
		_ = s.Close()
	}()

	if !s.registry.Register(s) {
		s.log.Error("session could not be registered")
		return
	}

	s.log.Info("client connected")

	chunk := make([]byte, readChunkSize)
	for {
		n, err := s.conn.Read(chunk)
		if n > 0 {
			s.readBuf = append(s.readBuf, chunk[:n]...)
			if !s.drainFrames() {
				return
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Info("client disconnected")
			} else if s.closed.Load() {
				s.log.Debug("read aborted by close")
			} else {
				s.log.Warn("read failed", logger.Field{Key: "error", Value: err})
			}
			return
		}
	}
}

// drainFrames extracts and processes complete frames from the inbound
// accumulator until more data is needed. It returns false when the session
// must close (an invalid length prefix was seen). A frame that fails to
// decode is logged and dropped; the connection stays open.
func (s *Session) drainFrames() bool {
	for {
		frame, result, consumed := protocol.TryExtractFrame(s.readBuf)
		switch result {
		case protocol.NeedMoreData:
			return true

		case protocol.InvalidFrame:
			// Discarding the corrupt header does not guarantee
			// resynchronization with the next frame boundary, so close.
			s.readBuf = s.readBuf[consumed:]
			s.log.Error("oversized frame length, closing connection")
			return false

		case protocol.FrameExtracted:
			s.readBuf = s.readBuf[consumed:]

			msg, err := protocol.DecodeMessage(frame.Payload)
			if err != nil {
				s.log.Warn("dropping undecodable frame",
					logger.Field{Key: "frame_len", Value: frame.Length},
					logger.Field{Key: "error", Value: err})
				continue
			}

			// Dispatch failures already answered the peer with an
			// ErrorResponse; they are not fatal to the connection.
			s.router.Dispatch(msg, s)
		}
	}
}

// Send encodes the message and writes the frame to the socket. Safe for
// concurrent use; a write failure closes the session.
//
// Parameters:
//   - msg: The message to deliver to the peer
//
// Returns:
//   - An error if encoding fails, the session is closed, or the write fails
func (s *Session) Send(msg *protocol.Message) error {
	data, err := protocol.EncodeFrame(msg)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}

	if _, err := s.conn.Write(data); err != nil {
		s.log.Warn("write failed", logger.Field{Key: "error", Value: err})
		_ = s.Close()
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// SetAuthenticated records the peer's identity after a successful login.
// Calling it again overwrites the prior identity; switching identity
// mid-connection is permitted.
//
// Parameters:
//   - userID: The authenticated user's ID
//   - username: The authenticated user's name
func (s *Session) SetAuthenticated(userID int64, username string) {
	s.authMu.Lock()
	s.authenticated = true
	s.userID = userID
	s.username = username
	s.authMu.Unlock()

	s.log.Info("session authenticated",
		logger.Field{Key: "user_id", Value: userID},
		logger.Field{Key: "username", Value: username})
}

// Identity returns the session's current authentication state.
//
// Returns:
//   - Whether the session is authenticated
//   - The authenticated user's ID (0 if unauthenticated)
//   - The authenticated user's name ("" if unauthenticated)
func (s *Session) Identity() (bool, int64, string) {
	s.authMu.RLock()
	defer s.authMu.RUnlock()
	return s.authenticated, s.userID, s.username
}

// Close force-closes the socket and unregisters the session. Idempotent;
// repeated calls are no-ops.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := s.conn.Close()
	s.registry.Unregister(s)
	s.log.Debug("session closed")
	return err
}
