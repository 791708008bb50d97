// Package router dispatches decoded protocol messages to registered handlers.
// The handler table is populated once at startup, before the server starts
// accepting, and is not mutated afterwards.
package router

import (
	"fmt"

	"github.com/cyberinferno/im-server/logger"
	"github.com/cyberinferno/im-server/protocol"
)

// Error codes carried in ErrorResponse messages produced by the router.
const (
	CodeUnsupportedType uint32 = 3001 // No handler registered for the message type
	CodeHandlerFailure  uint32 = 3002 // A handler returned an error or panicked
)

// Peer is the connection surface a handler may interact with. The server's
// session type implements it; tests substitute fakes.
type Peer interface {
	// ID returns the peer's connection identifier.
	ID() uint32

	// RemoteAddr returns the peer's remote address for logging.
	RemoteAddr() string

	// Send encodes the message and writes it to the peer. Safe for
	// concurrent use.
	Send(msg *protocol.Message) error

	// SetAuthenticated marks the peer as authenticated under the given
	// identity. Calling it again overwrites the prior identity.
	SetAuthenticated(userID int64, username string)
}

// Handler processes one kind of message. Implementations are registered into
// a Router, one per message type.
type Handler interface {
	// Name returns the handler's name for logging.
	Name() string

	// Handle processes the message and typically sends a reply through the
	// peer. A returned error is reported to the peer as an ErrorResponse
	// with CodeHandlerFailure; it never tears down the connection.
	Handle(msg *protocol.Message, peer Peer) error
}

// Router maps message types to handlers. Registration is not safe for use
// concurrently with Dispatch; populate the table before serving.
type Router struct {
	log      logger.Logger
	handlers map[protocol.MessageType]Handler
}

// New creates an empty Router.
//
// Parameters:
//   - log: Logger for dispatch diagnostics
//
// Returns:
//   - A Router with no handlers registered
func New(log logger.Logger) *Router {
	return &Router{
		log:      log,
		handlers: make(map[protocol.MessageType]Handler),
	}
}

// Register stores a handler for the given message type, replacing any prior
// handler for that type. A nil handler is rejected with a log entry.
//
// Parameters:
//   - t: The message type the handler serves
//   - h: The handler implementation
func (r *Router) Register(t protocol.MessageType, h Handler) {
	if h == nil {
		r.log.Error("cannot register nil handler", logger.Field{Key: "type", Value: t.String()})
		return
	}

	r.handlers[t] = h
	r.log.Info("registered handler",
		logger.Field{Key: "handler", Value: h.Name()},
		logger.Field{Key: "type", Value: t.String()})
}

// Dispatch resolves the message's handler from its populated variant and
// invokes it. If no handler is registered, or the handler fails or panics,
// an ErrorResponse is sent to the peer and Dispatch returns false. A handler
// failure never propagates to the caller.
//
// Parameters:
//   - msg: The decoded message; exactly one variant is set (decode validated)
//   - peer: The connection the message arrived on
//
// Returns:
//   - true if a handler processed the message successfully
func (r *Router) Dispatch(msg *protocol.Message, peer Peer) bool {
	t := msg.Type()

	h, ok := r.handlers[t]
	if !ok {
		r.log.Warn("no handler for message type",
			logger.Field{Key: "type", Value: t.String()},
			logger.Field{Key: "sequence", Value: msg.Sequence},
			logger.Field{Key: "remote", Value: peer.RemoteAddr()})
		r.sendError(peer, CodeUnsupportedType, "unsupported message type: "+t.String(), msg.Sequence)
		return false
	}

	if err := r.invoke(h, msg, peer); err != nil {
		r.log.Error("handler failed",
			logger.Field{Key: "handler", Value: h.Name()},
			logger.Field{Key: "type", Value: t.String()},
			logger.Field{Key: "sequence", Value: msg.Sequence},
			logger.Field{Key: "error", Value: err})
		r.sendError(peer, CodeHandlerFailure, "internal handler error: "+err.Error(), msg.Sequence)
		return false
	}

	r.log.Debug("message handled",
		logger.Field{Key: "handler", Value: h.Name()},
		logger.Field{Key: "type", Value: t.String()})
	return true
}

// invoke runs the handler, converting a panic into an error so a crashing
// handler cannot take down the connection engine.
func (r *Router) invoke(h Handler, msg *protocol.Message, peer Peer) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("handler panic: %v", v)
		}
	}()

	return h.Handle(msg, peer)
}

func (r *Router) sendError(peer Peer, code uint32, message string, sequence uint32) {
	if err := peer.Send(protocol.NewErrorResponse(code, message, sequence)); err != nil {
		r.log.Error("failed to send error response",
			logger.Field{Key: "code", Value: code},
			logger.Field{Key: "error", Value: err})
	}
}
