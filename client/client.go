// Package client provides an event-driven client for the im-server wire
// protocol. Register handlers for decoded messages, state changes, and
// errors, then call Connect. Request/response pairs can be matched by
// sequence number with Call; unsolicited messages go to the OnMessage
// handler.
package client

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/im-server/protocol"
)

// State represents the client's connection state.
type State int

const (
	Disconnected State = iota // Not connected
	Connecting                // Connection attempt in progress
	Connected                 // Successfully connected
	Closed                    // Client has been closed and must not be reused
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// MessageHandler is called for each decoded message that is not claimed by a
// pending Call. Invoked from the read goroutine; implementations must not
// block.
type MessageHandler func(msg *protocol.Message)

// ErrorHandler is called when a read, decode, or framing error occurs.
type ErrorHandler func(err error)

// StateHandler is called when the connection state changes.
type StateHandler func(state State)

// ErrClientClosed is returned by operations on a closed client.
var ErrClientClosed = errors.New("client is closed")

// ErrCallTimeout is returned by Call when no reply arrives in time.
var ErrCallTimeout = errors.New("call timed out")

// Config holds client settings.
type Config struct {
	// Address is the "host:port" of the server.
	Address string
	// DialTimeout is the maximum duration for establishing the connection.
	DialTimeout time.Duration
	// CallTimeout is the default reply deadline used by the convenience
	// helpers (Echo, Login, Register).
	CallTimeout time.Duration
}

// DefaultConfig returns a Config with defaults for the given address:
// DialTimeout 10s, CallTimeout 10s.
func DefaultConfig(address string) Config {
	return Config{
		Address:     address,
		DialTimeout: 10 * time.Second,
		CallTimeout: 10 * time.Second,
	}
}

// Client is an event-driven protocol client. It is safe for concurrent use.
type Client struct {
	cfg Config

	mu    sync.RWMutex
	conn  net.Conn
	state State

	onMessage MessageHandler
	onError   ErrorHandler
	onState   StateHandler

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint32]chan *protocol.Message

	seq    atomic.Uint32
	closed atomic.Bool
	wg     sync.WaitGroup
}

// New creates a client with the given config. The client starts in
// Disconnected state; call Connect to establish the connection.
func New(cfg Config) *Client {
	return &Client{
		cfg:     cfg,
		state:   Disconnected,
		pending: make(map[uint32]chan *protocol.Message),
	}
}

// OnMessage registers the handler for unsolicited messages. Repeated calls
// replace the previous handler; nil clears it.
func (c *Client) OnMessage(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

// OnError registers the handler for read, decode, and framing errors.
// Repeated calls replace the previous handler; nil clears it.
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// OnState registers the handler for connection state changes. Repeated calls
// replace the previous handler; nil clears it.
func (c *Client) OnState(handler StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = handler
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// NextSequence returns a fresh sequence number for an outgoing request.
func (c *Client) NextSequence() uint32 {
	return c.seq.Add(1)
}

// Connect establishes the TCP connection and starts the read goroutine.
//
// Returns:
//   - An error if the client is closed, already connected or connecting, or
//     the dial fails
func (c *Client) Connect() error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.mu.Lock()
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return fmt.Errorf("already connected or connecting")
	}
	c.state = Connecting
	c.mu.Unlock()
	c.emitState(Connecting)

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.Dial("tcp", c.cfg.Address)
	if err != nil {
		c.mu.Lock()
		if c.closed.Load() {
			c.state = Closed
			c.mu.Unlock()
		} else {
			c.state = Disconnected
			c.mu.Unlock()
			c.emitState(Disconnected)
		}
		return fmt.Errorf("dial %s: %w", c.cfg.Address, err)
	}

	// Close can land while the dial is in flight; re-check under the lock so
	// a closed client never ends up Connected with a live read goroutine.
	c.mu.Lock()
	if c.closed.Load() {
		c.state = Closed
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClientClosed
	}
	c.conn = conn
	c.state = Connected
	c.wg.Add(1)
	c.mu.Unlock()
	c.emitState(Connected)

	go c.readLoop(conn)

	return nil
}

// Close shuts the client down: the connection is closed, the read goroutine
// is joined, and all pending calls fail. Idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.failPending()
	c.setState(Closed)

	return nil
}

// Send encodes the message and writes the frame. Writes are serialized, so
// Send is safe to call concurrently with Call and with itself.
//
// Parameters:
//   - msg: The message to send
//
// Returns:
//   - An error if the client is not connected or the write fails
func (c *Client) Send(msg *protocol.Message) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()

	if state != Connected || conn == nil {
		return fmt.Errorf("not connected")
	}

	data, err := protocol.EncodeFrame(msg)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// Call sends a request and waits for the reply carrying the same sequence
// number. A second Call reusing a sequence number replaces the first's
// pending slot (sequence numbers are caller-assigned and not validated for
// uniqueness; use NextSequence to avoid collisions).
//
// Parameters:
//   - msg: The request message; its Sequence identifies the reply
//   - timeout: How long to wait for the reply
//
// Returns:
//   - The reply message, or an error on send failure, timeout, or close
func (c *Client) Call(msg *protocol.Message, timeout time.Duration) (*protocol.Message, error) {
	ch := make(chan *protocol.Message, 1)

	c.pendingMu.Lock()
	c.pending[msg.Sequence] = ch
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		if c.pending[msg.Sequence] == ch {
			delete(c.pending, msg.Sequence)
		}
		c.pendingMu.Unlock()
	}()

	if err := c.Send(msg); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrClientClosed
		}
		return reply, nil
	case <-timer.C:
		return nil, ErrCallTimeout
	}
}

// Echo round-trips content through the server's echo handler.
//
// Parameters:
//   - content: The content to echo
//
// Returns:
//   - The echoed content, or an error on transport failure or an unexpected
//     reply type
func (c *Client) Echo(content string) (string, error) {
	reply, err := c.Call(protocol.NewEchoRequest(content, c.NextSequence()), c.cfg.CallTimeout)
	if err != nil {
		return "", err
	}

	if reply.EchoResponse == nil {
		return "", c.unexpectedReply(reply)
	}

	return reply.EchoResponse.Content, nil
}

// Login authenticates against the server.
//
// Parameters:
//   - username: The account name
//   - password: The account password
//
// Returns:
//   - The server's LoginResponse (Success reports the outcome), or an error
//     on transport failure or an unexpected reply type
func (c *Client) Login(username, password string) (*protocol.LoginResponse, error) {
	reply, err := c.Call(protocol.NewLoginRequest(username, password, c.NextSequence()), c.cfg.CallTimeout)
	if err != nil {
		return nil, err
	}

	if reply.LoginResponse == nil {
		return nil, c.unexpectedReply(reply)
	}

	return reply.LoginResponse, nil
}

// Register creates a new account on the server.
//
// Parameters:
//   - username: The account name
//   - password: The account password
//
// Returns:
//   - The server's RegisterResponse (Success reports the outcome), or an
//     error on transport failure or an unexpected reply type
func (c *Client) Register(username, password string) (*protocol.RegisterResponse, error) {
	reply, err := c.Call(protocol.NewRegisterRequest(username, password, c.NextSequence()), c.cfg.CallTimeout)
	if err != nil {
		return nil, err
	}

	if reply.RegisterResponse == nil {
		return nil, c.unexpectedReply(reply)
	}

	return reply.RegisterResponse, nil
}

// unexpectedReply turns an off-type reply into an error, surfacing server
// ErrorResponse details when present.
func (c *Client) unexpectedReply(reply *protocol.Message) error {
	if reply.Error != nil {
		return fmt.Errorf("server error %d: %s", reply.Error.ErrorCode, reply.Error.Message)
	}

	return fmt.Errorf("unexpected reply type %s", reply.Type())
}

// readLoop reads the socket, reassembles frames, and routes decoded messages
// to pending calls or the OnMessage handler. It exits on read error or an
// invalid frame.
func (c *Client) readLoop(conn net.Conn) {
	defer c.wg.Done()

	var buf []byte
	chunk := make([]byte, 4096)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)

			for {
				frame, result, consumed := protocol.TryExtractFrame(buf)
				if result == protocol.NeedMoreData {
					break
				}

				buf = buf[consumed:]
				if result == protocol.InvalidFrame {
					c.emitError(fmt.Errorf("invalid frame from server: %w", protocol.ErrFrameTooLarge))
					c.disconnect(conn)
					return
				}

				msg, err := protocol.DecodeMessage(frame.Payload)
				if err != nil {
					c.emitError(err)
					continue
				}

				c.deliver(msg)
			}
		}

		if err != nil {
			if !c.closed.Load() {
				c.emitError(err)
				c.disconnect(conn)
			}
			return
		}
	}
}

// deliver hands a message to the pending call waiting on its sequence, or to
// the OnMessage handler if none is.
func (c *Client) deliver(msg *protocol.Message) {
	c.pendingMu.Lock()
	ch, ok := c.pending[msg.Sequence]
	if ok {
		delete(c.pending, msg.Sequence)
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- msg
		return
	}

	c.mu.RLock()
	handler := c.onMessage
	c.mu.RUnlock()

	if handler != nil {
		handler(msg)
	}
}

// failPending closes every pending call channel so blocked Calls return.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for seq, ch := range c.pending {
		close(ch)
		delete(c.pending, seq)
	}
}

func (c *Client) disconnect(conn net.Conn) {
	_ = conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	changed := c.state == Connected || c.state == Connecting
	if changed {
		c.state = Disconnected
	}
	c.mu.Unlock()

	if changed {
		c.emitState(Disconnected)
	}
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	c.emitState(state)
}

func (c *Client) emitState(state State) {
	c.mu.RLock()
	handler := c.onState
	c.mu.RUnlock()

	if handler != nil {
		handler(state)
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		handler(err)
	}
}
