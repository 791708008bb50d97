// Package protocol implements the im-server wire protocol: a length-prefixed
// binary frame carrying a single tagged-union Message serialized with CBOR.
//
// Frame layout on the wire:
//
//	[4-byte payload length, big-endian][payload bytes]
//
// The payload is a Message with exactly one variant field set. Messages whose
// version differs from ProtocolVersion, or that carry zero or more than one
// variant, are rejected at decode time.
package protocol

const (
	// ProtocolVersion is the single supported protocol version. Messages
	// carrying any other version are rejected by DecodeMessage.
	ProtocolVersion uint32 = 1

	// MaxFrameSize is the maximum payload size in bytes (1 MiB). Frames whose
	// length prefix exceeds this are invalid; encoding a message whose payload
	// would exceed it fails.
	MaxFrameSize uint32 = 1024 * 1024
)

// MessageType identifies which variant of a Message is populated. It is
// derived from the populated variant field, never carried on the wire as a
// separate tag.
type MessageType int

const (
	TypeUnknown MessageType = iota
	TypeEchoRequest
	TypeEchoResponse
	TypeLoginRequest
	TypeLoginResponse
	TypeRegisterRequest
	TypeRegisterResponse
	TypeError
)

// String returns a human-readable name for the message type.
func (t MessageType) String() string {
	switch t {
	case TypeEchoRequest:
		return "ECHO_REQUEST"
	case TypeEchoResponse:
		return "ECHO_RESPONSE"
	case TypeLoginRequest:
		return "LOGIN_REQUEST"
	case TypeLoginResponse:
		return "LOGIN_RESPONSE"
	case TypeRegisterRequest:
		return "REGISTER_REQUEST"
	case TypeRegisterResponse:
		return "REGISTER_RESPONSE"
	case TypeError:
		return "ERROR"
	case TypeUnknown:
		return "UNKNOWN"
	default:
		return "UNDEFINED"
	}
}

// EchoRequest asks the server to echo Content back.
type EchoRequest struct {
	Content string `cbor:"content"`
}

// EchoResponse carries the echoed content of an EchoRequest.
type EchoResponse struct {
	Content string `cbor:"content"`
}

// LoginRequest authenticates an existing user.
type LoginRequest struct {
	Username string `cbor:"username"`
	Password string `cbor:"password"`
}

// LoginResponse reports the outcome of a LoginRequest. UserID and Username
// are only meaningful when Success is true.
type LoginResponse struct {
	Success  bool   `cbor:"success"`
	Message  string `cbor:"message"`
	UserID   int64  `cbor:"user_id"`
	Username string `cbor:"username"`
}

// RegisterRequest creates a new user account.
type RegisterRequest struct {
	Username string `cbor:"username"`
	Password string `cbor:"password"`
}

// RegisterResponse reports the outcome of a RegisterRequest. UserID is only
// meaningful when Success is true.
type RegisterResponse struct {
	Success bool   `cbor:"success"`
	Message string `cbor:"message"`
	UserID  int64  `cbor:"user_id"`
}

// ErrorResponse reports a protocol-level failure to the peer. ErrorCode is
// one of the router error codes (unsupported type, handler failure).
type ErrorResponse struct {
	ErrorCode uint32 `cbor:"error_code"`
	Message   string `cbor:"message"`
}

// Message is the application-level payload of a frame: a protocol version,
// a caller-assigned sequence number echoed from request to response, and
// exactly one populated variant field.
type Message struct {
	Version  uint32 `cbor:"version"`
	Sequence uint32 `cbor:"sequence"`

	EchoRequest      *EchoRequest      `cbor:"echo_request,omitempty"`
	EchoResponse     *EchoResponse     `cbor:"echo_response,omitempty"`
	LoginRequest     *LoginRequest     `cbor:"login_request,omitempty"`
	LoginResponse    *LoginResponse    `cbor:"login_response,omitempty"`
	RegisterRequest  *RegisterRequest  `cbor:"register_request,omitempty"`
	RegisterResponse *RegisterResponse `cbor:"register_response,omitempty"`
	Error            *ErrorResponse    `cbor:"error,omitempty"`
}

// Type returns the MessageType matching the populated variant, or TypeUnknown
// if no variant is set. Messages produced by DecodeMessage always have
// exactly one variant set.
func (m *Message) Type() MessageType {
	switch {
	case m.EchoRequest != nil:
		return TypeEchoRequest
	case m.EchoResponse != nil:
		return TypeEchoResponse
	case m.LoginRequest != nil:
		return TypeLoginRequest
	case m.LoginResponse != nil:
		return TypeLoginResponse
	case m.RegisterRequest != nil:
		return TypeRegisterRequest
	case m.RegisterResponse != nil:
		return TypeRegisterResponse
	case m.Error != nil:
		return TypeError
	default:
		return TypeUnknown
	}
}

// variantCount returns how many variant fields are populated.
func (m *Message) variantCount() int {
	n := 0
	for _, set := range []bool{
		m.EchoRequest != nil,
		m.EchoResponse != nil,
		m.LoginRequest != nil,
		m.LoginResponse != nil,
		m.RegisterRequest != nil,
		m.RegisterResponse != nil,
		m.Error != nil,
	} {
		if set {
			n++
		}
	}

	return n
}

// NewMessage returns an empty Message carrying the supported protocol version
// and the given sequence number. The caller sets exactly one variant field.
//
// Parameters:
//   - sequence: The caller-assigned sequence number
//
// Returns:
//   - A Message with Version and Sequence set and no variant populated
func NewMessage(sequence uint32) *Message {
	return &Message{
		Version:  ProtocolVersion,
		Sequence: sequence,
	}
}

// NewEchoRequest builds an EchoRequest message.
//
// Parameters:
//   - content: The content to be echoed by the server
//   - sequence: The caller-assigned sequence number
//
// Returns:
//   - A ready-to-encode Message with the echo_request variant set
func NewEchoRequest(content string, sequence uint32) *Message {
	m := NewMessage(sequence)
	m.EchoRequest = &EchoRequest{Content: content}
	return m
}

// NewEchoResponse builds an EchoResponse message echoing the given content
// and sequence number.
//
// Parameters:
//   - content: The content being echoed back
//   - sequence: The sequence number of the originating request
//
// Returns:
//   - A ready-to-encode Message with the echo_response variant set
func NewEchoResponse(content string, sequence uint32) *Message {
	m := NewMessage(sequence)
	m.EchoResponse = &EchoResponse{Content: content}
	return m
}

// NewLoginRequest builds a LoginRequest message.
//
// Parameters:
//   - username: The account name to authenticate
//   - password: The account password
//   - sequence: The caller-assigned sequence number
//
// Returns:
//   - A ready-to-encode Message with the login_request variant set
func NewLoginRequest(username, password string, sequence uint32) *Message {
	m := NewMessage(sequence)
	m.LoginRequest = &LoginRequest{Username: username, Password: password}
	return m
}

// NewRegisterRequest builds a RegisterRequest message.
//
// Parameters:
//   - username: The account name to create
//   - password: The account password
//   - sequence: The caller-assigned sequence number
//
// Returns:
//   - A ready-to-encode Message with the register_request variant set
func NewRegisterRequest(username, password string, sequence uint32) *Message {
	m := NewMessage(sequence)
	m.RegisterRequest = &RegisterRequest{Username: username, Password: password}
	return m
}

// NewErrorResponse builds an ErrorResponse message carrying an error code and
// description, echoing the sequence number of the request that failed.
//
// Parameters:
//   - errorCode: The numeric error code to report
//   - message: A human-readable failure description
//   - sequence: The sequence number of the originating request
//
// Returns:
//   - A ready-to-encode Message with the error variant set
func NewErrorResponse(errorCode uint32, message string, sequence uint32) *Message {
	m := NewMessage(sequence)
	m.Error = &ErrorResponse{ErrorCode: errorCode, Message: message}
	return m
}
