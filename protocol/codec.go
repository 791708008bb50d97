package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// headerLen is the size of the frame length prefix in bytes.
const headerLen = 4

var (
	// ErrFrameTooLarge is returned when a payload exceeds MaxFrameSize,
	// either while encoding a message or in a received length prefix.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrBadVersion is returned by DecodeMessage when the message version is
	// not ProtocolVersion.
	ErrBadVersion = errors.New("unsupported protocol version")

	// ErrNoPayload is returned by DecodeMessage when no variant field is set.
	ErrNoPayload = errors.New("message has no payload variant")

	// ErrAmbiguousPayload is returned by DecodeMessage when more than one
	// variant field is set.
	ErrAmbiguousPayload = errors.New("message has multiple payload variants")
)

// Frame is a single length-prefixed unit extracted from the byte stream.
// Length always equals len(Payload).
type Frame struct {
	Length  uint32
	Payload []byte
}

// ExtractResult is the outcome of a TryExtractFrame call.
type ExtractResult int

const (
	FrameExtracted ExtractResult = iota // A complete frame was extracted
	NeedMoreData                        // The buffer does not yet hold a complete frame
	InvalidFrame                        // The length prefix exceeds MaxFrameSize
)

// String returns a human-readable name for the extract result.
func (r ExtractResult) String() string {
	switch r {
	case FrameExtracted:
		return "FrameExtracted"
	case NeedMoreData:
		return "NeedMoreData"
	case InvalidFrame:
		return "InvalidFrame"
	default:
		return "Unknown"
	}
}

// EncodeFrame serializes a Message into a wire frame: the CBOR payload
// preceded by its 4-byte big-endian length. It fails without producing any
// output if serialization fails or the payload exceeds MaxFrameSize.
//
// Parameters:
//   - m: The message to serialize
//
// Returns:
//   - The complete frame bytes ready to write to a socket
//   - An error if serialization fails or the payload is too large
func EncodeFrame(m *Message) ([]byte, error) {
	payload, err := cbor.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	// Compare as int so a payload past 4 GiB cannot wrap the uint32 check.
	if len(payload) > int(MaxFrameSize) {
		return nil, fmt.Errorf("%w: payload is %d bytes, limit %d", ErrFrameTooLarge, len(payload), MaxFrameSize)
	}

	frame := make([]byte, headerLen+len(payload))
	binary.BigEndian.PutUint32(frame[:headerLen], uint32(len(payload)))
	copy(frame[headerLen:], payload)

	return frame, nil
}

// DecodeMessage parses frame payload bytes into a Message and validates it:
// the version must equal ProtocolVersion and exactly one variant field must
// be set.
//
// Parameters:
//   - payload: The frame payload (without the length prefix)
//
// Returns:
//   - The decoded message
//   - An error if the bytes are malformed or validation fails
func DecodeMessage(payload []byte) (*Message, error) {
	var m Message
	if err := cbor.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	if m.Version != ProtocolVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadVersion, m.Version, ProtocolVersion)
	}

	switch n := m.variantCount(); {
	case n == 0:
		return nil, ErrNoPayload
	case n > 1:
		return nil, fmt.Errorf("%w: %d variants set", ErrAmbiguousPayload, n)
	}

	return &m, nil
}

// TryExtractFrame attempts to extract one complete frame from the front of an
// accumulating byte buffer. It never modifies the buffer; the caller discards
// the reported number of consumed bytes.
//
// Outcomes:
//   - NeedMoreData with 0 consumed: fewer than 4 bytes buffered, or the
//     buffered bytes do not yet cover the full payload. The length prefix is
//     not consumed, so the next call re-reads it.
//   - InvalidFrame with 4 consumed: the length prefix exceeds MaxFrameSize.
//     The corrupt header is discarded; resynchronization with the true next
//     frame boundary is not guaranteed, so callers should treat this as
//     grounds for closing the connection.
//   - FrameExtracted with 4+length consumed: a complete frame. The payload is
//     copied out of the buffer, so the caller may compact or reuse it freely.
//
// Parameters:
//   - buf: The accumulating inbound byte buffer
//
// Returns:
//   - The extracted frame (only valid when the result is FrameExtracted)
//   - The extraction result
//   - The number of bytes consumed from the front of buf
func TryExtractFrame(buf []byte) (Frame, ExtractResult, int) {
	if len(buf) < headerLen {
		return Frame{}, NeedMoreData, 0
	}

	length := binary.BigEndian.Uint32(buf[:headerLen])
	if length > MaxFrameSize {
		return Frame{}, InvalidFrame, headerLen
	}

	total := headerLen + int(length)
	if len(buf) < total {
		return Frame{}, NeedMoreData, 0
	}

	payload := make([]byte, length)
	copy(payload, buf[headerLen:total])

	return Frame{Length: length, Payload: payload}, FrameExtracted, total
}
