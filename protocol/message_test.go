package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "ECHO_REQUEST", TypeEchoRequest.String())
	assert.Equal(t, "ECHO_RESPONSE", TypeEchoResponse.String())
	assert.Equal(t, "LOGIN_REQUEST", TypeLoginRequest.String())
	assert.Equal(t, "LOGIN_RESPONSE", TypeLoginResponse.String())
	assert.Equal(t, "REGISTER_REQUEST", TypeRegisterRequest.String())
	assert.Equal(t, "REGISTER_RESPONSE", TypeRegisterResponse.String())
	assert.Equal(t, "ERROR", TypeError.String())
	assert.Equal(t, "UNKNOWN", TypeUnknown.String())
	assert.Equal(t, "UNDEFINED", MessageType(99).String())
}

func TestMessage_Type(t *testing.T) {
	t.Run("empty message is unknown", func(t *testing.T) {
		assert.Equal(t, TypeUnknown, NewMessage(1).Type())
	})

	t.Run("each variant resolves to its own type", func(t *testing.T) {
		cases := []struct {
			msg  *Message
			want MessageType
		}{
			{NewEchoRequest("x", 1), TypeEchoRequest},
			{NewEchoResponse("x", 1), TypeEchoResponse},
			{NewLoginRequest("u", "p", 1), TypeLoginRequest},
			{NewRegisterRequest("u", "p", 1), TypeRegisterRequest},
			{NewErrorResponse(3001, "x", 1), TypeError},
		}

		for _, tc := range cases {
			assert.Equal(t, tc.want, tc.msg.Type())
		}
	})
}

func TestNewMessage_SetsVersionAndSequence(t *testing.T) {
	m := NewMessage(77)
	assert.Equal(t, ProtocolVersion, m.Version)
	assert.Equal(t, uint32(77), m.Sequence)
	assert.Equal(t, 0, m.variantCount())

	m = NewErrorResponse(3002, "boom", 5)
	assert.Equal(t, ProtocolVersion, m.Version)
	assert.Equal(t, uint32(5), m.Sequence)
	assert.Equal(t, 1, m.variantCount())
}
