package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/cyberinferno/im-server/identity"
	"github.com/cyberinferno/im-server/logger"
	"github.com/cyberinferno/im-server/protocol"
	"github.com/cyberinferno/im-server/router"
)

// Register creates a new account from a RegisterRequest through the identity
// service. Every outcome is reported to the peer as a RegisterResponse; only
// transport failures surface as handler errors.
type Register struct {
	log   logger.Logger
	users identity.Service
}

// NewRegister creates the register handler.
//
// Parameters:
//   - users: The identity service to register through
//   - log: Logger for handler diagnostics
func NewRegister(users identity.Service, log logger.Logger) *Register {
	return &Register{log: log, users: users}
}

// Name implements router.Handler.
func (h *Register) Name() string { return "register" }

// Handle implements router.Handler.
func (h *Register) Handle(msg *protocol.Message, peer router.Peer) error {
	req := msg.RegisterRequest
	if req == nil {
		return fmt.Errorf("register handler received message without register_request")
	}

	h.log.Info("processing register request", logger.Field{Key: "username", Value: req.Username})

	resp := &protocol.RegisterResponse{}
	user, err := h.users.Register(context.Background(), req.Username, req.Password)
	switch {
	case err == nil:
		resp.Success = true
		resp.Message = "User registered successfully"
		resp.UserID = user.UserID

	case errors.Is(err, identity.ErrUsernameExists):
		resp.Message = "Username already exists"

	case errors.Is(err, identity.ErrInvalidUsername):
		resp.Message = "Invalid username format"

	case errors.Is(err, identity.ErrInvalidPassword):
		resp.Message = "Invalid password format"

	default:
		resp.Message = "Internal server error"
		h.log.Error("register backend failure",
			logger.Field{Key: "username", Value: req.Username},
			logger.Field{Key: "error", Value: err})
	}

	reply := protocol.NewMessage(msg.Sequence)
	reply.RegisterResponse = resp
	return peer.Send(reply)
}
