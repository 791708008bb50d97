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

// Login authenticates a LoginRequest against the identity service and, on
// success, marks the session authenticated. Every outcome is reported to the
// peer as a LoginResponse; only transport failures surface as handler errors.
type Login struct {
	log   logger.Logger
	users identity.Service
}

// NewLogin creates the login handler.
//
// Parameters:
//   - users: The identity service to authenticate against
//   - log: Logger for handler diagnostics
func NewLogin(users identity.Service, log logger.Logger) *Login {
	return &Login{log: log, users: users}
}

// Name implements router.Handler.
func (h *Login) Name() string { return "login" }

// Handle implements router.Handler.
func (h *Login) Handle(msg *protocol.Message, peer router.Peer) error {
	req := msg.LoginRequest
	if req == nil {
		return fmt.Errorf("login handler received message without login_request")
	}

	h.log.Info("processing login request", logger.Field{Key: "username", Value: req.Username})

	resp := &protocol.LoginResponse{}
	user, err := h.users.Authenticate(context.Background(), req.Username, req.Password)
	switch {
	case err == nil:
		resp.Success = true
		resp.Message = "Login successful"
		resp.UserID = user.UserID
		resp.Username = user.Username
		peer.SetAuthenticated(user.UserID, user.Username)

	case errors.Is(err, identity.ErrUserNotFound):
		resp.Message = "User not found"

	case errors.Is(err, identity.ErrWrongPassword):
		resp.Message = "Wrong password"

	default:
		resp.Message = "Internal server error"
		h.log.Error("login backend failure",
			logger.Field{Key: "username", Value: req.Username},
			logger.Field{Key: "error", Value: err})
	}

	reply := protocol.NewMessage(msg.Sequence)
	reply.LoginResponse = resp
	return peer.Send(reply)
}
