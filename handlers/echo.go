// Package handlers contains the message handlers registered into the router:
// one flat implementation per message kind.
package handlers

import (
	"fmt"

	"github.com/cyberinferno/im-server/logger"
	"github.com/cyberinferno/im-server/protocol"
	"github.com/cyberinferno/im-server/router"
)

// Echo replies to an EchoRequest with an EchoResponse carrying the same
// content and sequence number.
type Echo struct {
	log logger.Logger
}

// NewEcho creates the echo handler.
func NewEcho(log logger.Logger) *Echo {
	return &Echo{log: log}
}

// Name implements router.Handler.
func (h *Echo) Name() string { return "echo" }

// Handle implements router.Handler.
func (h *Echo) Handle(msg *protocol.Message, peer router.Peer) error {
	req := msg.EchoRequest
	if req == nil {
		return fmt.Errorf("echo handler received message without echo_request")
	}

	h.log.Debug("echoing content",
		logger.Field{Key: "sequence", Value: msg.Sequence},
		logger.Field{Key: "bytes", Value: len(req.Content)})

	return peer.Send(protocol.NewEchoResponse(req.Content, msg.Sequence))
}
