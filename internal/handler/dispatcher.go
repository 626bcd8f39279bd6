package handler

import (
	"context"

	"github.com/rs/zerolog"

	"realchat/internal/app/chat"
	"realchat/internal/app/presence"
	"realchat/internal/pkg/errs"
	"realchat/internal/pkg/logx"
)

// Dispatcher routes client lifecycle events and inbound frames to the
// presence handlers and the messenger. It implements chat.FrameHandler.
type Dispatcher struct {
	deps   *AppDeps
	logger zerolog.Logger
}

var _ chat.FrameHandler = (*Dispatcher)(nil)

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(deps *AppDeps) *Dispatcher {
	return &Dispatcher{deps: deps, logger: logx.Component("Dispatcher")}
}

// OnConnect implements chat.FrameHandler.
func (d *Dispatcher) OnConnect(_ context.Context, c *chat.Client) {
	d.deps.Lifecycle.OnConnect(c.ID())
}

// OnDisconnect implements chat.FrameHandler.
func (d *Dispatcher) OnDisconnect(ctx context.Context, c *chat.Client) {
	d.deps.Lifecycle.OnDisconnect(ctx, c.ID())
}

// HandleFrame implements chat.FrameHandler.
func (d *Dispatcher) HandleFrame(ctx context.Context, c *chat.Client, frame chat.InboundFrame) {
	switch frame.Destination {
	case chat.DestAddUser:
		d.deps.Admission.Join(ctx, presence.JoinRequest{
			Message: frame.Payload,
			ConnID:  c.ID(),
			Session: c,
		})

	case chat.DestSendMessage:
		d.deps.Messenger.SendPublic(ctx, frame.Payload)

	case chat.DestSendPrivate:
		d.deps.Messenger.SendPrivate(ctx, frame.Payload)

	default:
		d.logger.Warn().Str("conn_id", c.ID()).Str("destination", frame.Destination).Msg("Frame for unknown destination")
		c.SendError(errs.NewError(errs.ErrUnknownDestination, frame.Destination))
	}
}
