package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"realchat/internal/app/chat"
	"realchat/internal/app/user"
	"realchat/internal/pkg/logx"
)

// Deps are the collaborators shared by Lifecycle, Admission and Admin.
type Deps struct {
	Registry  *Registry
	Users     user.Directory
	Store     chat.MessageStore
	Publisher chat.Publisher

	// Metrics may be nil.
	Metrics *Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Lifecycle reacts to transport connect and disconnect events.
// Connect is informational; registration happens on the join request.
// Disconnect of a user's last session marks the user offline and broadcasts LEAVE.
type Lifecycle struct {
	deps   Deps
	logger zerolog.Logger
}

// NewLifecycle constructs a Lifecycle.
func NewLifecycle(deps Deps) *Lifecycle {
	return &Lifecycle{deps: deps, logger: logx.Component("Lifecycle")}
}

// OnConnect logs a new transport connection. The connection stays
// StateUnregistered until a join request admits it.
func (l *Lifecycle) OnConnect(connID string) {
	l.logger.Info().Str("conn_id", connID).Msg("WebSocket connection established")
}

// OnDisconnect removes the session carried by connID. When it was the user's
// last session the user is marked offline and a LEAVE message is persisted and
// broadcast. It never fails: every side-effect error is logged and suppressed,
// and the registry mutation stays committed.
func (l *Lifecycle) OnDisconnect(ctx context.Context, connID string) {
	removal, ok := l.deps.Registry.RemoveConnection(connID)
	if !ok {
		l.logger.Debug().Str("conn_id", connID).Msg("No session mapping found for disconnecting connection")
		return
	}

	logger := l.logger.With().
		Str("conn_id", connID).
		Str("session_id", removal.SessionID).
		Str("username", removal.Username).
		Logger()

	if !removal.WasLastSession {
		logger.Info().
			Int("remaining_sessions", l.deps.Registry.SessionCount(removal.Username)).
			Msg("Session closed; user still has active sessions")
		return
	}

	l.deps.Metrics.transition("leave")
	logger.Info().Msg("User went offline (no more active sessions)")

	if err := l.deps.Users.SetOnline(ctx, removal.Username, false); err != nil {
		l.deps.Metrics.failed("set_offline")
		logger.Error().Err(err).Msg("Failed to persist offline status")
	}

	leave := chat.Message{
		Type:      chat.TypeLeave,
		Sender:    removal.Username,
		Content:   "",
		Timestamp: l.deps.now().UnixMilli(),
	}

	saved, err := l.deps.Store.Save(ctx, leave)
	if err != nil {
		l.deps.Metrics.failed("save_leave")
		logger.Error().Err(err).Msg("Error saving LEAVE message")
		return
	}

	if err := l.deps.Publisher.Publish(ctx, chat.TopicPublic, saved); err != nil {
		l.deps.Metrics.failed("broadcast_leave")
		logger.Error().Err(err).Msg("Error broadcasting LEAVE message")
		return
	}

	logger.Info().Str("message_id", saved.ID).Msg("Broadcast LEAVE message")
}
