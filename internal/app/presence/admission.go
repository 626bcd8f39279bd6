package presence

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"realchat/internal/app/chat"
	"realchat/internal/pkg/logx"
)

// AttributeSetter stores transport-session attributes. *chat.Client implements it.
type AttributeSetter interface {
	SetAttribute(key, value string)
}

// JoinRequest is an inbound join: a message whose sender is the username and
// whose content is SessionMarker followed by the logical session id.
type JoinRequest struct {
	Message chat.Message
	ConnID  string

	// Session receives the username and session id attributes; may be nil.
	Session AttributeSetter
}

// Admission processes join requests.
type Admission struct {
	deps   Deps
	logger zerolog.Logger
}

// NewAdmission constructs an Admission.
func NewAdmission(deps Deps) *Admission {
	return &Admission{deps: deps, logger: logx.Component("Admission")}
}

// Admit validates req, registers the session and marks the user online.
// It returns the persisted JOIN message when this was the user's first
// session. Rejections, reconnects and persistence failures return false and
// nothing should be broadcast.
func (a *Admission) Admit(ctx context.Context, req JoinRequest) (chat.Message, bool) {
	username := strings.TrimSpace(req.Message.Sender)
	if username == "" {
		a.deps.Metrics.rejected("blank_sender")
		a.logger.Warn().Str("conn_id", req.ConnID).Msg("Invalid sender in join request")
		return chat.Message{}, false
	}

	sessionID, ok := req.Message.SessionID()
	if !ok {
		a.deps.Metrics.rejected("missing_session_id")
		a.logger.Warn().Str("conn_id", req.ConnID).Str("username", username).Msg("No session id provided in join request")
		return chat.Message{}, false
	}

	logger := a.logger.With().
		Str("conn_id", req.ConnID).
		Str("username", username).
		Str("session_id", sessionID).
		Logger()

	exists, err := a.deps.Users.Exists(ctx, username)
	if err != nil {
		a.deps.Metrics.rejected("directory_error")
		logger.Error().Err(err).Msg("User lookup failed")
		return chat.Message{}, false
	}
	if !exists {
		a.deps.Metrics.rejected("unknown_user")
		logger.Warn().Msg("User does not exist")
		return chat.Message{}, false
	}

	first, err := a.deps.Registry.RegisterSession(username, sessionID, req.ConnID)
	if err != nil {
		reason := "registry_error"
		switch {
		case errors.Is(err, ErrSessionOwnedByOtherUser):
			reason = "session_conflict"
		case errors.Is(err, ErrConnectionAlreadyBound):
			reason = "connection_bound"
		}
		a.deps.Metrics.rejected(reason)
		logger.Warn().Err(err).Msg("Join request rejected by registry")
		return chat.Message{}, false
	}

	if req.Session != nil {
		req.Session.SetAttribute(chat.AttrUsername, username)
		req.Session.SetAttribute(chat.AttrSessionID, sessionID)
	}

	if err := a.deps.Users.SetOnline(ctx, username, true); err != nil {
		a.deps.Metrics.failed("set_online")
		logger.Error().Err(err).Msg("Failed to persist online status")
	}

	logger.Info().
		Bool("first_session", first).
		Int("total_sessions", a.deps.Registry.SessionCount(username)).
		Msg("Session registered")

	if !first {
		logger.Info().Msg("Existing user session, not broadcasting JOIN message")
		return chat.Message{}, false
	}

	a.deps.Metrics.transition("join")

	join := req.Message
	join.ID = ""
	join.Type = chat.TypeJoin
	join.Sender = username
	join.Recipient = ""
	join.Content = ""
	join.Timestamp = a.deps.now().UnixMilli()

	saved, err := a.deps.Store.Save(ctx, join)
	if err != nil {
		a.deps.Metrics.failed("save_join")
		logger.Error().Err(err).Msg("Error saving JOIN message")
		return chat.Message{}, false
	}

	return saved, true
}

// Join admits req and broadcasts the JOIN message on the public topic when
// the user came online. Broadcast failures are logged and suppressed.
func (a *Admission) Join(ctx context.Context, req JoinRequest) (chat.Message, bool) {
	join, ok := a.Admit(ctx, req)
	if !ok {
		return chat.Message{}, false
	}

	if err := a.deps.Publisher.Publish(ctx, chat.TopicPublic, join); err != nil {
		a.deps.Metrics.failed("broadcast_join")
		a.logger.Error().Err(err).Str("username", join.Sender).Msg("Error broadcasting JOIN message")
		return join, false
	}

	a.logger.Info().Str("username", join.Sender).Str("message_id", join.ID).Msg("Broadcast JOIN message")
	return join, true
}
