package chat

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"realchat/internal/app/user"
	"realchat/internal/pkg/logx"
)

// Messenger implements the public and private chat paths. Invalid or failed
// sends degrade silently: they are logged and nothing is broadcast.
type Messenger struct {
	users     user.Directory
	store     MessageStore
	publisher Publisher
	now       func() time.Time
	logger    zerolog.Logger
}

// NewMessenger constructs a Messenger.
func NewMessenger(users user.Directory, store MessageStore, publisher Publisher) *Messenger {
	return &Messenger{
		users:     users,
		store:     store,
		publisher: publisher,
		now:       time.Now,
		logger:    logx.Component("Messenger"),
	}
}

// exists reports whether username is a known user, logging lookup failures as a miss.
func (m *Messenger) exists(ctx context.Context, username string) bool {
	ok, err := m.users.Exists(ctx, username)
	if err != nil {
		m.logger.Error().Err(err).Str("username", username).Msg("User lookup failed")
		return false
	}
	return ok
}

// SendPublic persists msg as a public message and broadcasts it on TopicPublic.
// Any client-supplied type or recipient is discarded; JOIN and LEAVE only come
// from presence transitions. It returns false when the message was dropped
// before being persisted. A broadcast failure is logged and the persisted
// message is still returned.
func (m *Messenger) SendPublic(ctx context.Context, msg Message) (Message, bool) {
	sender := strings.TrimSpace(msg.Sender)
	if sender == "" {
		m.logger.Warn().Msg("Invalid sender in public message")
		return Message{}, false
	}

	if !m.exists(ctx, sender) {
		m.logger.Warn().Str("username", sender).Msg("Cannot send message: user does not exist")
		return Message{}, false
	}

	msg.Sender = sender
	msg.Recipient = ""
	msg.Type = TypePublic
	msg.Stamp(m.now())

	saved, err := m.store.Save(ctx, msg)
	if err != nil {
		m.logger.Error().Err(err).Str("username", sender).Msg("Error saving public message")
		return Message{}, false
	}

	if err := m.publisher.Publish(ctx, TopicPublic, saved); err != nil {
		m.logger.Error().Err(err).Str("message_id", saved.ID).Msg("Error broadcasting public message")
	}
	return saved, true
}

// SendPrivate persists msg as a private message and delivers it to the
// recipient's queue and, as an echo, to the sender's own queue. The two sends
// are independent: a failure on one does not stop the other.
func (m *Messenger) SendPrivate(ctx context.Context, msg Message) (Message, bool) {
	sender := strings.TrimSpace(msg.Sender)
	recipient := strings.TrimSpace(msg.Recipient)
	if sender == "" || recipient == "" {
		m.logger.Warn().Msg("Invalid sender or recipient in private message")
		return Message{}, false
	}

	if !m.exists(ctx, sender) || !m.exists(ctx, recipient) {
		m.logger.Warn().
			Str("sender", sender).
			Str("recipient", recipient).
			Msg("Sender or recipient does not exist")
		return Message{}, false
	}

	msg.Sender = sender
	msg.Recipient = recipient
	msg.Type = TypePrivate
	msg.Stamp(m.now())

	saved, err := m.store.Save(ctx, msg)
	if err != nil {
		m.logger.Error().Err(err).Str("sender", sender).Str("recipient", recipient).Msg("Error saving private message")
		return Message{}, false
	}

	for _, destination := range []string{PrivateQueue(recipient), PrivateQueue(sender)} {
		if err := m.publisher.Publish(ctx, destination, saved); err != nil {
			m.logger.Error().Err(err).
				Str("destination", destination).
				Str("message_id", saved.ID).
				Msg("Error delivering private message")
		}
	}
	return saved, true
}
