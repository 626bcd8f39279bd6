/*
Package chat contains the chat message model, the websocket hub that acts as
the broadcast transport, the per-connection client pumps, and the public and
private message paths.
*/
package chat

import (
	"context"
	"strings"
	"time"
)

// MessageType tags the kind of a chat message.
type MessageType string

const (
	// TypeJoin announces that a user's first session came online.
	TypeJoin MessageType = "JOIN"

	// TypeLeave announces that a user's last session went away.
	TypeLeave MessageType = "LEAVE"

	// TypePublic is an ordinary message on the public topic. It is the default kind.
	TypePublic MessageType = "PUBLIC_MESSAGE"

	// TypePrivate is a direct message between two users.
	TypePrivate MessageType = "PRIVATE_MESSAGE"
)

// Broadcast destinations.
const (
	// TopicPublic receives join, leave and public chat messages.
	TopicPublic = "/topic/public"

	// QueueErrors carries per-connection error frames back to a client.
	QueueErrors = "/user/queue/errors"
)

// Inbound application destinations.
const (
	DestAddUser     = "/app/chat.addUser"
	DestSendMessage = "/app/chat.sendMessage"
	DestSendPrivate = "/app/chat.sendPrivateMessage"
)

// SessionMarker prefixes the content of a join request; the remainder is the logical session id.
const SessionMarker = "CUSTOM_SESSION:"

// Message is a chat message as persisted and broadcast.
type Message struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type,omitempty"`
	Sender    string      `json:"sender"`
	Recipient string      `json:"recipient,omitempty"`
	Content   string      `json:"content"`

	// Timestamp is the server time in Unix milliseconds; zero means unset.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Kind returns the message type, treating an empty type as TypePublic.
func (m Message) Kind() MessageType {
	if m.Type == "" {
		return TypePublic
	}
	return m.Type
}

// Stamp sets the timestamp to now if it is unset.
func (m *Message) Stamp(now time.Time) {
	if m.Timestamp == 0 {
		m.Timestamp = now.UnixMilli()
	}
}

// SessionID extracts the logical session id carried by a join request's content.
// The id is the raw suffix after the marker. It returns false when the marker
// is missing or the id is blank.
func (m Message) SessionID() (string, bool) {
	id, ok := strings.CutPrefix(m.Content, SessionMarker)
	if !ok || strings.TrimSpace(id) == "" {
		return "", false
	}
	return id, true
}

// PrivateQueue returns the private destination of username.
func PrivateQueue(username string) string {
	return "/user/" + username + "/queue/private"
}

// ParsePrivateQueue returns the username addressed by a private destination.
func ParsePrivateQueue(destination string) (string, bool) {
	rest, ok := strings.CutPrefix(destination, "/user/")
	if !ok {
		return "", false
	}
	username, ok := strings.CutSuffix(rest, "/queue/private")
	if !ok || username == "" || strings.Contains(username, "/") {
		return "", false
	}
	return username, true
}

// InboundFrame is what a client sends over the websocket.
type InboundFrame struct {
	Destination string  `json:"destination" validate:"required,startswith=/app/"`
	Payload     Message `json:"payload"`
}

// ErrorPayload describes a rejected inbound frame.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OutboundFrame is what the server pushes to subscribed clients.
type OutboundFrame struct {
	Destination string        `json:"destination"`
	Payload     *Message      `json:"payload,omitempty"`
	Error       *ErrorPayload `json:"error,omitempty"`
}

// MessageStore persists chat messages.
type MessageStore interface {
	// Save persists msg and returns it with its generated id.
	Save(ctx context.Context, msg Message) (Message, error)
}

// Publisher delivers a message to every subscriber of destination.
type Publisher interface {
	Publish(ctx context.Context, destination string, msg Message) error
}
