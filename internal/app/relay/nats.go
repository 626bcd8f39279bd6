/*
Package relay mirrors broadcast traffic onto NATS so other processes
(archivers, bridges, analytics) can observe chat activity. It is a one-way
mirror: nothing consumed from NATS feeds back into presence.
*/
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"realchat/internal/app/chat"
	"realchat/internal/pkg/logx"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "realchat"

// publishConn is the subset of *nats.Conn the relay needs.
type publishConn interface {
	Publish(subject string, data []byte) error
}

// NATSRelay implements chat.Publisher by publishing outbound frames to NATS.
type NATSRelay struct {
	conn   publishConn
	nc     *nats.Conn
	prefix string
	logger zerolog.Logger
}

var _ chat.Publisher = (*NATSRelay)(nil)

// Connect dials url and returns a relay publishing under prefix.
func Connect(url, prefix string) (*NATSRelay, error) {
	logger := logx.Component("NATSRelay")

	nc, err := nats.Connect(url,
		nats.Name("realchat-gateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	r := newRelay(nc, prefix)
	r.nc = nc
	return r, nil
}

func newRelay(conn publishConn, prefix string) *NATSRelay {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSRelay{conn: conn, prefix: prefix, logger: logx.Component("NATSRelay")}
}

// Subject maps a broadcast destination to its NATS subject:
// /topic/public under prefix "realchat" becomes realchat.topic.public.
func (r *NATSRelay) Subject(destination string) string {
	parts := strings.FieldsFunc(destination, func(c rune) bool { return c == '/' })
	return strings.Join(append([]string{r.prefix}, parts...), ".")
}

// Publish implements chat.Publisher.
func (r *NATSRelay) Publish(_ context.Context, destination string, msg chat.Message) error {
	data, err := json.Marshal(chat.OutboundFrame{Destination: destination, Payload: &msg})
	if err != nil {
		return fmt.Errorf("marshal frame for %s: %w", destination, err)
	}

	subject := r.Subject(destination)
	if err := r.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	r.logger.Debug().Str("subject", subject).Str("message_id", msg.ID).Msg("Relayed message")
	return nil
}

// Close drains pending publishes and closes the connection.
func (r *NATSRelay) Close() error {
	if r.nc == nil {
		return nil
	}
	return r.nc.Drain()
}
