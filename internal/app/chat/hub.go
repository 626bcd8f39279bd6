package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"realchat/internal/pkg/logx"
)

// AttrUsername is the client attribute holding the username bound by a join request.
const AttrUsername = "username"

// AttrSessionID is the client attribute holding the logical session id bound by a join request.
const AttrSessionID = "customSessionId"

// ErrHubClosed is returned by Publish after Shutdown.
var ErrHubClosed = errors.New("hub closed")

// Hub is the in-process broadcast transport. It tracks every live Client by
// connection id and routes published messages to the clients subscribed to a destination:
// every client receives TopicPublic, and a private queue reaches the clients
// whose username attribute matches.
type Hub struct {
	// clients maps connection id to the live client.
	clients map[string]*Client

	// mu protects clients and closed.
	mu sync.RWMutex

	closed bool

	// active counts registered clients whose disconnect path has not finished.
	active sync.WaitGroup

	logger zerolog.Logger
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logx.Component("Hub"),
	}
}

// Register adds c to the hub. A client registered twice under the same id replaces the old entry.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		c.closeSend()
		return
	}

	if existing, ok := h.clients[c.ID()]; ok && existing != c {
		h.logger.Warn().Str("conn_id", c.ID()).Msg("Connection id already registered. Replacing stale client.")
		existing.closeSend()
	}

	h.clients[c.ID()] = c
	if !c.tracked {
		c.tracked = true
		h.active.Add(1)
	}
	h.logger.Debug().Str("conn_id", c.ID()).Int("total_clients", len(h.clients)).Msg("Client registered.")
}

// Unregister removes c if it is still the client registered under its id.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[c.ID()]; ok && current == c {
		delete(h.clients, c.ID())
		c.closeSend()
		h.logger.Debug().Str("conn_id", c.ID()).Int("total_clients", len(h.clients)).Msg("Client unregistered.")
		return
	}

	h.logger.Debug().Str("conn_id", c.ID()).Msg("Ignoring unregister for unknown or stale client.")
}

// release marks the disconnect path of c as finished.
func (h *Hub) release(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.tracked {
		c.tracked = false
		h.active.Done()
	}
}

// Wait blocks until every client registered before Shutdown has finished its
// disconnect path, or ctx is done.
func (h *Hub) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count returns the number of live clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish delivers msg to every client subscribed to destination.
// Delivery is non-blocking: a client whose send queue is full is skipped and reported in the returned error.
func (h *Hub) Publish(_ context.Context, destination string, msg Message) error {
	data, err := json.Marshal(OutboundFrame{Destination: destination, Payload: &msg})
	if err != nil {
		return fmt.Errorf("marshal frame for %s: %w", destination, err)
	}

	var match func(*Client) bool
	switch {
	case destination == TopicPublic:
		match = func(*Client) bool { return true }
	default:
		username, ok := ParsePrivateQueue(destination)
		if !ok {
			return fmt.Errorf("unsupported destination %q", destination)
		}
		match = func(c *Client) bool { return c.Attribute(AttrUsername) == username }
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrHubClosed
	}

	delivered, dropped := 0, 0
	for _, c := range h.clients {
		if !match(c) {
			continue
		}
		if c.enqueue(data) {
			delivered++
		} else {
			dropped++
		}
	}

	h.logger.Debug().
		Str("destination", destination).
		Str("message_id", msg.ID).
		Int("delivered", delivered).
		Int("dropped", dropped).
		Msg("Message published.")

	if dropped > 0 {
		return fmt.Errorf("%d subscriber(s) of %s had a full send queue", dropped, destination)
	}
	return nil
}

// Shutdown closes every client's send queue, which makes each WritePump send a
// close frame and exit. Further publishes fail with ErrHubClosed. Use Wait to
// let the clients finish their disconnect path.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("Shutting down hub...")

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		c.closeSend()
		delete(h.clients, id)
	}
	h.closed = true

	h.logger.Info().Msg("Hub shutdown complete.")
}

// FanoutPublisher publishes to several publishers. Every publisher is attempted
// even if an earlier one fails; the failures are joined.
type FanoutPublisher []Publisher

// Publish implements Publisher.
func (f FanoutPublisher) Publish(ctx context.Context, destination string, msg Message) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, destination, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
