package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"realchat/internal/pkg/errs"
	"realchat/internal/pkg/logx"
	"realchat/internal/pkg/req"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// sendQueueSize is the number of outbound frames buffered per client.
	sendQueueSize = 256
)

// FrameHandler receives the lifecycle and inbound frames of every client.
type FrameHandler interface {
	// OnConnect runs once after the websocket upgrade, before any frame is read.
	OnConnect(ctx context.Context, c *Client)

	// HandleFrame runs for every well-formed inbound frame.
	HandleFrame(ctx context.Context, c *Client, frame InboundFrame)

	// OnDisconnect runs exactly once when the read loop ends.
	OnDisconnect(ctx context.Context, c *Client)
}

// Client is one live websocket connection.
type Client struct {
	// id is the transport connection id.
	id string

	hub     *Hub
	conn    *websocket.Conn
	handler FrameHandler

	// send queues encoded frames for WritePump.
	send chan []byte

	// sendMu guards sendClosed so enqueue never writes to a closed channel.
	sendMu     sync.Mutex
	sendClosed bool

	// attrs holds transport-session attributes such as the bound username.
	attrs   map[string]string
	attrsMu sync.RWMutex

	disconnectOnce sync.Once

	// tracked is guarded by the hub's mutex.
	tracked bool

	logger zerolog.Logger
}

// NewClient constructs a Client for an upgraded connection.
func NewClient(id string, hub *Hub, conn *websocket.Conn, handler FrameHandler) *Client {
	return &Client{
		id:      id,
		hub:     hub,
		conn:    conn,
		handler: handler,
		send:    make(chan []byte, sendQueueSize),
		attrs:   make(map[string]string),
		logger:  logx.Logger().With().Str("conn_id", id).Logger(),
	}
}

// ID returns the transport connection id.
func (c *Client) ID() string { return c.id }

// SetAttribute records a transport-session attribute.
func (c *Client) SetAttribute(key, value string) {
	c.attrsMu.Lock()
	defer c.attrsMu.Unlock()
	c.attrs[key] = value
}

// Attribute returns a transport-session attribute, or "" if unset.
func (c *Client) Attribute(key string) string {
	c.attrsMu.RLock()
	defer c.attrsMu.RUnlock()
	return c.attrs[key]
}

// Start registers the client with the hub, notifies the handler, starts the
// write loop and then blocks in the read loop until the connection ends.
func (c *Client) Start(ctx context.Context) {
	c.hub.Register(c)
	c.handler.OnConnect(ctx, c)

	go c.WritePump()

	c.ReadPump(ctx)
}

// ReadPump reads frames from the connection and hands them to the FrameHandler.
// It performs the disconnect cleanup when the connection ends.
func (c *Client) ReadPump(ctx context.Context) {
	defer c.cleanupOnDisconnect(ctx)

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			return
		}

		c.processInboundFrame(ctx, data)
	}
}

// cleanupOnDisconnect unregisters the client and notifies the handler exactly once.
func (c *Client) cleanupOnDisconnect(ctx context.Context) {
	c.disconnectOnce.Do(func() {
		c.logger.Debug().Msg("Client connection cleanup starting.")
		defer c.hub.release(c)

		c.hub.Unregister(c)
		c.handler.OnDisconnect(ctx, c)

		if err := c.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			c.logger.Debug().Err(err).Msg("Client connection close error")
		}
	})
}

func (c *Client) processInboundFrame(ctx context.Context, data []byte) {
	var frame InboundFrame
	if customErr := req.DecodeJSON(bytes.NewReader(data), &frame); customErr != nil {
		c.logger.Warn().Int("code", customErr.Code).Msg("Client sent invalid frame")
		c.SendError(customErr)
		return
	}

	c.handler.HandleFrame(ctx, c, frame)
}

// WritePump writes queued frames and periodic pings to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeQueuedFrame(frame, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeQueuedFrame returns false when WritePump should stop.
func (c *Client) writeQueuedFrame(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Error().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// enqueue queues an encoded frame without blocking. It returns false if the
// queue is full or already closed.
func (c *Client) enqueue(frame []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full, dropping frame")
		return false
	}
}

// closeSend closes the send queue once; WritePump then sends a close frame and exits.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// SendError queues an error frame for this client only.
func (c *Client) SendError(err error) {
	var code int
	var message string

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		code = customErr.Code
		message = customErr.Message
	} else {
		code = errs.ErrUnknown
		message = fmt.Sprintf("Internal server error: %v", err)
	}

	data, marshalErr := json.Marshal(OutboundFrame{
		Destination: QueueErrors,
		Error:       &ErrorPayload{Code: code, Message: message},
	})
	if marshalErr != nil {
		c.logger.Error().Err(marshalErr).Msg("Failed to marshal error frame")
		return
	}

	if !c.enqueue(data) {
		c.logger.Warn().Int("code", code).Msg("Failed to queue error frame")
	}
}
