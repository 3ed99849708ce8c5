package websocket

import (
	"context"
	"encoding/json"
	"time"

	"chat-relay/internal/models"
	"chat-relay/internal/relay"
	"chat-relay/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// inboundBuffer bounds frames read but not yet dispatched. A client that
	// outruns it is disconnected.
	inboundBuffer = 64
)

// Client binds one websocket connection to a relay session.
type Client struct {
	conn       *websocket.Conn
	session    *relay.Session
	dispatcher *Dispatcher

	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(conn *websocket.Conn, session *relay.Session, dispatcher *Dispatcher, maxMessageSize int64) *Client {
	if maxMessageSize > 0 {
		conn.SetReadLimit(maxMessageSize)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:       conn,
		session:    session,
		dispatcher: dispatcher,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Serve runs both pumps and dispatches inbound frames in arrival order until
// the connection closes. Reading continues while a frame is being handled,
// so a dropped connection is torn down even mid-dispatch.
func (c *Client) Serve() {
	inbound := make(chan []byte, inboundBuffer)
	go c.WritePump()
	go c.ReadPump(inbound)

	for data := range inbound {
		if c.ctx.Err() != nil {
			continue
		}
		var frame models.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.dispatcher.reply(c.session, "", codeInvalidRequest, "malformed frame")
			continue
		}
		c.dispatcher.Dispatch(c.ctx, c.session, frame)
	}
}

// ReadPump queues raw frames on inbound. When the connection fails it
// cancels in-flight requests and tears the session down before closing
// inbound.
func (c *Client) ReadPump(inbound chan<- []byte) {
	defer func() {
		c.shutdown()
		close(inbound)
	}()

	// Set read deadline and pong handler for connection health
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error on session %s: %v", c.session.ID(), err)
			}
			return
		}

		select {
		case inbound <- data:
		default:
			logger.Warn("Session %s exceeded %d pending frames, disconnecting", c.session.ID(), inboundBuffer)
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.session.Outbound():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				logger.Debug("Write error on session %s: %v", c.session.ID(), err)
				c.shutdown()
				return
			}

		case <-c.session.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-c.ctx.Done():
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

// shutdown is safe to call from both pumps.
func (c *Client) shutdown() {
	c.cancel()
	c.dispatcher.Disconnect(c.session)
	c.conn.Close()
}
