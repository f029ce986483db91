package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"call-lab/domain"
	"call-lab/sink"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is the gateway-side state of one websocket connection. The write
// pump is the single writer on the socket; everything bound for the client
// goes through the connection sink.
type Client struct {
	log  *slog.Logger
	ws   *websocket.Conn
	conn domain.Connection
	sink *sink.ConnSink

	closeOnce sync.Once
	closed    chan struct{}

	mu              sync.Mutex
	lastPresenceAck <-chan struct{}
}

func newClient(log *slog.Logger, ws *websocket.Conn, conn domain.Connection, connSink *sink.ConnSink) *Client {
	return &Client{
		log:    log,
		ws:     ws,
		conn:   conn,
		sink:   connSink,
		closed: make(chan struct{}),
	}
}

// trackPresenceAck remembers the completion channel of the most recent
// explicit status change. Teardown waits on it so the broadcast is never
// outrun by the close of the very connection that requested it.
func (c *Client) trackPresenceAck(done <-chan struct{}) {
	c.mu.Lock()
	c.lastPresenceAck = done
	c.mu.Unlock()
}

// awaitPresenceAck blocks until the last explicit change was broadcast,
// bounded by the grace deadline. Returns immediately when no explicit
// change was ever issued on this connection.
func (c *Client) awaitPresenceAck(grace time.Duration) {
	c.mu.Lock()
	done := c.lastPresenceAck
	c.mu.Unlock()
	if done == nil {
		return
	}

	select {
	case <-done:
	case <-time.After(grace):
		c.log.Warn("Presence broadcast not confirmed before grace deadline", "conn", c.conn.ID)
	}
}

// writePump drains the connection sink onto the socket. It exits when the
// sink channel or the connection closes; the read pump owns teardown.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case evt, ok := <-c.sink.Events:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			frame, err := EncodeEvent(evt)
			if err != nil {
				c.log.Error("Failed to encode event", "type", evt.EventType(), "error", err)
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
