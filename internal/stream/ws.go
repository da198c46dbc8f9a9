package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Guillaume-slize/digitalsolitude/internal/presence"
)

const writeTimeout = 5 * time.Second

// Conn is a WebSocket push channel carrying JSON text frames
type Conn struct {
	*outbox
	ws        *websocket.Conn
	keepalive time.Duration
}

// Accept upgrades HTTP to websocket for the allowed origin patterns
func Accept(w http.ResponseWriter, r *http.Request, origins []string) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  origins,
		CompressionMode: websocket.CompressionDisabled,
	})
}

// NewConn wraps an accepted connection
func NewConn(ws *websocket.Conn, buffer int, keepalive time.Duration) *Conn {
	return &Conn{outbox: newOutbox(buffer), ws: ws, keepalive: keepalive}
}

// Serve runs the writer loop until the stream closes or the peer goes away.
// Inbound frames are not expected; the connection only reads control frames.
func (c *Conn) Serve(ctx context.Context) error {
	ctx = c.ws.CloseRead(ctx)
	return c.pump(ctx, c.keepalive, c.write, c.ping)
}

// Reject sends ev and closes with a policy violation
func (c *Conn) Reject(ctx context.Context, ev presence.Event) error {
	c.Close()
	err := c.write(ctx, ev)
	_ = c.ws.Close(websocket.StatusPolicyViolation, ev.Message)
	return err
}

// Hangup closes the socket normally
func (c *Conn) Hangup() error { return c.ws.Close(websocket.StatusNormalClosure, "bye") }

func (c *Conn) write(ctx context.Context, ev presence.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return errors.Wrap(wsjson.Write(ctx, c.ws, ev), "ws: write")
}

func (c *Conn) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return errors.Wrap(c.ws.Ping(ctx), "ws: ping")
}
