package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one open socket carrying JSON text frames.
type Conn interface {
	// ReadMessage blocks until a frame arrives or the connection fails.
	ReadMessage(ctx context.Context) ([]byte, error)

	// WriteMessage sends one text frame. It is safe for concurrent use.
	WriteMessage(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error
}

// Dialer opens sockets. The socket implementation is chosen by the caller
// through Config.Dialer.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// GorillaDialer dials with github.com/gorilla/websocket. It is the default.
type GorillaDialer struct {
	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Dial opens a socket to url.
func (d GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	c, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	return &gorillaConn{conn: c}, nil
}

type gorillaConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (g *gorillaConn) ReadMessage(_ context.Context) ([]byte, error) {
	_, data, err := g.conn.ReadMessage()
	return data, err
}

func (g *gorillaConn) WriteMessage(ctx context.Context, data []byte) error {
	g.wmu.Lock()
	defer g.wmu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := g.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return g.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame, best effort, and closes the socket. WriteControl
// may run concurrently with WriteMessage.
func (g *gorillaConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	g.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return g.conn.Close()
}
