package ws

import (
	"context"

	"nhooyr.io/websocket"
)

// NhooyrDialer dials with nhooyr.io/websocket.
type NhooyrDialer struct {
	Options *websocket.DialOptions

	// ReadLimit caps incoming frame size. Zero keeps the library default.
	ReadLimit int64
}

// Dial opens a socket to url.
func (d NhooyrDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, resp, err := websocket.Dial(ctx, url, d.Options)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return &nhooyrConn{conn: c}, nil
}

type nhooyrConn struct {
	conn *websocket.Conn
}

func (n *nhooyrConn) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := n.conn.Read(ctx)
	return data, err
}

func (n *nhooyrConn) WriteMessage(ctx context.Context, data []byte) error {
	return n.conn.Write(ctx, websocket.MessageText, data)
}

func (n *nhooyrConn) Close() error {
	return n.conn.Close(websocket.StatusNormalClosure, "")
}
