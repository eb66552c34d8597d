package stream

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// WSDialer dials the feed over websockets. The server pings every few
// seconds; a channel that stays silent for PongWait is treated as dead.
type WSDialer struct {
	Dialer   *websocket.Dialer
	PongWait time.Duration
}

func (d WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	wait := d.PongWait
	if wait <= 0 {
		wait = 60 * time.Second
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	return &wsConn{conn: conn, wait: wait}, nil
}

type wsConn struct {
	conn *websocket.Conn
	wait time.Duration
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, b, err := c.conn.ReadMessage()
	if err == nil {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.wait))
	}
	return b, err
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}
