// Package ws serves the live feed push channel over websockets.
package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/qepting91/tagstream/internal/broadcast"
)

var (
	errClosed    = errors.New("channel closed")
	errQueueFull = errors.New("outbound queue full")
)

// Registry is the part of the hub the server needs.
type Registry interface {
	Add(ch broadcast.Channel)
	Remove(id string) bool
}

// Options tunes per-connection limits. Zero values take defaults.
type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
	PongWait     time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	return o
}

type Server struct {
	hub  Registry
	log  *slog.Logger
	opts Options

	upgrader websocket.Upgrader
}

func NewServer(hub Registry, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:  hub,
		log:  logger,
		opts: opts.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err, "remote", r.RemoteAddr)
		return
	}

	ch := &channel{
		id:      uuid.NewString(),
		conn:    conn,
		out:     make(chan []byte, s.opts.QueueSize),
		done:    make(chan struct{}),
		timeout: s.opts.WriteTimeout,
	}

	// Writer goroutine. It owns the connection's teardown, so Close never
	// waits on a socket that a slow viewer has stalled.
	go func() {
		defer conn.Close()
		for {
			select {
			case <-ch.done:
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				return
			case b := <-ch.out:
				_ = conn.SetWriteDeadline(time.Now().Add(ch.timeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					s.hub.Remove(ch.id)
					_ = ch.Close()
					return
				}
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})
	s.hub.Add(ch)

	// Viewers only listen; reading keeps control frames flowing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.hub.Remove(ch.id)
	_ = ch.Close()
}

// channel adapts one websocket connection to broadcast.Channel. Sends are
// queued and written by a single goroutine so a slow viewer never blocks
// the hub.
type channel struct {
	id      string
	conn    *websocket.Conn
	out     chan []byte
	done    chan struct{}
	timeout time.Duration

	closeOnce sync.Once
}

func (c *channel) ID() string { return c.id }

func (c *channel) Send(msg []byte) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	default:
		return errQueueFull
	}
}

func (c *channel) Ping() error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.timeout))
}

// Close signals the writer to send a close frame and drop the connection.
// It does not block.
func (c *channel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
