// Package stream is the viewer side of the live feed: a push channel
// consumer that reconnects with capped exponential backoff.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/qepting91/tagstream/internal/backoff"
	"github.com/qepting91/tagstream/internal/domain"
	"github.com/qepting91/tagstream/internal/protocol"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Conn is one open push channel.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Handler receives dispatched events. Calls are made without holding the
// consumer's lock, from the channel's read goroutine.
type Handler interface {
	OnState(state State, attempts int)
	OnConnection(status string, viewers int)
	OnSettings(settings domain.FeedSettings)
	OnPost(post domain.CanonicalPost)
	OnError(msg string)
}

type timer interface {
	Stop() bool
}

// Status is a snapshot of the consumer.
type Status struct {
	State        State
	Attempts     int
	ServerStatus string
	Viewers      int
	Settings     domain.FeedSettings
}

type Consumer struct {
	url     string
	dialer  Dialer
	handler Handler
	backoff backoff.Policy
	log     *slog.Logger

	afterFunc func(time.Duration, func()) timer

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	attempts     int
	gen          int
	conn         Conn
	retry        timer
	closed       bool
	serverStatus string
	viewers      int
	settings     domain.FeedSettings
	hasSettings  bool
}

// DefaultBackoff is 5s doubling up to one minute.
var DefaultBackoff = backoff.Policy{Base: 5 * time.Second, Cap: 60 * time.Second}

func New(url string, dialer Dialer, handler Handler, policy backoff.Policy, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.Base <= 0 || policy.Cap <= 0 {
		policy = DefaultBackoff
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		url:     url,
		dialer:  dialer,
		handler: handler,
		backoff: policy,
		log:     logger,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		ctx:    ctx,
		cancel: cancel,
		state:  Disconnected,
	}
}

// Start is Connect.
func (c *Consumer) Start() { c.Connect() }

// Connect force-closes any open channel, cancels a pending reconnect and
// dials. Failure schedules a reconnect.
func (c *Consumer) Connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.stopRetryLocked()
	old := c.conn
	c.conn = nil
	c.state = Connecting
	attempts := c.attempts
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	c.handler.OnState(Connecting, attempts)

	conn, err := c.dialer.Dial(c.ctx, c.url)
	if err != nil {
		c.log.Warn("stream connect failed", "url", c.url, "err", err)
		c.drop(gen, nil)
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		// Superseded while dialing.
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = Connected
	c.attempts = 0
	c.mu.Unlock()

	c.log.Info("stream connected", "url", c.url)
	c.handler.OnState(Connected, 0)
	go c.read(gen, conn)
}

// Close stops the consumer for good.
func (c *Consumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	c.stopRetryLocked()
	conn := c.conn
	c.conn = nil
	c.state = Disconnected
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	c.handler.OnState(Disconnected, 0)
}

func (c *Consumer) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:        c.state,
		Attempts:     c.attempts,
		ServerStatus: c.serverStatus,
		Viewers:      c.viewers,
		Settings:     c.settings.Clone(),
	}
}

func (c *Consumer) read(gen int, conn Conn) {
	for {
		b, err := conn.ReadMessage()
		if err != nil {
			c.drop(gen, conn)
			return
		}
		if !c.current(gen) {
			return
		}
		c.dispatch(b)
	}
}

func (c *Consumer) current(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && gen == c.gen
}

// drop handles the loss of generation gen's channel and schedules the next
// attempt. Losses of superseded channels are ignored.
func (c *Consumer) drop(gen int, conn Conn) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Disconnected
	c.attempts++
	attempts := c.attempts
	delay := c.backoff.Delay(attempts)
	c.stopRetryLocked()
	c.retry = c.afterFunc(delay, func() { c.reconnect(gen) })
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.log.Warn("stream disconnected", "attempt", attempts, "retry_in", delay)
	c.handler.OnState(Disconnected, attempts)
}

func (c *Consumer) reconnect(gen int) {
	if !c.current(gen) {
		return
	}
	c.Connect()
}

func (c *Consumer) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Consumer) dispatch(b []byte) {
	typ, err := protocol.DecodeType(b)
	if err != nil {
		c.log.Debug("ignoring undecodable event", "err", err)
		return
	}

	switch typ {
	case protocol.TypeConnection:
		var msg protocol.ConnectionMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			return
		}
		c.mu.Lock()
		c.serverStatus = msg.Status
		c.viewers = msg.ConnectedClients
		changed := !c.hasSettings || !c.settings.Equal(msg.Settings)
		if changed {
			c.settings = msg.Settings.Clone()
			c.hasSettings = true
		}
		c.mu.Unlock()

		c.handler.OnConnection(msg.Status, msg.ConnectedClients)
		if changed {
			c.handler.OnSettings(msg.Settings)
		}

	case protocol.TypeSettings:
		var msg protocol.SettingsMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			return
		}
		c.mu.Lock()
		c.settings = msg.Settings.Clone()
		c.hasSettings = true
		c.mu.Unlock()
		c.handler.OnSettings(msg.Settings)

	case protocol.TypePost:
		var msg protocol.PostMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			return
		}
		c.handler.OnPost(msg.Data)

	case protocol.TypeError:
		var msg protocol.ErrorMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			return
		}
		c.handler.OnError(msg.Error)

	default:
		c.log.Debug("ignoring unknown event", "type", typ)
	}
}
