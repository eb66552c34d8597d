// Package broadcast fans feed events out to every connected viewer.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/qepting91/tagstream/internal/domain"
	"github.com/qepting91/tagstream/internal/protocol"
)

// Channel is one viewer's push connection. Send and Ping must not block for
// long; an error from either removes the channel from the hub.
type Channel interface {
	ID() string
	Send(msg []byte) error
	Ping() error
	Close() error
}

// Observer sees every post after it was broadcast.
type Observer func(post domain.CanonicalPost)

// ChannelInfo describes a registered channel.
type ChannelInfo struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connectedAt"`
}

type entry struct {
	ch          Channel
	connectedAt time.Time
	stop        chan struct{}
}

// Hub is the registry of live channels. All sends happen under one lock so
// every channel observes events in the same order.
type Hub struct {
	log       *slog.Logger
	heartbeat time.Duration

	mu        sync.Mutex
	channels  []*entry
	closing   []Channel
	status    string
	settings  domain.FeedSettings
	observers []Observer
}

// NewHub creates a hub that pings every channel each heartbeat interval. A
// non-positive interval disables heartbeats.
func NewHub(heartbeat time.Duration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:       logger,
		heartbeat: heartbeat,
		status:    protocol.StatusStopped,
		settings:  domain.DefaultSettings(),
	}
}

// Observe registers fn to be called for each broadcast post.
func (h *Hub) Observe(fn Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, fn)
}

// Add registers ch and announces the new viewer count to everyone,
// including ch.
func (h *Hub) Add(ch Channel) {
	e := &entry{ch: ch, connectedAt: time.Now().UTC(), stop: make(chan struct{})}

	h.mu.Lock()
	defer h.unlock()
	h.channels = append(h.channels, e)
	h.log.Info("viewer connected", "channel", ch.ID(), "viewers", len(h.channels))

	if h.heartbeat > 0 {
		go h.beat(e)
	}
	h.broadcastConnectionLocked()
}

// Remove unregisters the channel with id and closes it. It reports whether
// the channel was registered.
func (h *Hub) Remove(id string) bool {
	h.mu.Lock()
	defer h.unlock()
	if !h.removeLocked(id) {
		return false
	}
	h.broadcastConnectionLocked()
	return true
}

// Count returns the number of registered channels.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

// Channels lists the registered channels in join order.
func (h *Hub) Channels() []ChannelInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ChannelInfo, 0, len(h.channels))
	for _, e := range h.channels {
		out = append(out, ChannelInfo{ID: e.ch.ID(), ConnectedAt: e.connectedAt})
	}
	return out
}

// SetState records the polling status and settings snapshot and sends a
// connection event to every channel.
func (h *Hub) SetState(status string, settings domain.FeedSettings) {
	h.mu.Lock()
	defer h.unlock()
	h.status = status
	h.settings = settings.Clone()
	h.broadcastConnectionLocked()
}

// BroadcastSettings records settings and sends a settings event.
func (h *Hub) BroadcastSettings(settings domain.FeedSettings) {
	h.mu.Lock()
	defer h.unlock()
	h.settings = settings.Clone()
	h.broadcastLocked(protocol.NewSettings(h.settings))
}

// BroadcastPost sends one post event and then notifies observers.
func (h *Hub) BroadcastPost(post domain.CanonicalPost) {
	h.mu.Lock()
	h.broadcastLocked(protocol.NewPost(post))
	observers := append([]Observer(nil), h.observers...)
	h.unlock()

	for _, fn := range observers {
		fn(post)
	}
}

// BroadcastError sends an error event. Channels stay open.
func (h *Hub) BroadcastError(err error) {
	h.mu.Lock()
	defer h.unlock()
	h.broadcastLocked(protocol.NewError(err))
}

// Close removes every channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.unlock()
	for len(h.channels) > 0 {
		h.removeLocked(h.channels[0].ch.ID())
	}
}

func (h *Hub) broadcastConnectionLocked() {
	h.broadcastLocked(protocol.NewConnection(h.status, len(h.channels), h.settings))
}

func (h *Hub) broadcastLocked(msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("encode event", "err", err)
		return
	}

	var failed []string
	for _, e := range h.channels {
		if err := e.ch.Send(b); err != nil {
			h.log.Warn("write to viewer failed", "channel", e.ch.ID(), "err", err)
			failed = append(failed, e.ch.ID())
		}
	}
	if len(failed) == 0 {
		return
	}
	for _, id := range failed {
		h.removeLocked(id)
	}
	// The viewer count changed; the recursion ends once no send fails.
	h.broadcastConnectionLocked()
}

func (h *Hub) removeLocked(id string) bool {
	for i, e := range h.channels {
		if e.ch.ID() != id {
			continue
		}
		h.channels = append(h.channels[:i], h.channels[i+1:]...)
		close(e.stop)
		h.closing = append(h.closing, e.ch)
		h.log.Info("viewer disconnected", "channel", id, "viewers", len(h.channels))
		return true
	}
	return false
}

// unlock releases h.mu and then closes the channels removed while it was
// held, so a channel that is slow to close never stalls other viewers.
func (h *Hub) unlock() {
	closing := h.closing
	h.closing = nil
	h.mu.Unlock()
	for _, ch := range closing {
		_ = ch.Close()
	}
}

func (h *Hub) beat(e *entry) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			if err := e.ch.Ping(); err != nil {
				h.log.Warn("heartbeat failed", "channel", e.ch.ID(), "err", err)
				h.Remove(e.ch.ID())
				return
			}
		}
	}
}
