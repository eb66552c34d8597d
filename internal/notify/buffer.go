// Package notify holds the transient notification overlay: a bounded set of
// visible items that auto-dismiss, backed by an unbounded FIFO.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/qepting91/tagstream/internal/domain"
)

const (
	DefaultMaxVisible   = 4
	DefaultDismissAfter = 5 * time.Second
)

// Item is one notification. It lives in exactly one of the visible set or
// the queue.
type Item struct {
	Post    domain.CanonicalPost
	AddedAt time.Time
}

// UpdateFunc receives snapshots after every change.
type UpdateFunc func(visible, queued []Item)

type timer interface {
	Stop() bool
}

type armed struct {
	t     timer
	token uint64
}

// Buffer is safe for concurrent use. The update callback runs without the
// buffer's lock held, so it may call back into the buffer.
type Buffer struct {
	maxVisible   int
	dismissAfter time.Duration
	onUpdate     UpdateFunc
	log          *slog.Logger

	afterFunc func(time.Duration, func()) timer
	now       func() time.Time

	mu      sync.Mutex
	visible []Item
	queued  []Item
	timers  map[string]armed
	token   uint64
}

func New(maxVisible int, dismissAfter time.Duration, onUpdate UpdateFunc, logger *slog.Logger) *Buffer {
	if maxVisible <= 0 {
		maxVisible = DefaultMaxVisible
	}
	if dismissAfter <= 0 {
		dismissAfter = DefaultDismissAfter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Buffer{
		maxVisible:   maxVisible,
		dismissAfter: dismissAfter,
		onUpdate:     onUpdate,
		log:          logger,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		now:    time.Now,
		timers: make(map[string]armed),
	}
}

// Add shows post immediately when a slot is free and queues it otherwise.
// It reports false when an item with the same id is already held.
func (b *Buffer) Add(post domain.CanonicalPost) bool {
	b.mu.Lock()
	if b.indexLocked(b.visible, post.ID) >= 0 || b.indexLocked(b.queued, post.ID) >= 0 {
		b.mu.Unlock()
		return false
	}
	item := Item{Post: post, AddedAt: b.now()}
	if len(b.visible) < b.maxVisible {
		b.visible = append(b.visible, item)
		b.armLocked(post.ID)
	} else {
		b.queued = append(b.queued, item)
	}
	b.mu.Unlock()

	b.notify()
	return true
}

// Dismiss removes id. Freeing a visible slot promotes the head of the
// queue, at most one item per call. A queued id is dropped from the queue.
func (b *Buffer) Dismiss(id string) bool {
	b.mu.Lock()
	ok := b.dismissLocked(id)
	b.mu.Unlock()

	if ok {
		b.notify()
	}
	return ok
}

// Clear cancels every timer and empties both sequences.
func (b *Buffer) Clear() {
	b.mu.Lock()
	for id, a := range b.timers {
		a.t.Stop()
		delete(b.timers, id)
	}
	b.visible = nil
	b.queued = nil
	b.mu.Unlock()

	b.notify()
}

func (b *Buffer) Visible() []Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Item(nil), b.visible...)
}

func (b *Buffer) Queued() []Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Item(nil), b.queued...)
}

func (b *Buffer) dismissLocked(id string) bool {
	if a, ok := b.timers[id]; ok {
		a.t.Stop()
		delete(b.timers, id)
	}

	if i := b.indexLocked(b.queued, id); i >= 0 {
		b.queued = append(b.queued[:i], b.queued[i+1:]...)
		return true
	}

	i := b.indexLocked(b.visible, id)
	if i < 0 {
		return false
	}
	b.visible = append(b.visible[:i], b.visible[i+1:]...)

	if len(b.queued) > 0 && len(b.visible) < b.maxVisible {
		next := b.queued[0]
		b.queued = b.queued[1:]
		b.visible = append(b.visible, next)
		b.armLocked(next.Post.ID)
	}
	return true
}

func (b *Buffer) armLocked(id string) {
	b.token++
	token := b.token
	t := b.afterFunc(b.dismissAfter, func() { b.expire(id, token) })
	b.timers[id] = armed{t: t, token: token}
}

// expire is the timer callback. A timer that was cancelled but fired anyway
// carries a stale token and is ignored.
func (b *Buffer) expire(id string, token uint64) {
	b.mu.Lock()
	a, ok := b.timers[id]
	if !ok || a.token != token {
		b.mu.Unlock()
		return
	}
	b.dismissLocked(id)
	b.mu.Unlock()

	b.log.Debug("notification expired", "post", id)
	b.notify()
}

func (b *Buffer) indexLocked(items []Item, id string) int {
	for i, it := range items {
		if it.Post.ID == id {
			return i
		}
	}
	return -1
}

func (b *Buffer) notify() {
	if b.onUpdate == nil {
		return
	}
	b.onUpdate(b.Visible(), b.Queued())
}
