package notify

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/qepting91/tagstream/internal/domain"
)

type fakeTimer struct {
	id      string
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) install(b *Buffer) {
	b.afterFunc = func(_ time.Duration, f func()) timer {
		c.mu.Lock()
		defer c.mu.Unlock()
		t := &fakeTimer{f: f}
		c.timers = append(c.timers, t)
		return t
	}
}

// live counts armed timers that were never stopped.
func (c *fakeClock) live() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

func newTestBuffer(limit int) (*Buffer, *fakeClock) {
	b := New(limit, time.Second, nil, nil)
	c := &fakeClock{}
	c.install(b)
	return b, c
}

func post(i int) domain.CanonicalPost {
	return domain.CanonicalPost{ID: fmt.Sprintf("p%d", i)}
}

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Post.ID)
	}
	return out
}

func TestOverflowAndPromotion(t *testing.T) {
	b, clock := newTestBuffer(4)
	for i := 1; i <= 6; i++ {
		b.Add(post(i))
	}
	if len(b.Visible()) != 4 || len(b.Queued()) != 2 {
		t.Fatalf("expected 4 visible 2 queued, got %v %v", ids(b.Visible()), ids(b.Queued()))
	}
	if len(clock.live()) != 4 {
		t.Fatalf("expected one timer per visible item, got %d", len(clock.live()))
	}

	if !b.Dismiss("p1") {
		t.Fatalf("dismiss reported false")
	}
	vis, q := ids(b.Visible()), ids(b.Queued())
	if len(vis) != 4 || len(q) != 1 {
		t.Fatalf("expected 4 visible 1 queued, got %v %v", vis, q)
	}
	if vis[3] != "p5" || q[0] != "p6" {
		t.Fatalf("expected p5 promoted, got %v %v", vis, q)
	}
	if len(clock.live()) != 4 {
		t.Fatalf("promoted item must be armed, got %d live timers", len(clock.live()))
	}
}

func TestTimerExpiryDismisses(t *testing.T) {
	b, clock := newTestBuffer(1)
	b.Add(post(1))
	b.Add(post(2))

	clock.live()[0].f()
	if vis := ids(b.Visible()); len(vis) != 1 || vis[0] != "p2" {
		t.Fatalf("expected p2 visible after expiry, got %v", vis)
	}
	if len(b.Queued()) != 0 {
		t.Fatalf("queue should be empty")
	}
}

func TestStaleTimerIsIgnored(t *testing.T) {
	b, clock := newTestBuffer(2)
	b.Add(post(1))
	first := clock.timers[0]

	b.Dismiss("p1")
	b.Add(post(1))

	// The cancelled timer fires late; the re-added item must survive.
	first.f()
	if vis := ids(b.Visible()); len(vis) != 1 || vis[0] != "p1" {
		t.Fatalf("stale timer dismissed a fresh item: %v", vis)
	}
}

func TestDuplicateAddRejected(t *testing.T) {
	b, _ := newTestBuffer(1)
	if !b.Add(post(1)) || !b.Add(post(2)) {
		t.Fatalf("first adds must succeed")
	}
	if b.Add(post(1)) || b.Add(post(2)) {
		t.Fatalf("duplicates in either sequence must be rejected")
	}
}

func TestDismissQueuedItem(t *testing.T) {
	b, _ := newTestBuffer(1)
	b.Add(post(1))
	b.Add(post(2))
	b.Add(post(3))

	b.Dismiss("p2")
	if vis, q := ids(b.Visible()), ids(b.Queued()); len(vis) != 1 || vis[0] != "p1" || len(q) != 1 || q[0] != "p3" {
		t.Fatalf("unexpected state %v %v", vis, q)
	}
	if b.Dismiss("missing") {
		t.Fatalf("unknown id should report false")
	}
}

func TestClearCancelsTimers(t *testing.T) {
	b, clock := newTestBuffer(2)
	for i := 1; i <= 5; i++ {
		b.Add(post(i))
	}
	b.Clear()

	if len(b.Visible()) != 0 || len(b.Queued()) != 0 {
		t.Fatalf("clear left items behind")
	}
	if n := len(clock.live()); n != 0 {
		t.Fatalf("expected no live timers, got %d", n)
	}
	for _, tm := range clock.timers {
		tm.f()
	}
	if len(b.Visible()) != 0 {
		t.Fatalf("late timer resurrected state")
	}
}

func TestUpdateCallback(t *testing.T) {
	var calls int
	var lastVisible []Item
	b := New(2, time.Second, func(visible, _ []Item) {
		calls++
		lastVisible = visible
	}, nil)
	(&fakeClock{}).install(b)

	b.Add(post(1))
	b.Add(post(1))
	b.Dismiss("p1")
	if calls != 2 {
		t.Fatalf("expected 2 updates, got %d", calls)
	}
	if len(lastVisible) != 0 {
		t.Fatalf("expected empty visible snapshot, got %v", ids(lastVisible))
	}
}

func TestRandomOperationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		limit := 1 + rng.Intn(5)
		b, clock := newTestBuffer(limit)

		for step := 0; step < 200; step++ {
			id := rng.Intn(20)
			switch rng.Intn(4) {
			case 0, 1:
				b.Add(post(id))
			case 2:
				b.Dismiss(fmt.Sprintf("p%d", id))
			case 3:
				if live := clock.live(); len(live) > 0 {
					live[rng.Intn(len(live))].f()
				}
			}

			vis, q := b.Visible(), b.Queued()
			if len(vis) > limit {
				t.Fatalf("round %d: visible %d exceeds %d", round, len(vis), limit)
			}
			if len(q) > 0 && len(vis) < limit {
				t.Fatalf("round %d: free slot while items are queued", round)
			}
			seen := map[string]bool{}
			for _, it := range append(vis, q...) {
				if seen[it.Post.ID] {
					t.Fatalf("round %d: %s held twice", round, it.Post.ID)
				}
				seen[it.Post.ID] = true
			}
			if n := len(clock.live()); n != len(vis) {
				t.Fatalf("round %d: %d live timers for %d visible items", round, n, len(vis))
			}
		}
	}
}
