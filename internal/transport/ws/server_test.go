package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qepting91/tagstream/internal/broadcast"
	"github.com/qepting91/tagstream/internal/domain"
	"github.com/qepting91/tagstream/internal/protocol"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readType(t *testing.T, conn *websocket.Conn, want string) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		typ, err := protocol.DecodeType(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if typ == want {
			return b
		}
	}
}

func TestViewerReceivesConnectionAndPosts(t *testing.T) {
	hub := broadcast.NewHub(0, nil)
	srv := httptest.NewServer(NewServer(hub, Options{}, nil))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	var cm protocol.ConnectionMsg
	if err := json.Unmarshal(readType(t, conn, protocol.TypeConnection), &cm); err != nil {
		t.Fatalf("decode connection: %v", err)
	}
	if cm.ConnectedClients != 1 {
		t.Fatalf("expected 1 viewer, got %d", cm.ConnectedClients)
	}

	hub.BroadcastPost(domain.CanonicalPost{ID: "42", Text: "hi"})
	var pm protocol.PostMsg
	if err := json.Unmarshal(readType(t, conn, protocol.TypePost), &pm); err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if pm.Data.ID != "42" {
		t.Fatalf("unexpected post %+v", pm.Data)
	}
}

func TestClosedViewerIsRemoved(t *testing.T) {
	hub := broadcast.NewHub(0, nil)
	srv := httptest.NewServer(NewServer(hub, Options{}, nil))
	defer srv.Close()

	a := dial(t, srv)
	defer a.Close()
	readType(t, a, protocol.TypeConnection)

	b := dial(t, srv)
	readType(t, b, protocol.TypeConnection)
	waitFor(t, func() bool { return hub.Count() == 2 })

	_ = b.Close()
	waitFor(t, func() bool { return hub.Count() == 1 })

	var cm protocol.ConnectionMsg
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := json.Unmarshal(readType(t, a, protocol.TypeConnection), &cm); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if cm.ConnectedClients == 1 {
			return
		}
	}
	t.Fatalf("remaining viewer never saw the count drop, last %+v", cm)
}

func TestHeartbeatPingsViewer(t *testing.T) {
	hub := broadcast.NewHub(10*time.Millisecond, nil)
	srv := httptest.NewServer(NewServer(hub, Options{}, nil))
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	defer conn.Close()

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatalf("no heartbeat ping received")
	}
}

func TestStalledViewerDoesNotStallBroadcasts(t *testing.T) {
	hub := broadcast.NewHub(0, nil)
	srv := httptest.NewServer(NewServer(hub, Options{QueueSize: 2}, nil))
	defer srv.Close()

	// Never reads, so its socket buffers fill and the writer blocks.
	conn := dial(t, srv)
	defer conn.Close()
	waitFor(t, func() bool { return hub.Count() == 1 })

	big := strings.Repeat("x", 4<<20)
	var worst time.Duration
	for i := 0; i < 40; i++ {
		start := time.Now()
		hub.BroadcastPost(domain.CanonicalPost{ID: "p", Text: big})
		if d := time.Since(start); d > worst {
			worst = d
		}
	}
	if worst > 500*time.Millisecond {
		t.Fatalf("broadcast blocked for %s", worst)
	}
	if hub.Count() != 0 {
		t.Fatalf("stalled viewer should have been dropped, %d left", hub.Count())
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	c := &channel{out: make(chan []byte, 1), done: make(chan struct{})}
	if err := c.Send([]byte("a")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.Send([]byte("b")); err != errQueueFull {
		t.Fatalf("expected queue full, got %v", err)
	}
	close(c.done)
	if err := c.Send([]byte("c")); err != errClosed {
		t.Fatalf("expected closed, got %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
