package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/qepting91/tagstream/internal/domain"
	"github.com/qepting91/tagstream/internal/stream"
	"github.com/qepting91/tagstream/internal/viewer"
)

func TestRender(t *testing.T) {
	cases := []struct {
		name          string
		event         viewer.Event
		notifications bool
		want          string
	}{
		{"reconnecting", viewer.Event{Kind: viewer.EventState, State: stream.Disconnected, Attempts: 2}, false, "reconnect attempt 2"},
		{"connected", viewer.Event{Kind: viewer.EventState, State: stream.Connected}, false, "[status] connected"},
		{"viewers", viewer.Event{Kind: viewer.EventConnection, Status: "connected", Viewers: 3}, false, "3 viewers"},
		{"post", viewer.Event{Kind: viewer.EventPost, Post: domain.CanonicalPost{Text: "hello\n  world", Author: domain.Author{Username: "ada"}}}, false, "@ada: hello world"},
		{"post in overlay mode", viewer.Event{Kind: viewer.EventPost, Post: domain.CanonicalPost{Text: "x"}}, true, ""},
		{"error", viewer.Event{Kind: viewer.EventError, Message: "revoked"}, false, "[error] revoked"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			render(&buf, tc.event, tc.notifications)
			if tc.want == "" {
				if buf.Len() != 0 {
					t.Fatalf("expected no output, got %q", buf.String())
				}
				return
			}
			if !strings.Contains(buf.String(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, buf.String())
			}
		})
	}
}
