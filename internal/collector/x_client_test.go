package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/qepting91/tagstream/internal/domain"
)

const searchBody = `{
  "data": [
    {"id": "200", "text": "newer #go", "author_id": "7", "created_at": "2024-05-11T20:01:00.000Z", "lang": "en",
     "public_metrics": {"reply_count": 1, "retweet_count": 2, "like_count": 3},
     "attachments": {"media_keys": ["3_1"]}},
    {"id": "100", "text": "RT older", "author_id": "8", "lang": "de",
     "referenced_tweets": [{"type": "retweeted", "id": "50"}]}
  ],
  "includes": {
    "users": [{"id": "7", "username": "gopher", "name": "Gopher", "profile_image_url": "https://img/g.png"}],
    "media": [{"media_key": "3_1", "type": "photo", "url": "https://img/p.jpg"}]
  },
  "meta": {"newest_id": "200", "oldest_id": "100", "result_count": 2}
}`

func newTestXClient(t *testing.T, h http.HandlerFunc) *XClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	xc, err := NewXClient("token", srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	xc.limiter.SetLimit(1000)
	xc.limiter.SetBurst(1000)
	return xc
}

func TestXSearchBuildsRequestAndDecodes(t *testing.T) {
	var got *http.Request
	xc := newTestXClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchBody))
	})

	q := domain.Query{Hashtags: []string{"#go", "#rust"}, Languages: []string{"en"}}
	res, err := xc.Search(context.Background(), q, domain.SearchParams{MaxResults: 5, SinceID: "99", Order: domain.OrderRecency})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if got.URL.Path != "/2/tweets/search/recent" {
		t.Fatalf("unexpected path %s", got.URL.Path)
	}
	if got.Header.Get("Authorization") != "Bearer token" {
		t.Fatalf("missing bearer token")
	}
	v := got.URL.Query()
	if v.Get("query") != "(#go OR #rust) (lang:en) -is:retweet" {
		t.Fatalf("unexpected query %q", v.Get("query"))
	}
	if v.Get("max_results") != "10" || v.Get("since_id") != "99" || v.Get("sort_order") != "recency" {
		t.Fatalf("unexpected params %v", v)
	}

	if len(res.Posts) != 2 || res.NewestID != "200" {
		t.Fatalf("unexpected result %+v", res)
	}
	first := res.Posts[0]
	if first.Metrics == nil || first.Metrics.LikeCount != 3 || len(first.MediaKeys) != 1 {
		t.Fatalf("unexpected first post %+v", first)
	}
	if !res.Posts[1].IsRepost {
		t.Fatalf("retweet not flagged")
	}
	if len(res.Users) != 1 || len(res.Media) != 1 || res.Media[0].Key != "3_1" {
		t.Fatalf("side tables not decoded: %+v %+v", res.Users, res.Media)
	}
}

func TestXSearchRelevanceOrder(t *testing.T) {
	xc := newTestXClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sort_order") != "relevancy" {
			t.Errorf("expected relevancy, got %q", r.URL.Query().Get("sort_order"))
		}
		if r.URL.Query().Get("max_results") != "100" {
			t.Errorf("expected clamp to 100, got %q", r.URL.Query().Get("max_results"))
		}
		_, _ = w.Write([]byte(`{"meta":{"result_count":0}}`))
	})
	res, err := xc.Search(context.Background(), domain.Query{Hashtags: []string{"#go"}}, domain.SearchParams{MaxResults: 500, Order: domain.OrderRelevance})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Posts) != 0 {
		t.Fatalf("expected empty result")
	}
}

func TestXSearchErrorClasses(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cases := []struct {
		name   string
		status int
		header map[string]string
		body   string
		class  domain.ErrorClass
		reset  time.Duration
	}{
		{name: "unauthorized", status: 401, class: domain.ClassTerminal},
		{name: "forbidden", status: 403, class: domain.ClassTerminal},
		{name: "rate limited", status: 429, header: map[string]string{"x-rate-limit-reset": strconv.FormatInt(now.Unix()+30, 10)}, class: domain.ClassThrottled, reset: 30 * time.Second},
		{name: "rate limited without hint", status: 429, class: domain.ClassThrottled},
		{name: "server error", status: 503, class: domain.ClassTransient},
		{name: "bad json", status: 200, body: "{", class: domain.ClassTransient},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			xc := newTestXClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tc.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			xc.now = func() time.Time { return now }

			_, err := xc.Search(context.Background(), domain.Query{Hashtags: []string{"#go"}}, domain.SearchParams{MaxResults: 10})
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := domain.Classify(err); got != tc.class {
				t.Fatalf("expected class %d, got %d (%v)", tc.class, got, err)
			}
			var rl *domain.RateLimitError
			if errors.As(err, &rl) && rl.ResetAfter != tc.reset {
				t.Fatalf("expected reset %s, got %s", tc.reset, rl.ResetAfter)
			}
		})
	}
}

func TestXSearchNetworkErrorIsTransient(t *testing.T) {
	xc, err := NewXClient("token", "http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = xc.Search(context.Background(), domain.Query{Hashtags: []string{"#go"}}, domain.SearchParams{MaxResults: 10})
	if domain.Classify(err) != domain.ClassTransient {
		t.Fatalf("expected transient, got %v", err)
	}
}

func TestNewXClientRequiresToken(t *testing.T) {
	if _, err := NewXClient("  ", ""); err == nil {
		t.Fatalf("expected error")
	}
}
