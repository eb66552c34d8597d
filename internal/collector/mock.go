package collector

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/qepting91/tagstream/internal/domain"
)

// MockClient generates a steady trickle of synthetic posts. Ids increase
// monotonically so cursoring behaves like the real upstream.
type MockClient struct {
	latency time.Duration

	mu     sync.Mutex
	nextID int64
	rnd    *rand.Rand
}

var mockAuthors = []domain.RawUser{
	{ID: "u1", Username: "sim_fan", Name: "Simulated Fan"},
	{ID: "u2", Username: "sim_reporter", Name: "Simulated Reporter"},
	{ID: "u3", Username: "sim_bot", Name: "Simulated Bot"},
}

func NewMockClient() *MockClient {
	return &MockClient{
		latency: 200 * time.Millisecond,
		nextID:  1000,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (mc *MockClient) Search(ctx context.Context, q domain.Query, params domain.SearchParams) (domain.SearchResult, error) {
	// Simulate network latency (nice for testing concurrency)
	if mc.latency > 0 {
		select {
		case <-ctx.Done():
			return domain.SearchResult{}, ctx.Err()
		case <-time.After(mc.latency):
		}
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	n := mc.rnd.Intn(4)
	if params.SinceID == "" || params.Order == domain.OrderRelevance {
		n = params.MaxResults
	}
	if n > params.MaxResults {
		n = params.MaxResults
	}

	langs := q.Languages
	if q.TestMode || len(langs) == 0 {
		langs = []string{"en", "de", "fr"}
	}

	res := domain.SearchResult{Users: mockAuthors}
	now := time.Now().UTC()
	// Newest first, like the real upstream.
	for i := n - 1; i >= 0; i-- {
		id := strconv.FormatInt(mc.nextID+int64(i), 10)
		tag := "#mock"
		if len(q.Hashtags) > 0 {
			tag = q.Hashtags[mc.rnd.Intn(len(q.Hashtags))]
		}
		post := domain.RawPost{
			ID:        id,
			Text:      fmt.Sprintf("Simulated post %s about %s", id, tag),
			AuthorID:  mockAuthors[mc.rnd.Intn(len(mockAuthors))].ID,
			CreatedAt: now.Add(-time.Duration(n-1-i) * time.Second).Format(time.RFC3339),
			Lang:      langs[mc.rnd.Intn(len(langs))],
			Metrics: &domain.RawMetrics{
				ReplyCount:   mc.rnd.Intn(50),
				RetweetCount: mc.rnd.Intn(100),
				LikeCount:    mc.rnd.Intn(500),
			},
		}
		if mc.rnd.Intn(5) == 0 {
			key := "m" + id
			post.MediaKeys = []string{key}
			res.Media = append(res.Media, domain.RawMedia{Key: key, Type: "photo", URL: "https://picsum.photos/seed/" + id + "/600/400"})
		}
		res.Posts = append(res.Posts, post)
	}
	mc.nextID += int64(n)
	if len(res.Posts) > 0 {
		res.NewestID = res.Posts[0].ID
	}
	return res, nil
}
