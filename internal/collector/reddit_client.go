package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/loganintech/go-reddit/v2/reddit"
	"golang.org/x/time/rate"

	"github.com/qepting91/tagstream/internal/domain"
)

// RedditClient searches posts across all subreddits. Hashtags are searched
// as plain words and the language filter is not supported.
type RedditClient struct {
	client  *reddit.Client
	limiter *rate.Limiter
}

// NewRedditClient authenticates when credentials are given and falls back to
// the read-only client otherwise.
func NewRedditClient(id, secret, user, pass, userAgent string) (*RedditClient, error) {
	var (
		client *reddit.Client
		err    error
	)
	if id == "" {
		client, err = reddit.NewReadonlyClient(reddit.WithUserAgent(userAgent))
	} else {
		creds := reddit.Credentials{ID: id, Secret: secret, Username: user, Password: pass}
		client, err = reddit.NewClient(creds, reddit.WithUserAgent(userAgent))
	}
	if err != nil {
		return nil, err
	}

	// API Rate Limit: ~60 reqs/min (safe buffer)
	limiter := rate.NewLimiter(rate.Every(1*time.Second), 1)

	return &RedditClient{client: client, limiter: limiter}, nil
}

func (rc *RedditClient) Search(ctx context.Context, q domain.Query, params domain.SearchParams) (domain.SearchResult, error) {
	if err := rc.limiter.Wait(ctx); err != nil {
		return domain.SearchResult{}, err
	}

	sort := "new"
	if params.Order == domain.OrderRelevance {
		sort = "relevance"
	}
	opts := &reddit.ListPostSearchOptions{
		ListPostOptions: reddit.ListPostOptions{
			ListOptions: reddit.ListOptions{Limit: params.MaxResults, Before: params.SinceID},
		},
		Sort: sort,
	}

	posts, _, err := rc.client.Subreddit.SearchPosts(ctx, q.Terms(), "", opts)
	if err != nil {
		return domain.SearchResult{}, classifyRedditError(err)
	}
	return fromRedditPosts(posts), nil
}

func fromRedditPosts(posts []*reddit.Post) domain.SearchResult {
	var res domain.SearchResult
	seen := make(map[string]bool)
	for _, p := range posts {
		if p == nil {
			continue
		}
		raw := domain.RawPost{
			ID:       p.FullID,
			Text:     strings.TrimSpace(p.Title + "\n\n" + p.Body),
			AuthorID: p.AuthorID,
			Metrics: &domain.RawMetrics{
				ReplyCount: p.NumberOfComments,
				LikeCount:  p.Score,
			},
		}
		if p.Created != nil {
			raw.CreatedAt = p.Created.Time.UTC().Format(time.RFC3339)
		}
		if p.Permalink != "" {
			raw.Permalink = "https://www.reddit.com" + p.Permalink
		}
		res.Posts = append(res.Posts, raw)

		if p.AuthorID != "" && !seen[p.AuthorID] {
			seen[p.AuthorID] = true
			res.Users = append(res.Users, domain.RawUser{ID: p.AuthorID, Username: p.Author, Name: "u/" + p.Author})
		}
	}
	if len(res.Posts) > 0 {
		res.NewestID = res.Posts[0].ID
	}
	return res
}

func classifyRedditError(err error) error {
	var rl *reddit.RateLimitError
	if errors.As(err, &rl) {
		reset := time.Until(rl.Rate.Reset)
		if reset < 0 {
			reset = 0
		}
		return &domain.RateLimitError{ResetAfter: reset}
	}

	var resp *reddit.ErrorResponse
	if errors.As(err, &resp) && resp.Response != nil {
		switch resp.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &domain.AuthError{Status: resp.Response.StatusCode, Err: err}
		case http.StatusTooManyRequests:
			return &domain.RateLimitError{}
		}
	}
	return &domain.TransientError{Err: fmt.Errorf("reddit search: %w", err)}
}
