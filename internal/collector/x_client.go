package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/qepting91/tagstream/internal/domain"
)

const DefaultXBaseURL = "https://api.x.com"

// XClient searches the X API v2 recent search endpoint.
type XClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	token      string
	now        func() time.Time
}

type xSearchResponse struct {
	Data     []xPost `json:"data"`
	Includes struct {
		Users []domain.RawUser  `json:"users"`
		Media []domain.RawMedia `json:"media"`
	} `json:"includes"`
	Meta struct {
		NewestID    string `json:"newest_id"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
}

type xPost struct {
	ID            string             `json:"id"`
	Text          string             `json:"text"`
	AuthorID      string             `json:"author_id"`
	CreatedAt     string             `json:"created_at"`
	Lang          string             `json:"lang"`
	PublicMetrics *domain.RawMetrics `json:"public_metrics"`
	Attachments   struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

func NewXClient(token, baseURL string) (*XClient, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("X_BEARER_TOKEN is required for x mode")
	}
	if baseURL == "" {
		baseURL = DefaultXBaseURL
	}
	return &XClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		// Recent search allows 450 requests per 15 minutes per app.
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		now:     time.Now,
	}, nil
}

func (xc *XClient) Search(ctx context.Context, q domain.Query, params domain.SearchParams) (domain.SearchResult, error) {
	if err := xc.limiter.Wait(ctx); err != nil {
		return domain.SearchResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, xc.baseURL+"/2/tweets/search/recent?"+searchValues(q, params).Encode(), nil)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+xc.token)

	resp, err := xc.httpClient.Do(req)
	if err != nil {
		return domain.SearchResult{}, &domain.TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.SearchResult{}, &domain.AuthError{Status: resp.StatusCode, Err: errors.New(readSnippet(resp.Body))}
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.SearchResult{}, &domain.RateLimitError{ResetAfter: xc.resetAfter(resp.Header)}
	case resp.StatusCode != http.StatusOK:
		return domain.SearchResult{}, &domain.TransientError{Err: fmt.Errorf("x search status %d: %s", resp.StatusCode, readSnippet(resp.Body))}
	}

	var body xSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.SearchResult{}, &domain.TransientError{Err: fmt.Errorf("decode x search: %w", err)}
	}
	return body.toResult(), nil
}

func searchValues(q domain.Query, params domain.SearchParams) url.Values {
	v := url.Values{}
	v.Set("query", q.String())
	v.Set("max_results", strconv.Itoa(clampResults(params.MaxResults)))
	if params.SinceID != "" {
		v.Set("since_id", params.SinceID)
	}
	if params.Order == domain.OrderRelevance {
		v.Set("sort_order", "relevancy")
	} else {
		v.Set("sort_order", "recency")
	}
	v.Set("tweet.fields", "author_id,created_at,public_metrics,lang,attachments,referenced_tweets")
	v.Set("expansions", "author_id,attachments.media_keys")
	v.Set("user.fields", "username,name,profile_image_url")
	v.Set("media.fields", "type,url,preview_image_url,variants")
	return v
}

// The endpoint accepts 10..100 results per page.
func clampResults(n int) int {
	if n < 10 {
		return 10
	}
	if n > domain.MaxCycleFetchLimit {
		return domain.MaxCycleFetchLimit
	}
	return n
}

// resetAfter reads the epoch-seconds reset header. Zero means no hint.
func (xc *XClient) resetAfter(h http.Header) time.Duration {
	epoch, err := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64)
	if err != nil {
		return 0
	}
	d := time.Unix(epoch, 0).Sub(xc.now())
	if d < 0 {
		return 0
	}
	return d
}

func (r xSearchResponse) toResult() domain.SearchResult {
	res := domain.SearchResult{
		Users:    r.Includes.Users,
		Media:    r.Includes.Media,
		NewestID: r.Meta.NewestID,
	}
	for _, p := range r.Data {
		raw := domain.RawPost{
			ID:        p.ID,
			Text:      p.Text,
			AuthorID:  p.AuthorID,
			CreatedAt: p.CreatedAt,
			Lang:      p.Lang,
			Metrics:   p.PublicMetrics,
			MediaKeys: p.Attachments.MediaKeys,
		}
		for _, ref := range p.ReferencedTweets {
			if ref.Type == "retweeted" {
				raw.IsRepost = true
			}
		}
		res.Posts = append(res.Posts, raw)
	}
	return res
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
