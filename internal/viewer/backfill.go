package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qepting91/tagstream/internal/domain"
)

// BackfillClient fetches the initial batch from the feed server's HTTP API.
type BackfillClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewBackfillClient(baseURL string) *BackfillClient {
	return &BackfillClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// APIBaseFromStream derives the HTTP base URL from a stream URL such as
// ws://host:5000/api/stream.
func APIBaseFromStream(streamURL string) (string, error) {
	u, err := url.Parse(streamURL)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String(), nil
}

type backfillResponse struct {
	Posts []domain.CanonicalPost `json:"posts"`
	Error string                 `json:"error"`
}

// Fetch returns up to limit posts, newest first.
func (bc *BackfillClient) Fetch(ctx context.Context, limit int) ([]domain.CanonicalPost, error) {
	endpoint := bc.baseURL + "/api/posts/backfill?limit=" + strconv.Itoa(limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := bc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch backfill: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read backfill: %w", err)
	}
	var out backfillResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode backfill: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error == "" {
			out.Error = resp.Status
		}
		return nil, fmt.Errorf("backfill: %s", out.Error)
	}
	return out.Posts, nil
}
