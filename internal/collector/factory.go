package collector

import (
	"fmt"

	"github.com/qepting91/tagstream/internal/domain"
)

// Options carries the upstream credentials for every mode.
type Options struct {
	Mode string

	XBearerToken string
	XBaseURL     string

	RedditClientID     string
	RedditClientSecret string
	RedditUsername     string
	RedditPassword     string
	RedditUserAgent    string
}

// NewCollector selects the correct implementation based on the mode.
func NewCollector(opts Options) (domain.Searcher, error) {
	switch opts.Mode {
	case "x":
		return NewXClient(opts.XBearerToken, opts.XBaseURL)
	case "reddit":
		if opts.RedditUserAgent == "" {
			return nil, fmt.Errorf("REDDIT_USER_AGENT is required for reddit mode")
		}
		return NewRedditClient(
			opts.RedditClientID,
			opts.RedditClientSecret,
			opts.RedditUsername,
			opts.RedditPassword,
			opts.RedditUserAgent,
		)
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown COLLECTOR_MODE: %s (use 'x', 'reddit', or 'mock')", opts.Mode)
	}
}
