package domain

import (
	"strings"
)

// Query is the structured form of a hashtag search. Adapters render it in
// their own dialect; String renders the X search syntax.
type Query struct {
	Hashtags       []string
	Languages      []string
	IncludeReposts bool
	TestMode       bool
}

// QueryFor builds the query for a settings snapshot.
func QueryFor(s FeedSettings) Query {
	return Query{
		Hashtags:       append([]string(nil), s.Hashtags...),
		Languages:      append([]string(nil), s.Languages...),
		IncludeReposts: s.IncludeReposts,
		TestMode:       s.TestMode,
	}
}

// String renders "(#a OR #b) (lang:en OR lang:de) -is:retweet".
func (q Query) String() string {
	var parts []string
	switch len(q.Hashtags) {
	case 0:
	case 1:
		parts = append(parts, q.Hashtags[0])
	default:
		parts = append(parts, "("+strings.Join(q.Hashtags, " OR ")+")")
	}

	if !q.TestMode && len(q.Languages) > 0 {
		langs := make([]string, 0, len(q.Languages))
		for _, l := range q.Languages {
			langs = append(langs, "lang:"+l)
		}
		parts = append(parts, "("+strings.Join(langs, " OR ")+")")
	}

	if !q.IncludeReposts {
		parts = append(parts, "-is:retweet")
	}
	return strings.Join(parts, " ")
}

// Terms returns the bare hashtag words joined with OR, for upstreams that
// have no hashtag operator.
func (q Query) Terms() string {
	terms := make([]string, 0, len(q.Hashtags))
	for _, h := range q.Hashtags {
		terms = append(terms, strings.TrimPrefix(h, "#"))
	}
	return strings.Join(terms, " OR ")
}
