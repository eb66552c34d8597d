package domain

import (
	"context"
	"time"
)

// MediaKind is the canonical media type of an attachment.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
	MediaGIF   MediaKind = "gif"
)

// Author is the resolved author of a post.
type Author struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Metrics holds public engagement counters. Missing counters are zero.
type Metrics struct {
	Replies int `json:"replies"`
	Reposts int `json:"reposts"`
	Likes   int `json:"likes"`
}

// MediaVariant is one playable rendition of a video or gif.
type MediaVariant struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
	BitRate     int    `json:"bitRate,omitempty"`
}

// Media is a resolved attachment.
type Media struct {
	Key        string         `json:"key"`
	Kind       MediaKind      `json:"kind"`
	URL        string         `json:"url,omitempty"`
	PreviewURL string         `json:"previewUrl,omitempty"`
	Variants   []MediaVariant `json:"variants,omitempty"`
}

// CanonicalPost is the normalized, author/media-resolved representation of
// one upstream item. It is built once and never mutated.
type CanonicalPost struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Author    Author    `json:"author"`
	Language  string    `json:"language,omitempty"`
	Metrics   Metrics   `json:"metrics"`
	Media     []Media   `json:"media"`
	Permalink string    `json:"permalink"`
}

// RawMetrics mirrors the upstream public_metrics object.
type RawMetrics struct {
	ReplyCount   int `json:"reply_count"`
	RetweetCount int `json:"retweet_count"`
	LikeCount    int `json:"like_count"`
}

// RawPost is one upstream record as returned by a search.
type RawPost struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	AuthorID  string      `json:"author_id"`
	CreatedAt string      `json:"created_at"`
	Lang      string      `json:"lang"`
	Metrics   *RawMetrics `json:"public_metrics"`
	MediaKeys []string    `json:"media_keys"`
	Permalink string      `json:"permalink"`
	IsRepost  bool        `json:"is_repost"`
}

// RawUser is an entry of the referenced-authors side table.
type RawUser struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// RawVariant is an upstream media rendition.
type RawVariant struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	BitRate     int    `json:"bit_rate"`
}

// RawMedia is an entry of the referenced-media side table.
type RawMedia struct {
	Key        string       `json:"media_key"`
	Type       string       `json:"type"`
	URL        string       `json:"url"`
	PreviewURL string       `json:"preview_image_url"`
	Variants   []RawVariant `json:"variants"`
}

// SearchResult is one page of upstream results, newest first.
type SearchResult struct {
	Posts    []RawPost
	Users    []RawUser
	Media    []RawMedia
	NewestID string
}

// SortOrder selects how the upstream orders results.
type SortOrder string

const (
	OrderRecency   SortOrder = "recency"
	OrderRelevance SortOrder = "relevance"
)

// SearchParams bounds a single upstream search.
type SearchParams struct {
	MaxResults int
	SinceID    string
	Order      SortOrder
}

// Searcher is the upstream search collaborator.
type Searcher interface {
	Search(ctx context.Context, q Query, params SearchParams) (SearchResult, error)
}
