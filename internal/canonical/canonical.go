// Package canonical turns raw upstream search records into CanonicalPost
// values. Everything here is pure: no I/O and no shared state.
package canonical

import (
	"strings"
	"time"

	"github.com/qepting91/tagstream/internal/domain"
)

// UnknownAuthor is used when a post references an author missing from the
// side table.
var UnknownAuthor = domain.Author{
	ID:          "",
	Username:    "unknown",
	DisplayName: "Unknown User",
}

// Tables indexes a batch's side tables for lookup.
type Tables struct {
	users map[string]domain.RawUser
	media map[string]domain.RawMedia
}

// NewTables indexes the referenced users and media of one search result.
func NewTables(users []domain.RawUser, media []domain.RawMedia) Tables {
	t := Tables{
		users: make(map[string]domain.RawUser, len(users)),
		media: make(map[string]domain.RawMedia, len(media)),
	}
	for _, u := range users {
		t.users[u.ID] = u
	}
	for _, m := range media {
		t.media[m.Key] = m
	}
	return t
}

// Canonicalize builds a CanonicalPost from one raw record. ok is false when
// the record has no resolvable body: no id, or neither text nor media.
func Canonicalize(raw domain.RawPost, tables Tables) (post domain.CanonicalPost, ok bool) {
	if strings.TrimSpace(raw.ID) == "" {
		return domain.CanonicalPost{}, false
	}
	if raw.Text == "" && len(raw.MediaKeys) == 0 {
		return domain.CanonicalPost{}, false
	}

	author := resolveAuthor(raw.AuthorID, tables)

	post = domain.CanonicalPost{
		ID:        raw.ID,
		Text:      raw.Text,
		CreatedAt: parseTime(raw.CreatedAt),
		Author:    author,
		Language:  raw.Lang,
		Media:     resolveMedia(raw.MediaKeys, tables),
		Permalink: raw.Permalink,
	}
	if raw.Metrics != nil {
		post.Metrics = domain.Metrics{
			Replies: nonNegative(raw.Metrics.ReplyCount),
			Reposts: nonNegative(raw.Metrics.RetweetCount),
			Likes:   nonNegative(raw.Metrics.LikeCount),
		}
	}
	if post.Permalink == "" {
		post.Permalink = permalink(author.Username, raw.ID)
	}
	return post, true
}

// Batch canonicalizes every post of a result in the given order, dropping
// malformed records. dropped counts the records that were skipped.
func Batch(result domain.SearchResult) (posts []domain.CanonicalPost, dropped int) {
	tables := NewTables(result.Users, result.Media)
	posts = make([]domain.CanonicalPost, 0, len(result.Posts))
	for _, raw := range result.Posts {
		p, ok := Canonicalize(raw, tables)
		if !ok {
			dropped++
			continue
		}
		posts = append(posts, p)
	}
	return posts, dropped
}

func resolveAuthor(id string, tables Tables) domain.Author {
	u, found := tables.users[id]
	if !found {
		a := UnknownAuthor
		a.ID = id
		return a
	}
	a := domain.Author{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.Name,
		AvatarURL:   u.ProfileImageURL,
	}
	if a.Username == "" {
		a.Username = UnknownAuthor.Username
	}
	if a.DisplayName == "" {
		a.DisplayName = a.Username
	}
	return a
}

func resolveMedia(keys []string, tables Tables) []domain.Media {
	out := make([]domain.Media, 0, len(keys))
	for _, key := range keys {
		m, found := tables.media[key]
		if !found {
			continue
		}
		kind, known := mediaKind(m.Type)
		if !known {
			continue
		}

		item := domain.Media{
			Key:        m.Key,
			Kind:       kind,
			URL:        m.URL,
			PreviewURL: m.PreviewURL,
		}
		for _, v := range m.Variants {
			if v.URL == "" {
				continue
			}
			item.Variants = append(item.Variants, domain.MediaVariant{
				URL:         v.URL,
				ContentType: v.ContentType,
				BitRate:     v.BitRate,
			})
		}
		if kind != domain.MediaPhoto && len(item.Variants) == 0 {
			// nothing playable
			continue
		}
		out = append(out, item)
	}
	return out
}

func mediaKind(t string) (domain.MediaKind, bool) {
	switch strings.ToLower(t) {
	case "photo", "image":
		return domain.MediaPhoto, true
	case "video":
		return domain.MediaVideo, true
	case "animated_gif", "gif":
		return domain.MediaGIF, true
	default:
		return "", false
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

func permalink(username, id string) string {
	if username == "" || username == UnknownAuthor.Username {
		return "https://x.com/i/web/status/" + id
	}
	return "https://x.com/" + username + "/status/" + id
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
