// Package viewer is the presentation side of a live feed subscriber: a
// deduplicated newest-first list and the notification overlay.
package viewer

import (
	"sync"

	"github.com/qepting91/tagstream/internal/domain"
)

// Feed is a newest-first list bounded by the display limit. The seen set
// always mirrors the list, so a post evicted by the limit may be shown
// again if it is redelivered.
type Feed struct {
	mu    sync.Mutex
	limit int
	posts []domain.CanonicalPost
	seen  map[string]struct{}
}

func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = domain.DefaultDisplayLimit
	}
	return &Feed{limit: limit, seen: make(map[string]struct{})}
}

// Add prepends post. It reports false for a post already in the list.
func (f *Feed) Add(post domain.CanonicalPost) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[post.ID]; ok {
		return false
	}
	f.posts = append([]domain.CanonicalPost{post}, f.posts...)
	f.seen[post.ID] = struct{}{}
	f.trimLocked()
	return true
}

// Seed replaces the list with posts, which must be newest first.
func (f *Feed) Seed(posts []domain.CanonicalPost) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = f.posts[:0]
	clear(f.seen)
	for _, p := range posts {
		if _, ok := f.seen[p.ID]; ok {
			continue
		}
		f.posts = append(f.posts, p)
		f.seen[p.ID] = struct{}{}
	}
	f.trimLocked()
}

func (f *Feed) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = nil
	clear(f.seen)
}

// SetLimit applies a new display limit, dropping the oldest posts when it
// shrinks.
func (f *Feed) SetLimit(limit int) {
	if limit <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = limit
	f.trimLocked()
}

func (f *Feed) Posts() []domain.CanonicalPost {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CanonicalPost(nil), f.posts...)
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

func (f *Feed) trimLocked() {
	if len(f.posts) <= f.limit {
		return
	}
	for _, p := range f.posts[f.limit:] {
		delete(f.seen, p.ID)
	}
	f.posts = f.posts[:f.limit]
}
