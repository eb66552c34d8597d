// Package dashboard counts posts seen on the live feed and renders them as
// charts.
package dashboard

import (
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/qepting91/tagstream/internal/domain"
)

// Stats accumulates per-hashtag and per-language counts. It is safe for
// concurrent use.
type Stats struct {
	hashtags func() []string

	mu        sync.Mutex
	total     int
	byTag     map[string]int
	byLang    map[string]int
	startedAt time.Time
	lastPost  time.Time
}

// Snapshot is a copy of the counters.
type Snapshot struct {
	Total      int            `json:"total"`
	ByHashtag  map[string]int `json:"byHashtag"`
	ByLanguage map[string]int `json:"byLanguage"`
	StartedAt  time.Time      `json:"startedAt"`
	LastPostAt time.Time      `json:"lastPostAt,omitempty"`
}

// NewStats creates empty counters. hashtags reports the currently tracked
// tags that posts are matched against.
func NewStats(hashtags func() []string) *Stats {
	return &Stats{
		hashtags:  hashtags,
		byTag:     make(map[string]int),
		byLang:    make(map[string]int),
		startedAt: time.Now().UTC(),
	}
}

// Observe counts one post. It has the broadcast.Observer signature.
func (s *Stats) Observe(post domain.CanonicalPost) {
	text := strings.ToLower(post.Text)
	var tags []string
	if s.hashtags != nil {
		tags = s.hashtags()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.lastPost = time.Now().UTC()
	for _, tag := range tags {
		if strings.Contains(text, tag) {
			s.byTag[tag]++
		}
	}
	lang := post.Language
	if lang == "" {
		lang = "und"
	}
	s.byLang[lang]++
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Total:      s.total,
		ByHashtag:  make(map[string]int, len(s.byTag)),
		ByLanguage: make(map[string]int, len(s.byLang)),
		StartedAt:  s.startedAt,
		LastPostAt: s.lastPost,
	}
	for k, v := range s.byTag {
		snap.ByHashtag[k] = v
	}
	for k, v := range s.byLang {
		snap.ByLanguage[k] = v
	}
	return snap
}

// Render writes the chart page for the current counters.
func (s *Stats) Render(w io.Writer) error {
	snap := s.Snapshot()

	// 1. Hashtag share
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Hashtag Share", Subtitle: "posts since " + snap.StartedAt.Format(time.RFC3339)}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)
	var pieItems []opts.PieData
	for _, k := range sortedKeys(snap.ByHashtag) {
		pieItems = append(pieItems, opts.PieData{Name: k, Value: snap.ByHashtag[k]})
	}
	pie.AddSeries("Posts", pieItems)

	// 2. Language mix
	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Language Mix"}))
	var barX []string
	var barY []opts.BarData
	for _, k := range sortedKeys(snap.ByLanguage) {
		barX = append(barX, k)
		barY = append(barY, opts.BarData{Value: snap.ByLanguage[k]})
	}
	bar.SetXAxis(barX).AddSeries("Posts", barY)

	if err := pie.Render(w); err != nil {
		return err
	}
	return bar.Render(w)
}

// Handler serves the chart page.
func (s *Stats) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := s.Render(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
