package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestQueryString(t *testing.T) {
	cases := []struct {
		name string
		q    Query
		want string
	}{
		{
			name: "single hashtag excludes reposts",
			q:    Query{Hashtags: []string{"#go"}},
			want: "#go -is:retweet",
		},
		{
			name: "hashtags and languages",
			q:    Query{Hashtags: []string{"#a", "#b"}, Languages: []string{"en", "de"}},
			want: "(#a OR #b) (lang:en OR lang:de) -is:retweet",
		},
		{
			name: "test mode drops languages",
			q:    Query{Hashtags: []string{"#a", "#b"}, Languages: []string{"en"}, TestMode: true},
			want: "(#a OR #b) -is:retweet",
		},
		{
			name: "reposts included",
			q:    Query{Hashtags: []string{"#a"}, Languages: []string{"fr"}, IncludeReposts: true},
			want: "#a (lang:fr)",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.q.String(); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestQueryTerms(t *testing.T) {
	q := Query{Hashtags: []string{"#eurovision", "#esc2024"}}
	if got := q.Terms(); got != "eurovision OR esc2024" {
		t.Fatalf("unexpected terms %q", got)
	}
}

func TestSettingsNormalize(t *testing.T) {
	s := FeedSettings{
		Languages:       []string{" EN", "de", "en", ""},
		CycleFetchLimit: 500,
	}.Normalize()

	if len(s.Languages) != 2 || s.Languages[0] != "en" || s.Languages[1] != "de" {
		t.Fatalf("unexpected languages %v", s.Languages)
	}
	if s.CadenceSeconds != DefaultCadenceSeconds {
		t.Fatalf("expected default cadence, got %d", s.CadenceSeconds)
	}
	if s.CycleFetchLimit != MaxCycleFetchLimit {
		t.Fatalf("expected clamped fetch limit, got %d", s.CycleFetchLimit)
	}
	if s.DisplayLimit != DefaultDisplayLimit {
		t.Fatalf("expected default display limit, got %d", s.DisplayLimit)
	}
}

func TestTestModeAcceptsAllLanguages(t *testing.T) {
	s := DefaultSettings()
	s.TestMode = true
	if langs := s.EffectiveLanguages(); len(langs) != 0 {
		t.Fatalf("expected no language filter in test mode, got %v", langs)
	}

	other := s.Clone()
	other.Languages = []string{"fr"}
	if !s.PollConfigEqual(other) {
		t.Fatalf("language change under test mode should not change poll config")
	}
}

func TestSettingsPatchApply(t *testing.T) {
	base := DefaultSettings()
	cadence := 10
	langs := []string{"FR"}
	out := SettingsPatch{CadenceSeconds: &cadence, Languages: &langs}.Apply(base)

	if out.CadenceSeconds != 10 || len(out.Languages) != 1 || out.Languages[0] != "fr" {
		t.Fatalf("unexpected patched settings %+v", out)
	}
	if base.CadenceSeconds != DefaultCadenceSeconds {
		t.Fatalf("patch mutated its input")
	}
	if out.PollConfigEqual(base) {
		t.Fatalf("expected poll config to differ")
	}
}

func TestClassify(t *testing.T) {
	if Classify(fmt.Errorf("wrapped: %w", &AuthError{Status: 401})) != ClassTerminal {
		t.Fatalf("auth error should be terminal")
	}
	if Classify(&RateLimitError{}) != ClassThrottled {
		t.Fatalf("rate limit should be throttled")
	}
	if Classify(errors.New("boom")) != ClassTransient {
		t.Fatalf("plain error should be transient")
	}
}
