package domain

import (
	"slices"
	"strings"
)

const (
	DefaultCadenceSeconds  = 30
	DefaultCycleFetchLimit = 50
	DefaultDisplayLimit    = 200

	// MaxCycleFetchLimit is the upstream page size ceiling.
	MaxCycleFetchLimit = 100
)

// FeedSettings is the polling and display configuration shared by every
// viewer. Values are copied on read; the coordinator is the only writer.
type FeedSettings struct {
	Hashtags        []string `json:"hashtags" yaml:"hashtags"`
	Languages       []string `json:"languages" yaml:"languages"`
	IncludeReposts  bool     `json:"includeReposts" yaml:"include_reposts"`
	TestMode        bool     `json:"testMode" yaml:"test_mode"`
	CadenceSeconds  int      `json:"cadenceSeconds" yaml:"cadence_seconds"`
	CycleFetchLimit int      `json:"cycleFetchLimit" yaml:"cycle_fetch_limit"`
	DisplayLimit    int      `json:"displayLimit" yaml:"display_limit"`
}

// DefaultSettings returns the settings used when nothing is stored.
func DefaultSettings() FeedSettings {
	return FeedSettings{
		Languages:       []string{"en", "de"},
		CadenceSeconds:  DefaultCadenceSeconds,
		CycleFetchLimit: DefaultCycleFetchLimit,
		DisplayLimit:    DefaultDisplayLimit,
	}
}

// Normalize lowercases and dedupes languages and clamps numeric fields.
func (s FeedSettings) Normalize() FeedSettings {
	out := s.Clone()

	langs := make([]string, 0, len(out.Languages))
	for _, l := range out.Languages {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || slices.Contains(langs, l) {
			continue
		}
		langs = append(langs, l)
	}
	out.Languages = langs

	if out.CadenceSeconds <= 0 {
		out.CadenceSeconds = DefaultCadenceSeconds
	}
	if out.CycleFetchLimit <= 0 {
		out.CycleFetchLimit = DefaultCycleFetchLimit
	}
	if out.CycleFetchLimit > MaxCycleFetchLimit {
		out.CycleFetchLimit = MaxCycleFetchLimit
	}
	if out.DisplayLimit <= 0 {
		out.DisplayLimit = DefaultDisplayLimit
	}
	return out
}

// Clone returns a deep copy.
func (s FeedSettings) Clone() FeedSettings {
	out := s
	out.Hashtags = append([]string(nil), s.Hashtags...)
	out.Languages = append([]string(nil), s.Languages...)
	return out
}

// EffectiveLanguages is the language filter actually applied. Test mode
// accepts every language.
func (s FeedSettings) EffectiveLanguages() []string {
	if s.TestMode {
		return nil
	}
	return append([]string(nil), s.Languages...)
}

// Equal reports whether two snapshots are identical.
func (s FeedSettings) Equal(o FeedSettings) bool {
	return s.PollConfigEqual(o) &&
		s.DisplayLimit == o.DisplayLimit &&
		slices.Equal(s.Hashtags, o.Hashtags)
}

// PollConfigEqual reports whether two snapshots would issue the same cycles
// at the same cadence. Hashtags and display limit are not compared.
func (s FeedSettings) PollConfigEqual(o FeedSettings) bool {
	return s.CadenceSeconds == o.CadenceSeconds &&
		s.CycleFetchLimit == o.CycleFetchLimit &&
		s.IncludeReposts == o.IncludeReposts &&
		s.TestMode == o.TestMode &&
		slices.Equal(s.EffectiveLanguages(), o.EffectiveLanguages())
}

// SettingsPatch is a partial update. Nil fields are left unchanged.
type SettingsPatch struct {
	Languages       *[]string `json:"languages"`
	IncludeReposts  *bool     `json:"includeReposts"`
	TestMode        *bool     `json:"testMode"`
	CadenceSeconds  *int      `json:"cadenceSeconds"`
	CycleFetchLimit *int      `json:"cycleFetchLimit"`
	DisplayLimit    *int      `json:"displayLimit"`
}

// Apply returns s with the patch applied and normalized.
func (p SettingsPatch) Apply(s FeedSettings) FeedSettings {
	out := s.Clone()
	if p.Languages != nil {
		out.Languages = append([]string(nil), (*p.Languages)...)
	}
	if p.IncludeReposts != nil {
		out.IncludeReposts = *p.IncludeReposts
	}
	if p.TestMode != nil {
		out.TestMode = *p.TestMode
	}
	if p.CadenceSeconds != nil {
		out.CadenceSeconds = *p.CadenceSeconds
	}
	if p.CycleFetchLimit != nil {
		out.CycleFetchLimit = *p.CycleFetchLimit
	}
	if p.DisplayLimit != nil {
		out.DisplayLimit = *p.DisplayLimit
	}
	return out.Normalize()
}
