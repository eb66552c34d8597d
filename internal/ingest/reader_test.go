package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/qepting91/tagstream/internal/domain"
)

func TestCleanHashtag(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Eurovision", "#eurovision"},
		{"  #ESC2024 ", "#esc2024"},
		{"##double", "#double"},
		{"#song contest!", "#songcontest"},
		{"#snake_case", "#snake_case"},
		{"#Müller", "#müller"},
		{"#a", "#a"},
	}
	for _, tc := range cases {
		got, err := CleanHashtag(tc.in)
		if err != nil {
			t.Fatalf("CleanHashtag(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("CleanHashtag(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanHashtagRejectsEmpty(t *testing.T) {
	for _, in := range []string{"", "#", "###", "!!!", "  "} {
		if _, err := CleanHashtag(in); !errors.Is(err, domain.ErrInvalidHashtag) {
			t.Fatalf("CleanHashtag(%q): expected ErrInvalidHashtag, got %v", in, err)
		}
	}
}

func TestCleanAllDedupes(t *testing.T) {
	got := CleanAll([]string{"#Go", "go", "", "#rust"})
	if !slices.Equal(got, []string{"#go", "#rust"}) {
		t.Fatalf("unexpected %v", got)
	}
}

func TestReadHashtagsStripsBOMAndHeader(t *testing.T) {
	src := "\uFEFFhashtag\n#Go\nRust\n,\n#go\n"
	got, err := ReadHashtags(strings.NewReader(src))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !slices.Equal(got, []string{"#go", "#rust"}) {
		t.Fatalf("unexpected %v", got)
	}
}

func TestLoadHashtagsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hashtags.csv")
	if err := os.WriteFile(path, []byte("hashtag\n#eurovision\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := LoadHashtags(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !slices.Equal(got, []string{"#eurovision"}) {
		t.Fatalf("unexpected %v", got)
	}

	if _, err := LoadHashtags(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDefaultHashtagsAreClean(t *testing.T) {
	defaults := DefaultHashtags()
	if !slices.Equal(CleanAll(defaults), defaults) {
		t.Fatalf("defaults are not in clean form: %v", defaults)
	}
	defaults[0] = "mutated"
	if DefaultHashtags()[0] == "mutated" {
		t.Fatalf("DefaultHashtags must return a copy")
	}
}
