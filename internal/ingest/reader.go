package ingest

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/qepting91/tagstream/internal/domain"
)

// Characters other than letters, marks, digits, '#' and '_' are dropped.
var disallowed = regexp.MustCompile(`[^\p{L}\p{M}\p{Nd}#_]`)

var defaultHashtags = []string{"#eurovision", "#eurovision2024", "#esc2024", "#eurovisionsongcontest"}

// DefaultHashtags returns the hashtag set used when nothing is configured.
func DefaultHashtags() []string {
	return slices.Clone(defaultHashtags)
}

// CleanHashtag normalizes user input into "#tag" form: it strips
// punctuation and whitespace, forces exactly one leading '#' and lowercases.
func CleanHashtag(raw string) (string, error) {
	cleaned := disallowed.ReplaceAllString(strings.TrimSpace(raw), "")
	cleaned = "#" + strings.TrimLeft(cleaned, "#")
	if len(cleaned) < 2 {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidHashtag, raw)
	}
	return strings.ToLower(cleaned), nil
}

// CleanAll cleans every entry, dropping invalid ones and duplicates while
// keeping first-seen order.
func CleanAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		tag, err := CleanHashtag(r)
		if err != nil || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}

// LoadHashtags reads a one-column CSV with a header row. Invalid rows are
// skipped.
func LoadHashtags(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadHashtags(f)
}

func ReadHashtags(src io.Reader) ([]string, error) {
	r := csv.NewReader(stripBOM(src))
	r.FieldsPerRecord = -1

	var raw []string
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read hashtags: %w", err)
		}
		line++
		if line == 1 || len(rec) == 0 {
			continue // Skip header
		}
		raw = append(raw, rec[0])
	}
	return CleanAll(raw), nil
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	rdr, _, err := br.ReadRune()
	if err != nil {
		return br
	}
	if rdr != '\uFEFF' {
		_ = br.UnreadRune()
	}
	return br
}
