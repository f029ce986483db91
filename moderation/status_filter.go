package moderation

import (
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// StatusFilter censors forbidden words in client-provided custom status
// text before it is broadcast to every connected identity.
// Matching is case-insensitive on a normalized view of the text; the
// original characters of a match are replaced while spacing is preserved.
type StatusFilter struct {
	matcher     *goahocorasick.Machine
	replacement rune
}

// NewStatusFilter builds the Aho-Corasick automaton over the banned words.
// An empty word list yields a pass-through filter.
func NewStatusFilter(bannedWords []string, replacement rune) (*StatusFilter, error) {
	if len(bannedWords) == 0 {
		return &StatusFilter{replacement: replacement}, nil
	}

	patterns := make([][]rune, 0, len(bannedWords))
	for _, word := range bannedWords {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		patterns = append(patterns, normalizeRunes([]rune(word)))
	}
	if len(patterns) == 0 {
		return &StatusFilter{replacement: replacement}, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &StatusFilter{matcher: m, replacement: replacement}, nil
}

// Sanitize replaces every banned word occurrence in text.
func (f *StatusFilter) Sanitize(text string) string {
	if f.matcher == nil || text == "" {
		return text
	}

	runes := []rune(text)
	normalized := make([]rune, len(runes))
	for i, r := range runes {
		normalized[i] = unicode.ToLower(r)
	}

	spans := f.matcher.MultiPatternSearch(normalized, false)
	if len(spans) == 0 {
		return text
	}

	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(runes) {
			continue
		}
		for i := start; i < end; i++ {
			if !unicode.IsSpace(runes[i]) {
				runes[i] = f.replacement
			}
		}
	}
	return string(runes)
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		out = append(out, unicode.ToLower(r))
	}
	return out
}
