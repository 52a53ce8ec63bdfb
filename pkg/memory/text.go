package memory

import (
	"strings"
	"unicode"
)

// DefaultSnippetLength is the snippet size in runes.
const DefaultSnippetLength = 200

// Tokenize splits text into lower-cased runs of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Snippet returns at most maxRunes of content. When query has a term that
// occurs in content, the window starts shortly before the first hit.
// Cut edges are marked with "...".
func Snippet(content, query string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultSnippetLength
	}
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= maxRunes {
		return string(runes)
	}

	start := 0
	if hit := firstHit(runes, Tokenize(query)); hit > 0 {
		start = hit - maxRunes/4
		if start < 0 {
			start = 0
		}
	}
	end := start + maxRunes
	if end > len(runes) {
		end = len(runes)
		start = end - maxRunes
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(strings.TrimSpace(string(runes[start:end])))
	if end < len(runes) {
		b.WriteString("...")
	}
	return b.String()
}

// firstHit returns the rune offset of the earliest term occurrence, or -1.
func firstHit(runes []rune, terms []string) int {
	if len(terms) == 0 {
		return -1
	}
	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}

	best := -1
	for _, term := range terms {
		if idx := indexRunes(lower, []rune(term)); idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	return best
}

func indexRunes(s, sub []rune) int {
	if len(sub) == 0 || len(sub) > len(s) {
		return -1
	}
outer:
	for i := 0; i+len(sub) <= len(s); i++ {
		for j := range sub {
			if s[i+j] != sub[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
