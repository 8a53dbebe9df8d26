package rag

import (
	"strings"
	"unicode"
)

// Passage is one retrievable chunk of the resume. Vector and tokens are
// filled in during index builds; callers only need to provide ID, Section
// and Text.
type Passage struct {
	ID      string
	Section string
	Text    string

	// Character offsets into the source document.
	Start int
	End   int

	vector []float32
	tokens map[string]struct{}
}

// Citation points a generated answer back at a passage.
type Citation struct {
	Section   string  `json:"section"`
	Text      string  `json:"text"`
	Relevance float64 `json:"relevance"`
}

// Tokenize lowercases the text and splits it on non-alphanumeric runes.
// Single-character tokens are dropped except digits, so "go" and "c#"
// style names survive as "go" and "c" does not swamp scoring.
func Tokenize(text string) []string {
	var tokens []string
	var b strings.Builder

	flush := func() {
		if b.Len() == 0 {
			return
		}
		tok := b.String()
		b.Reset()
		if len(tok) > 1 || unicode.IsDigit(rune(tok[0])) {
			tokens = append(tokens, tok)
		}
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// jaccard returns |a∩b| / |a∪b| for two token sets, 0 when either is empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if _, ok := large[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// overlapRatio returns the fraction of tokens in a that also appear in b.
func overlapRatio(a []string, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	hits := 0
	for _, t := range a {
		if _, ok := b[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}
