package rag

import (
	"regexp"
	"strings"
)

// Scorer measures how well an answer is supported by its citations.
// It exists as an interface so the orchestrator can be tested with a
// counting double.
type Scorer interface {
	Score(answer string, citations []Citation) float64
}

// GroundingScorer is the default Scorer: it splits the answer into
// sentence-level claims and scores each claim by its best token overlap
// with any single citation, then averages. Purely lexical, deterministic,
// and never errors.
type GroundingScorer struct{}

var sentenceSplitRe = regexp.MustCompile(`[.!?]+\s+|\n+`)

// minClaimTokens filters out fragments like "e.g" left over from
// sentence splitting.
const minClaimTokens = 3

// Score returns a value in [0,1]. An answer with no extractable claims
// scores 0, as does any answer checked against zero citations.
func (GroundingScorer) Score(answer string, citations []Citation) float64 {
	claims := extractClaims(answer)
	if len(claims) == 0 || len(citations) == 0 {
		return 0
	}

	citationTokens := make([]map[string]struct{}, len(citations))
	for i, c := range citations {
		citationTokens[i] = tokenSet(Tokenize(c.Text))
	}

	total := 0.0
	for _, claim := range claims {
		claimTokens := Tokenize(claim)
		best := 0.0
		for _, ct := range citationTokens {
			if s := overlapRatio(claimTokens, ct); s > best {
				best = s
			}
		}
		total += best
	}

	score := total / float64(len(claims))
	if score > 1 {
		score = 1
	}
	return score
}

func extractClaims(answer string) []string {
	var claims []string
	for _, part := range sentenceSplitRe.Split(answer, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if len(Tokenize(part)) < minClaimTokens {
			continue
		}
		claims = append(claims, part)
	}
	return claims
}
