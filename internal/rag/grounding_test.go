package rag

import "testing"

func TestScoreZeroWithoutCitations(t *testing.T) {
	var s GroundingScorer
	if got := s.Score("I built distributed systems in Go for five years.", nil); got != 0 {
		t.Errorf("score without citations = %f, want 0", got)
	}
}

func TestScoreZeroWithoutClaims(t *testing.T) {
	var s GroundingScorer
	citations := []Citation{{Section: "skills", Text: "Go Python SQL"}}
	for _, answer := range []string{"", "   ", "Ok.", "Yes"} {
		if got := s.Score(answer, citations); got != 0 {
			t.Errorf("score(%q) = %f, want 0", answer, got)
		}
	}
}

func TestScoreFullyGroundedAnswer(t *testing.T) {
	var s GroundingScorer
	citations := []Citation{
		{Section: "experience", Text: "Built Go microservices with Redis and Kafka at scale"},
	}
	got := s.Score("Built Go microservices with Redis.", citations)
	if got != 1 {
		t.Errorf("fully grounded answer scored %f, want 1", got)
	}
}

func TestScorePrefersBestCitationPerClaim(t *testing.T) {
	var s GroundingScorer
	citations := []Citation{
		{Section: "education", Text: "Bachelor of Science in Computer Science"},
		{Section: "experience", Text: "Five years building payment infrastructure in Go"},
	}
	grounded := s.Score("Five years building payment infrastructure.", citations)
	ungrounded := s.Score("Expert in underwater basket weaving techniques.", citations)
	if grounded <= ungrounded {
		t.Errorf("grounded claim (%f) should outscore ungrounded claim (%f)", grounded, ungrounded)
	}
	if ungrounded < 0 || grounded > 1 {
		t.Errorf("scores outside [0,1]: %f, %f", ungrounded, grounded)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	var s GroundingScorer
	citations := []Citation{
		{Section: "skills", Text: "Python SQL Kubernetes Docker"},
		{Section: "projects", Text: "Implemented a retrieval engine for semantic search"},
	}
	answer := "I used Python and SQL daily. I also implemented a retrieval engine."
	first := s.Score(answer, citations)
	for i := 0; i < 10; i++ {
		if got := s.Score(answer, citations); got != first {
			t.Fatalf("score changed between runs: %f vs %f", got, first)
		}
	}
}

func TestScoreAveragesAcrossClaims(t *testing.T) {
	var s GroundingScorer
	citations := []Citation{{Section: "skills", Text: "golang redis kafka postgres"}}
	// One fully supported claim, one with zero support.
	got := s.Score("Uses golang redis kafka postgres. Enjoys competitive chess tournaments nightly.", citations)
	if got <= 0 || got >= 1 {
		t.Errorf("mixed answer should score strictly between 0 and 1, got %f", got)
	}
}
