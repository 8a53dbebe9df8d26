package match

import (
	"context"
	"testing"

	"resume-ai-backend/internal/ai"
	"resume-ai-backend/internal/apperr"
)

// scriptedGenerator returns its texts in order, one per call.
type scriptedGenerator struct {
	texts []string
	calls int
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string, prefs []string, opts ai.GenerateOptions) (*ai.Generation, error) {
	text := ""
	if g.calls < len(g.texts) {
		text = g.texts[g.calls]
	}
	g.calls++
	return &ai.Generation{Text: text, Backend: "stub"}, nil
}

const validExtraction = `{
	"required_skills": ["Go", "PostgreSQL", "go"],
	"preferred_skills": ["Kubernetes"],
	"experience_years": 5,
	"experience_level": null,
	"education": "bachelor",
	"keywords": ["microservices", "APIs"],
	"responsibilities": ["Build backend services"]
}`

func TestExtractParsesCleanJSON(t *testing.T) {
	e := NewExtractor(&scriptedGenerator{texts: []string{validExtraction}}, ai.GenerateOptions{})

	reqs, err := e.Extract(context.Background(), "Senior Go Engineer at Acme")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	// Skills come back lowercased and deduped, order preserved.
	if len(reqs.RequiredSkills) != 2 || reqs.RequiredSkills[0] != "go" || reqs.RequiredSkills[1] != "postgresql" {
		t.Errorf("RequiredSkills = %v", reqs.RequiredSkills)
	}
	if reqs.ExperienceYears == nil || *reqs.ExperienceYears != 5 {
		t.Errorf("ExperienceYears = %v", reqs.ExperienceYears)
	}
	if reqs.ExperienceLevel != nil {
		t.Errorf("ExperienceLevel should be nil, got %v", *reqs.ExperienceLevel)
	}
	if reqs.Education == nil || *reqs.Education != "bachelor" {
		t.Errorf("Education = %v", reqs.Education)
	}
}

func TestExtractToleratesFencesAndProse(t *testing.T) {
	wrapped := "Sure! Here are the requirements:\n```json\n" + validExtraction + "\n```\nLet me know if you need anything else."
	e := NewExtractor(&scriptedGenerator{texts: []string{wrapped}}, ai.GenerateOptions{})

	reqs, err := e.Extract(context.Background(), "Senior Go Engineer")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(reqs.Keywords) != 2 {
		t.Errorf("Keywords = %v", reqs.Keywords)
	}
}

func TestExtractRetriesOnceOnMalformedOutput(t *testing.T) {
	gen := &scriptedGenerator{texts: []string{"I cannot produce JSON, sorry.", validExtraction}}
	e := NewExtractor(gen, ai.GenerateOptions{})

	reqs, err := e.Extract(context.Background(), "Senior Go Engineer")
	if err != nil {
		t.Fatalf("Extract after retry: %v", err)
	}
	if gen.calls != 2 {
		t.Errorf("expected exactly 2 generation calls, got %d", gen.calls)
	}
	if len(reqs.RequiredSkills) == 0 {
		t.Error("retry result not used")
	}
}

func TestExtractFailsAfterSecondMalformedOutput(t *testing.T) {
	gen := &scriptedGenerator{texts: []string{"nope", "{\"broken\": "}}
	e := NewExtractor(gen, ai.GenerateOptions{})

	_, err := e.Extract(context.Background(), "Senior Go Engineer")
	if !apperr.IsKind(err, apperr.KindExtraction) {
		t.Fatalf("expected extraction_error, got %v", err)
	}
	if gen.calls != 2 {
		t.Errorf("expected exactly 2 generation calls, got %d", gen.calls)
	}
}

func TestExtractRejectsEmptyJobDescription(t *testing.T) {
	e := NewExtractor(&scriptedGenerator{}, ai.GenerateOptions{})
	for _, jd := range []string{"", "   \n\t"} {
		if _, err := e.Extract(context.Background(), jd); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("Extract(%q): expected validation_error, got %v", jd, err)
		}
	}
}

func TestExtractJSONBalancesBraces(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{`prefix {"a": {"b": 2}} suffix`, `{"a": {"b": 2}}`},
		{`{"s": "has } inside"}`, `{"s": "has } inside"}`},
		{`{"s": "escaped \" quote}"}`, `{"s": "escaped \" quote}"}`},
		{`no json here`, ``},
		{`{"unterminated": `, ``},
	}
	for _, tc := range cases {
		if got := extractJSON(tc.in); got != tc.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
