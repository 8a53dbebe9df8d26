package match

import (
	"context"
	"encoding/json"
	"strings"

	"resume-ai-backend/internal/ai"
	"resume-ai-backend/internal/apperr"
	"resume-ai-backend/internal/logger"
)

// Requirements is the structured form of a job description. Optional
// fields are pointers so "not stated" is distinct from zero values.
type Requirements struct {
	RequiredSkills   []string `json:"required_skills"`
	PreferredSkills  []string `json:"preferred_skills"`
	ExperienceYears  *int     `json:"experience_years"`
	ExperienceLevel  *string  `json:"experience_level"`
	Education        *string  `json:"education"`
	Keywords         []string `json:"keywords"`
	Responsibilities []string `json:"responsibilities"`
}

// Generator is the LLM dependency, satisfied by ai.Router.
type Generator interface {
	Generate(ctx context.Context, prompt string, prefs []string, opts ai.GenerateOptions) (*ai.Generation, error)
}

// Extractor turns free-text job descriptions into Requirements via an
// LLM asked for strict JSON. One retry with a sterner instruction before
// giving up with an extraction_error.
type Extractor struct {
	gen  Generator
	opts ai.GenerateOptions
}

func NewExtractor(gen Generator, opts ai.GenerateOptions) *Extractor {
	// Extraction wants determinism over creativity.
	opts.Temperature = 0
	return &Extractor{gen: gen, opts: opts}
}

const extractPrompt = `Extract the requirements from the job description below as JSON with exactly these keys:
  "required_skills": array of strings
  "preferred_skills": array of strings
  "experience_years": integer or null (minimum years required)
  "experience_level": string or null (e.g. "junior", "mid", "senior")
  "education": string or null (minimum degree, e.g. "bachelor", "master")
  "keywords": array of strings (important terms an applicant should echo)
  "responsibilities": array of strings

Respond with the JSON object only.

Job description:
`

const strictRetrySuffix = `

Your previous response was not valid JSON. Respond with ONLY the JSON object, no prose, no code fences.`

// Extract parses the job description, retrying once on malformed output.
func (e *Extractor) Extract(ctx context.Context, jobDescription string) (*Requirements, error) {
	jobDescription = strings.TrimSpace(jobDescription)
	if jobDescription == "" {
		return nil, apperr.New(apperr.KindValidation, "job description is required")
	}

	prompt := extractPrompt + jobDescription
	reqs, err := e.attempt(ctx, prompt)
	if err == nil {
		return reqs, nil
	}
	if apperr.Kind(err) != apperr.KindExtraction {
		return nil, err
	}

	logger.Warn("Requirement extraction produced invalid JSON, retrying", "error", err)
	reqs, err = e.attempt(ctx, prompt+strictRetrySuffix)
	if err == nil {
		return reqs, nil
	}
	if apperr.Kind(err) != apperr.KindExtraction {
		return nil, err
	}
	return nil, apperr.Wrap(apperr.KindExtraction, "could not parse requirements from job description", err)
}

// Keywords is the lightweight view used by the keywords endpoint.
func (e *Extractor) Keywords(ctx context.Context, jobDescription string) ([]string, error) {
	reqs, err := e.Extract(ctx, jobDescription)
	if err != nil {
		return nil, err
	}
	return reqs.Keywords, nil
}

func (e *Extractor) attempt(ctx context.Context, prompt string) (*Requirements, error) {
	gen, err := e.gen.Generate(ctx, prompt, nil, e.opts)
	if err != nil {
		return nil, err
	}

	raw := extractJSON(gen.Text)
	if raw == "" {
		return nil, apperr.New(apperr.KindExtraction, "no JSON object in response")
	}

	var reqs Requirements
	if err := json.Unmarshal([]byte(raw), &reqs); err != nil {
		return nil, apperr.Wrap(apperr.KindExtraction, "malformed JSON in response", err)
	}

	reqs.RequiredSkills = normalizeSkills(reqs.RequiredSkills)
	reqs.PreferredSkills = normalizeSkills(reqs.PreferredSkills)
	reqs.Keywords = normalizeSkills(reqs.Keywords)
	return &reqs, nil
}

// extractJSON pulls the first balanced JSON object out of model output,
// tolerating code fences and surrounding prose.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if fence := strings.Index(text, "```"); fence >= 0 {
		text = strings.TrimPrefix(text[fence+3:], "json")
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = inString
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// normalizeSkills lowercases, trims and dedupes while keeping order.
func normalizeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
