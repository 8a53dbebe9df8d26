package match

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"resume-ai-backend/internal/apperr"
	"resume-ai-backend/internal/logger"
	"resume-ai-backend/internal/rag"
)

// Index is the retrieval dependency, satisfied by rag.PassageIndex.
type Index interface {
	Search(ctx context.Context, query string, k int, mode rag.SearchMode) ([]rag.RetrievalHit, error)
	Passages() []*rag.Passage
}

// RequirementSource is the extraction dependency, satisfied by Extractor.
type RequirementSource interface {
	Extract(ctx context.Context, jobDescription string) (*Requirements, error)
}

// Weights distributes the overall score across the four sub-scores.
type Weights struct {
	Skills     float64
	Experience float64
	Education  float64
	Keywords   float64
}

// Config carries the scoring knobs.
type Config struct {
	Weights Weights
	// SkillThreshold is the minimum fused retrieval score for a skill
	// to count as matched without an exact mention.
	SkillThreshold float64
	// ToleranceYears is the experience shortfall that still earns at
	// least half credit.
	ToleranceYears int
}

// MatchedSkill is a required or preferred skill found in the resume.
type MatchedSkill struct {
	Skill     string  `json:"skill"`
	Section   string  `json:"section,omitempty"`
	Evidence  string  `json:"evidence,omitempty"`
	Relevance float64 `json:"relevance"`
}

// MissingSkill is a skill the job wants that the resume lacks.
type MissingSkill struct {
	Skill      string   `json:"skill"`
	Importance string   `json:"importance"` // "required" or "preferred"
	Suggestion string   `json:"suggestion"`
	Related    []string `json:"related,omitempty"`
}

// Breakdown holds the four sub-scores, each in [0,100].
type Breakdown struct {
	Skills     float64 `json:"skills"`
	Experience float64 `json:"experience"`
	Education  float64 `json:"education"`
	Keywords   float64 `json:"keywords"`
}

// Analysis is the full result of matching the resume against a job.
type Analysis struct {
	Overall         float64        `json:"overall_score"`
	Quality         string         `json:"quality"`
	Breakdown       Breakdown      `json:"breakdown"`
	Matched         []MatchedSkill `json:"matched_skills"`
	Missing         []MissingSkill `json:"missing_skills"`
	Recommendations []string       `json:"recommendations"`
	Requirements    *Requirements  `json:"requirements"`
	ProcessingTime  time.Duration  `json:"-"`
}

// Engine scores the indexed resume against extracted job requirements.
// Everything after extraction is deterministic: the same requirements
// against the same index always yield the same Analysis.
type Engine struct {
	index     Index
	extractor RequirementSource
	cfg       Config
}

func NewEngine(index Index, extractor RequirementSource, cfg Config) *Engine {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = Weights{Skills: 0.40, Experience: 0.25, Education: 0.15, Keywords: 0.20}
	}
	if cfg.SkillThreshold <= 0 {
		cfg.SkillThreshold = 0.25
	}
	if cfg.ToleranceYears <= 0 {
		cfg.ToleranceYears = 2
	}
	return &Engine{index: index, extractor: extractor, cfg: cfg}
}

// requiredWeight makes a required skill count double a preferred one.
const requiredWeight, preferredWeight = 2.0, 1.0

// Match runs extraction then deterministic scoring.
func (en *Engine) Match(ctx context.Context, jobDescription string) (*Analysis, error) {
	start := time.Now()

	tracer := otel.Tracer("match-engine")
	ctx, span := tracer.Start(ctx, "match.analyze")
	defer span.End()

	passages := en.index.Passages()
	if len(passages) == 0 {
		return nil, apperr.New(apperr.KindIndexUnavailable, "resume has not been indexed yet")
	}

	reqs, err := en.extractor.Extract(ctx, jobDescription)
	if err != nil {
		return nil, err
	}

	resume := newResumeView(passages)

	skillScore, matched, missing, err := en.scoreSkills(ctx, resume, reqs)
	if err != nil {
		return nil, err
	}

	analysis := &Analysis{
		Breakdown: Breakdown{
			Skills:     skillScore,
			Experience: en.scoreExperience(resume, reqs),
			Education:  en.scoreEducation(resume, reqs),
			Keywords:   en.scoreKeywords(resume, reqs),
		},
		Matched:      matched,
		Missing:      missing,
		Requirements: reqs,
	}

	w := en.cfg.Weights
	totalWeight := w.Skills + w.Experience + w.Education + w.Keywords
	analysis.Overall = (w.Skills*analysis.Breakdown.Skills +
		w.Experience*analysis.Breakdown.Experience +
		w.Education*analysis.Breakdown.Education +
		w.Keywords*analysis.Breakdown.Keywords) / totalWeight
	analysis.Quality = qualityBucket(analysis.Overall)
	analysis.Recommendations = buildRecommendations(analysis)
	analysis.ProcessingTime = time.Since(start)

	span.SetAttributes(
		attribute.Float64("match.overall", analysis.Overall),
		attribute.String("match.quality", analysis.Quality),
		attribute.Int("match.missing_skills", len(missing)),
	)
	logger.Info("Job match analyzed",
		"overall", fmt.Sprintf("%.1f", analysis.Overall),
		"quality", analysis.Quality,
		"matched", len(matched),
		"missing", len(missing),
		"duration_ms", analysis.ProcessingTime.Milliseconds(),
	)
	return analysis, nil
}

// resumeView is the precomputed lexical view of the indexed resume.
type resumeView struct {
	passages []*rag.Passage
	// normalized is all resume tokens joined with single spaces, for
	// phrase containment checks.
	normalized string
	tokens     map[string]struct{}
}

func newResumeView(passages []*rag.Passage) *resumeView {
	var all []string
	for _, p := range passages {
		all = append(all, rag.Tokenize(p.Text)...)
	}
	return &resumeView{
		passages:   passages,
		normalized: " " + strings.Join(all, " ") + " ",
		tokens:     tokenSet(all),
	}
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// contains reports whether the normalized phrase occurs in the resume.
func (rv *resumeView) contains(phrase string) bool {
	norm := strings.Join(rag.Tokenize(phrase), " ")
	if norm == "" {
		return false
	}
	return strings.Contains(rv.normalized, " "+norm+" ")
}

// skillSynonyms maps a skill to spellings that count as the same thing.
var skillSynonyms = map[string][]string{
	"go":         {"golang"},
	"golang":     {"go"},
	"kubernetes": {"k8s"},
	"k8s":        {"kubernetes"},
	"postgresql": {"postgres"},
	"postgres":   {"postgresql"},
	"javascript": {"js"},
	"typescript": {"ts"},
	"amazon web services": {"aws"},
	"aws":                 {"amazon web services"},
	"google cloud":        {"gcp"},
	"gcp":                 {"google cloud"},
	"machine learning":    {"ml"},
	"ci/cd":               {"cicd", "continuous integration"},
}

// mentioned checks the skill and its synonyms against the resume.
// Returns the spelling that matched.
func (rv *resumeView) mentioned(skill string) (string, bool) {
	if rv.contains(skill) {
		return skill, true
	}
	for _, alt := range skillSynonyms[skill] {
		if rv.contains(alt) {
			return alt, true
		}
	}
	return "", false
}

type skillResult struct {
	skill      string
	importance string
	matched    bool
	hit        *rag.RetrievalHit
}

// scoreSkills checks every required and preferred skill against the
// resume. Evidence passages are fetched concurrently but results are
// assembled in requirement order, so output stays deterministic.
func (en *Engine) scoreSkills(ctx context.Context, resume *resumeView, reqs *Requirements) (float64, []MatchedSkill, []MissingSkill, error) {
	type query struct {
		skill      string
		importance string
	}
	var queries []query
	for _, s := range reqs.RequiredSkills {
		queries = append(queries, query{s, "required"})
	}
	for _, s := range reqs.PreferredSkills {
		queries = append(queries, query{s, "preferred"})
	}
	if len(queries) == 0 {
		return 100, nil, nil, nil
	}

	results := make([]skillResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, q := range queries {
		g.Go(func() error {
			res := skillResult{skill: q.skill, importance: q.importance}
			hits, err := en.index.Search(gctx, q.skill, 1, rag.ModeHybrid)
			if err != nil {
				return err
			}
			if len(hits) > 0 {
				res.hit = &hits[0]
			}

			if _, ok := resume.mentioned(q.skill); ok {
				res.matched = true
			} else if res.hit != nil && res.hit.FusedScore >= en.cfg.SkillThreshold && res.hit.LexScore > 0 {
				res.matched = true
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, nil, err
	}

	var earned, total float64
	var matched []MatchedSkill
	var missing []MissingSkill
	for _, res := range results {
		weight := preferredWeight
		if res.importance == "required" {
			weight = requiredWeight
		}
		total += weight

		if res.matched {
			earned += weight
			ms := MatchedSkill{Skill: res.skill}
			if res.hit != nil {
				ms.Section = res.hit.Passage.Section
				ms.Evidence = evidenceSnippet(res.hit.Passage.Text)
				ms.Relevance = res.hit.FusedScore
			}
			matched = append(matched, ms)
			continue
		}

		missing = append(missing, MissingSkill{
			Skill:      res.skill,
			Importance: res.importance,
			Suggestion: fmt.Sprintf("Highlight any experience with %s or closely related tools", res.skill),
			Related:    relatedInResume(resume, res.skill),
		})
	}

	return earned / total * 100, matched, missing, nil
}

// relatedInResume lists synonyms of a missing skill that do appear,
// useful when the resume says "golang" and the job says "go".
func relatedInResume(resume *resumeView, skill string) []string {
	var related []string
	for _, alt := range skillSynonyms[skill] {
		if resume.contains(alt) {
			related = append(related, alt)
		}
	}
	return related
}

var (
	yearsMentionRe = regexp.MustCompile(`(\d{1,2})\+?\s*(?:years|yrs)`)
	dateRangeRe    = regexp.MustCompile(`\b(19|20)(\d{2})\s*[-–—]\s*(?:(19|20)(\d{2})|present|current)`)
)

// experienceLevelYears maps seniority words to implied minimum years
// when the job states a level but no number.
var experienceLevelYears = map[string]int{
	"intern": 0, "junior": 1, "mid": 3, "senior": 5, "staff": 7, "lead": 7, "principal": 10,
}

// scoreExperience compares required years against years evidenced in
// the resume. Shortfall is penalized linearly so a gap equal to the
// tolerance still scores 50.
func (en *Engine) scoreExperience(resume *resumeView, reqs *Requirements) float64 {
	required := 0
	switch {
	case reqs.ExperienceYears != nil:
		required = *reqs.ExperienceYears
	case reqs.ExperienceLevel != nil:
		level := strings.ToLower(*reqs.ExperienceLevel)
		for word, years := range experienceLevelYears {
			if strings.Contains(level, word) {
				if years > required {
					required = years
				}
			}
		}
	}
	if required <= 0 {
		return 100
	}

	have := resumeYears(resume)
	if have >= required {
		return 100
	}

	gap := float64(required - have)
	perYear := 50.0 / float64(en.cfg.ToleranceYears)
	score := 100 - gap*perYear
	if score < 0 {
		return 0
	}
	return score
}

// resumeYears derives total experience from explicit "N years" mentions
// and employment date ranges, taking whichever is larger.
func resumeYears(resume *resumeView) int {
	text := strings.ToLower(passageText(resume))

	years := 0
	for _, m := range yearsMentionRe.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > years && n < 60 {
			years = n
		}
	}

	currentYear := time.Now().Year()
	minStart, maxEnd := 0, 0
	for _, m := range dateRangeRe.FindAllStringSubmatch(text, -1) {
		start, _ := strconv.Atoi(m[1] + m[2])
		end := currentYear
		if m[3] != "" {
			end, _ = strconv.Atoi(m[3] + m[4])
		}
		if end < start {
			continue
		}
		if minStart == 0 || start < minStart {
			minStart = start
		}
		if end > maxEnd {
			maxEnd = end
		}
	}
	if minStart > 0 && maxEnd-minStart > years {
		years = maxEnd - minStart
	}
	return years
}

func passageText(resume *resumeView) string {
	var b strings.Builder
	for _, p := range resume.passages {
		b.WriteString(p.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// educationRanks orders degree levels for comparison.
var educationRanks = []struct {
	rank     int
	keywords []string
}{
	{4, []string{"phd", "doctorate", "doctoral"}},
	{3, []string{"master", "msc", "mba", "m.s"}},
	{2, []string{"bachelor", "bsc", "b.s", "undergraduate degree"}},
	{1, []string{"associate", "diploma"}},
}

func educationRank(text string) int {
	text = strings.ToLower(text)
	for _, level := range educationRanks {
		for _, kw := range level.keywords {
			if strings.Contains(text, kw) {
				return level.rank
			}
		}
	}
	return 0
}

// scoreEducation gives full credit when no education is required or the
// resume meets the bar, half credit one level below, zero otherwise.
func (en *Engine) scoreEducation(resume *resumeView, reqs *Requirements) float64 {
	if reqs.Education == nil || strings.TrimSpace(*reqs.Education) == "" {
		return 100
	}
	required := educationRank(*reqs.Education)
	if required == 0 {
		return 100
	}

	have := educationRank(passageText(resume))
	switch {
	case have >= required:
		return 100
	case have == required-1:
		return 50
	default:
		return 0
	}
}

// scoreKeywords is the fraction of job keywords the resume echoes.
func (en *Engine) scoreKeywords(resume *resumeView, reqs *Requirements) float64 {
	if len(reqs.Keywords) == 0 {
		return 100
	}
	found := 0
	for _, kw := range reqs.Keywords {
		if _, ok := resume.mentioned(kw); ok {
			found++
		}
	}
	return float64(found) / float64(len(reqs.Keywords)) * 100
}

func qualityBucket(overall float64) string {
	switch {
	case overall >= 85:
		return "excellent"
	case overall >= 65:
		return "good"
	case overall >= 45:
		return "fair"
	default:
		return "poor"
	}
}

func buildRecommendations(a *Analysis) []string {
	var recs []string
	for _, m := range a.Missing {
		if m.Importance != "required" {
			continue
		}
		if len(m.Related) > 0 {
			recs = append(recs, fmt.Sprintf("The job asks for %s; rename or cross-reference your %s experience to match", m.Skill, strings.Join(m.Related, ", ")))
		} else {
			recs = append(recs, fmt.Sprintf("Address the missing required skill: %s", m.Skill))
		}
	}
	if a.Breakdown.Keywords < 60 {
		recs = append(recs, "Echo more of the job posting's terminology in your resume")
	}
	if a.Breakdown.Experience < 100 {
		recs = append(recs, "Make your total years of experience explicit near the top of the resume")
	}
	if len(recs) == 0 {
		recs = append(recs, "Strong match; emphasize your most relevant accomplishments in the application")
	}
	return recs
}

func evidenceSnippet(text string) string {
	const maxLen = 160
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}
