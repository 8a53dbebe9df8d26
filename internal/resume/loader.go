package resume

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"resume-ai-backend/internal/logger"
	"resume-ai-backend/internal/rag"
)

// maxFileSize caps resume files to avoid loading something absurd.
const maxFileSize = 20 << 20

// LoadDocument reads the resume at path. PDFs are extracted page by
// page; anything else is treated as plain text.
func LoadDocument(path string) (string, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat resume file: %w", err)
	}
	if stat.Size() > maxFileSize {
		return "", fmt.Errorf("resume file too large: %d bytes", stat.Size())
	}

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return extractPDF(path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read resume file: %w", err)
	}
	return string(content), nil
}

func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract PDF page", "page", i, "error", err)
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	out := b.String()
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("no text extracted from %s", path)
	}
	return out, nil
}

// Resume sections in canonical form.
const (
	SectionSummary        = "summary"
	SectionExperience     = "experience"
	SectionSkills         = "skills"
	SectionEducation      = "education"
	SectionProjects       = "projects"
	SectionCertifications = "certifications"
	SectionOther          = "other"
)

// sectionHeadings maps heading spellings to canonical sections. A line
// is a heading when it is short and matches one of these.
var sectionHeadings = map[string]string{
	"summary":                 SectionSummary,
	"profile":                 SectionSummary,
	"about":                   SectionSummary,
	"objective":               SectionSummary,
	"experience":              SectionExperience,
	"work experience":         SectionExperience,
	"employment":              SectionExperience,
	"employment history":      SectionExperience,
	"professional experience": SectionExperience,
	"skills":                  SectionSkills,
	"technical skills":        SectionSkills,
	"technologies":            SectionSkills,
	"education":               SectionEducation,
	"academic background":     SectionEducation,
	"projects":                SectionProjects,
	"personal projects":       SectionProjects,
	"certifications":          SectionCertifications,
	"certificates":            SectionCertifications,
	"licenses":                SectionCertifications,
}

// sectionHints classifies a paragraph by its content when no heading
// was seen. Checked in order; first hit wins.
var sectionHints = []struct {
	section  string
	keywords []string
}{
	{SectionEducation, []string{"bachelor", "master", "phd", "university", "degree", "gpa"}},
	{SectionCertifications, []string{"certified", "certification", "certificate"}},
	{SectionExperience, []string{"engineer at", "developer at", "worked", "managed", "led ", "built", "developed"}},
	{SectionSkills, []string{"proficient", "languages:", "tools:", "frameworks"}},
}

var headingTrimRe = regexp.MustCompile(`[:\s]+$`)

// maxPassageRunes bounds passage size; longer paragraphs are split on
// sentence boundaries.
const maxPassageRunes = 800

var sentenceBoundaryRe = regexp.MustCompile(`[.!?]\s+`)

// BuildPassages splits resume text into section-tagged passages with
// character offsets into the source text.
func BuildPassages(text string) []rag.Passage {
	var passages []rag.Passage
	section := SectionOther

	offset := 0
	for _, block := range strings.Split(text, "\n\n") {
		blockStart := strings.Index(text[offset:], block) + offset
		offset = blockStart + len(block)

		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}

		// A block may open with a heading line.
		lines := strings.SplitN(trimmed, "\n", 2)
		if canonical, ok := headingSection(lines[0]); ok {
			section = canonical
			if len(lines) < 2 || strings.TrimSpace(lines[1]) == "" {
				continue
			}
			trimmed = strings.TrimSpace(lines[1])
		}

		blockSection := section
		if section == SectionOther {
			blockSection = inferSection(trimmed)
		}

		for _, part := range splitLong(trimmed) {
			passages = append(passages, rag.Passage{
				ID:      fmt.Sprintf("p%d", len(passages)+1),
				Section: blockSection,
				Text:    part,
				Start:   blockStart,
				End:     blockStart + len(block),
			})
		}
	}

	logger.Info("Resume split into passages", "passages", len(passages))
	return passages
}

func headingSection(line string) (string, bool) {
	line = strings.ToLower(strings.TrimSpace(line))
	line = headingTrimRe.ReplaceAllString(line, "")
	if len(line) > 40 {
		return "", false
	}
	canonical, ok := sectionHeadings[line]
	return canonical, ok
}

func inferSection(text string) string {
	lower := strings.ToLower(text)
	for _, hint := range sectionHints {
		for _, kw := range hint.keywords {
			if strings.Contains(lower, kw) {
				return hint.section
			}
		}
	}
	return SectionOther
}

// splitLong breaks oversized paragraphs at sentence boundaries, keeping
// each part under maxPassageRunes where possible.
func splitLong(text string) []string {
	if len([]rune(text)) <= maxPassageRunes {
		return []string{text}
	}

	var parts []string
	var current strings.Builder

	sentences := splitSentences(text)
	for _, s := range sentences {
		if current.Len() > 0 && len([]rune(current.String()))+len([]rune(s)) > maxPassageRunes {
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(s)
	}
	if strings.TrimSpace(current.String()) != "" {
		parts = append(parts, strings.TrimSpace(current.String()))
	}
	return parts
}

func splitSentences(text string) []string {
	bounds := sentenceBoundaryRe.FindAllStringIndex(text, -1)
	if len(bounds) == 0 {
		return []string{text}
	}
	var out []string
	prev := 0
	for _, b := range bounds {
		out = append(out, text[prev:b[1]])
		prev = b[1]
	}
	if prev < len(text) {
		out = append(out, text[prev:])
	}
	return out
}
