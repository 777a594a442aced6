// Package report turns raw audit findings into the persisted report shape:
// score, summary counts, enriched violations and suggested code fixes. The
// builder is a pure transformation; persistence fields are filled by the
// orchestrator and store.
package report

import (
	"time"

	"github.com/quietfield/a11yd/internal/auditor"
)

// Severity buckets in caller-facing order.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Violation categories. First match wins; General is the fallback.
const (
	CategoryColorContrast = "Color & Contrast"
	CategoryImagesMedia   = "Images & Media"
	CategoryForms         = "Forms & Controls"
	CategoryStructure     = "Structure & Navigation"
	CategoryKeyboard      = "Keyboard & Focus"
	CategoryWCAG          = "WCAG Compliance"
	CategoryGeneral       = "General Accessibility"
)

// CodeExample pairs the offending snippet with a suggested fix.
type CodeExample struct {
	Before string `json:"before"`
	After  string `json:"after"`
	// Diff is a compact patch from Before to After for display.
	Diff string `json:"diff,omitempty"`
}

// EnrichedViolation is a raw violation finding plus classification and a fix
// suggestion.
type EnrichedViolation struct {
	auditor.Finding
	Category    string      `json:"category"`
	Severity    string      `json:"severity"`
	WCAGLevel   string      `json:"wcagLevel"`
	CodeExample CodeExample `json:"codeExample"`
}

// Summary carries the scoring counts.
type Summary struct {
	TotalViolations   int `json:"totalViolations"`
	TotalPasses       int `json:"totalPasses"`
	TotalIncomplete   int `json:"totalIncomplete"`
	TotalInapplicable int `json:"totalInapplicable"`
	TotalChecks       int `json:"totalChecks"`
	PassedChecks      int `json:"passedChecks"`
	Score             int `json:"score"`
}

// PageInfo describes the audited document.
type PageInfo struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Metadata records how the report was produced.
type Metadata struct {
	EngineVersion string           `json:"engineVersion"`
	AnalysisTime  time.Time        `json:"analysisTime"`
	RulesRun      int              `json:"rulesRun"`
	Options       auditor.Selection `json:"options"`
}

// Report is the immutable analysis result owned by exactly one subject.
type Report struct {
	ID           string              `json:"id,omitempty"`
	URL          string              `json:"url"`
	Score        int                 `json:"score"`
	Summary      Summary             `json:"summary"`
	PageInfo     PageInfo            `json:"pageInfo"`
	Violations   []EnrichedViolation `json:"violations"`
	Passes       []auditor.Finding   `json:"passes"`
	Incomplete   []auditor.Finding   `json:"incomplete"`
	Inapplicable []auditor.Finding   `json:"inapplicable"`
	Metadata     Metadata            `json:"metadata"`
	CreatedAt    time.Time           `json:"createdAt,omitempty"`
	// Persisted is false when the report was computed but the history write
	// failed; the report is still returned to the caller.
	Persisted bool `json:"persisted"`
}

// Input is everything Build needs; all fields come from earlier pipeline
// stages.
type Input struct {
	Raw          *auditor.Result
	URL          string
	Title        string
	Options      auditor.Selection
	AnalysisTime time.Time
}

// Build computes the report from raw findings. Same input, same output; no
// network or persistence side effects.
func Build(in Input) *Report {
	raw := in.Raw

	totalChecks := len(raw.Violations) + len(raw.Passes) + len(raw.Incomplete)
	passedChecks := len(raw.Passes)
	score := Score(passedChecks, totalChecks)

	violations := make([]EnrichedViolation, 0, len(raw.Violations))
	for _, v := range raw.Violations {
		violations = append(violations, Enrich(v))
	}

	return &Report{
		URL:   in.URL,
		Score: score,
		Summary: Summary{
			TotalViolations:   len(raw.Violations),
			TotalPasses:       len(raw.Passes),
			TotalIncomplete:   len(raw.Incomplete),
			TotalInapplicable: len(raw.Inapplicable),
			TotalChecks:       totalChecks,
			PassedChecks:      passedChecks,
			Score:             score,
		},
		PageInfo:     PageInfo{URL: in.URL, Title: in.Title},
		Violations:   violations,
		Passes:       raw.Passes,
		Incomplete:   raw.Incomplete,
		Inapplicable: raw.Inapplicable,
		Metadata: Metadata{
			EngineVersion: raw.TestEngine.Version,
			AnalysisTime:  in.AnalysisTime,
			RulesRun:      totalChecks,
			Options:       in.Options,
		},
	}
}

// Score is round(100 × passed/total), defined as 0 when total is 0.
// Rounding is half-up.
func Score(passed, total int) int {
	if total <= 0 {
		return 0
	}
	return int((float64(passed)*100/float64(total)) + 0.5)
}

// Enrich classifies one violation and attaches its fix suggestion.
func Enrich(v auditor.Finding) EnrichedViolation {
	before := ""
	if len(v.Nodes) > 0 {
		before = v.Nodes[0].HTML
	}
	after := FixedCode(v.ID, before)

	return EnrichedViolation{
		Finding:   v,
		Category:  Categorize(v.ID, v.Tags),
		Severity:  SeverityForImpact(v.Impact),
		WCAGLevel: WCAGLevel(v.Tags),
		CodeExample: CodeExample{
			Before: before,
			After:  after,
			Diff:   fixDiff(before, after),
		},
	}
}
