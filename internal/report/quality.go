package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/provider-risk/internal/model"
)

// Quality components and their weights.
const (
	ComponentCompleteness = "completeness"
	ComponentEvidence     = "evidence_validity"
	ComponentCitations    = "citations"
	ComponentStandards    = "professional_standards"
)

var qualityWeights = map[string]float64{
	ComponentCompleteness: 0.4,
	ComponentEvidence:     0.3,
	ComponentCitations:    0.2,
	ComponentStandards:    0.1,
}

// PassingQuality is the minimum score for a report to pass review.
const PassingQuality = 0.8

const (
	minSummaryLen     = 50
	minStandardSumLen = 100
	minDescriptionLen = 10
)

var vagueWords = []string{"consider", "maybe", "possibly", "perhaps"}

// QualityCheck scores a report for review readiness. Each component scores
// 1 when clean and a partial credit otherwise; the weighted sum passes at
// PassingQuality.
func QualityCheck(r *model.Report, a *model.RiskAssessment) model.QualityResult {
	var deficiencies []string
	flag := func(format string, args ...any) {
		deficiencies = append(deficiencies, fmt.Sprintf(format, args...))
	}

	components := map[string]float64{
		ComponentCompleteness: 1,
		ComponentEvidence:     1,
		ComponentCitations:    1,
		ComponentStandards:    1,
	}

	var evidence []model.FraudEvidence
	if a != nil {
		evidence = a.Evidence
	}

	// Completeness.
	complete := true
	if len(strings.TrimSpace(r.Summary)) < minSummaryLen {
		complete = false
		flag("executive summary missing or shorter than %d characters", minSummaryLen)
	}
	if len(evidence) == 0 {
		complete = false
		flag("no evidence")
	}
	if len(r.Recommendations) == 0 {
		complete = false
		flag("no recommendations")
	}
	if len(r.Citations) == 0 {
		complete = false
		flag("no regulatory citations")
	}
	if !complete {
		components[ComponentCompleteness] = 0.5
	}

	// Evidence validity.
	for i, e := range evidence {
		bad := false
		if len(strings.TrimSpace(e.Description)) < minDescriptionLen {
			flag("evidence %d: description too short", i+1)
			bad = true
		}
		if e.Source == "" {
			flag("evidence %d: missing source", i+1)
			bad = true
		}
		if s := e.Significance; s != nil && (math.IsNaN(*s) || *s < 0 || *s > 1) {
			flag("evidence %d: significance out of range", i+1)
			bad = true
		}
		if bad {
			components[ComponentEvidence] = 0.7
		}
	}

	// Citations.
	if !hasCFR(r.Citations) {
		components[ComponentCitations] = 0.5
		flag("no CFR citation")
	}

	// Professional standards.
	if len(r.Summary) < minStandardSumLen {
		components[ComponentStandards] = 0.7
		flag("executive summary too brief")
	}
	for _, rec := range r.Recommendations {
		if isVague(rec) {
			components[ComponentStandards] = 0.7
			flag("vague recommendation: %q", rec)
		}
	}
	if a != nil && (a.RiskScore < 0 || a.RiskScore > 100) {
		components[ComponentStandards] = 0.7
		flag("risk score %d out of range", a.RiskScore)
	}

	var score float64
	for k, w := range qualityWeights {
		score += components[k] * w
	}
	score = math.Round(score*1000) / 1000

	return model.QualityResult{
		Score:        score,
		Passed:       score >= PassingQuality,
		Components:   components,
		Deficiencies: deficiencies,
	}
}

func hasCFR(citations []string) bool {
	for _, c := range citations {
		if strings.Contains(strings.ToLower(c), "cfr") {
			return true
		}
	}
	return false
}

func isVague(s string) bool {
	lower := strings.ToLower(s)
	for _, w := range vagueWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
