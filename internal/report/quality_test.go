package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/provider-risk/internal/model"
)

func cleanReport() *model.Report {
	return &model.Report{
		Summary:         strings.Repeat("The provider was reviewed against peer baselines. ", 3),
		Recommendations: []string{"Review detailed billing records for the past 12 months"},
		Citations:       []string{CitationEnrollment},
	}
}

func TestQualityCheck(t *testing.T) {
	t.Parallel()

	bad := -0.5
	tests := []struct {
		name   string
		report func() *model.Report
		a      *model.RiskAssessment
		score  float64
		passed bool
	}{
		{
			name:   "clean",
			report: cleanReport,
			a:      highRisk(),
			score:  1.0,
			passed: true,
		},
		{
			name:   "no evidence still passes",
			report: cleanReport,
			a:      &model.RiskAssessment{RiskScore: 0},
			score:  0.8,
			passed: true,
		},
		{
			name:   "no cfr citation",
			report: func() *model.Report { r := cleanReport(); r.Citations = []string{"internal memo"}; return r },
			a:      highRisk(),
			score:  0.9,
			passed: true,
		},
		{
			name:   "vague recommendation",
			report: func() *model.Report { r := cleanReport(); r.Recommendations = []string{"Maybe look at billing"}; return r },
			a:      highRisk(),
			score:  0.97,
			passed: true,
		},
		{
			name: "invalid evidence and short summary",
			report: func() *model.Report {
				r := cleanReport()
				r.Summary = "Too short."
				return r
			},
			a: &model.RiskAssessment{RiskScore: 50, Evidence: []model.FraudEvidence{
				{Description: "short", Significance: &bad},
			}},
			score:  0.2 + 0.21 + 0.2 + 0.07,
			passed: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := QualityCheck(tt.report(), tt.a)
			assert.InDelta(t, tt.score, q.Score, 1e-9)
			assert.Equal(t, tt.passed, q.Passed)
			assert.Len(t, q.Components, 4)
			if tt.score < 1 {
				assert.NotEmpty(t, q.Deficiencies)
			} else {
				assert.Empty(t, q.Deficiencies)
			}
		})
	}
}

func TestQualityCheck_NilAssessment(t *testing.T) {
	t.Parallel()

	q := QualityCheck(cleanReport(), nil)
	assert.InDelta(t, 0.8, q.Score, 1e-9)
	assert.Contains(t, q.Deficiencies, "no evidence")
}
