// Package report writes investigation reports for scored providers: an
// executive summary, recommendations and regulatory citations.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-risk/internal/model"
	"github.com/sells-group/provider-risk/internal/scoring"
	"github.com/sells-group/provider-risk/pkg/anthropic"
)

// Standard citations attached to every report.
const (
	CitationEnrollment = scoring.CitationBilling + " - Provider enrollment and screening"
	CitationExclusion  = scoring.CitationExclusion + " - OIG exclusion authorities"
)

// standardCitations maps a bare citation to its titled standard form.
var standardCitations = map[string]string{
	scoring.CitationBilling:   CitationEnrollment,
	scoring.CitationExclusion: CitationExclusion,
}

// Summary sources.
const (
	SummaryLLM      = "llm"
	SummaryTemplate = "template"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 1024
	summaryEvidence  = 5
)

const systemText = "You write executive summaries for healthcare fraud investigation reports. " +
	"Your readers are compliance analysts. Write plain text with no markdown."

// Option configures a Writer.
type Option func(*Writer)

// WithClient enables LLM summaries through c.
func WithClient(c anthropic.Client) Option {
	return func(w *Writer) { w.ai = c }
}

// WithModel sets the summary model. Empty keeps the default.
func WithModel(m string) Option {
	return func(w *Writer) {
		if m != "" {
			w.model = m
		}
	}
}

// WithMaxTokens caps the summary length. Non-positive keeps the default.
func WithMaxTokens(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.maxTokens = int64(n)
		}
	}
}

// Writer builds reports. Without a client every summary comes from the
// template.
type Writer struct {
	ai        anthropic.Client
	model     string
	maxTokens int64
}

// NewWriter creates a Writer.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{model: defaultModel, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write builds the report for an assessed provider and runs the quality
// check on it. A failed LLM call falls back to the template summary, so the
// only errors are missing inputs and a cancelled context.
func (w *Writer) Write(ctx context.Context, p *model.ProviderProfile, a *model.RiskAssessment) (*model.Report, error) {
	if p == nil || a == nil {
		return nil, model.NewStructuralError("report", "profile and assessment are required")
	}

	r := &model.Report{
		Recommendations: Recommendations(a),
		Citations:       Citations(a.Evidence),
	}
	r.Summary, r.SummarySource = w.summary(ctx, p, a)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "report: write")
	}
	r.Quality = QualityCheck(r, a)
	return r, nil
}

func (w *Writer) summary(ctx context.Context, p *model.ProviderProfile, a *model.RiskAssessment) (string, string) {
	if w.ai == nil {
		return templateSummary(p, a), SummaryTemplate
	}

	temp := 0.2
	resp, err := w.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       w.model,
		MaxTokens:   w.maxTokens,
		System:      []anthropic.SystemBlock{{Text: systemText, Cached: true}},
		Messages:    []anthropic.Message{{Role: "user", Content: summaryPrompt(p, a)}},
		Temperature: &temp,
	})
	if err != nil {
		zap.L().Warn("report: summary call failed, using template",
			zap.String("npi", a.NPI),
			zap.Error(err),
		)
		return templateSummary(p, a), SummaryTemplate
	}
	resp.Usage.LogCost(w.model, a.NPI)

	text := resp.Text()
	if text == "" {
		zap.L().Warn("report: empty summary, using template", zap.String("npi", a.NPI))
		return templateSummary(p, a), SummaryTemplate
	}
	return text, SummaryLLM
}

func providerName(p *model.ProviderProfile) string {
	if p.Identity.Name != "" {
		return p.Identity.Name
	}
	return "Unidentified provider"
}

func summaryPrompt(p *model.ProviderProfile, a *model.RiskAssessment) string {
	var b strings.Builder
	b.WriteString("Write a concise executive summary (2-3 paragraphs, under 200 words) for this healthcare fraud investigation.\n\n")
	fmt.Fprintf(&b, "Provider: %s (NPI: %s)\n", providerName(p), a.NPI)
	if p.Identity.Specialty != "" {
		fmt.Fprintf(&b, "Specialty: %s\n", p.Identity.Specialty)
	}
	fmt.Fprintf(&b, "Risk Score: %d/100\n", a.RiskScore)
	fmt.Fprintf(&b, "Priority: %s\n\n", a.Priority)

	b.WriteString("Key findings:\n")
	if len(a.Evidence) == 0 {
		b.WriteString("- No fraud indicators were found.\n")
	}
	for i, e := range a.Evidence {
		if i == summaryEvidence {
			break
		}
		fmt.Fprintf(&b, "- %s (severity: %s, source: %s)\n", e.Description, e.Severity, e.Source)
	}

	var missing []string
	for _, s := range model.AllSources() {
		if !p.Available(s) {
			missing = append(missing, string(s))
		}
	}
	if len(missing) > 0 {
		fmt.Fprintf(&b, "\nUnavailable sources: %s\n", strings.Join(missing, ", "))
	}

	b.WriteString("\nHighlight the most critical findings and state the risk level. Do not speculate beyond the findings.")
	return b.String()
}

func templateSummary(p *model.ProviderProfile, a *model.RiskAssessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This investigation report analyzes the fraud risk profile of provider %s (NPI: %s). ",
		providerName(p), a.NPI)
	fmt.Fprintf(&b, "The analysis indicates a %s risk level with a risk score of %d/100. ", a.Priority, a.RiskScore)

	var high []model.FraudEvidence
	for _, e := range a.Evidence {
		if e.Severity == model.SeverityHigh {
			high = append(high, e)
		}
	}
	if len(high) > 0 {
		fmt.Fprintf(&b, "Key findings include %d high-severity indicator(s), including: %s ",
			len(high), strings.TrimSuffix(high[0].Description, ".")+".")
	}
	b.WriteString("The provider's billing patterns, regulatory status and utilization metrics were evaluated against peer baselines and regulatory standards.\n\n")

	switch a.Priority {
	case model.PriorityHigh:
		b.WriteString("Based on this analysis, immediate investigation is recommended.")
	case model.PriorityMedium:
		b.WriteString("Based on this analysis, further monitoring is warranted.")
	default:
		b.WriteString("Based on this analysis, no immediate concerns were identified.")
	}
	return b.String()
}

// Recommendations returns the actions for an assessment: a base set for its
// score band followed by evidence-specific follow-ups.
func Recommendations(a *model.RiskAssessment) []string {
	var out []string
	switch {
	case a.RiskScore >= 70:
		out = append(out,
			"Prioritize for immediate investigation due to high risk score",
			"Review detailed billing records for the past 12 months",
			"Conduct provider interview to address identified anomalies",
		)
	case a.RiskScore >= 30:
		out = append(out,
			"Schedule routine review within 30 days",
			"Monitor billing patterns for next quarter",
			"Request clarification on identified anomalies",
		)
	default:
		out = append(out,
			"Continue routine monitoring",
			"No immediate action required",
		)
	}

	var high int
	kinds := make(map[model.EvidenceKind]bool)
	for _, e := range a.Evidence {
		if e.Severity == model.SeverityHigh {
			high++
		}
		kinds[e.Kind] = true
	}
	if high > 0 {
		out = append(out, fmt.Sprintf("Address %d high-severity findings", high))
	}
	if kinds[model.EvidenceExclusion] {
		out = append(out, "Verify exclusion status and compliance requirements")
	}
	if kinds[model.EvidenceConviction] || kinds[model.EvidenceLawsuit] || kinds[model.EvidenceAllegation] {
		out = append(out, "Obtain court records for the reported legal actions")
	}
	if kinds[model.EvidenceBillingAnomaly] || kinds[model.EvidenceBillingPattern] {
		out = append(out, "Request detailed billing documentation for anomaly review")
	}
	return out
}

// Citations returns the sorted, unique regulatory citations for evidence plus
// the standard enrollment and exclusion citations.
func Citations(evidence []model.FraudEvidence) []string {
	set := make(map[string]struct{}, len(standardCitations))
	for _, c := range standardCitations {
		set[c] = struct{}{}
	}
	for _, e := range evidence {
		c := strings.TrimSpace(e.Citation)
		if c == "" {
			continue
		}
		if full, ok := standardCitations[c]; ok {
			c = full
		}
		set[c] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
