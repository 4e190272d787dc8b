package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/provider-risk/internal/model"
)

// RenderMarkdown formats an investigation as a Markdown report.
func RenderMarkdown(inv *model.Investigation) string {
	var b strings.Builder
	a := inv.Assessment

	b.WriteString("# Healthcare Fraud Investigation Report\n\n")
	name := "Unidentified provider"
	if inv.Profile != nil && inv.Profile.Identity.Name != "" {
		name = inv.Profile.Identity.Name
	}
	fmt.Fprintf(&b, "- **Provider:** %s\n", name)
	fmt.Fprintf(&b, "- **NPI:** %s\n", inv.NPI)
	if inv.Profile != nil && inv.Profile.Identity.Specialty != "" {
		fmt.Fprintf(&b, "- **Specialty:** %s\n", inv.Profile.Identity.Specialty)
	}
	if a != nil {
		fmt.Fprintf(&b, "- **Risk Score:** %d/100\n", a.RiskScore)
		fmt.Fprintf(&b, "- **Priority:** %s\n", strings.ToUpper(string(a.Priority)))
		fmt.Fprintf(&b, "- **Data Quality:** %.2f\n", a.QualityScore)
	}
	fmt.Fprintf(&b, "- **Investigation ID:** %s\n", inv.ID)
	fmt.Fprintf(&b, "- **Date:** %s\n\n", inv.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))

	if r := inv.Report; r != nil {
		b.WriteString("## Executive Summary\n\n")
		b.WriteString(r.Summary)
		b.WriteString("\n\n")
	}

	if a != nil && len(a.Evidence) > 0 {
		b.WriteString("## Evidence\n\n")
		caser := cases.Title(language.English)
		for i, e := range a.Evidence {
			kind := caser.String(strings.ReplaceAll(string(e.Kind), "_", " "))
			fmt.Fprintf(&b, "%d. **%s**: %s\n", i+1, kind, e.Description)
			fmt.Fprintf(&b, "   - Severity: %s | Source: %s", strings.ToUpper(string(e.Severity)), e.Source)
			if e.URL != "" {
				fmt.Fprintf(&b, " | [link](%s)", e.URL)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(inv.Anomalies) > 0 {
		b.WriteString("## Billing Metrics\n\n")
		b.WriteString("| Metric | Observed | Peer Mean | Z-Score | Anomalous |\n")
		b.WriteString("|---|---:|---:|---:|:---:|\n")
		keys := make([]string, 0, len(inv.Anomalies))
		for k := range inv.Anomalies {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			r := inv.Anomalies[k]
			mark := ""
			if r.IsAnomalous {
				mark = "yes"
			}
			fmt.Fprintf(&b, "| %s | %.2f | %.2f | %.2f | %s |\n", k, r.Observed, r.Mean, r.ZScore, mark)
		}
		b.WriteString("\n")
	}

	if f := inv.Financial; f != nil {
		b.WriteString("## Financial Impact\n\n")
		writeAmount(&b, "Estimated Fraud", f.EstimatedFraud)
		writeAmount(&b, "Settlement", f.Settlement)
		writeAmount(&b, "Restitution", f.Restitution)
		fmt.Fprintf(&b, "- **Total Impact:** $%s\n", f.TotalImpact().StringFixed(2))
		fmt.Fprintf(&b, "- **Investigation Year:** %d\n", f.InvestigationYear)
		if f.Source != "" {
			fmt.Fprintf(&b, "- **Source:** %s\n", f.Source)
		}
		b.WriteString("\n")
	}

	if len(inv.SourceErrors) > 0 {
		b.WriteString("## Unavailable Sources\n\n")
		srcs := make([]string, 0, len(inv.SourceErrors))
		for s := range inv.SourceErrors {
			srcs = append(srcs, string(s))
		}
		sort.Strings(srcs)
		for _, s := range srcs {
			fmt.Fprintf(&b, "- %s: %s\n", s, inv.SourceErrors[model.Source(s)])
		}
		b.WriteString("\n")
	}

	if r := inv.Report; r != nil {
		if len(r.Recommendations) > 0 {
			b.WriteString("## Recommendations\n\n")
			for i, rec := range r.Recommendations {
				fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
			}
			b.WriteString("\n")
		}
		if len(r.Citations) > 0 {
			b.WriteString("## Regulatory Citations\n\n")
			for _, c := range r.Citations {
				fmt.Fprintf(&b, "- %s\n", c)
			}
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "_Report quality: %.2f (%s)_\n", r.Quality.Score, passLabel(r.Quality.Passed))
	}
	return b.String()
}

func writeAmount(b *strings.Builder, label string, v *decimal.Decimal) {
	if v == nil {
		return
	}
	fmt.Fprintf(b, "- **%s:** $%s\n", label, v.StringFixed(2))
}

func passLabel(ok bool) string {
	if ok {
		return "passed"
	}
	return "needs review"
}

// WriteJSON writes inv as indented JSON.
func WriteJSON(w io.Writer, inv *model.Investigation) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(inv); err != nil {
		return eris.Wrap(err, "report: encode json")
	}
	return nil
}
