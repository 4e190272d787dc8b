package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sells-group/provider-risk/internal/model"
)

// Regulatory citations attached to evidence.
const (
	CitationExclusion = "42 CFR §1001.101"
	CitationBilling   = "42 CFR §424.516"
)

const (
	sourceCMS   = "CMS Medicare Provider Utilization"
	sourceOIG   = "OIG LEIE"
	sourceCourt = "Court/government record"
	sourceWeb   = "Web search"
	sourceNPPES = "NPPES NPI Registry"

	highZScore            = 3.0
	clusteringThreshold   = 10.0
	highLawsuitRelevance  = 0.7
	mediumAllegationFloor = 0.5
)

var metricLabels = map[string]string{
	model.MetricTotalServices:          "Total services",
	model.MetricUniqueBeneficiaries:    "Unique beneficiaries",
	model.MetricServicesPerBeneficiary: "Services per beneficiary",
	model.MetricTotalCharges:           "Total submitted charges",
	model.MetricChargeToPaymentRatio:   "Charge-to-payment ratio",
}

// CompileEvidence renders the profile and anomaly results as evidence,
// ordered by severity and then significance, both descending.
func CompileEvidence(p *model.ProviderProfile, anomalies map[string]model.AnomalyResult) []model.FraudEvidence {
	var out []model.FraudEvidence

	if p.Exclusion != nil {
		out = append(out, exclusionEvidence(p.Exclusion))
	}
	for _, r := range p.Legal {
		out = append(out, legalEvidence(r))
	}
	for _, metric := range model.TrackedMetrics {
		if r, ok := anomalies[metric]; ok && r.IsAnomalous {
			out = append(out, anomalyEvidence(r))
		}
	}
	out = append(out, patternFindings(p)...)

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return significance(out[i]) > significance(out[j])
	})
	return out
}

func significance(ev model.FraudEvidence) float64 {
	if ev.Significance == nil {
		return 0
	}
	return *ev.Significance
}

func float64Ptr(v float64) *float64 { return &v }

func exclusionEvidence(x *model.ExclusionRecord) model.FraudEvidence {
	desc := fmt.Sprintf("Active OIG exclusion under %s (%s tier)", x.TypeCode, x.Tier)
	if x.TypeCode == "" {
		desc = fmt.Sprintf("Active OIG exclusion (%s tier)", x.Tier)
	}
	if x.Description != "" {
		desc += ": " + x.Description
	}
	if x.ExclusionDate != "" {
		desc += ", effective " + x.ExclusionDate
	}
	return model.FraudEvidence{
		Kind:         model.EvidenceExclusion,
		Severity:     model.SeverityHigh,
		Description:  desc,
		Source:       sourceOIG,
		URL:          "https://oig.hhs.gov/exclusions/",
		Significance: float64Ptr(1.0),
		Citation:     CitationExclusion,
	}
}

func legalEvidence(r model.LegalCaseRecord) model.FraudEvidence {
	ev := model.FraudEvidence{
		Description:  r.Description,
		Source:       sourceWeb,
		URL:          r.URL,
		Significance: float64Ptr(r.Relevance),
	}
	if r.Verified {
		ev.Source = sourceCourt
	}

	switch r.CaseType {
	case model.CaseConviction:
		ev.Kind = model.EvidenceConviction
		ev.Severity = model.SeverityHigh
	case model.CaseLawsuit:
		ev.Kind = model.EvidenceLawsuit
		ev.Severity = model.SeverityMedium
		if r.Relevance >= highLawsuitRelevance {
			ev.Severity = model.SeverityHigh
		}
	default:
		ev.Kind = model.EvidenceAllegation
		ev.Severity = model.SeverityLow
		if r.Relevance >= mediumAllegationFloor {
			ev.Severity = model.SeverityMedium
		}
	}
	return ev
}

func anomalyEvidence(r model.AnomalyResult) model.FraudEvidence {
	abs := math.Abs(r.ZScore)
	sev := model.SeverityMedium
	if abs > highZScore {
		sev = model.SeverityHigh
	}
	direction := "above"
	if r.ZScore < 0 {
		direction = "below"
	}
	label := metricLabels[r.Metric]
	if label == "" {
		label = r.Metric
	}
	return model.FraudEvidence{
		Kind:     model.EvidenceBillingAnomaly,
		Severity: sev,
		Description: fmt.Sprintf("%s of %s is %.1f standard deviations %s the peer mean of %s",
			label, formatValue(r.Observed), abs, direction, formatValue(r.Mean)),
		Source:       sourceCMS,
		Significance: float64Ptr(math.Min(1, abs/5)),
		Citation:     CitationBilling,
	}
}

// patternFindings derives billing-pattern evidence that is not a single
// metric outlier.
func patternFindings(p *model.ProviderProfile) []model.FraudEvidence {
	var out []model.FraudEvidence

	if p.Available(model.SourceCMS) {
		if spb := p.Utilization.ServicesPerBeneficiary(); spb > clusteringThreshold {
			out = append(out, model.FraudEvidence{
				Kind:     model.EvidenceBillingPattern,
				Severity: model.SeverityMedium,
				Description: fmt.Sprintf("%.1f services per beneficiary suggests possible end-of-month billing clustering",
					spb),
				Source:   sourceCMS,
				Citation: CitationBilling,
			})
		}
	}

	if p.Available(model.SourceIdentity) && strings.TrimSpace(p.Identity.PracticeLocation.State) == "" {
		out = append(out, model.FraudEvidence{
			Kind:        model.EvidenceBillingPattern,
			Severity:    model.SeverityLow,
			Description: "Practice location could not be verified in the NPI registry",
			Source:      sourceNPPES,
		})
	}

	return out
}

func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
