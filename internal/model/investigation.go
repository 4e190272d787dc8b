package model

import "time"

// Report is the written investigation report for an assessment.
type Report struct {
	Summary         string        `json:"executive_summary"`
	SummarySource   string        `json:"summary_source"`
	Recommendations []string      `json:"recommendations"`
	Citations       []string      `json:"regulatory_citations"`
	Quality         QualityResult `json:"quality"`
}

// QualityResult is the outcome of the report quality check.
type QualityResult struct {
	Score        float64            `json:"score"`
	Passed       bool               `json:"passed"`
	Components   map[string]float64 `json:"components"`
	Deficiencies []string           `json:"deficiencies,omitempty"`
}

// Investigation is one end-to-end run for a provider: the fused profile,
// the anomaly analysis, the assessment and, optionally, the report and the
// latest recorded financial impact.
type Investigation struct {
	ID           string                   `json:"id"`
	NPI          string                   `json:"npi"`
	Profile      *ProviderProfile         `json:"profile"`
	Anomalies    map[string]AnomalyResult `json:"anomalies"`
	Assessment   *RiskAssessment          `json:"assessment"`
	Report       *Report                  `json:"report,omitempty"`
	Financial    *FraudFinancialData      `json:"fraud_financial_data,omitempty"`
	SourceErrors map[Source]string        `json:"source_errors,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	Duration     time.Duration            `json:"duration_ns"`
}
