package model

// Severity ranks a piece of fraud evidence.
type Severity string

// Severities.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities for sorting; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// EvidenceKind categorizes the origin of a piece of evidence.
type EvidenceKind string

// Evidence kinds.
const (
	EvidenceExclusion      EvidenceKind = "oig_exclusion"
	EvidenceConviction     EvidenceKind = "conviction"
	EvidenceLawsuit        EvidenceKind = "lawsuit"
	EvidenceAllegation     EvidenceKind = "allegation"
	EvidenceBillingAnomaly EvidenceKind = "billing_anomaly"
	EvidenceBillingPattern EvidenceKind = "billing_pattern"
)

// AnomalyResult is the deviation of one metric from its peer baseline.
type AnomalyResult struct {
	Metric       string  `json:"metric"`
	Observed     float64 `json:"observed"`
	ZScore       float64 `json:"z_score"`
	IsAnomalous  bool    `json:"is_anomalous"`
	Contribution float64 `json:"contribution"`
	Mean         float64 `json:"baseline_mean"`
	Std          float64 `json:"baseline_std"`
}

// FraudEvidence is one human-auditable finding attached to an assessment.
type FraudEvidence struct {
	Kind         EvidenceKind `json:"kind"`
	Severity     Severity     `json:"severity"`
	Description  string       `json:"description"`
	Source       string       `json:"source"`
	URL          string       `json:"url,omitempty"`
	Significance *float64     `json:"significance,omitempty"`
	Citation     string       `json:"citation,omitempty"`
}

// Priority is the triage tier derived from a risk score.
type Priority string

// Priority tiers.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// PriorityForScore maps a 0-100 score to its tier: low below 30, high at 70
// and above, medium otherwise.
func PriorityForScore(score int) Priority {
	switch {
	case score >= 70:
		return PriorityHigh
	case score >= 30:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// StageResult records what one scoring stage contributed.
type StageResult struct {
	Stage      string  `json:"stage"`
	Fired      bool    `json:"fired"`
	Floor      *int    `json:"floor,omitempty"`
	Additive   float64 `json:"additive,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
	ScoreAfter float64 `json:"score_after"`
}

// RiskAssessment is the final, immutable result of scoring a provider.
type RiskAssessment struct {
	NPI          string          `json:"npi"`
	RiskScore    int             `json:"risk_score"`
	Priority     Priority        `json:"priority"`
	Evidence     []FraudEvidence `json:"evidence"`
	QualityScore float64         `json:"quality_score"`
	Trace        []StageResult   `json:"trace"`
}
