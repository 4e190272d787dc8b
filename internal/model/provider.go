package model

// Source identifies one of the upstream data sources fused into a profile.
type Source string

// Upstream sources.
const (
	SourceCMS      Source = "cms"
	SourceOIG      Source = "oig"
	SourceIdentity Source = "identity_registry"
	SourceLegal    Source = "legal_search"
)

// AllSources returns every upstream source in a stable order.
func AllSources() []Source {
	return []Source{SourceCMS, SourceOIG, SourceIdentity, SourceLegal}
}

// Tracked utilization metric names.
const (
	MetricTotalServices          = "total_services"
	MetricUniqueBeneficiaries    = "unique_beneficiaries"
	MetricServicesPerBeneficiary = "services_per_beneficiary"
	MetricTotalCharges           = "total_charges"
	MetricChargeToPaymentRatio   = "charge_to_payment_ratio"
)

// TrackedMetrics lists the metrics compared against a peer baseline, in
// evaluation order.
var TrackedMetrics = []string{
	MetricTotalServices,
	MetricUniqueBeneficiaries,
	MetricServicesPerBeneficiary,
	MetricTotalCharges,
	MetricChargeToPaymentRatio,
}

// UtilizationMetrics holds a provider's aggregate billing figures.
type UtilizationMetrics struct {
	TotalServices       float64 `json:"total_services" validate:"finite,gte=0"`
	UniqueBeneficiaries float64 `json:"unique_beneficiaries" validate:"finite,gte=0"`
	TotalCharges        float64 `json:"total_charges" validate:"finite,gte=0"`
	TotalPayments       float64 `json:"total_payments" validate:"finite,gte=0"`
	ProviderType        string  `json:"provider_type,omitempty"`
}

// ServicesPerBeneficiary returns services divided by beneficiaries, or 0 when
// there are no beneficiaries.
func (m UtilizationMetrics) ServicesPerBeneficiary() float64 {
	if m.UniqueBeneficiaries <= 0 {
		return 0
	}
	return m.TotalServices / m.UniqueBeneficiaries
}

// ChargeToPaymentRatio returns charges divided by payments, or 0 when
// nothing was paid.
func (m UtilizationMetrics) ChargeToPaymentRatio() float64 {
	if m.TotalPayments <= 0 {
		return 0
	}
	return m.TotalCharges / m.TotalPayments
}

// Value returns the observed value of a tracked metric.
func (m UtilizationMetrics) Value(metric string) (float64, bool) {
	switch metric {
	case MetricTotalServices:
		return m.TotalServices, true
	case MetricUniqueBeneficiaries:
		return m.UniqueBeneficiaries, true
	case MetricServicesPerBeneficiary:
		return m.ServicesPerBeneficiary(), true
	case MetricTotalCharges:
		return m.TotalCharges, true
	case MetricChargeToPaymentRatio:
		return m.ChargeToPaymentRatio(), true
	default:
		return 0, false
	}
}

// IsZero reports whether the provider has no billing activity at all.
func (m UtilizationMetrics) IsZero() bool {
	return m.TotalServices == 0 && m.UniqueBeneficiaries == 0 &&
		m.TotalCharges == 0 && m.TotalPayments == 0
}

// MetricBaseline is the expected distribution of one metric in a peer cohort.
type MetricBaseline struct {
	Mean float64 `json:"mean" yaml:"mean"`
	Std  float64 `json:"std" yaml:"std"`
}

// PeerBaseline maps metric name to its cohort distribution.
type PeerBaseline map[string]MetricBaseline

// Location is a provider's practice address.
type Location struct {
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// IsZero reports whether no address component is known.
func (l Location) IsZero() bool {
	return l == Location{}
}

// Identity is the registry identity of a provider.
type Identity struct {
	Name             string   `json:"name"`
	Specialty        string   `json:"specialty,omitempty"`
	PracticeLocation Location `json:"practice_location"`
}

// ExclusionRecord is an active program exclusion.
type ExclusionRecord struct {
	TypeCode          string        `json:"type_code"`
	Tier              ExclusionTier `json:"tier"`
	Description       string        `json:"description,omitempty"`
	ExclusionDate     string        `json:"exclusion_date,omitempty"`
	ReinstatementDate string        `json:"reinstatement_date,omitempty"`
}

// ProviderProfile is the fused view of a provider across all sources. It is
// built once per investigation and treated as read-only afterwards.
type ProviderProfile struct {
	NPI          string             `json:"npi"`
	Identity     Identity           `json:"identity"`
	Utilization  UtilizationMetrics `json:"utilization"`
	Exclusion    *ExclusionRecord   `json:"exclusion,omitempty"`
	Legal        []LegalCaseRecord  `json:"legal_information"`
	Availability map[Source]bool    `json:"availability"`
}

// Available reports whether a source contributed to the profile.
func (p *ProviderProfile) Available(s Source) bool {
	return p.Availability[s]
}

// IsExcluded reports whether the provider has an active exclusion.
func (p *ProviderProfile) IsExcluded() bool {
	return p.Exclusion != nil
}

// HasConviction reports whether any legal record is a conviction.
func (p *ProviderProfile) HasConviction() bool {
	for _, r := range p.Legal {
		if r.CaseType == CaseConviction {
			return true
		}
	}
	return false
}
