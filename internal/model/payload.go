package model

// UtilizationPayload is the CMS utilization record for a provider. Zero values
// are meaningful: the source answered but the provider has no billing.
type UtilizationPayload struct {
	TotalServices       float64 `json:"total_services" validate:"finite,gte=0"`
	UniqueBeneficiaries float64 `json:"unique_beneficiaries" validate:"finite,gte=0"`
	TotalCharges        float64 `json:"total_charges" validate:"finite,gte=0"`
	TotalPayments       float64 `json:"total_payments" validate:"finite,gte=0"`
	ProviderType        string  `json:"provider_type,omitempty"`
	DataYear            int     `json:"data_year,omitempty"`
}

// Metrics converts the payload into UtilizationMetrics.
func (p UtilizationPayload) Metrics() UtilizationMetrics {
	return UtilizationMetrics{
		TotalServices:       p.TotalServices,
		UniqueBeneficiaries: p.UniqueBeneficiaries,
		TotalCharges:        p.TotalCharges,
		TotalPayments:       p.TotalPayments,
		ProviderType:        p.ProviderType,
	}
}

// ExclusionPayload is the LEIE lookup result for a provider.
type ExclusionPayload struct {
	Excluded          bool    `json:"excluded"`
	ExclusionType     *string `json:"exclusion_type"`
	ExclusionDate     string  `json:"exclusion_date,omitempty"`
	ReinstatementDate string  `json:"reinstatement_date,omitempty"`
}

// IdentityPayload is the NPPES registry identity for a provider.
type IdentityPayload struct {
	Name             string   `json:"name"`
	Specialty        string   `json:"specialty,omitempty"`
	PracticeLocation Location `json:"practice_location"`
}

// LegalPayload holds the raw web search hits gathered for a provider.
type LegalPayload struct {
	Results []RawSearchResult `json:"results"`
	Queries []string          `json:"queries,omitempty"`
}
