package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Investigation years outside this range are rejected.
const (
	minInvestigationYear = 1990
	maxInvestigationYear = 2100
)

// FraudFinancialData records the monetary impact attributed to a provider
// by an investigation. Amounts are optional individually but at least one
// must be positive.
type FraudFinancialData struct {
	NPI               string           `json:"npi"`
	EstimatedFraud    *decimal.Decimal `json:"estimated_fraud_amount,omitempty"`
	Settlement        *decimal.Decimal `json:"settlement_amount,omitempty"`
	Restitution       *decimal.Decimal `json:"restitution_amount,omitempty"`
	InvestigationYear int              `json:"investigation_year"`
	Source            string           `json:"source,omitempty"`
	Notes             string           `json:"notes,omitempty"`
	RecordedAt        time.Time        `json:"recorded_at"`
}

type namedAmount struct {
	field string
	v     *decimal.Decimal
}

func (f *FraudFinancialData) amounts() []namedAmount {
	return []namedAmount{
		{"estimated_fraud_amount", f.EstimatedFraud},
		{"settlement_amount", f.Settlement},
		{"restitution_amount", f.Restitution},
	}
}

// TotalImpact is the sum of every recorded amount.
func (f *FraudFinancialData) TotalImpact() decimal.Decimal {
	total := decimal.Zero
	for _, a := range f.amounts() {
		if a.v != nil {
			total = total.Add(*a.v)
		}
	}
	return total
}

// Validate returns a StructuralInputError when the record is unusable.
func (f *FraudFinancialData) Validate() error {
	if !ValidNPI(f.NPI) {
		return NewStructuralError("npi", "invalid NPI %q", f.NPI)
	}
	positive := false
	for _, a := range f.amounts() {
		if a.v == nil {
			continue
		}
		if a.v.IsNegative() {
			return NewStructuralError(a.field, "must not be negative (value %s)", a.v.String())
		}
		if a.v.IsPositive() {
			positive = true
		}
	}
	if !positive {
		return NewStructuralError("amount", "at least one amount must be greater than zero")
	}
	if f.InvestigationYear < minInvestigationYear || f.InvestigationYear > maxInvestigationYear {
		return NewStructuralError("investigation_year", "must be between %d and %d (value %d)",
			minInvestigationYear, maxInvestigationYear, f.InvestigationYear)
	}
	return nil
}
