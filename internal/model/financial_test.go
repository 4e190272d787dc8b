package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestFraudFinancialData_TotalImpact(t *testing.T) {
	t.Parallel()

	f := &FraudFinancialData{EstimatedFraud: dec("1250000.50"), Settlement: dec("400000"), Restitution: nil}
	assert.Equal(t, "1650000.5", f.TotalImpact().String())

	assert.True(t, (&FraudFinancialData{}).TotalImpact().IsZero())
}

func TestFraudFinancialData_Validate(t *testing.T) {
	t.Parallel()

	base := func() *FraudFinancialData {
		return &FraudFinancialData{NPI: "1234567893", Settlement: dec("1000"), InvestigationYear: 2023}
	}

	tests := []struct {
		name   string
		mutate func(f *FraudFinancialData)
		field  string
	}{
		{"valid", func(*FraudFinancialData) {}, ""},
		{"bad npi", func(f *FraudFinancialData) { f.NPI = "1234567890" }, "npi"},
		{"no amounts", func(f *FraudFinancialData) { f.Settlement = nil }, "amount"},
		{"only zero amounts", func(f *FraudFinancialData) { f.Settlement = dec("0"); f.Restitution = dec("0") }, "amount"},
		{"negative amount", func(f *FraudFinancialData) { f.Restitution = dec("-5") }, "restitution_amount"},
		{"year too early", func(f *FraudFinancialData) { f.InvestigationYear = 1900 }, "investigation_year"},
		{"missing year", func(f *FraudFinancialData) { f.InvestigationYear = 0 }, "investigation_year"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := base()
			tt.mutate(f)
			err := f.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsStructural(err))
			var se *StructuralInputError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.field, se.Field)
		})
	}
}
