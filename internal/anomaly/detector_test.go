package anomaly

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-risk/internal/model"
)

func TestContribution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		z    float64
		want float64
	}{
		{"zero", 0, 0},
		{"at threshold", 2.5, 0},
		{"just above", 2.6, 1},
		{"z 4.5", 4.5, 20},
		{"negative z 4.5", -4.5, 20},
		{"at cap", 5.5, 30},
		{"beyond cap", 40, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, Contribution(tt.z), 1e-9)
		})
	}
}

func TestDetect_ZScoreAndAnomaly(t *testing.T) {
	t.Parallel()

	m := model.UtilizationMetrics{TotalServices: 1900}
	got := Detect(m, DefaultBaseline())

	require.Contains(t, got, model.MetricTotalServices)
	r := got[model.MetricTotalServices]
	assert.InDelta(t, 4.5, r.ZScore, 1e-9)
	assert.True(t, r.IsAnomalous)
	assert.InDelta(t, 20, r.Contribution, 1e-9)
	assert.Equal(t, 1900.0, r.Observed)
	assert.Equal(t, 1000.0, r.Mean)
	assert.Equal(t, 200.0, r.Std)

	// Every other metric is zero-valued and must be skipped.
	assert.Len(t, got, 1)
}

func TestDetect_ZeroObservedNeverContributes(t *testing.T) {
	t.Parallel()

	baseline := model.PeerBaseline{
		model.MetricTotalServices:       {Mean: 1_000_000, Std: 10},
		model.MetricUniqueBeneficiaries: {Mean: 1_000_000, Std: 10},
		model.MetricTotalCharges:        {Mean: 1_000_000, Std: 10},
	}
	got := Detect(model.UtilizationMetrics{}, baseline)
	assert.Empty(t, got)
}

func TestDetect_InvalidBaselineSkipsMetric(t *testing.T) {
	t.Parallel()

	baseline := model.PeerBaseline{
		model.MetricTotalServices:       {Mean: 100, Std: 0},
		model.MetricUniqueBeneficiaries: {Mean: 100, Std: -3},
		model.MetricTotalCharges:        {Mean: math.NaN(), Std: 10},
		// total payments derived ratio has no baseline entry at all
	}
	m := model.UtilizationMetrics{TotalServices: 5000, UniqueBeneficiaries: 10, TotalCharges: 99, TotalPayments: 10}
	got := Detect(m, baseline)
	assert.Empty(t, got)
}

func TestDetect_NonAnomalousIncluded(t *testing.T) {
	t.Parallel()

	m := model.UtilizationMetrics{TotalServices: 1100, UniqueBeneficiaries: 310, TotalCharges: 520000, TotalPayments: 430000}
	got := Detect(m, DefaultBaseline())

	assert.Len(t, got, 5)
	for name, r := range got {
		assert.False(t, r.IsAnomalous, name)
		assert.Zero(t, r.Contribution, name)
	}
}

func TestStrongest(t *testing.T) {
	t.Parallel()

	results := map[string]model.AnomalyResult{
		model.MetricTotalServices:  {Metric: model.MetricTotalServices, IsAnomalous: true, Contribution: 12},
		model.MetricTotalCharges:   {Metric: model.MetricTotalCharges, IsAnomalous: true, Contribution: 25},
		model.MetricUniqueBeneficiaries: {Metric: model.MetricUniqueBeneficiaries, IsAnomalous: false, Contribution: 0},
	}
	metric, points := Strongest(results)
	assert.Equal(t, model.MetricTotalCharges, metric)
	assert.InDelta(t, 25, points, 1e-9)

	metric, points = Strongest(nil)
	assert.Empty(t, metric)
	assert.Zero(t, points)
}

func TestSetFor(t *testing.T) {
	t.Parallel()

	set := &Set{
		Default: DefaultBaseline(),
		Cohorts: []Cohort{
			{Specialty: "Cardiology", Metrics: model.PeerBaseline{model.MetricTotalServices: {Mean: 2000, Std: 400}}},
			{Specialty: "Cardiology", State: "TX", Metrics: model.PeerBaseline{model.MetricTotalServices: {Mean: 2500, Std: 500}}},
		},
	}

	assert.Equal(t, 2500.0, set.For("cardiology", "tx")[model.MetricTotalServices].Mean)
	assert.Equal(t, 2000.0, set.For("Cardiology", "CA")[model.MetricTotalServices].Mean)
	assert.Equal(t, 1000.0, set.For("Dermatology", "TX")[model.MetricTotalServices].Mean)

	// Cohort overrides are metric-by-metric.
	assert.Equal(t, 300.0, set.For("Cardiology", "TX")[model.MetricUniqueBeneficiaries].Mean)

	// The default is never mutated through a returned baseline.
	b := set.For("", "")
	b[model.MetricTotalServices] = model.MetricBaseline{Mean: 1, Std: 1}
	assert.Equal(t, 1000.0, set.Default[model.MetricTotalServices].Mean)
}

func TestLoadBaselineFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "baselines.yaml")
	content := `
baselines:
  default:
    total_services: {mean: 1200, std: 250}
  cohorts:
    - specialty: Internal Medicine
      metrics:
        unique_beneficiaries: {mean: 450, std: 90}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	set, err := LoadBaselineFile(path)
	require.NoError(t, err)

	assert.Equal(t, 1200.0, set.Default[model.MetricTotalServices].Mean)
	// Unlisted default metrics come from DefaultBaseline.
	assert.Equal(t, 500000.0, set.Default[model.MetricTotalCharges].Mean)

	im := set.For("internal medicine", "")
	assert.Equal(t, 450.0, im[model.MetricUniqueBeneficiaries].Mean)
	assert.Equal(t, 1200.0, im[model.MetricTotalServices].Mean)
}

func TestLoadBaselineFile_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadBaselineFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("baselines:\n  cohorts:\n    - metrics: {}\n"), 0o644))
	_, err = LoadBaselineFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no specialty")
}
