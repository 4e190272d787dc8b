package anomaly

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/provider-risk/internal/model"
)

// DefaultBaseline returns the national all-specialty baseline used when no
// cohort table is configured.
func DefaultBaseline() model.PeerBaseline {
	return model.PeerBaseline{
		model.MetricTotalServices:          {Mean: 1000, Std: 200},
		model.MetricUniqueBeneficiaries:    {Mean: 300, Std: 50},
		model.MetricServicesPerBeneficiary: {Mean: 3.3, Std: 1.0},
		model.MetricTotalCharges:           {Mean: 500000, Std: 100000},
		model.MetricChargeToPaymentRatio:   {Mean: 1.2, Std: 0.3},
	}
}

// Cohort is a baseline for one specialty, optionally narrowed to a state.
type Cohort struct {
	Specialty string             `yaml:"specialty"`
	State     string             `yaml:"state,omitempty"`
	Metrics   model.PeerBaseline `yaml:"metrics"`
}

// Set resolves the peer baseline for a provider's cohort.
type Set struct {
	Default model.PeerBaseline `yaml:"default"`
	Cohorts []Cohort           `yaml:"cohorts"`
}

// NewDefaultSet returns a Set holding only DefaultBaseline.
func NewDefaultSet() *Set {
	return &Set{Default: DefaultBaseline()}
}

// LoadBaselineFile reads a cohort table from YAML. Metrics missing from the
// file's default section fall back to DefaultBaseline.
func LoadBaselineFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "anomaly: read baseline %s", path)
	}

	var wrapper struct {
		Baselines Set `yaml:"baselines"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "anomaly: parse baseline")
	}

	set := &wrapper.Baselines
	set.Default = merge(DefaultBaseline(), set.Default)
	for i, c := range set.Cohorts {
		if strings.TrimSpace(c.Specialty) == "" {
			return nil, eris.Errorf("anomaly: cohort %d has no specialty", i)
		}
	}
	return set, nil
}

// For returns the most specific baseline for specialty and state: an exact
// specialty+state cohort, then a specialty-only cohort, then the default.
// Cohort metrics override the default metric by metric.
func (s *Set) For(specialty, state string) model.PeerBaseline {
	var specialtyOnly *Cohort
	for i := range s.Cohorts {
		c := &s.Cohorts[i]
		if !strings.EqualFold(c.Specialty, specialty) {
			continue
		}
		if c.State != "" && strings.EqualFold(c.State, state) {
			return merge(s.Default, c.Metrics)
		}
		if c.State == "" && specialtyOnly == nil {
			specialtyOnly = c
		}
	}
	if specialtyOnly != nil {
		return merge(s.Default, specialtyOnly.Metrics)
	}
	return merge(s.Default, nil)
}

func merge(base, override model.PeerBaseline) model.PeerBaseline {
	out := make(model.PeerBaseline, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
