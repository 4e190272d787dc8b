package main

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/provider-risk/internal/investigate"
	"github.com/sells-group/provider-risk/internal/model"
)

// fakeRunner returns canned investigations keyed by NPI.
type fakeRunner struct {
	mu    sync.Mutex
	errs  map[string]error
	calls []string
	opts  []investigate.RunOptions
}

func (f *fakeRunner) Run(_ context.Context, npi string, opts investigate.RunOptions) (*model.Investigation, error) {
	f.mu.Lock()
	f.calls = append(f.calls, npi)
	f.opts = append(f.opts, opts)
	err := f.errs[npi]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !model.ValidNPI(npi) {
		return nil, model.NewStructuralError("npi", "invalid NPI %q", npi)
	}
	return sampleInvestigation(npi), nil
}

func sampleInvestigation(npi string) *model.Investigation {
	sig := 0.9
	return &model.Investigation{
		ID:  "inv-" + npi,
		NPI: npi,
		Profile: &model.ProviderProfile{
			NPI:      npi,
			Identity: model.Identity{Name: "John Smith", Specialty: "Cardiology"},
		},
		Assessment: &model.RiskAssessment{
			NPI:       npi,
			RiskScore: 72,
			Priority:  model.PriorityHigh,
			Evidence: []model.FraudEvidence{{
				Kind:         model.EvidenceConviction,
				Severity:     model.SeverityHigh,
				Description:  "Convicted of health care fraud in 2022",
				Source:       "legal_search",
				Significance: &sig,
			}},
			QualityScore: 0.75,
		},
		SourceErrors: map[model.Source]string{model.SourceCMS: "cms: status 503"},
		CreatedAt:    time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC),
	}
}
