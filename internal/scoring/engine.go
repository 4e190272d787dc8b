// Package scoring combines a fused provider profile, anomaly results, and the
// data-quality score into a RiskAssessment. Scoring is an ordered fold over
// named rules, so each stage's effect is recorded and auditable.
package scoring

import (
	"math"

	"github.com/sells-group/provider-risk/internal/anomaly"
	"github.com/sells-group/provider-risk/internal/model"
)

// Engine scores providers. It holds no mutable state and is safe for
// concurrent use. The same inputs always produce an identical assessment;
// the investigation carries the timestamp.
type Engine struct {
	rules []Rule
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules replaces the default stage list.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// NewEngine creates an Engine with DefaultRules.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{rules: DefaultRules()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the stage names in evaluation order.
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}

// Score produces a RiskAssessment. Missing data is never an error; only a
// structurally invalid input returns a StructuralInputError.
func (e *Engine) Score(p *model.ProviderProfile, anomalies map[string]model.AnomalyResult, quality float64) (*model.RiskAssessment, error) {
	if err := validateInput(p, anomalies, quality); err != nil {
		return nil, err
	}

	in := Input{
		Profile:   p,
		Anomalies: anomalies,
		Quality:   quality,
		Evidence:  CompileEvidence(p, anomalies),
	}

	st := State{}
	trace := make([]model.StageResult, 0, len(e.rules)+1)
	for _, r := range e.rules {
		o := r.Apply(in, st)
		st = reduce(st, o)
		trace = append(trace, model.StageResult{
			Stage:      r.Name(),
			Fired:      o.Fired,
			Floor:      o.Floor,
			Additive:   o.Additive,
			Multiplier: o.Multiplier,
			ScoreAfter: st.Score,
		})
	}

	final := clamp(st.Score)
	trace = append(trace, model.StageResult{
		Stage:      StageClamp,
		Fired:      float64(final) != st.Score,
		ScoreAfter: float64(final),
	})

	return &model.RiskAssessment{
		NPI:          p.NPI,
		RiskScore:    final,
		Priority:     model.PriorityForScore(final),
		Evidence:     in.Evidence,
		QualityScore: quality,
		Trace:        trace,
	}, nil
}

// clamp rounds to the nearest integer and bounds the result to [0,100].
func clamp(score float64) int {
	r := math.Round(score)
	switch {
	case r > 100:
		return 100
	case r < 0:
		return 0
	default:
		return int(r)
	}
}

func validateInput(p *model.ProviderProfile, anomalies map[string]model.AnomalyResult, quality float64) error {
	if p == nil {
		return model.NewStructuralError("profile", "nil profile")
	}
	if math.IsNaN(quality) || quality < 0 || quality > 1 {
		return model.NewStructuralError("quality", "must be within [0,1], got %v", quality)
	}
	if err := model.Validate(p.Utilization); err != nil {
		return err
	}
	if x := p.Exclusion; x != nil {
		switch x.Tier {
		case model.TierFelony, model.TierMandatory, model.TierPermissive, model.TierUnknown:
		default:
			return model.NewStructuralError("exclusion.tier", "unknown tier %q", x.Tier)
		}
	}
	for i := range p.Legal {
		if err := model.Validate(p.Legal[i]); err != nil {
			return err
		}
	}
	for name, r := range anomalies {
		if !finite(r.Observed) || !finite(r.ZScore) || !finite(r.Contribution) {
			return model.NewStructuralError("anomalies."+name, "non-finite value")
		}
		if r.Contribution < 0 || r.Contribution > anomaly.MaxContribution {
			return model.NewStructuralError("anomalies."+name, "contribution %v outside [0,%v]", r.Contribution, anomaly.MaxContribution)
		}
		if r.ZScore != 0 && !anomaly.ValidBaseline(model.MetricBaseline{Mean: r.Mean, Std: r.Std}) {
			return model.NewStructuralError("anomalies."+name, "z-score %v computed against an undefined baseline", r.ZScore)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
