package scoring

import (
	"github.com/sells-group/provider-risk/internal/anomaly"
	"github.com/sells-group/provider-risk/internal/model"
)

// Business-rule constants.
const (
	ConvictionFloor = 90

	FelonyFloor     = 90
	MandatoryFloor  = 80
	PermissiveFloor = 70
	UnknownFloor    = 75

	HighEvidencePoints   = 10.0
	MediumEvidencePoints = 5.0

	PendingLawsuitPoints = 15.0
	AllegationPoints     = 10.0

	QualityThreshold  = 0.70
	QualityMultiplier = 1.2
)

// Stage names, in evaluation order.
const (
	StageConvictionFloor    = "conviction_floor"
	StageExclusionFloor     = "exclusion_floor"
	StageStatisticalAnomaly = "statistical_anomaly"
	StagePatternEvidence    = "pattern_evidence"
	StageLegalInformation   = "legal_information"
	StageQualityMultiplier  = "quality_multiplier"
	StageMinimumThreshold   = "minimum_threshold"
	StageClamp              = "clamp"
)

// Input is everything a rule may look at. Rules must not modify it.
type Input struct {
	Profile   *model.ProviderProfile
	Anomalies map[string]model.AnomalyResult
	Quality   float64
	Evidence  []model.FraudEvidence
}

// State is the running fold value.
type State struct {
	Score float64
	// Floor is the highest floor asserted so far; 0 when none.
	Floor int
	// Overridden is set once a conviction or exclusion floor has fired.
	Overridden bool
}

// Outcome is what one rule contributes.
type Outcome struct {
	Fired      bool
	Floor      *int
	Additive   float64
	Multiplier float64
}

// Rule is one named scoring stage.
type Rule interface {
	Name() string
	Apply(in Input, st State) Outcome
}

type ruleFunc struct {
	name  string
	apply func(Input, State) Outcome
}

func (r ruleFunc) Name() string                     { return r.name }
func (r ruleFunc) Apply(in Input, st State) Outcome { return r.apply(in, st) }

// NewRule adapts a function to the Rule interface.
func NewRule(name string, apply func(Input, State) Outcome) Rule {
	return ruleFunc{name: name, apply: apply}
}

// DefaultRules returns the production stage list in precedence order.
func DefaultRules() []Rule {
	return []Rule{
		NewRule(StageConvictionFloor, convictionFloor),
		NewRule(StageExclusionFloor, exclusionFloor),
		NewRule(StageStatisticalAnomaly, statisticalAnomaly),
		NewRule(StagePatternEvidence, patternEvidence),
		NewRule(StageLegalInformation, legalInformation),
		NewRule(StageQualityMultiplier, qualityMultiplier),
		NewRule(StageMinimumThreshold, minimumThreshold),
	}
}

// reduce folds one outcome into the state. A floor raises the score to at
// least the floor and marks the state overridden; additive points are then
// added and the multiplier applied.
func reduce(st State, o Outcome) State {
	if !o.Fired {
		return st
	}
	if o.Floor != nil {
		f := *o.Floor
		if f > st.Floor {
			st.Floor = f
		}
		if st.Score < float64(f) {
			st.Score = float64(f)
		}
		st.Overridden = true
	}
	st.Score += o.Additive
	if o.Multiplier > 0 {
		st.Score *= o.Multiplier
	}
	return st
}

func floorOutcome(f int) Outcome {
	return Outcome{Fired: true, Floor: &f}
}

func convictionFloor(in Input, _ State) Outcome {
	if !in.Profile.HasConviction() {
		return Outcome{}
	}
	return floorOutcome(ConvictionFloor)
}

// ExclusionFloor maps an exclusion tier to its minimum score.
func ExclusionFloor(tier model.ExclusionTier) int {
	switch tier {
	case model.TierFelony:
		return FelonyFloor
	case model.TierMandatory:
		return MandatoryFloor
	case model.TierPermissive:
		return PermissiveFloor
	default:
		return UnknownFloor
	}
}

func exclusionFloor(in Input, st State) Outcome {
	if st.Overridden || in.Profile.Exclusion == nil {
		return Outcome{}
	}
	return floorOutcome(ExclusionFloor(in.Profile.Exclusion.Tier))
}

// statisticalAnomaly adds the single strongest anomaly contribution.
// TODO: confirm with the fraud-analytics owner whether simultaneous
// anomalies should stack instead of taking the max.
func statisticalAnomaly(in Input, st State) Outcome {
	if st.Overridden {
		return Outcome{}
	}
	_, points := anomaly.Strongest(in.Anomalies)
	if points <= 0 {
		return Outcome{}
	}
	return Outcome{Fired: true, Additive: points}
}

// patternEvidence scores derived billing-pattern findings. Per-metric anomaly
// evidence is already counted by statisticalAnomaly and legal evidence by
// legalInformation.
func patternEvidence(in Input, st State) Outcome {
	if st.Overridden {
		return Outcome{}
	}
	points := 0.0
	for _, ev := range in.Evidence {
		if ev.Kind != model.EvidenceBillingPattern {
			continue
		}
		switch ev.Severity {
		case model.SeverityHigh:
			points += HighEvidencePoints
		case model.SeverityMedium:
			points += MediumEvidencePoints
		}
	}
	if points == 0 {
		return Outcome{}
	}
	return Outcome{Fired: true, Additive: points}
}

// legalInformation is skipped for excluded or convicted providers so that
// conviction-sourced records are not counted on top of the floor.
func legalInformation(in Input, _ State) Outcome {
	p := in.Profile
	if p.IsExcluded() || p.HasConviction() {
		return Outcome{}
	}
	points := 0.0
	for _, r := range p.Legal {
		switch {
		case r.CaseType == model.CaseLawsuit && r.Status == model.StatusPending:
			points += PendingLawsuitPoints
		case r.CaseType == model.CaseAllegation:
			points += AllegationPoints
		}
	}
	if points == 0 {
		return Outcome{}
	}
	return Outcome{Fired: true, Additive: points}
}

func qualityMultiplier(in Input, _ State) Outcome {
	if in.Quality >= QualityThreshold {
		return Outcome{}
	}
	return Outcome{Fired: true, Multiplier: QualityMultiplier}
}

func minimumThreshold(_ Input, st State) Outcome {
	if st.Floor == 0 || st.Score >= float64(st.Floor) {
		return Outcome{}
	}
	return floorOutcome(st.Floor)
}
