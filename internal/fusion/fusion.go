// Package fusion merges the per-source payloads for one provider into a
// single ProviderProfile and rates how complete the underlying data is.
package fusion

import (
	"math"
	"strings"

	"github.com/sells-group/provider-risk/internal/legal"
	"github.com/sells-group/provider-risk/internal/model"
)

// Source weights for the data-quality score. They sum to 1.
var qualityWeights = map[model.Source]float64{
	model.SourceCMS:      0.4,
	model.SourceOIG:      0.3,
	model.SourceIdentity: 0.2,
	model.SourceLegal:    0.1,
}

// Inputs holds whatever each source returned. A nil payload means the source
// failed or was not queried.
type Inputs struct {
	NPI         string
	Utilization *model.UtilizationPayload
	Exclusion   *model.ExclusionPayload
	Identity    *model.IdentityPayload
	Legal       *model.LegalPayload
}

// Engine fuses source payloads. It performs no I/O.
type Engine struct {
	classifier *legal.Classifier
}

// NewEngine creates an Engine that classifies legal hits with c.
func NewEngine(c *legal.Classifier) *Engine {
	if c == nil {
		c = legal.NewClassifier()
	}
	return &Engine{classifier: c}
}

// Fuse builds the profile and quality score. Missing sources degrade the
// profile; only contract violations in the payloads return an error.
func (e *Engine) Fuse(in Inputs) (*model.ProviderProfile, float64, error) {
	npi := strings.TrimSpace(in.NPI)
	if !model.ValidNPI(npi) {
		return nil, 0, model.NewStructuralError("npi", "invalid NPI %q", in.NPI)
	}

	profile := &model.ProviderProfile{
		NPI:          npi,
		Legal:        []model.LegalCaseRecord{},
		Availability: make(map[model.Source]bool, len(qualityWeights)),
	}
	for _, s := range model.AllSources() {
		profile.Availability[s] = false
	}

	if in.Utilization != nil {
		if err := model.Validate(in.Utilization); err != nil {
			return nil, 0, err
		}
		profile.Utilization = in.Utilization.Metrics()
		profile.Availability[model.SourceCMS] = true
	}

	if in.Exclusion != nil {
		profile.Exclusion = exclusionRecord(in.Exclusion)
		profile.Availability[model.SourceOIG] = true
	}

	if in.Identity != nil {
		profile.Identity = model.Identity{
			Name:             strings.TrimSpace(in.Identity.Name),
			Specialty:        strings.TrimSpace(in.Identity.Specialty),
			PracticeLocation: in.Identity.PracticeLocation,
		}
		profile.Availability[model.SourceIdentity] = true
	}

	if in.Legal != nil {
		profile.Legal = e.classifier.Classify(in.Legal.Results, legal.Subject{
			Name:      profile.Identity.Name,
			NPI:       npi,
			Specialty: profile.Identity.Specialty,
			Location:  profile.Identity.PracticeLocation.City,
			State:     profile.Identity.PracticeLocation.State,
		})
		profile.Availability[model.SourceLegal] = true
	}

	return profile, QualityScore(profile.Availability), nil
}

// QualityScore is the weighted sum of available sources, in [0,1].
func QualityScore(avail map[model.Source]bool) float64 {
	score := 0.0
	for s, w := range qualityWeights {
		if avail[s] {
			score += w
		}
	}
	// Round to keep 0.4+0.3+0.2+0.1 at exactly 1.0.
	return math.Min(1, math.Round(score*1000)/1000)
}

// exclusionRecord returns nil when the provider is not excluded.
func exclusionRecord(p *model.ExclusionPayload) *model.ExclusionRecord {
	if !p.Excluded {
		return nil
	}
	code := ""
	if p.ExclusionType != nil {
		code = strings.TrimSpace(*p.ExclusionType)
	}
	et, _ := model.LookupExclusionType(code)
	return &model.ExclusionRecord{
		TypeCode:          et.Code,
		Tier:              et.Tier,
		Description:       et.Description,
		ExclusionDate:     p.ExclusionDate,
		ReinstatementDate: p.ReinstatementDate,
	}
}
