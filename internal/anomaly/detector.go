// Package anomaly compares a provider's billing metrics against a peer
// cohort baseline and flags statistical outliers.
package anomaly

import (
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/provider-risk/internal/model"
)

const (
	// Threshold is the |z| above which a metric is anomalous.
	Threshold = 2.5
	// MaxContribution caps the points any single metric can add.
	MaxContribution = 30.0
	// pointsPerSigma scales contribution linearly beyond the threshold.
	pointsPerSigma = 10.0
)

// Detect computes a z-score for every tracked metric that has billing
// activity and a usable baseline. Skipped metrics are absent from the result.
func Detect(m model.UtilizationMetrics, baseline model.PeerBaseline) map[string]model.AnomalyResult {
	out := make(map[string]model.AnomalyResult, len(model.TrackedMetrics))

	for _, metric := range model.TrackedMetrics {
		observed, _ := m.Value(metric)
		if observed == 0 || !finite(observed) {
			continue
		}

		b, ok := baseline[metric]
		if !ok || !ValidBaseline(b) {
			zap.L().Debug("anomaly: skipping metric",
				zap.String("metric", metric),
				zap.Error(model.ErrInvalidBaseline),
			)
			continue
		}

		z := (observed - b.Mean) / b.Std
		out[metric] = model.AnomalyResult{
			Metric:       metric,
			Observed:     observed,
			ZScore:       z,
			IsAnomalous:  math.Abs(z) > Threshold,
			Contribution: Contribution(z),
			Mean:         b.Mean,
			Std:          b.Std,
		}
	}

	return out
}

// Contribution returns the score points for a z-score: zero at or below the
// threshold, then 10 points per standard deviation beyond it, capped at 30.
func Contribution(z float64) float64 {
	abs := math.Abs(z)
	if abs <= Threshold {
		return 0
	}
	return math.Min(MaxContribution, (abs-Threshold)*pointsPerSigma)
}

// Strongest returns the anomalous metric with the largest contribution and
// that contribution. Contributions do not stack.
func Strongest(results map[string]model.AnomalyResult) (string, float64) {
	var (
		bestMetric string
		best       float64
	)
	// Iterate in tracked order so ties resolve deterministically.
	for _, metric := range model.TrackedMetrics {
		r, ok := results[metric]
		if !ok || !r.IsAnomalous {
			continue
		}
		if r.Contribution > best {
			best = r.Contribution
			bestMetric = metric
		}
	}
	return bestMetric, best
}

// ValidBaseline reports whether b can support a z-score.
func ValidBaseline(b model.MetricBaseline) bool {
	return finite(b.Mean) && finite(b.Std) && b.Std > 0
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
