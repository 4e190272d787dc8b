// Package investigate runs one provider through the full pipeline: collect,
// fuse, detect, score, report and persist.
package investigate

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-risk/internal/anomaly"
	"github.com/sells-group/provider-risk/internal/collect"
	"github.com/sells-group/provider-risk/internal/fusion"
	"github.com/sells-group/provider-risk/internal/metrics"
	"github.com/sells-group/provider-risk/internal/model"
	"github.com/sells-group/provider-risk/internal/report"
	"github.com/sells-group/provider-risk/internal/scoring"
	"github.com/sells-group/provider-risk/internal/store"
)

// Collector gathers source payloads for an NPI.
type Collector interface {
	Collect(ctx context.Context, npi string) (*collect.Result, error)
}

// Saver persists finished investigations.
type Saver interface {
	SaveInvestigation(ctx context.Context, inv *model.Investigation) error
}

// FinancialSource looks up the latest recorded financial impact for an NPI.
type FinancialSource interface {
	LatestFinancial(ctx context.Context, npi string) (*model.FraudFinancialData, error)
}

// RunOptions select the optional steps of a run.
type RunOptions struct {
	Report bool
	Save   bool
}

// Option configures an Investigator.
type Option func(*Investigator)

// WithFusion sets the fusion engine.
func WithFusion(e *fusion.Engine) Option {
	return func(i *Investigator) { i.fusion = e }
}

// WithBaselines sets the peer baseline table.
func WithBaselines(s *anomaly.Set) Option {
	return func(i *Investigator) { i.baselines = s }
}

// WithScorer sets the scoring engine.
func WithScorer(e *scoring.Engine) Option {
	return func(i *Investigator) { i.scorer = e }
}

// WithWriter sets the report writer.
func WithWriter(w *report.Writer) Option {
	return func(i *Investigator) { i.writer = w }
}

// WithStore enables persistence for runs that ask for it.
func WithStore(s Saver) Option {
	return func(i *Investigator) { i.store = s }
}

// WithFinancials attaches the latest financial impact record to each run.
func WithFinancials(f FinancialSource) Option {
	return func(i *Investigator) { i.financials = f }
}

// WithMetrics records run metrics on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(i *Investigator) { i.metrics = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Investigator) { i.now = now }
}

// WithIDs overrides investigation ID generation.
func WithIDs(next func() string) Option {
	return func(i *Investigator) { i.newID = next }
}

// Investigator runs investigations. It is safe for concurrent use.
type Investigator struct {
	collector  Collector
	fusion     *fusion.Engine
	baselines  *anomaly.Set
	scorer     *scoring.Engine
	writer     *report.Writer
	store      Saver
	financials FinancialSource
	metrics    *metrics.Recorder
	now        func() time.Time
	newID      func() string
}

// New creates an Investigator that collects through c.
func New(c Collector, opts ...Option) *Investigator {
	i := &Investigator{
		collector: c,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.fusion == nil {
		i.fusion = fusion.NewEngine(nil)
	}
	if i.baselines == nil {
		i.baselines = anomaly.NewDefaultSet()
	}
	if i.scorer == nil {
		i.scorer = scoring.NewEngine()
	}
	if i.writer == nil {
		i.writer = report.NewWriter()
	}
	return i
}

// Run investigates npi. Source outages degrade the result instead of failing
// it; errors come from an invalid NPI, a contract violation in the payloads,
// a cancelled context or a failed save.
func (i *Investigator) Run(ctx context.Context, npi string, opts RunOptions) (*model.Investigation, error) {
	start := i.now()
	npi = strings.TrimSpace(npi)
	if !model.ValidNPI(npi) {
		return nil, model.NewStructuralError("npi", "invalid NPI %q", npi)
	}
	log := zap.L().With(zap.String("npi", npi))

	res, err := i.collector.Collect(ctx, npi)
	if err != nil {
		return nil, eris.Wrap(err, "investigate: collect")
	}

	profile, quality, err := i.fusion.Fuse(res.Inputs)
	if err != nil {
		return nil, eris.Wrap(err, "investigate: fuse")
	}

	baseline := i.baselines.For(profile.Identity.Specialty, profile.Identity.PracticeLocation.State)
	anomalies := anomaly.Detect(profile.Utilization, baseline)

	assessment, err := i.scorer.Score(profile, anomalies, quality)
	if err != nil {
		return nil, eris.Wrap(err, "investigate: score")
	}

	inv := &model.Investigation{
		ID:         i.newID(),
		NPI:        npi,
		Profile:    profile,
		Anomalies:  anomalies,
		Assessment: assessment,
		CreatedAt:  start.UTC(),
	}
	if len(res.Errors) > 0 {
		inv.SourceErrors = make(map[model.Source]string, len(res.Errors))
		for s, e := range res.Errors {
			inv.SourceErrors[s] = e.Error()
		}
	}

	inv.Financial = i.latestFinancial(ctx, log, npi)

	if opts.Report {
		r, err := i.writer.Write(ctx, profile, assessment)
		if err != nil {
			return nil, eris.Wrap(err, "investigate: report")
		}
		if !r.Quality.Passed {
			log.Warn("investigate: report below quality threshold",
				zap.Float64("quality", r.Quality.Score),
				zap.Strings("deficiencies", r.Quality.Deficiencies),
			)
		}
		inv.Report = r
	}

	inv.Duration = i.now().Sub(start)

	if opts.Save {
		if i.store == nil {
			return nil, eris.New("investigate: save requested but no store configured")
		}
		if err := i.store.SaveInvestigation(ctx, inv); err != nil {
			return nil, eris.Wrap(err, "investigate: save")
		}
	}

	i.metrics.ObserveAssessment(assessment, inv.Duration)
	log.Info("investigate: complete",
		zap.String("id", inv.ID),
		zap.Int("risk_score", assessment.RiskScore),
		zap.String("priority", string(assessment.Priority)),
		zap.Float64("quality", assessment.QualityScore),
		zap.Int("evidence", len(assessment.Evidence)),
		zap.Int("source_errors", len(res.Errors)),
		zap.Duration("took", inv.Duration),
	)
	return inv, nil
}

// latestFinancial returns nil when no record exists. Lookup failures are
// logged and do not fail the run.
func (i *Investigator) latestFinancial(ctx context.Context, log *zap.Logger, npi string) *model.FraudFinancialData {
	if i.financials == nil {
		return nil
	}
	f, err := i.financials.LatestFinancial(ctx, npi)
	if err != nil {
		if !eris.Is(err, store.ErrNotFound) {
			log.Warn("investigate: financial lookup failed", zap.Error(err))
		}
		return nil
	}
	return f
}
