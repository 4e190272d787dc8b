package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/provider-risk/internal/anomaly"
	"github.com/sells-group/provider-risk/internal/collect"
	"github.com/sells-group/provider-risk/internal/config"
	"github.com/sells-group/provider-risk/internal/fetcher"
	"github.com/sells-group/provider-risk/internal/fusion"
	"github.com/sells-group/provider-risk/internal/investigate"
	"github.com/sells-group/provider-risk/internal/legal"
	"github.com/sells-group/provider-risk/internal/metrics"
	"github.com/sells-group/provider-risk/internal/model"
	"github.com/sells-group/provider-risk/internal/report"
	"github.com/sells-group/provider-risk/internal/resilience"
	"github.com/sells-group/provider-risk/internal/search"
	"github.com/sells-group/provider-risk/internal/store"
	anthropicpkg "github.com/sells-group/provider-risk/pkg/anthropic"
	"github.com/sells-group/provider-risk/pkg/cms"
	"github.com/sells-group/provider-risk/pkg/leie"
	"github.com/sells-group/provider-risk/pkg/nppes"
)

// engineEnv holds the store, clients and investigator shared by the
// assess, batch and serve commands.
type engineEnv struct {
	Store        store.Store
	Collector    *collect.Collector
	Investigator *investigate.Investigator
	Metrics      *metrics.Recorder
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore validates the config for mode and opens the configured store.
func initStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// initEngine builds everything an investigation needs. Callers should defer
// env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	st, err := initStore(ctx, mode)
	if err != nil {
		return nil, err
	}

	baselines := anomaly.NewDefaultSet()
	if cfg.Scoring.BaselineFile != "" {
		baselines, err = anomaly.LoadBaselineFile(cfg.Scoring.BaselineFile)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	provider, err := search.NewProvider(cfg.Search)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	var searcher *search.Searcher
	if provider != nil {
		searcher = search.New(provider, cfg.Search.MaxQueries)
	} else {
		zap.L().Warn("legal search disabled; legal_search will be reported unavailable")
	}

	rec := metrics.New()
	collector := collect.New(newSources(cfg.Sources, searcher), collectOptions(cfg.Sources, st, rec))

	classifier := legal.NewClassifier(
		legal.WithRecencyYears(cfg.Scoring.RecencyYears),
		legal.WithOfficialHosts(cfg.Scoring.OfficialDomains...),
	)

	writerOpts := []report.Option{
		report.WithModel(cfg.Anthropic.Model),
		report.WithMaxTokens(cfg.Anthropic.MaxTokens),
	}
	if cfg.Anthropic.Key != "" {
		writerOpts = append(writerOpts, report.WithClient(anthropicpkg.NewClient(cfg.Anthropic.Key)))
	}

	inv := investigate.New(collector,
		investigate.WithFusion(fusion.NewEngine(classifier)),
		investigate.WithBaselines(baselines),
		investigate.WithWriter(report.NewWriter(writerOpts...)),
		investigate.WithStore(st),
		investigate.WithFinancials(st),
		investigate.WithMetrics(rec),
	)

	return &engineEnv{
		Store:        st,
		Collector:    collector,
		Investigator: inv,
		Metrics:      rec,
	}, nil
}

func newSources(sc config.SourcesConfig, searcher *search.Searcher) collect.Sources {
	hc := &http.Client{Timeout: sc.Timeout()}

	nppesOpts := []nppes.Option{nppes.WithHTTPClient(hc)}
	if sc.NPPESBaseURL != "" {
		nppesOpts = append(nppesOpts, nppes.WithBaseURL(sc.NPPESBaseURL))
	}

	cmsOpts := []cms.Option{cms.WithHTTPClient(hc)}
	if sc.CMSDatasetID != "" {
		cmsOpts = append(cmsOpts, cms.WithDatasetID(sc.CMSDatasetID))
	}
	if sc.CMSBaseURL != "" {
		cmsOpts = append(cmsOpts, cms.WithBaseURL(sc.CMSBaseURL))
	}

	var leieOpts []leie.Option
	if sc.LEIEPath != "" {
		leieOpts = append(leieOpts, leie.WithPath(sc.LEIEPath))
	} else {
		leieOpts = append(leieOpts,
			leie.WithURL(sc.LEIEURL),
			leie.WithFetcher(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
				Rate:  rate.Limit(sc.RateLimit),
				Burst: sc.RateBurst,
				Retry: resilience.DefaultRetryConfig().WithAttempts(sc.RetryAttempts),
			})),
		)
	}

	return collect.Sources{
		Identity:    nppes.NewClient(nppesOpts...),
		Utilization: cms.NewClient(cmsOpts...),
		Exclusion:   leie.NewLoader(leieOpts...),
		Legal:       searcher,
	}
}

func collectOptions(sc config.SourcesConfig, cache collect.SourceCache, rec *metrics.Recorder) collect.Options {
	hours := func(h int) time.Duration { return time.Duration(h) * time.Hour }
	return collect.Options{
		Retry: resilience.DefaultRetryConfig().WithAttempts(sc.RetryAttempts),
		Breaker: resilience.BreakerConfig{
			Failures: sc.BreakerFailures,
			Cooldown: time.Duration(sc.BreakerCooldownSecs) * time.Second,
		},
		Timeout: sc.Timeout(),
		TTL: map[model.Source]time.Duration{
			model.SourceIdentity: hours(sc.NPPESCacheTTLHours),
			model.SourceCMS:      hours(sc.CMSCacheTTLHours),
			model.SourceOIG:      hours(sc.OIGCacheTTLHours),
			model.SourceLegal:    hours(sc.LegalCacheTTLHours),
		},
		MemoSize: sc.MemoSize,
		Cache:    cache,
		Metrics:  rec,
	}
}
