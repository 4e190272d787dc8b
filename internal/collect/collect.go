// Package collect fetches the four upstream sources for a provider
// concurrently, each behind a retry policy, a circuit breaker and a
// two-level payload cache.
package collect

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/provider-risk/internal/fusion"
	"github.com/sells-group/provider-risk/internal/metrics"
	"github.com/sells-group/provider-risk/internal/model"
	"github.com/sells-group/provider-risk/internal/resilience"
	"github.com/sells-group/provider-risk/internal/search"
	"github.com/sells-group/provider-risk/pkg/cms"
	"github.com/sells-group/provider-risk/pkg/leie"
	"github.com/sells-group/provider-risk/pkg/nppes"
)

// Default cache lifetimes per source.
var defaultTTL = map[model.Source]time.Duration{
	model.SourceIdentity: 7 * 24 * time.Hour,
	model.SourceCMS:      24 * time.Hour,
	model.SourceOIG:      30 * 24 * time.Hour,
	model.SourceLegal:    24 * time.Hour,
}

const defaultMemoSize = 1024

// SourceCache is the persistent cache behind the in-process memo.
type SourceCache interface {
	GetCachedSource(ctx context.Context, source model.Source, npi string) ([]byte, error)
	SetCachedSource(ctx context.Context, source model.Source, npi string, data []byte, ttl time.Duration) error
}

// Sources are the upstream clients. A nil Legal searcher disables legal
// search.
type Sources struct {
	Identity    nppes.Client
	Utilization cms.Client
	Exclusion   leie.Client
	Legal       *search.Searcher
}

// Options tune the collector. Zero values fall back to defaults.
type Options struct {
	Retry    resilience.RetryConfig
	Breaker  resilience.BreakerConfig
	Timeout  time.Duration
	TTL      map[model.Source]time.Duration
	MemoSize int
	Cache    SourceCache
	Metrics  *metrics.Recorder
}

// Result is what the sources returned for one NPI. A nil payload means that
// source was unavailable; its error, if any, is in Errors.
type Result struct {
	Inputs fusion.Inputs
	Errors map[model.Source]error
}

// Collector gathers source payloads. It is safe for concurrent use.
type Collector struct {
	src      Sources
	retry    resilience.RetryConfig
	timeout  time.Duration
	ttl      map[model.Source]time.Duration
	cache    SourceCache
	metrics  *metrics.Recorder
	breakers map[model.Source]*resilience.Breaker
	memo     map[model.Source]*expirable.LRU[string, []byte]
}

// New creates a Collector.
func New(src Sources, opts Options) *Collector {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MemoSize <= 0 {
		opts.MemoSize = defaultMemoSize
	}
	brk := opts.Breaker
	prevIgnore := brk.Ignore
	brk.Ignore = func(err error) bool {
		return eris.Is(err, nppes.ErrNotFound) || (prevIgnore != nil && prevIgnore(err))
	}

	c := &Collector{
		src:      src,
		retry:    opts.Retry,
		timeout:  opts.Timeout,
		ttl:      make(map[model.Source]time.Duration, len(defaultTTL)),
		cache:    opts.Cache,
		metrics:  opts.Metrics,
		breakers: make(map[model.Source]*resilience.Breaker, len(defaultTTL)),
		memo:     make(map[model.Source]*expirable.LRU[string, []byte], len(defaultTTL)),
	}
	for _, s := range model.AllSources() {
		ttl := defaultTTL[s]
		if v, ok := opts.TTL[s]; ok && v > 0 {
			ttl = v
		}
		c.ttl[s] = ttl
		c.breakers[s] = resilience.NewBreaker(string(s), brk)
		c.memo[s] = expirable.NewLRU[string, []byte](opts.MemoSize, nil, ttl)
	}
	return c
}

// BreakerState reports the circuit state guarding source.
func (c *Collector) BreakerState(source model.Source) string {
	return c.breakers[source].State()
}

// Collect fetches every source for npi. Source failures never fail the
// call; only an invalid NPI or a cancelled context does.
func (c *Collector) Collect(ctx context.Context, npi string) (*Result, error) {
	npi = strings.TrimSpace(npi)
	if !model.ValidNPI(npi) {
		return nil, model.NewStructuralError("npi", "invalid NPI %q", npi)
	}

	res := &Result{
		Inputs: fusion.Inputs{NPI: npi},
		Errors: make(map[model.Source]error),
	}
	var mu sync.Mutex
	record := func(s model.Source, err error) {
		if ctx.Err() != nil {
			return
		}
		mu.Lock()
		res.Errors[s] = err
		mu.Unlock()
		c.metrics.SourceFailed(s, resilience.ErrorKind(err))
		zap.L().Warn("collect: source failed",
			zap.String("source", string(s)),
			zap.String("npi", npi),
			zap.String("kind", resilience.ErrorKind(err)),
			zap.Error(err),
		)
	}

	identityDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(identityDone)
		if c.src.Identity == nil {
			return nil
		}
		p, err := fetch(gctx, c, model.SourceIdentity, npi, true, func(ctx context.Context) (*model.IdentityPayload, error) {
			rec, err := c.src.Identity.Lookup(ctx, npi)
			if err != nil {
				return nil, err
			}
			id := rec.Identity()
			return &id, nil
		})
		if err != nil {
			record(model.SourceIdentity, err)
			return nil
		}
		res.Inputs.Identity = p
		return nil
	})

	g.Go(func() error {
		if c.src.Utilization == nil {
			return nil
		}
		p, err := fetch(gctx, c, model.SourceCMS, npi, true, func(ctx context.Context) (*model.UtilizationPayload, error) {
			return c.src.Utilization.Utilization(ctx, npi)
		})
		if err != nil {
			record(model.SourceCMS, err)
			return nil
		}
		res.Inputs.Utilization = p
		return nil
	})

	g.Go(func() error {
		if c.src.Exclusion == nil {
			return nil
		}
		p, err := fetch(gctx, c, model.SourceOIG, npi, true, func(ctx context.Context) (*model.ExclusionPayload, error) {
			return c.src.Exclusion.Lookup(ctx, npi)
		})
		if err != nil {
			record(model.SourceOIG, err)
			return nil
		}
		res.Inputs.Exclusion = p
		return nil
	})

	g.Go(func() error {
		if c.src.Legal == nil {
			return nil
		}
		select {
		case <-identityDone:
		case <-gctx.Done():
			return nil
		}
		subj := search.Subject{NPI: npi}
		if id := res.Inputs.Identity; id != nil {
			subj.Name = id.Name
			subj.Specialty = id.Specialty
			subj.State = id.PracticeLocation.State
		}
		// NPI-only results are never written back, so a later run with a
		// known name is not served the narrower search.
		p, err := fetch(gctx, c, model.SourceLegal, npi, subj.Name != "", func(ctx context.Context) (*model.LegalPayload, error) {
			return c.src.Legal.Search(ctx, subj)
		})
		if err != nil {
			record(model.SourceLegal, err)
			return nil
		}
		res.Inputs.Legal = p
		return nil
	})

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "collect: cancelled")
	}
	return res, nil
}

// fetch resolves one source payload: memo, then the persistent cache, then
// the upstream call behind the breaker and retry policy. Fresh payloads are
// written back to both cache levels when writeBack is set.
func fetch[T any](ctx context.Context, c *Collector, src model.Source, npi string, writeBack bool, call func(context.Context) (*T, error)) (*T, error) {
	memo := c.memo[src]
	if b, ok := memo.Get(npi); ok {
		if v, err := decode[T](b); err == nil {
			c.metrics.CacheLookup(src, metrics.CacheMemo)
			return v, nil
		}
		memo.Remove(npi)
	}

	if c.cache != nil {
		b, err := c.cache.GetCachedSource(ctx, src, npi)
		if err != nil {
			zap.L().Warn("collect: cache read failed", zap.String("source", string(src)), zap.Error(err))
		}
		if b != nil {
			if v, err := decode[T](b); err == nil {
				memo.Add(npi, b)
				c.metrics.CacheLookup(src, metrics.CacheStore)
				return v, nil
			}
		}
	}
	c.metrics.CacheLookup(src, metrics.CacheMiss)

	retry := c.retry
	retry.OnRetry = resilience.RetryLogger(string(src), npi)

	v, err := resilience.Execute(c.breakers[src], func() (*T, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (*T, error) {
			actx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			return call(actx)
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "collect: %s", src)
	}
	if v == nil {
		return nil, eris.Errorf("collect: %s returned no payload", src)
	}

	if !writeBack {
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	memo.Add(npi, b)
	if c.cache != nil {
		if err := c.cache.SetCachedSource(ctx, src, npi, b, c.ttl[src]); err != nil {
			zap.L().Warn("collect: cache write failed", zap.String("source", string(src)), zap.Error(err))
		}
	}
	return v, nil
}

func decode[T any](b []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, eris.Wrap(err, "collect: decode cached payload")
	}
	return &v, nil
}
