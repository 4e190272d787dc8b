// Package search gathers raw legal web search hits about a provider.
package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-risk/internal/config"
	"github.com/sells-group/provider-risk/internal/model"
	"github.com/sells-group/provider-risk/pkg/jina"
	"github.com/sells-group/provider-risk/pkg/perplexity"
)

// DefaultMaxQueries caps the query strategies run per provider.
const DefaultMaxQueries = 5

// Provider runs a single web search.
type Provider interface {
	Search(ctx context.Context, query string) ([]model.RawSearchResult, error)
}

// Subject is what the queries are built from. Name may be empty when the
// identity lookup failed.
type Subject struct {
	Name      string
	NPI       string
	Specialty string
	State     string
}

// Queries returns the query strategies for s, most specific first, capped at
// limit.
func Queries(s Subject, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxQueries
	}
	name := strings.TrimSpace(s.Name)
	npi := strings.TrimSpace(s.NPI)

	var qs []string
	if name == "" {
		qs = append(qs,
			fmt.Sprintf("%q fraud", npi),
			fmt.Sprintf("NPI %q healthcare lawsuit", npi),
		)
	} else {
		qs = append(qs,
			fmt.Sprintf("%q convicted healthcare fraud", name),
			fmt.Sprintf("%q lawsuit", name),
			fmt.Sprintf("%q medicare fraud settlement", name),
			fmt.Sprintf("%q fraud", npi),
		)
		if st := strings.TrimSpace(s.State); st != "" {
			qs = append(qs, fmt.Sprintf("%q %s court judgment", name, st))
		}
		if sp := strings.TrimSpace(s.Specialty); sp != "" {
			qs = append(qs, fmt.Sprintf("%q %s malpractice", name, strings.ToLower(sp)))
		}
	}
	if len(qs) > limit {
		qs = qs[:limit]
	}
	return qs
}

// Searcher runs the query strategies against a provider and merges the hits.
type Searcher struct {
	provider   Provider
	maxQueries int
}

// New creates a Searcher.
func New(p Provider, maxQueries int) *Searcher {
	if maxQueries <= 0 {
		maxQueries = DefaultMaxQueries
	}
	return &Searcher{provider: p, maxQueries: maxQueries}
}

// Search runs every query in order and returns the merged hits, deduplicated
// by URL with first-seen order kept. Individual query failures are logged;
// the search fails only when every query failed or ctx is done.
func (s *Searcher) Search(ctx context.Context, subj Subject) (*model.LegalPayload, error) {
	queries := Queries(subj, s.maxQueries)
	out := &model.LegalPayload{Results: []model.RawSearchResult{}, Queries: queries}
	seen := make(map[string]struct{})

	var firstErr error
	failed := 0
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "search: context done")
		}
		hits, err := s.provider.Search(ctx, q)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			zap.L().Warn("search: query failed",
				zap.String("npi", subj.NPI),
				zap.String("query", q),
				zap.Error(err),
			)
			continue
		}
		for _, h := range hits {
			key := urlKey(h.URL)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out.Results = append(out.Results, h)
		}
	}
	if failed == len(queries) && firstErr != nil {
		return nil, eris.Wrapf(firstErr, "search: all %d queries failed", failed)
	}
	return out, nil
}

// urlKey normalizes a URL for dedup: lower-case host, no fragment, no
// trailing slash.
func urlKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// JinaProvider searches with Jina AI.
type JinaProvider struct {
	Client jina.Client
}

// Search implements Provider.
func (p JinaProvider) Search(ctx context.Context, query string) ([]model.RawSearchResult, error) {
	resp, err := p.Client.Search(ctx, query, jina.WithoutContent())
	if err != nil {
		return nil, err
	}
	out := make([]model.RawSearchResult, 0, len(resp.Data))
	for _, r := range resp.Data {
		out = append(out, model.RawSearchResult{
			Title:   r.Title,
			Snippet: withDate(r.Snippet(), r.Date),
			URL:     r.URL,
		})
	}
	return out, nil
}

// PerplexityProvider searches through Perplexity's cited sources.
type PerplexityProvider struct {
	Client perplexity.Client
}

// Search implements Provider.
func (p PerplexityProvider) Search(ctx context.Context, query string) ([]model.RawSearchResult, error) {
	results, err := p.Client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]model.RawSearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, model.RawSearchResult{
			Title:   r.Title,
			Snippet: withDate(r.Snippet, r.Date),
			URL:     r.URL,
		})
	}
	return out, nil
}

// withDate appends a publication date so the classifier's date extraction
// sees it.
func withDate(snippet, date string) string {
	date = strings.TrimSpace(date)
	if date == "" || strings.Contains(snippet, date) {
		return snippet
	}
	if snippet == "" {
		return date
	}
	return snippet + " (" + date + ")"
}

// NewProvider builds the configured provider. It returns nil for "none" or
// an empty provider name, meaning legal search is disabled.
func NewProvider(cfg config.SearchConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "none":
		return nil, nil
	case "jina":
		var opts []jina.Option
		if cfg.JinaBaseURL != "" {
			opts = append(opts, jina.WithBaseURL(cfg.JinaBaseURL))
		}
		return JinaProvider{Client: jina.NewClient(cfg.JinaKey, opts...)}, nil
	case "perplexity":
		opts := []perplexity.Option{perplexity.WithModel(cfg.PerplexityModel)}
		if cfg.PerplexityBaseURL != "" {
			opts = append(opts, perplexity.WithBaseURL(cfg.PerplexityBaseURL))
		}
		return PerplexityProvider{Client: perplexity.NewClient(cfg.PerplexityKey, opts...)}, nil
	default:
		return nil, eris.Errorf("search: unknown provider %q", cfg.Provider)
	}
}
