// Package legal turns noisy web search hits about a provider into typed,
// relevance-scored legal case records.
package legal

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/provider-risk/internal/model"
)

const (
	// RelevanceFloor is the minimum relevance for a hit to become a record.
	RelevanceFloor = 0.30

	// DuplicateSimilarity is the token-set Jaccard at or above which two
	// descriptions describe the same event.
	DuplicateSimilarity = 0.85

	maxDescriptionRunes = 500
	defaultRecencyYears = 2

	weightExactName = 0.3
	weightPartName  = 0.15
	weightNPI       = 0.5
	weightSpecialty = 0.2
	weightLocation  = 0.2
	weightOfficial  = 0.5
	weightRecent    = 0.3
)

// Subject identifies the provider the search hits are about.
type Subject struct {
	Name      string
	NPI       string
	Specialty string
	Location  string
	// State is a USPS code or a state name. Either the city in Location or
	// the state earns the location signal.
	State string
}

// Classifier converts raw search results into LegalCaseRecords. It holds no
// mutable state and is safe for concurrent use.
type Classifier struct {
	now           func() time.Time
	recencyYears  int
	officialHosts []string
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock sets the clock used for recency scoring.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// WithRecencyYears sets how many years back a date still counts as recent.
func WithRecencyYears(years int) Option {
	return func(c *Classifier) {
		if years > 0 {
			c.recencyYears = years
		}
	}
}

// WithOfficialHosts adds hosts to the court/government allow-list.
func WithOfficialHosts(hosts ...string) Option {
	return func(c *Classifier) { c.officialHosts = append(c.officialHosts, hosts...) }
}

// NewClassifier creates a Classifier.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		now:          time.Now,
		recencyYears: defaultRecencyYears,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type candidate struct {
	record model.LegalCaseRecord
	key    string
}

// Classify scores, types, and deduplicates raw results for subject. Output is
// ordered by relevance, highest first. Malformed or irrelevant hits are
// dropped.
func (c *Classifier) Classify(results []model.RawSearchResult, subject Subject) []model.LegalCaseRecord {
	subj := newSubjectMatcher(subject)
	currentYear := c.now().Year()

	var cands []candidate
	for i, r := range results {
		title := strings.TrimSpace(r.Title)
		snippet := strings.TrimSpace(r.Snippet)
		host, ok := parseHost(r.URL)
		if !ok || (title == "" && snippet == "") {
			zap.L().Debug("legal: dropping result",
				zap.Int("index", i),
				zap.String("url", r.URL),
				zap.Error(model.ErrMalformedLegalRecord),
			)
			continue
		}

		text := title + " " + snippet
		caseType, ok := classifyCaseType(text)
		if !ok {
			continue
		}

		official := isOfficialHost(host, c.officialHosts)
		relevance := c.relevance(text, r.URL, official, subj, currentYear)
		if relevance < RelevanceFloor {
			continue
		}

		status := classifyStatus(text)
		body := title
		if body == "" {
			body = snippet
		}

		cands = append(cands, candidate{
			record: model.LegalCaseRecord{
				CaseType:    caseType,
				Status:      status,
				Relevance:   relevance,
				Verified:    official,
				Description: describe(caseType, status, body),
				URL:         strings.TrimSpace(r.URL),
				Date:        extractDate(text),
			},
			key: normalize(body),
		})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].record.Relevance > cands[j].record.Relevance
	})

	out := dedupe(cands)
	zap.L().Debug("legal: classified results",
		zap.String("npi", subject.NPI),
		zap.Int("raw", len(results)),
		zap.Int("records", len(out)),
	)
	return out
}

func (c *Classifier) relevance(text, rawURL string, official bool, subj subjectMatcher, currentYear int) float64 {
	norm := normalize(text)
	score := 0.0

	switch {
	case subj.fullName != "" && containsPhrase(norm, subj.fullName):
		score += weightExactName
	case subj.surname != "" && containsPhrase(norm, subj.surname):
		score += weightPartName
	}

	if subj.npi != "" && (strings.Contains(text, subj.npi) || strings.Contains(rawURL, subj.npi)) {
		score += weightNPI
	}
	if subj.specialty != "" && containsPhrase(norm, subj.specialty) {
		score += weightSpecialty
	}
	for _, loc := range subj.locations {
		if containsPhrase(norm, loc) {
			score += weightLocation
			break
		}
	}
	if official {
		score += weightOfficial
	}
	if y, ok := mostRecentYear(text, currentYear); ok && currentYear-y <= c.recencyYears {
		score += weightRecent
	}

	// Round away float noise so 0.3 sums compare cleanly against the floor.
	return math.Min(1.0, math.Round(score*1000)/1000)
}

// dedupe keeps the first of each group of near-identical descriptions.
// Input must already be sorted by relevance.
func dedupe(cands []candidate) []model.LegalCaseRecord {
	out := make([]model.LegalCaseRecord, 0, len(cands))
	var kept []string
	for _, cand := range cands {
		dup := false
		for _, k := range kept {
			if k == cand.key || jaccard(k, cand.key) >= DuplicateSimilarity {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		kept = append(kept, cand.key)
		out = append(out, cand.record)
	}
	return out
}

func describe(ct model.CaseType, status model.CaseStatus, body string) string {
	label := strings.ToUpper(string(ct[:1])) + string(ct[1:])
	return truncateRunes(fmt.Sprintf("%s (%s): %s", label, status, body), maxDescriptionRunes)
}

// honorifics are stripped from provider names before matching.
var honorifics = map[string]struct{}{
	"dr": {}, "md": {}, "do": {}, "mr": {}, "mrs": {}, "ms": {}, "jr": {}, "sr": {},
	"phd": {}, "np": {}, "pa": {}, "dds": {}, "dpm": {}, "rn": {}, "ii": {}, "iii": {},
}

type subjectMatcher struct {
	fullName  string
	surname   string
	npi       string
	specialty string
	locations []string
}

func newSubjectMatcher(s Subject) subjectMatcher {
	var tokens []string
	for _, tok := range strings.Fields(normalize(s.Name)) {
		if _, skip := honorifics[tok]; !skip {
			tokens = append(tokens, tok)
		}
	}

	m := subjectMatcher{
		npi:       strings.TrimSpace(s.NPI),
		specialty: normalize(s.Specialty),
	}
	for _, loc := range []string{s.Location, stateName(s.State)} {
		if n := normalize(loc); n != "" {
			m.locations = append(m.locations, n)
		}
	}
	if len(tokens) > 0 {
		m.fullName = strings.Join(tokens, " ")
	}
	// A lone surname only counts when the name has more than one token and the
	// surname is long enough to be distinctive.
	if len(tokens) > 1 && len([]rune(tokens[len(tokens)-1])) >= 3 {
		m.surname = tokens[len(tokens)-1]
	}
	return m
}
