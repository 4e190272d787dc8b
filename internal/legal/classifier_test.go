package legal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-risk/internal/model"
)

const testNPI = "1234567893"

func fixedClock() time.Time {
	return time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
}

func newTestClassifier(opts ...Option) *Classifier {
	return NewClassifier(append([]Option{WithClock(fixedClock)}, opts...)...)
}

func testSubject() Subject {
	return Subject{Name: "Dr. John Smith", NPI: testNPI, Specialty: "Cardiology", Location: "Austin", State: "TX"}
}

func TestClassify_Conviction(t *testing.T) {
	t.Parallel()

	c := newTestClassifier()
	got := c.Classify([]model.RawSearchResult{{
		Title:   "Dr. John Smith convicted of health care fraud",
		Snippet: "John Smith was sentenced on March 3, 2025 for billing Medicare for services never rendered.",
		URL:     "https://www.justice.gov/usao-wdtx/pr/smith",
	}}, testSubject())

	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, model.CaseConviction, r.CaseType)
	assert.Equal(t, model.StatusPending, r.Status)
	assert.True(t, r.Verified)
	assert.InDelta(t, 1.0, r.Relevance, 1e-9)
	assert.Equal(t, "March 3, 2025", r.Date)
	assert.True(t, strings.HasPrefix(r.Description, "Conviction (pending): "))
}

func TestClassify_AcquittalOnOfficialSource(t *testing.T) {
	t.Parallel()

	c := newTestClassifier()
	got := c.Classify([]model.RawSearchResult{{
		Title:   "Dr. John Smith acquitted of felony Medicare fraud charges",
		Snippet: "A federal jury returned its verdict in Austin.",
		URL:     "https://www.justice.gov/usao-wdtx/pr/smith-verdict",
	}}, testSubject())

	require.Len(t, got, 1)
	assert.Equal(t, model.CaseAllegation, got[0].CaseType)
	assert.Equal(t, model.StatusClosed, got[0].Status)
	assert.NotEqual(t, model.CaseConviction, got[0].CaseType)
}

func TestClassify_CaseTypePrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want model.CaseType
		ok   bool
	}{
		{"conviction beats lawsuit markers", "United States v. Smith: defendant pleaded guilty to Medicare fraud", model.CaseConviction, true},
		{"conviction needs fraud or theft term", "Smith sentenced after felony DUI", model.CaseAllegation, true},
		{"negated conviction is not a conviction", "Smith was not convicted of fraud", model.CaseAllegation, true},
		{"acquittal is not a conviction", "Dr. John Smith acquitted of felony Medicare fraud charges", model.CaseAllegation, true},
		{"not guilty verdict with dismissed counts", "found not guilty of healthcare fraud; felony counts dismissed", model.CaseAllegation, true},
		{"charged without verdict", "charged with felony health care fraud", model.CaseAllegation, true},
		{"indictment without verdict", "Smith indicted on Medicaid fraud counts", model.CaseAllegation, true},
		{"exonerated", "Physician exonerated after fraud conviction overturned", model.CaseAllegation, true},
		{"charges dropped", "Prosecutors dropped the charges of insurance fraud against Smith", model.CaseAllegation, true},
		{"explicit verdict", "Smith was found guilty of health care fraud", model.CaseConviction, true},
		{"guilty plea with embezzlement", "Clinic manager entered a guilty plea to embezzlement", model.CaseConviction, true},
		{"versus marker", "Doe v. Smith Cardiology Associates", model.CaseLawsuit, true},
		{"plaintiff marker", "plaintiff alleges the practice overbilled", model.CaseLawsuit, true},
		{"docket number", "Filed under 2:21-cv-01234 in W.D. Tex.", model.CaseLawsuit, true},
		{"case number", "Case No. 24-CR-118 unsealed", model.CaseLawsuit, true},
		{"allegation default", "Smith accused of upcoding office visits", model.CaseAllegation, true},
		{"no enforcement context", "Smith joins Austin Heart board of directors", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := classifyCaseType(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.StatusPending, classifyStatus("indicted on fraud charges"))
	assert.Equal(t, model.StatusSettled, classifyStatus("agreed to pay $2 million"))
	assert.Equal(t, model.StatusSettled, classifyStatus("case dismissed after settlement"))
	assert.Equal(t, model.StatusClosed, classifyStatus("charges were dismissed"))
	assert.Equal(t, model.StatusClosed, classifyStatus("jury acquitted the physician"))
}

func TestClassify_DropsMalformed(t *testing.T) {
	t.Parallel()

	c := newTestClassifier()
	got := c.Classify([]model.RawSearchResult{
		{Title: "John Smith fraud", Snippet: "alleged fraud", URL: ""},
		{Title: "John Smith fraud", Snippet: "alleged fraud", URL: "ftp://files.example.gov/x"},
		{Title: "John Smith fraud", Snippet: "alleged fraud", URL: "://bad url"},
		{Title: "  ", Snippet: "", URL: "https://www.justice.gov/x"},
	}, testSubject())
	assert.Empty(t, got)
}

func TestClassify_RelevanceFloor(t *testing.T) {
	t.Parallel()

	c := newTestClassifier()
	got := c.Classify([]model.RawSearchResult{
		// No name, NPI, or official source, and an old date.
		{Title: "Local doctor accused of fraud in 2015", Snippet: "", URL: "https://blog.example.com/post"},
		// Surname only: 0.15, below the floor.
		{Title: "Smith accused of fraud", Snippet: "", URL: "https://news.example.com/a"},
		// Surname plus specialty: 0.35.
		{Title: "Cardiology practice owner Smith accused of fraud", Snippet: "", URL: "https://news.example.com/b"},
	}, testSubject())

	require.Len(t, got, 1)
	assert.InDelta(t, 0.35, got[0].Relevance, 1e-9)
	assert.Equal(t, model.CaseAllegation, got[0].CaseType)
	assert.False(t, got[0].Verified)
}

func TestClassify_RelevanceSignals(t *testing.T) {
	t.Parallel()

	c := newTestClassifier()
	tests := []struct {
		name string
		r    model.RawSearchResult
		want float64
	}{
		{
			name: "exact name and recent year",
			r:    model.RawSearchResult{Title: "United States v. John Smith", Snippet: "complaint filed 2024 alleging Medicare fraud", URL: "https://www.courtlistener.com/docket/1"},
			want: 0.6,
		},
		{
			name: "npi in url",
			r:    model.RawSearchResult{Title: "Exclusion notice", Snippet: "provider excluded", URL: "https://example.com/npi/" + testNPI},
			want: 0.5,
		},
		{
			name: "accent-insensitive name and location",
			r:    model.RawSearchResult{Title: "JÓHN SMITH of Austin indicted", Snippet: "", URL: "https://example.com/a"},
			want: 0.5,
		},
		{
			name: "state name earns location",
			r:    model.RawSearchResult{Title: "John Smith of Texas indicted", Snippet: "", URL: "https://example.com/b"},
			want: 0.5,
		},
		{
			name: "city and state count once",
			r:    model.RawSearchResult{Title: "John Smith of Austin, Texas indicted", Snippet: "", URL: "https://example.com/c"},
			want: 0.5,
		},
		{
			name: "bare state code is not a location match",
			r:    model.RawSearchResult{Title: "John Smith TX indicted", Snippet: "", URL: "https://example.com/d"},
			want: 0.3,
		},
		{
			name: "capped at one",
			r:    model.RawSearchResult{Title: "John Smith cardiology Austin indicted 2026", Snippet: testNPI, URL: "https://oig.hhs.gov/x"},
			want: 1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := c.Classify([]model.RawSearchResult{tt.r}, testSubject())
			require.Len(t, got, 1)
			assert.InDelta(t, tt.want, got[0].Relevance, 1e-9)
		})
	}
}

func TestClassify_RecencyWindow(t *testing.T) {
	t.Parallel()

	r := model.RawSearchResult{Title: "John Smith indicted", Snippet: "Indictment returned in 2023", URL: "https://example.com/a"}

	got := newTestClassifier().Classify([]model.RawSearchResult{r}, testSubject())
	require.Len(t, got, 1)
	assert.InDelta(t, 0.3, got[0].Relevance, 1e-9, "2023 is outside a 2-year window from 2026")

	got = newTestClassifier(WithRecencyYears(3)).Classify([]model.RawSearchResult{r}, testSubject())
	require.Len(t, got, 1)
	assert.InDelta(t, 0.6, got[0].Relevance, 1e-9)
}

func TestClassify_DeduplicatesNearIdentical(t *testing.T) {
	t.Parallel()

	c := newTestClassifier()
	got := c.Classify([]model.RawSearchResult{
		{Title: "John Smith accused of Medicare fraud scheme", Snippet: "", URL: "https://news.example.com/a"},
		{Title: "John Smith Accused of Medicare-Fraud Scheme!", Snippet: "", URL: "https://www.justice.gov/a"},
		{Title: "John Smith accused of Medicare fraud scheme - Texas", Snippet: "", URL: "https://other.example.com/a"},
		{Title: "John Smith sued by former patient over billing", Snippet: "lawsuit", URL: "https://news.example.com/b"},
	}, testSubject())

	require.Len(t, got, 2)
	// The verified copy has higher relevance and survives.
	assert.Equal(t, "https://www.justice.gov/a", got[0].URL)
	assert.True(t, got[0].Verified)
	assert.Equal(t, model.CaseLawsuit, got[1].CaseType)
}

func TestClassify_OrderedByRelevance(t *testing.T) {
	t.Parallel()

	c := newTestClassifier()
	got := c.Classify([]model.RawSearchResult{
		{Title: "John Smith accused of kickbacks", Snippet: "", URL: "https://a.example.com"},
		{Title: "John Smith indicted for upcoding", Snippet: testNPI, URL: "https://b.example.com"},
	}, testSubject())

	require.Len(t, got, 2)
	assert.Greater(t, got[0].Relevance, got[1].Relevance)
	assert.Equal(t, "https://b.example.com", got[0].URL)
}

func TestClassify_DescriptionTruncated(t *testing.T) {
	t.Parallel()

	long := "John Smith accused of fraud " + strings.Repeat("é", 800)
	got := newTestClassifier().Classify([]model.RawSearchResult{{Title: long, URL: "https://a.example.com"}}, testSubject())
	require.Len(t, got, 1)
	assert.Equal(t, 500, len([]rune(got[0].Description)))
	assert.True(t, strings.HasSuffix(got[0].Description, "..."))
}

func TestIsOfficialHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host  string
		extra []string
		want  bool
	}{
		{"justice.gov", nil, true},
		{"oig.hhs.gov", nil, true},
		{"ecf.txwd.uscourts.gov", nil, true},
		{"army.mil", nil, true},
		{"courts.state.ny.us", nil, true},
		{"courts.ca.us", nil, true},
		{"evilgov.com", nil, false},
		{"gov.example.com", nil, false},
		{"mycourts.ca.us", nil, false},
		{"courtlistener.com", nil, false},
		{"courtlistener.com", []string{"courtlistener.com"}, true},
		{"www2.courtlistener.com", []string{"CourtListener.com"}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isOfficialHost(tt.host, tt.extra), tt.host)
	}
}

func TestParseHost(t *testing.T) {
	t.Parallel()

	host, ok := parseHost("https://WWW.Justice.gov:443/path?q=1")
	require.True(t, ok)
	assert.Equal(t, "justice.gov", host)

	_, ok = parseHost("mailto:someone@example.com")
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "jose garcia md", normalize("  José  GARCÍA, MD "))
	assert.Equal(t, "", normalize("!!!"))
	assert.True(t, containsPhrase("dr john smith md", "john smith"))
	assert.False(t, containsPhrase("johnsmithson", "john smith"))
	assert.InDelta(t, 1.0, jaccard("a b c", "c b a"), 1e-9)
	assert.InDelta(t, 0.5, jaccard("a b", "a c b d"), 1e-9)
}
