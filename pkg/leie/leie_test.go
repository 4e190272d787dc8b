package leie

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleList = `LASTNAME,FIRSTNAME,MIDNAME,BUSNAME,GENERAL,SPECIALTY,UPIN,NPI,DOB,ADDRESS,CITY,STATE,ZIP,EXCLTYPE,EXCLDATE,REINDATE,WAIVERDATE,WVRSTATE
SMITH,JOHN,,,PHYSICIAN,CARDIOLOGY,,1234567893,19600101,1 MAIN ST,AUSTIN,TX,78701,1128a3,20200115,00000000,00000000,
DOE,JANE,,,NURSE,,,1245319599,19700101,2 OAK ST,DALLAS,TX,75201,1128b4,20150301,20180301,00000000,
DOE,JANE,,,NURSE,,,1245319599,19700101,2 OAK ST,DALLAS,TX,75201,1128a1,20190601,00000000,00000000,
,,,ACME DME LLC,DME,,,0000000000,,3 ELM ST,MIAMI,FL,33101,1128b7,20210101,00000000,00000000,
ROE,RICHARD,,,PHYSICIAN,,,1003000126,19550101,4 PINE ST,TAMPA,FL,33601,1128b1,20100101,20120101,00000000,
`

var asOf = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	t.Parallel()

	idx, err := Parse(context.Background(), strings.NewReader(sampleList))
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Len(), "row without an NPI is skipped")

	recs := idx.Records("1245319599")
	require.Len(t, recs, 2)
	assert.Equal(t, "1128a1", recs[0].ExclusionType, "most recent first")
	assert.Equal(t, time.Date(2018, 3, 1, 0, 0, 0, 0, time.UTC), recs[1].Reinstatement)
}

func TestIndex_Lookup(t *testing.T) {
	t.Parallel()

	idx, err := Parse(context.Background(), strings.NewReader(sampleList))
	require.NoError(t, err)

	tests := []struct {
		name     string
		npi      string
		excluded bool
		code     string
		date     string
	}{
		{"active felony", "1234567893", true, "1128a3", "2020-01-15"},
		{"reinstated then excluded again", "1245319599", true, "1128a1", "2019-06-01"},
		{"reinstated", "1003000126", false, "", ""},
		{"not listed", "1538144910", false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := idx.Lookup(tt.npi, asOf)
			assert.Equal(t, tt.excluded, p.Excluded)
			if !tt.excluded {
				assert.Nil(t, p.ExclusionType)
				return
			}
			require.NotNil(t, p.ExclusionType)
			assert.Equal(t, tt.code, *p.ExclusionType)
			assert.Equal(t, tt.date, p.ExclusionDate)
		})
	}
}

func TestRecord_Active(t *testing.T) {
	t.Parallel()

	excl := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, Record{ExclusionDate: excl}.Active(asOf))
	assert.False(t, Record{ExclusionDate: excl, Reinstatement: asOf}.Active(asOf), "reinstated today")
	assert.True(t, Record{ExclusionDate: excl, Reinstatement: asOf.AddDate(0, 1, 0)}.Active(asOf), "future reinstatement")
	assert.False(t, Record{ExclusionDate: asOf.AddDate(0, 0, 1)}.Active(asOf), "not yet effective")
}

func TestParse_MissingNPIColumn(t *testing.T) {
	t.Parallel()

	_, err := Parse(context.Background(), strings.NewReader("LASTNAME,EXCLTYPE\nSMITH,1128a1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing NPI column")
}

func TestTypeDescription(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Felony conviction relating to health care fraud", TypeDescription("1128a3"))
	assert.Equal(t, "Felony conviction relating to health care fraud", TypeDescription("1128(a)(3)"))
	assert.Empty(t, TypeDescription("9999"))
}

type stubFetcher struct {
	body    string
	etag    string
	calls   int
	lastTag string
}

func (s *stubFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	body, _, _, err := s.DownloadIfChanged(ctx, url, "")
	return body, err
}

func (s *stubFetcher) DownloadIfChanged(_ context.Context, _ string, etag string) (io.ReadCloser, string, bool, error) {
	s.calls++
	s.lastTag = etag
	if etag != "" && etag == s.etag {
		return nil, etag, false, nil
	}
	return io.NopCloser(strings.NewReader(s.body)), s.etag, true, nil
}

func TestLoader_DownloadsOnceAndHonoursETag(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{body: sampleList, etag: `"v1"`}
	l := NewLoader(WithFetcher(f), WithURL("https://example.test/UPDATED.csv"), WithClock(func() time.Time { return asOf }))

	p, err := l.Lookup(context.Background(), "1234567893")
	require.NoError(t, err)
	assert.True(t, p.Excluded)

	p, err = l.Lookup(context.Background(), "1538144910")
	require.NoError(t, err)
	assert.False(t, p.Excluded)
	assert.Equal(t, 1, f.calls, "index is cached after the first load")

	require.NoError(t, l.Refresh(context.Background()))
	assert.Equal(t, 2, f.calls)
	assert.Equal(t, `"v1"`, f.lastTag)

	p, err = l.Lookup(context.Background(), "1234567893")
	require.NoError(t, err)
	assert.True(t, p.Excluded, "unchanged download keeps the index")
}

func TestLoader_LocalFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "leie.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleList), 0o600))

	l := NewLoader(WithPath(path), WithClock(func() time.Time { return asOf }))
	p, err := l.Lookup(context.Background(), "1003000126")
	require.NoError(t, err)
	assert.False(t, p.Excluded)

	_, err = NewLoader(WithPath(filepath.Join(t.TempDir(), "missing.csv"))).Lookup(context.Background(), "1003000126")
	require.Error(t, err)
}
