// Package leie loads the OIG List of Excluded Individuals/Entities and answers
// exclusion lookups by NPI.
package leie

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-risk/internal/fetcher"
	"github.com/sells-group/provider-risk/internal/model"
)

// DefaultURL is the OIG download for the full current list.
const DefaultURL = "https://oig.hhs.gov/exclusions/downloadables/UPDATED.csv"

const leieDateLayout = "20060102"

// Record is one LEIE row.
type Record struct {
	NPI           string
	LastName      string
	FirstName     string
	BusinessName  string
	ExclusionType string
	ExclusionDate time.Time
	Reinstatement time.Time
}

// Active reports whether the exclusion is in force at t. A reinstatement on
// or before t lifts it.
func (r Record) Active(t time.Time) bool {
	if !r.ExclusionDate.IsZero() && r.ExclusionDate.After(t) {
		return false
	}
	return r.Reinstatement.IsZero() || r.Reinstatement.After(t)
}

// Index is an in-memory NPI index over the list.
type Index struct {
	byNPI map[string][]Record
	rows  int
}

// Len returns the number of indexed records.
func (i *Index) Len() int { return i.rows }

// Records returns every record for npi, most recent exclusion first.
func (i *Index) Records(npi string) []Record {
	return i.byNPI[npi]
}

// Lookup returns the exclusion status of npi at t. A provider with no active
// record gets Excluded=false.
func (i *Index) Lookup(npi string, t time.Time) model.ExclusionPayload {
	for _, r := range i.byNPI[npi] {
		if !r.Active(t) {
			continue
		}
		code := r.ExclusionType
		return model.ExclusionPayload{
			Excluded:      true,
			ExclusionType: &code,
			ExclusionDate: formatDate(r.ExclusionDate),
		}
	}
	return model.ExclusionPayload{Excluded: false}
}

// Parse streams the LEIE CSV from r into an Index. Rows without an NPI are
// skipped; the list carries many entities that never had one.
func Parse(ctx context.Context, r io.Reader) (*Index, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	idx := &Index{byNPI: make(map[string][]Record)}
	var cols map[string]int
	for row := range rowCh {
		if cols == nil {
			cols = fetcher.HeaderIndex(<-headerCh)
			if _, ok := cols["NPI"]; !ok {
				for range rowCh {
				}
				<-errCh
				return nil, eris.New("leie: missing NPI column")
			}
		}
		rec, ok := parseRecord(row, cols)
		if !ok {
			continue
		}
		idx.byNPI[rec.NPI] = append(idx.byNPI[rec.NPI], rec)
		idx.rows++
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "leie: parse list")
	}

	for npi := range idx.byNPI {
		recs := idx.byNPI[npi]
		sort.SliceStable(recs, func(a, b int) bool {
			return recs[a].ExclusionDate.After(recs[b].ExclusionDate)
		})
	}
	return idx, nil
}

func parseRecord(row []string, cols map[string]int) (Record, bool) {
	npi := fetcher.Field(row, cols, "NPI")
	if !model.ValidNPI(npi) {
		return Record{}, false
	}
	return Record{
		NPI:           npi,
		LastName:      fetcher.Field(row, cols, "LASTNAME"),
		FirstName:     fetcher.Field(row, cols, "FIRSTNAME"),
		BusinessName:  fetcher.Field(row, cols, "BUSNAME"),
		ExclusionType: strings.TrimSpace(fetcher.Field(row, cols, "EXCLTYPE")),
		ExclusionDate: parseDate(fetcher.Field(row, cols, "EXCLDATE")),
		Reinstatement: parseDate(fetcher.Field(row, cols, "REINDATE")),
	}, true
}

// parseDate reads YYYYMMDD. The list writes "00000000" for no date.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" || strings.Trim(s, "0") == "" {
		return time.Time{}
	}
	t, err := time.Parse(leieDateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// TypeDescription describes an exclusion authority code, or returns "" for
// codes outside the known table.
func TypeDescription(code string) string {
	et, ok := model.LookupExclusionType(code)
	if !ok {
		return ""
	}
	return et.Description
}

// Client answers exclusion lookups.
type Client interface {
	Lookup(ctx context.Context, npi string) (*model.ExclusionPayload, error)
}

// Option configures a Loader.
type Option func(*Loader)

// WithPath reads the list from a local file instead of downloading it.
func WithPath(path string) Option {
	return func(l *Loader) { l.path = path }
}

// WithURL sets the download URL.
func WithURL(u string) Option {
	return func(l *Loader) { l.url = u }
}

// WithFetcher sets the downloader.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(l *Loader) { l.fetcher = f }
}

// WithClock sets the clock used to decide whether a record is active.
func WithClock(now func() time.Time) Option {
	return func(l *Loader) { l.now = now }
}

// Loader lazily loads the list once and serves lookups from memory.
// Refresh re-downloads only when the published ETag changes.
type Loader struct {
	fetcher fetcher.Fetcher
	url     string
	path    string
	now     func() time.Time

	mu   sync.RWMutex
	idx  *Index
	etag string
}

var _ Client = (*Loader)(nil)

// NewLoader creates a Loader. With neither a path nor a fetcher it downloads
// DefaultURL with a default HTTP fetcher.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{url: DefaultURL, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if l.path == "" && l.fetcher == nil {
		l.fetcher = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	}
	return l
}

// Lookup implements Client.
func (l *Loader) Lookup(ctx context.Context, npi string) (*model.ExclusionPayload, error) {
	idx, err := l.index(ctx)
	if err != nil {
		return nil, err
	}
	p := idx.Lookup(npi, l.now())
	return &p, nil
}

func (l *Loader) index(ctx context.Context) (*Index, error) {
	l.mu.RLock()
	idx := l.idx
	l.mu.RUnlock()
	if idx != nil {
		return idx, nil
	}
	if err := l.Refresh(ctx); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.idx, nil
}

// Refresh reloads the list. A download that reports no change keeps the
// current index.
func (l *Loader) Refresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.path != "" {
		idx, err := parseFile(ctx, l.path)
		if err != nil {
			return err
		}
		l.idx = idx
		return nil
	}

	etag := l.etag
	if l.idx == nil {
		etag = ""
	}
	body, newETag, changed, err := l.fetcher.DownloadIfChanged(ctx, l.url, etag)
	if err != nil {
		return eris.Wrap(err, "leie: download list")
	}
	if !changed {
		zap.L().Debug("leie: list unchanged", zap.String("etag", etag))
		return nil
	}
	defer body.Close() //nolint:errcheck

	idx, err := Parse(ctx, body)
	if err != nil {
		return err
	}
	l.idx = idx
	l.etag = newETag
	zap.L().Info("leie: list loaded",
		zap.Int("records", idx.Len()),
		zap.String("etag", newETag),
	)
	return nil
}

func parseFile(ctx context.Context, path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "leie: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Parse(ctx, f)
}
