// Package cms queries the data.cms.gov Medicare provider utilization dataset.
package cms

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/provider-risk/internal/fetcher"
	"github.com/sells-group/provider-risk/internal/model"
	"github.com/sells-group/provider-risk/internal/resilience"
)

const (
	defaultBaseURL   = "https://data.cms.gov/data-api/v1/dataset"
	defaultDatasetID = "8889d81e-2ee7-448f-8713-f071038289b5"
)

// Client fetches aggregate utilization for a rendering provider.
type Client interface {
	Utilization(ctx context.Context, npi string) (*model.UtilizationPayload, error)
}

// amount is a dataset figure. The API serves numbers as strings and leaves
// suppressed cells empty.
type amount struct {
	decimal.Decimal
}

func (a *amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	s = strings.NewReplacer(",", "", "$", "").Replace(strings.TrimSpace(s))
	if s == "" || s == "null" {
		a.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return eris.Wrapf(err, "cms: parse amount %q", s)
	}
	a.Decimal = d
	return nil
}

type row struct {
	NPI          string `json:"Rndrng_NPI"`
	ProviderType string `json:"Rndrng_Prvdr_Type"`
	Services     amount `json:"Tot_Srvcs"`
	Benes        amount `json:"Tot_Benes"`
	Charges      amount `json:"Tot_Sbmtd_Chrg"`
	Payments     amount `json:"Tot_Mdcr_Pymt_Amt"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the data API endpoint (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithDatasetID selects the dataset release to query.
func WithDatasetID(id string) Option {
	return func(c *httpClient) { c.datasetID = id }
}

// WithDataYear stamps payloads with the dataset's service year.
func WithDataYear(year int) Option {
	return func(c *httpClient) { c.dataYear = year }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	baseURL   string
	datasetID string
	dataYear  int
	http      *http.Client
}

// NewClient creates a CMS data API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		datasetID: defaultDatasetID,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Utilization(ctx context.Context, npi string) (*model.UtilizationPayload, error) {
	q := url.Values{}
	q.Set("filter[Rndrng_NPI]", npi)
	endpoint := c.baseURL + "/" + c.datasetID + "/data?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "cms: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "cms: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resilience.StatusError("cms", resp.StatusCode)
	}

	rows, err := fetcher.CollectJSONArray[row](ctx, resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "cms: decode response")
	}
	return aggregate(rows, c.dataYear), nil
}

// aggregate sums every row for the provider. No rows means the provider
// billed nothing in the release.
func aggregate(rows []row, year int) *model.UtilizationPayload {
	var services, benes, charges, payments decimal.Decimal
	out := &model.UtilizationPayload{DataYear: year}
	for _, r := range rows {
		services = services.Add(r.Services.Decimal)
		benes = benes.Add(r.Benes.Decimal)
		charges = charges.Add(r.Charges.Decimal)
		payments = payments.Add(r.Payments.Decimal)
		if out.ProviderType == "" {
			out.ProviderType = strings.TrimSpace(r.ProviderType)
		}
	}
	out.TotalServices = services.InexactFloat64()
	out.UniqueBeneficiaries = benes.InexactFloat64()
	out.TotalCharges = charges.Round(2).InexactFloat64()
	out.TotalPayments = payments.Round(2).InexactFloat64()
	return out
}
