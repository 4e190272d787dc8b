// Package nppes is a client for the CMS NPI Registry (NPPES) API v2.1.
package nppes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/provider-risk/internal/model"
	"github.com/sells-group/provider-risk/internal/resilience"
)

const defaultBaseURL = "https://npiregistry.cms.hhs.gov/api/"

// ErrNotFound is returned when the registry has no record for the NPI.
var ErrNotFound = eris.New("nppes: provider not found")

// Client looks up providers in the NPI Registry.
type Client interface {
	Lookup(ctx context.Context, npi string) (*Provider, error)
}

// Provider is the subset of a registry record the engine uses.
type Provider struct {
	NPI              string
	EnumerationType  string
	Name             string
	Credential       string
	Specialty        string
	TaxonomyCode     string
	PracticeLocation model.Location
}

// Identity converts the record to the identity payload fused into a profile.
func (p *Provider) Identity() model.IdentityPayload {
	return model.IdentityPayload{
		Name:             p.Name,
		Specialty:        p.Specialty,
		PracticeLocation: p.PracticeLocation,
	}
}

type apiResponse struct {
	ResultCount int         `json:"result_count"`
	Results     []apiResult `json:"results"`
	Errors      []struct {
		Description string `json:"description"`
		Field       string `json:"field"`
	} `json:"Errors"`
}

type apiResult struct {
	Number          json.Number `json:"number"`
	EnumerationType string      `json:"enumeration_type"`
	Basic           struct {
		FirstName        string `json:"first_name"`
		MiddleName       string `json:"middle_name"`
		LastName         string `json:"last_name"`
		Credential       string `json:"credential"`
		OrganizationName string `json:"organization_name"`
	} `json:"basic"`
	Addresses []struct {
		Purpose    string `json:"address_purpose"`
		Address1   string `json:"address_1"`
		City       string `json:"city"`
		State      string `json:"state"`
		PostalCode string `json:"postal_code"`
	} `json:"addresses"`
	Taxonomies []struct {
		Code    string `json:"code"`
		Desc    string `json:"desc"`
		Primary bool   `json:"primary"`
	} `json:"taxonomies"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the registry endpoint (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a registry client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Lookup(ctx context.Context, npi string) (*Provider, error) {
	q := url.Values{}
	q.Set("version", "2.1")
	q.Set("number", npi)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "nppes: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "nppes: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "nppes: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("nppes", resp.StatusCode)
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "nppes: unmarshal response")
	}
	if len(out.Errors) > 0 {
		return nil, eris.Errorf("nppes: %s", out.Errors[0].Description)
	}
	if out.ResultCount == 0 || len(out.Results) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "npi %s", npi)
	}
	return toProvider(out.Results[0], npi), nil
}

// title title-cases s. Casers are stateful, so each call gets its own.
func title(s string) string {
	return cases.Title(language.English).String(strings.ToLower(s))
}

func toProvider(r apiResult, npi string) *Provider {
	p := &Provider{
		NPI:             r.Number.String(),
		EnumerationType: r.EnumerationType,
		Credential:      r.Basic.Credential,
	}
	if p.NPI == "" {
		p.NPI = npi
	}

	if r.Basic.OrganizationName != "" {
		p.Name = r.Basic.OrganizationName
	} else {
		parts := make([]string, 0, 3)
		for _, s := range []string{r.Basic.FirstName, r.Basic.MiddleName, r.Basic.LastName} {
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		p.Name = title(strings.Join(parts, " "))
	}

	for _, a := range r.Addresses {
		if a.Purpose != "LOCATION" {
			continue
		}
		zip := a.PostalCode
		if len(zip) > 5 {
			zip = zip[:5]
		}
		p.PracticeLocation = model.Location{
			Address:    title(a.Address1),
			City:       title(a.City),
			State:      strings.ToUpper(a.State),
			PostalCode: zip,
		}
		break
	}

	for i, t := range r.Taxonomies {
		if t.Primary || i == 0 {
			p.Specialty = t.Desc
			p.TaxonomyCode = t.Code
		}
		if t.Primary {
			break
		}
	}
	return p
}
