package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-risk/internal/metrics"
	"github.com/sells-group/provider-risk/internal/model"
	"github.com/sells-group/provider-risk/internal/store"
)

type fakeStore struct {
	invs       map[string]*model.Investigation
	filters    []store.InvestigationFilter
	financials []model.FraudFinancialData
	err        error
}

func (f *fakeStore) GetInvestigation(_ context.Context, id string) (*model.Investigation, error) {
	if f.err != nil {
		return nil, f.err
	}
	inv, ok := f.invs[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "investigation %s", id)
	}
	return inv, nil
}

func (f *fakeStore) ListInvestigations(_ context.Context, filter store.InvestigationFilter) ([]model.Investigation, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Investigation
	for _, inv := range f.invs {
		if filter.NPI == "" || inv.NPI == filter.NPI {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (f *fakeStore) SaveFinancial(_ context.Context, rec *model.FraudFinancialData) error {
	if f.err != nil {
		return f.err
	}
	f.financials = append(f.financials, *rec)
	return nil
}

func (f *fakeStore) LatestFinancial(ctx context.Context, npi string) (*model.FraudFinancialData, error) {
	records, err := f.ListFinancial(ctx, npi)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.Wrapf(store.ErrNotFound, "financial %s", npi)
	}
	return &records[len(records)-1], nil
}

func (f *fakeStore) ListFinancial(_ context.Context, npi string) ([]model.FraudFinancialData, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []model.FraudFinancialData{}
	for _, rec := range f.financials {
		if rec.NPI == npi {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) AnnualFinancialTotal(_ context.Context, year int) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	total := decimal.Zero
	for i := range f.financials {
		if f.financials[i].InvestigationYear == year {
			total = total.Add(f.financials[i].TotalImpact())
		}
	}
	return total, nil
}

func newTestAPI(runner *fakeRunner, st *fakeStore, origins ...string) http.Handler {
	return newRouter(&apiServer{
		runner:   runner,
		store:    st,
		metrics:  metrics.New().Handler(),
		validate: newRequestValidator(),
	}, origins)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	rr := do(t, newTestAPI(&fakeRunner{}, &fakeStore{}), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", decodeBody(t, rr)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	rr := do(t, newTestAPI(&fakeRunner{}, &fakeStore{}), http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestCreateInvestigation(t *testing.T) {
	runner := &fakeRunner{}
	h := newTestAPI(runner, &fakeStore{})

	rr := do(t, h, http.MethodPost, "/v1/investigations", `{"npi":"1234567893","report":true}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "/v1/investigations/inv-1234567893", rr.Header().Get("Location"))

	var inv model.Investigation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &inv))
	assert.Equal(t, "1234567893", inv.NPI)
	assert.Equal(t, 72, inv.Assessment.RiskScore)

	require.Len(t, runner.opts, 1)
	assert.True(t, runner.opts[0].Save)
	assert.True(t, runner.opts[0].Report)
}

func TestCreateInvestigation_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{npi`, "invalid request body"},
		{"missing npi", `{}`, `NPI failed "required" validation`},
		{"bad check digit", `{"npi":"1234567890"}`, `NPI failed "npi" validation`},
		{"wrong length", `{"npi":"12345"}`, `NPI failed "npi" validation`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			rr := do(t, newTestAPI(runner, &fakeStore{}), http.MethodPost, "/v1/investigations", tt.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.want, decodeBody(t, rr)["error"])
			assert.Empty(t, runner.calls, "invalid requests never reach the investigator")
		})
	}
}

func TestCreateInvestigation_RunnerError(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{
		"1234567893": eris.New("investigate: save: connection refused"),
	}}
	rr := do(t, newTestAPI(runner, &fakeStore{}), http.MethodPost, "/v1/investigations", `{"npi":"1234567893"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "investigation failed", decodeBody(t, rr)["error"])
}

func TestGetInvestigation(t *testing.T) {
	st := &fakeStore{invs: map[string]*model.Investigation{
		"inv-1234567893": sampleInvestigation("1234567893"),
	}}
	h := newTestAPI(&fakeRunner{}, st)

	rr := do(t, h, http.MethodGet, "/v1/investigations/inv-1234567893", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "inv-1234567893", decodeBody(t, rr)["id"])

	rr = do(t, h, http.MethodGet, "/v1/investigations/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	st.err = eris.New("database is closed")
	rr = do(t, h, http.MethodGet, "/v1/investigations/inv-1234567893", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestListInvestigations(t *testing.T) {
	st := &fakeStore{invs: map[string]*model.Investigation{
		"inv-1234567893": sampleInvestigation("1234567893"),
		"inv-1245319599": sampleInvestigation("1245319599"),
	}}
	h := newTestAPI(&fakeRunner{}, st)

	rr := do(t, h, http.MethodGet, "/v1/investigations?npi=1234567893&priority=high&limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.InDelta(t, 1, body["count"], 0)

	require.Len(t, st.filters, 1)
	assert.Equal(t, store.InvestigationFilter{NPI: "1234567893", Priority: model.PriorityHigh, Limit: 5}, st.filters[0])

	rr = do(t, h, http.MethodGet, "/v1/investigations?npi=1003000126", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{}, decodeBody(t, rr)["investigations"])
}

func TestListInvestigations_BadQuery(t *testing.T) {
	st := &fakeStore{}
	h := newTestAPI(&fakeRunner{}, st)

	for _, q := range []string{"priority=urgent", "limit=abc", "limit=-1", "limit=1000", "npi=1234567890"} {
		rr := do(t, h, http.MethodGet, "/v1/investigations?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
	assert.Empty(t, st.filters)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestAPI(&fakeRunner{}, &fakeStore{}, "https://dash.example.com")

	req := httptest.NewRequest(http.MethodOptions, "/v1/investigations", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://dash.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestFinancialEndpoints(t *testing.T) {
	st := &fakeStore{}
	h := newTestAPI(&fakeRunner{}, st)

	rr := do(t, h, http.MethodGet, "/v1/providers/1234567893/financial", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPut, "/v1/providers/1234567893/financial",
		`{"estimated_fraud_amount":"1250000.50","settlement_amount":"400000","investigation_year":2023,"source":"DOJ press release"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "1650000.50", decodeBody(t, rr)["total_impact"])
	require.Len(t, st.financials, 1)
	assert.Equal(t, "1234567893", st.financials[0].NPI)

	rr = do(t, h, http.MethodPut, "/v1/providers/1234567893/financial",
		`{"restitution_amount":"50000","investigation_year":2024}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/v1/providers/1234567893/financial", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "50000", body["restitution_amount"])
	assert.InDelta(t, 2024, body["investigation_year"], 0)

	rr = do(t, h, http.MethodGet, "/v1/providers/1234567893/financial?all=true", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.InDelta(t, 2, decodeBody(t, rr)["count"], 0)

	rr = do(t, h, http.MethodGet, "/v1/financial/annual/2023", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1650000.50", decodeBody(t, rr)["total_impact"])
}

func TestFinancialEndpoints_BadRequests(t *testing.T) {
	st := &fakeStore{}
	h := newTestAPI(&fakeRunner{}, st)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"invalid npi get", http.MethodGet, "/v1/providers/1234567890/financial", ""},
		{"invalid npi put", http.MethodPut, "/v1/providers/1234567890/financial", `{"settlement_amount":"1","investigation_year":2023}`},
		{"malformed body", http.MethodPut, "/v1/providers/1234567893/financial", `{`},
		{"no positive amount", http.MethodPut, "/v1/providers/1234567893/financial", `{"settlement_amount":"0","investigation_year":2023}`},
		{"negative amount", http.MethodPut, "/v1/providers/1234567893/financial", `{"settlement_amount":"-10","investigation_year":2023}`},
		{"missing year", http.MethodPut, "/v1/providers/1234567893/financial", `{"settlement_amount":"10"}`},
		{"bad year", http.MethodGet, "/v1/financial/annual/last", ""},
	}
	for _, tt := range tests {
		rr := do(t, h, tt.method, tt.path, tt.body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, tt.name)
	}
	assert.Empty(t, st.financials)
}

func TestFinancialEndpoints_StoreError(t *testing.T) {
	st := &fakeStore{err: eris.New("database is closed")}
	h := newTestAPI(&fakeRunner{}, st)

	rr := do(t, h, http.MethodGet, "/v1/providers/1234567893/financial", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = do(t, h, http.MethodPut, "/v1/providers/1234567893/financial", `{"settlement_amount":"10","investigation_year":2023}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestValidationMessage_PlainError(t *testing.T) {
	assert.Equal(t, "boom", validationMessage(eris.New("boom")))
}
