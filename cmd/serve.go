package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/provider-risk/internal/investigate"
	"github.com/sells-group/provider-risk/internal/model"
	"github.com/sells-group/provider-risk/internal/store"
)

var servePort int

// requestTimeout bounds one synchronous investigation over HTTP.
const requestTimeout = 2 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the investigation API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		api := &apiServer{
			runner:   env.Investigator,
			store:    env.Store,
			metrics:  env.Metrics.Handler(),
			validate: newRequestValidator(),
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(api, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// apiStore is the part of the store used by the API.
type apiStore interface {
	GetInvestigation(ctx context.Context, id string) (*model.Investigation, error)
	ListInvestigations(ctx context.Context, filter store.InvestigationFilter) ([]model.Investigation, error)
	SaveFinancial(ctx context.Context, f *model.FraudFinancialData) error
	LatestFinancial(ctx context.Context, npi string) (*model.FraudFinancialData, error)
	ListFinancial(ctx context.Context, npi string) ([]model.FraudFinancialData, error)
	AnnualFinancialTotal(ctx context.Context, year int) (decimal.Decimal, error)
}

type apiServer struct {
	runner   investigationRunner
	store    apiStore
	metrics  http.Handler
	validate *validator.Validate
}

type createInvestigationRequest struct {
	NPI    string `json:"npi" validate:"required,npi"`
	Report bool   `json:"report"`
}

type listInvestigationsQuery struct {
	NPI      string `validate:"omitempty,npi"`
	Priority string `validate:"omitempty,oneof=low medium high"`
	Limit    int    `validate:"gte=0,lte=500"`
}

func newRequestValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("npi", func(fl validator.FieldLevel) bool {
		return model.ValidNPI(fl.Field().String())
	})
	return v
}

func newRouter(api *apiServer, origins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if api.metrics != nil {
		r.Method(http.MethodGet, "/metrics", api.metrics)
	}

	r.Route("/v1/investigations", func(r chi.Router) {
		r.With(middleware.Timeout(requestTimeout)).Post("/", api.createInvestigation)
		r.Get("/", api.listInvestigations)
		r.Get("/{id}", api.getInvestigation)
	})
	r.Route("/v1/providers/{npi}/financial", func(r chi.Router) {
		r.Get("/", api.getFinancial)
		r.Put("/", api.putFinancial)
	})
	r.Get("/v1/financial/annual/{year}", api.annualFinancial)
	return r
}

func (a *apiServer) createInvestigation(w http.ResponseWriter, r *http.Request) {
	var req createInvestigationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	inv, err := a.runner.Run(r.Context(), req.NPI, investigate.RunOptions{Report: req.Report, Save: true})
	if err != nil {
		switch {
		case model.IsStructural(err):
			writeError(w, http.StatusBadRequest, err.Error())
		case r.Context().Err() != nil:
			writeError(w, http.StatusServiceUnavailable, "investigation timed out")
		default:
			zap.L().Error("api: investigation failed", zap.String("npi", req.NPI), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "investigation failed")
		}
		return
	}

	w.Header().Set("Location", "/v1/investigations/"+inv.ID)
	writeJSON(w, http.StatusCreated, inv)
}

func (a *apiServer) getInvestigation(w http.ResponseWriter, r *http.Request) {
	inv, err := a.store.GetInvestigation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "investigation not found")
			return
		}
		zap.L().Error("api: get investigation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (a *apiServer) listInvestigations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := listInvestigationsQuery{
		NPI:      q.Get("npi"),
		Priority: q.Get("priority"),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		params.Limit = n
	}
	if err := a.validate.Struct(params); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	invs, err := a.store.ListInvestigations(r.Context(), store.InvestigationFilter{
		NPI:      params.NPI,
		Priority: model.Priority(params.Priority),
		Limit:    params.Limit,
	})
	if err != nil {
		zap.L().Error("api: list investigations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if invs == nil {
		invs = []model.Investigation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"investigations": invs, "count": len(invs)})
}

// providerNPI returns the {npi} path parameter, writing a 400 when it is invalid.
func providerNPI(w http.ResponseWriter, r *http.Request) (string, bool) {
	npi := chi.URLParam(r, "npi")
	if !model.ValidNPI(npi) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid NPI %q", npi))
		return "", false
	}
	return npi, true
}

func (a *apiServer) getFinancial(w http.ResponseWriter, r *http.Request) {
	npi, ok := providerNPI(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("all") == "true" {
		records, err := a.store.ListFinancial(r.Context(), npi)
		if err != nil {
			zap.L().Error("api: list financial", zap.String("npi", npi), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
		return
	}

	f, err := a.store.LatestFinancial(r.Context(), npi)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no financial data for provider")
			return
		}
		zap.L().Error("api: get financial", zap.String("npi", npi), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (a *apiServer) putFinancial(w http.ResponseWriter, r *http.Request) {
	npi, ok := providerNPI(w, r)
	if !ok {
		return
	}

	var f model.FraudFinancialData
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	f.NPI = npi
	f.RecordedAt = time.Time{}
	if err := f.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.store.SaveFinancial(r.Context(), &f); err != nil {
		zap.L().Error("api: save financial", zap.String("npi", npi), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "save failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"record":       f,
		"total_impact": f.TotalImpact().StringFixed(2),
	})
}

func (a *apiServer) annualFinancial(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year must be an integer")
		return
	}
	total, err := a.store.AnnualFinancialTotal(r.Context(), year)
	if err != nil {
		zap.L().Error("api: annual financial", zap.Int("year", year), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "total_impact": total.StringFixed(2)})
}

func validationMessage(err error) string {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		return fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs each request through zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
