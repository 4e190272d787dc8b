// Package store persists investigations and caches upstream source payloads.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/provider-risk/internal/config"
	"github.com/sells-group/provider-risk/internal/model"
)

// ErrNotFound is returned when an investigation or financial record does not exist.
var ErrNotFound = eris.New("store: not found")

// defaultListLimit caps ListInvestigations when no limit is given.
const defaultListLimit = 100

// InvestigationFilter specifies criteria for listing investigations.
type InvestigationFilter struct {
	NPI      string         `json:"npi,omitempty"`
	Priority model.Priority `json:"priority,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
}

func (f InvestigationFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for investigations.
type Store interface {
	// Investigations
	SaveInvestigation(ctx context.Context, inv *model.Investigation) error
	GetInvestigation(ctx context.Context, id string) (*model.Investigation, error)
	ListInvestigations(ctx context.Context, filter InvestigationFilter) ([]model.Investigation, error)

	// Financial impact records. Saves append; history is kept per NPI.
	SaveFinancial(ctx context.Context, f *model.FraudFinancialData) error
	LatestFinancial(ctx context.Context, npi string) (*model.FraudFinancialData, error)
	ListFinancial(ctx context.Context, npi string) ([]model.FraudFinancialData, error)
	AnnualFinancialTotal(ctx context.Context, year int) (decimal.Decimal, error)
	FinancialNPIs(ctx context.Context) ([]string, error)

	// Source cache. A miss or an expired entry returns (nil, nil).
	GetCachedSource(ctx context.Context, source model.Source, npi string) ([]byte, error)
	SetCachedSource(ctx context.Context, source model.Source, npi string, data []byte, ttl time.Duration) error
	PurgeExpired(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the configured store and runs its migration.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "sqlite", "":
		st, err = NewSQLite(cfg.SQLitePath)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// sumFinancial adds the total impact of every record.
func sumFinancial(records []model.FraudFinancialData) decimal.Decimal {
	total := decimal.Zero
	for i := range records {
		total = total.Add(records[i].TotalImpact())
	}
	return total
}
