package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/provider-risk/internal/db"
	"github.com/sells-group/provider-risk/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	now  func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresWithPool(pool), nil
}

func newPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS investigations (
	id         TEXT PRIMARY KEY,
	npi        TEXT NOT NULL,
	risk_score INTEGER NOT NULL,
	priority   TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS source_cache (
	source     TEXT NOT NULL,
	npi        TEXT NOT NULL,
	payload    JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source, npi)
);

CREATE TABLE IF NOT EXISTS fraud_financial (
	id                 BIGSERIAL PRIMARY KEY,
	npi                TEXT NOT NULL,
	investigation_year INTEGER NOT NULL,
	data               JSONB NOT NULL,
	recorded_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_investigations_npi ON investigations(npi);
CREATE INDEX IF NOT EXISTS idx_investigations_priority ON investigations(priority);
CREATE INDEX IF NOT EXISTS idx_investigations_created_at ON investigations(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_source_cache_expires_at ON source_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_fraud_financial_npi ON fraud_financial(npi, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_fraud_financial_year ON fraud_financial(investigation_year);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveInvestigation(ctx context.Context, inv *model.Investigation) error {
	if inv == nil || inv.Assessment == nil {
		return eris.New("postgres: investigation has no assessment")
	}
	data, err := json.Marshal(inv)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal investigation")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO investigations (id, npi, risk_score, priority, data, created_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET risk_score = $3, priority = $4, data = $5`,
		inv.ID, inv.NPI, inv.Assessment.RiskScore, string(inv.Assessment.Priority), data, inv.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save investigation %s", inv.ID)
}

func (s *PostgresStore) GetInvestigation(ctx context.Context, id string) (*model.Investigation, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM investigations WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "investigation %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get investigation %s", id)
	}
	return decodeInvestigation(data)
}

func (s *PostgresStore) ListInvestigations(ctx context.Context, filter InvestigationFilter) ([]model.Investigation, error) {
	query := `SELECT data FROM investigations WHERE true`
	args := []any{}
	argIdx := 1

	if filter.NPI != "" {
		query += fmt.Sprintf(` AND npi = $%d`, argIdx)
		args = append(args, filter.NPI)
		argIdx++
	}
	if filter.Priority != "" {
		query += fmt.Sprintf(` AND priority = $%d`, argIdx)
		args = append(args, string(filter.Priority))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list investigations")
	}
	defer rows.Close()

	out := []model.Investigation{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan investigation")
		}
		inv, err := decodeInvestigation(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list investigations iterate")
}

func (s *PostgresStore) SaveFinancial(ctx context.Context, f *model.FraudFinancialData) error {
	if f == nil {
		return eris.New("postgres: nil financial record")
	}
	if f.RecordedAt.IsZero() {
		f.RecordedAt = s.now().UTC()
	}
	data, err := json.Marshal(f)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal financial")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO fraud_financial (npi, investigation_year, data, recorded_at) VALUES ($1, $2, $3, $4)`,
		f.NPI, f.InvestigationYear, data, f.RecordedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save financial %s", f.NPI)
}

func (s *PostgresStore) LatestFinancial(ctx context.Context, npi string) (*model.FraudFinancialData, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM fraud_financial WHERE npi = $1 ORDER BY recorded_at DESC, id DESC LIMIT 1`, npi,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "financial %s", npi)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest financial %s", npi)
	}
	return decodeFinancial(data)
}

func (s *PostgresStore) ListFinancial(ctx context.Context, npi string) ([]model.FraudFinancialData, error) {
	return s.queryFinancial(ctx,
		`SELECT data FROM fraud_financial WHERE npi = $1 ORDER BY recorded_at, id`, npi)
}

func (s *PostgresStore) AnnualFinancialTotal(ctx context.Context, year int) (decimal.Decimal, error) {
	records, err := s.queryFinancial(ctx,
		`SELECT data FROM fraud_financial WHERE investigation_year = $1`, year)
	if err != nil {
		return decimal.Zero, err
	}
	return sumFinancial(records), nil
}

func (s *PostgresStore) FinancialNPIs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT npi FROM fraud_financial ORDER BY npi`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: financial npis")
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var npi string
		if err := rows.Scan(&npi); err != nil {
			return nil, eris.Wrap(err, "postgres: scan npi")
		}
		out = append(out, npi)
	}
	return out, eris.Wrap(rows.Err(), "postgres: financial npis iterate")
}

func (s *PostgresStore) queryFinancial(ctx context.Context, query string, args ...any) ([]model.FraudFinancialData, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list financial")
	}
	defer rows.Close()

	out := []model.FraudFinancialData{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan financial")
		}
		f, err := decodeFinancial(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list financial iterate")
}

func (s *PostgresStore) GetCachedSource(ctx context.Context, source model.Source, npi string) ([]byte, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM source_cache WHERE source = $1 AND npi = $2 AND expires_at > $3`,
		string(source), npi, s.now().UTC(),
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get cached %s", source)
	}
	return payload, nil
}

func (s *PostgresStore) SetCachedSource(ctx context.Context, source model.Source, npi string, data []byte, ttl time.Duration) error {
	now := s.now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_cache (source, npi, payload, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (source, npi) DO UPDATE SET payload = $3, cached_at = $4, expires_at = $5`,
		string(source), npi, data, now, now.Add(ttl),
	)
	return eris.Wrapf(err, "postgres: set cached %s", source)
}

func (s *PostgresStore) PurgeExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM source_cache WHERE expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge expired")
	}
	return int(tag.RowsAffected()), nil
}
