package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/provider-risk/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as Unix nanoseconds so ordering and expiry are plain integer
// comparisons.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS investigations (
	id         TEXT PRIMARY KEY,
	npi        TEXT NOT NULL,
	risk_score INTEGER NOT NULL,
	priority   TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS source_cache (
	source     TEXT NOT NULL,
	npi        TEXT NOT NULL,
	payload    TEXT NOT NULL,
	cached_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (source, npi)
);

CREATE TABLE IF NOT EXISTS fraud_financial (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	npi                TEXT NOT NULL,
	investigation_year INTEGER NOT NULL,
	data               TEXT NOT NULL,
	recorded_at        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_investigations_npi ON investigations(npi);
CREATE INDEX IF NOT EXISTS idx_investigations_priority ON investigations(priority);
CREATE INDEX IF NOT EXISTS idx_investigations_created_at ON investigations(created_at);
CREATE INDEX IF NOT EXISTS idx_source_cache_expires_at ON source_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_fraud_financial_npi ON fraud_financial(npi, recorded_at);
CREATE INDEX IF NOT EXISTS idx_fraud_financial_year ON fraud_financial(investigation_year);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveInvestigation(ctx context.Context, inv *model.Investigation) error {
	if inv == nil || inv.Assessment == nil {
		return eris.New("sqlite: investigation has no assessment")
	}
	data, err := json.Marshal(inv)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal investigation")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO investigations (id, npi, risk_score, priority, data, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET risk_score = excluded.risk_score, priority = excluded.priority, data = excluded.data`,
		inv.ID, inv.NPI, inv.Assessment.RiskScore, string(inv.Assessment.Priority), string(data), inv.CreatedAt.UTC().UnixNano(),
	)
	return eris.Wrapf(err, "sqlite: save investigation %s", inv.ID)
}

func (s *SQLiteStore) GetInvestigation(ctx context.Context, id string) (*model.Investigation, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM investigations WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "investigation %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get investigation %s", id)
	}
	return decodeInvestigation([]byte(data))
}

func (s *SQLiteStore) ListInvestigations(ctx context.Context, filter InvestigationFilter) ([]model.Investigation, error) {
	query := `SELECT data FROM investigations WHERE 1=1`
	var args []any

	if filter.NPI != "" {
		query += ` AND npi = ?`
		args = append(args, filter.NPI)
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(filter.Priority))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list investigations")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Investigation{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan investigation")
		}
		inv, err := decodeInvestigation([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list investigations iterate")
}

func (s *SQLiteStore) SaveFinancial(ctx context.Context, f *model.FraudFinancialData) error {
	if f == nil {
		return eris.New("sqlite: nil financial record")
	}
	if f.RecordedAt.IsZero() {
		f.RecordedAt = s.now().UTC()
	}
	data, err := json.Marshal(f)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal financial")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fraud_financial (npi, investigation_year, data, recorded_at) VALUES (?, ?, ?, ?)`,
		f.NPI, f.InvestigationYear, string(data), f.RecordedAt.UTC().UnixNano(),
	)
	return eris.Wrapf(err, "sqlite: save financial %s", f.NPI)
}

func (s *SQLiteStore) LatestFinancial(ctx context.Context, npi string) (*model.FraudFinancialData, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM fraud_financial WHERE npi = ? ORDER BY recorded_at DESC, id DESC LIMIT 1`, npi,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "financial %s", npi)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest financial %s", npi)
	}
	return decodeFinancial([]byte(data))
}

func (s *SQLiteStore) ListFinancial(ctx context.Context, npi string) ([]model.FraudFinancialData, error) {
	return s.queryFinancial(ctx,
		`SELECT data FROM fraud_financial WHERE npi = ? ORDER BY recorded_at, id`, npi)
}

func (s *SQLiteStore) AnnualFinancialTotal(ctx context.Context, year int) (decimal.Decimal, error) {
	records, err := s.queryFinancial(ctx,
		`SELECT data FROM fraud_financial WHERE investigation_year = ?`, year)
	if err != nil {
		return decimal.Zero, err
	}
	return sumFinancial(records), nil
}

func (s *SQLiteStore) FinancialNPIs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT npi FROM fraud_financial ORDER BY npi`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: financial npis")
	}
	defer rows.Close() //nolint:errcheck

	out := []string{}
	for rows.Next() {
		var npi string
		if err := rows.Scan(&npi); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan npi")
		}
		out = append(out, npi)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: financial npis iterate")
}

func (s *SQLiteStore) queryFinancial(ctx context.Context, query string, args ...any) ([]model.FraudFinancialData, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list financial")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.FraudFinancialData{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan financial")
		}
		f, err := decodeFinancial([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list financial iterate")
}

func (s *SQLiteStore) GetCachedSource(ctx context.Context, source model.Source, npi string) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM source_cache WHERE source = ? AND npi = ? AND expires_at > ?`,
		string(source), npi, s.now().UnixNano(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cached %s", source)
	}
	return []byte(payload), nil
}

func (s *SQLiteStore) SetCachedSource(ctx context.Context, source model.Source, npi string, data []byte, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_cache (source, npi, payload, cached_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (source, npi) DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		string(source), npi, string(data), now.UnixNano(), now.Add(ttl).UnixNano(),
	)
	return eris.Wrapf(err, "sqlite: set cached %s", source)
}

func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM source_cache WHERE expires_at <= ?`, s.now().UnixNano(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func decodeInvestigation(data []byte) (*model.Investigation, error) {
	var inv model.Investigation
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal investigation")
	}
	return &inv, nil
}

func decodeFinancial(data []byte) (*model.FraudFinancialData, error) {
	var f model.FraudFinancialData
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal financial")
	}
	return &f, nil
}
