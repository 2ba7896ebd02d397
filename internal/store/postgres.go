package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ncov-ph/ncov-cli/internal/db"
	"github.com/ncov-ph/ncov-cli/internal/model"
)

// Schema holds every collection table and the run log.
const Schema = "ncov"

// PostgresStore implements Store using pgxpool. Each collection is a table
// of JSONB documents in the ncov schema.
type PostgresStore struct {
	pool        db.Pool
	closeFn     func()
	collections collectionSet
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, collections []string) (*PostgresStore, error) {
	cs, err := newCollectionSet(collections)
	if err != nil {
		return nil, err
	}

	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
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
	return &PostgresStore{pool: pool, closeFn: pool.Close, collections: cs}, nil
}

// NewPostgresWithPool wraps an existing pool, such as a pgxmock pool.
func NewPostgresWithPool(pool db.Pool, collections []string) (*PostgresStore, error) {
	cs, err := newCollectionSet(collections)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, collections: cs}, nil
}

const postgresRunsMigration = `
CREATE TABLE IF NOT EXISTS ncov.ingest_runs (
	id                     TEXT PRIMARY KEY,
	status                 TEXT NOT NULL,
	dashboard_version      TEXT NOT NULL DEFAULT '',
	dashboard_last_updated TEXT NOT NULL DEFAULT '',
	started_at             TIMESTAMPTZ NOT NULL,
	completed_at           TIMESTAMPTZ,
	outcomes               JSONB,
	error                  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ncov.ingest_runs(started_at DESC);
`

func postgresCollectionMigration(name string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS ncov.%[1]s (
	id                BIGSERIAL PRIMARY KEY,
	run_id            TEXT NOT NULL,
	dashboard_version TEXT NOT NULL,
	inserted_at       TIMESTAMPTZ NOT NULL,
	doc               JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_run_id ON ncov.%[1]s(run_id);
CREATE INDEX IF NOT EXISTS idx_%[1]s_version ON ncov.%[1]s(dashboard_version);
`, name)
}

// Migrate creates the schema, the run log, and one table per collection in
// a single transaction.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin migrate")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmts := []string{`CREATE SCHEMA IF NOT EXISTS ncov`, postgresRunsMigration}
	for _, name := range s.collections.names {
		stmts = append(stmts, postgresCollectionMigration(name))
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return eris.Wrapf(err, "postgres: migrate %q", firstLine(stmt))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit migrate")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Insert appends rec to collection. Records are never updated or upserted.
func (s *PostgresStore) Insert(ctx context.Context, collection, runID string, rec model.Record) error {
	if err := s.collections.check(collection); err != nil {
		return err
	}
	doc, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO ncov.`+collection+` (run_id, dashboard_version, inserted_at, doc) VALUES ($1, $2, $3, $4)`,
		runID, rec.Version(), rec.InsertedAt(), doc,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert into %s", collection)
	}
	return nil
}

// Count returns the number of documents in collection.
func (s *PostgresStore) Count(ctx context.Context, collection string) (int64, error) {
	if err := s.collections.check(collection); err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM ncov.`+collection).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "postgres: count %s", collection)
	}
	return n, nil
}

func (s *PostgresStore) StartRun(ctx context.Context, run *model.IngestRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ncov.ingest_runs (id, status, started_at) VALUES ($1, $2, $3)`,
		run.ID, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: start run %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.IngestRun) error {
	outcomes, err := json.Marshal(run.Outcomes)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal outcomes")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE ncov.ingest_runs SET status = $1, dashboard_version = $2, dashboard_last_updated = $3, completed_at = $4, outcomes = $5, error = $6 WHERE id = $7`,
		string(run.Status), run.DashboardVersion, run.DashboardLastUpdated, run.CompletedAt, outcomes, run.Error, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run not found: %s", run.ID)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.IngestRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, dashboard_version, dashboard_last_updated, started_at, completed_at, outcomes, error FROM ncov.ingest_runs ORDER BY started_at DESC LIMIT $1`,
		limitOrDefault(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.IngestRun
	for rows.Next() {
		var r model.IngestRun
		var status string
		var outcomes []byte
		if err := rows.Scan(&r.ID, &status, &r.DashboardVersion, &r.DashboardLastUpdated, &r.StartedAt, &r.CompletedAt, &outcomes, &r.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		if len(outcomes) > 0 {
			if err := json.Unmarshal(outcomes, &r.Outcomes); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal outcomes for %s", r.ID)
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
