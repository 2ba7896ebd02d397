package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ncov-ph/ncov-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Documents are kept
// as JSON text.
type SQLiteStore struct {
	db          *sql.DB
	collections collectionSet
}

// sqlitePragmas are applied by the driver to every connection it opens.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// sqliteDSN appends the connection pragmas to dsn.
func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dsn)
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// NewSQLite opens a SQLite database at the given path in WAL mode. Writers
// share a single connection, so concurrent inserts queue instead of
// failing with SQLITE_BUSY.
func NewSQLite(dsn string, collections []string) (*SQLiteStore, error) {
	cs, err := newCollectionSet(collections)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db, collections: cs}, nil
}

const sqliteRunsMigration = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id                     TEXT PRIMARY KEY,
	status                 TEXT NOT NULL,
	dashboard_version      TEXT NOT NULL DEFAULT '',
	dashboard_last_updated TEXT NOT NULL DEFAULT '',
	started_at             TEXT NOT NULL,
	completed_at           TEXT,
	outcomes               TEXT,
	error                  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at);
`

func sqliteCollectionMigration(name string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id            TEXT NOT NULL,
	dashboard_version TEXT NOT NULL,
	inserted_at       TEXT NOT NULL,
	doc               TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_run_id ON %[1]s(run_id);
`, name)
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	stmts := []string{sqliteRunsMigration}
	for _, name := range s.collections.names {
		stmts = append(stmts, sqliteCollectionMigration(name))
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "sqlite: migrate %q", firstLine(stmt))
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Insert(ctx context.Context, collection, runID string, rec model.Record) error {
	if err := s.collections.check(collection); err != nil {
		return err
	}
	doc, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+collection+` (run_id, dashboard_version, inserted_at, doc) VALUES (?, ?, ?, ?)`,
		runID, rec.Version(), formatTime(rec.InsertedAt()), string(doc),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert into %s", collection)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context, collection string) (int64, error) {
	if err := s.collections.check(collection); err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM `+collection).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "sqlite: count %s", collection)
	}
	return n, nil
}

// Documents returns the stored documents of a run in insertion order.
func (s *SQLiteStore) Documents(ctx context.Context, collection, runID string) ([]map[string]any, error) {
	if err := s.collections.check(collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM `+collection+` WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", collection)
	}
	defer rows.Close() //nolint:errcheck

	var docs []map[string]any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan doc")
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal doc")
		}
		docs = append(docs, doc)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: iterate docs")
}

func (s *SQLiteStore) StartRun(ctx context.Context, run *model.IngestRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, status, started_at) VALUES (?, ?, ?)`,
		run.ID, string(run.Status), formatTime(run.StartedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: start run %s", run.ID)
	}
	return nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.IngestRun) error {
	outcomes, err := json.Marshal(run.Outcomes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal outcomes")
	}
	var completed sql.NullString
	if run.CompletedAt != nil {
		completed = sql.NullString{String: formatTime(*run.CompletedAt), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, dashboard_version = ?, dashboard_last_updated = ?, completed_at = ?, outcomes = ?, error = ? WHERE id = ?`,
		string(run.Status), run.DashboardVersion, run.DashboardLastUpdated, completed, string(outcomes), run.Error, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run not found: %s", run.ID)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.IngestRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, dashboard_version, dashboard_last_updated, started_at, completed_at, outcomes, error FROM ingest_runs ORDER BY started_at DESC LIMIT ?`,
		limitOrDefault(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.IngestRun
	for rows.Next() {
		var (
			r         model.IngestRun
			status    string
			started   string
			completed sql.NullString
			outcomes  sql.NullString
		)
		if err := rows.Scan(&r.ID, &status, &r.DashboardVersion, &r.DashboardLastUpdated, &started, &completed, &outcomes, &r.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = model.RunStatus(status)
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if completed.Valid {
			t, err := parseTime(completed.String)
			if err != nil {
				return nil, err
			}
			r.CompletedAt = &t
		}
		if outcomes.Valid && outcomes.String != "" {
			if err := json.Unmarshal([]byte(outcomes.String), &r.Outcomes); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal outcomes for %s", r.ID)
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}
