// Package postgres persists audit runs and their check results in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
)

var validTableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Default table names.
const (
	DefaultRunsTable    = "audit_runs"
	DefaultResultsTable = "audit_results"
)

var resultColumns = []string{"run_id", "seq", "page_url", "check_name", "status", "details", "severity"}

// Config controls the connection pool and the tables runs are written to.
type Config struct {
	DSN             string
	RunsTable       string
	ResultsTable    string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store uses.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// RunStore implements audit.RunStore on Postgres.
type RunStore struct {
	pool    pool
	runs    string
	results string
}

// NewRunStore connects to Postgres using cfg.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	runs, results, err := tableNames(cfg.RunsTable, cfg.ResultsTable)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: p, runs: runs, results: results}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool, runsTable, resultsTable string) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	runs, results, err := tableNames(runsTable, resultsTable)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: p, runs: runs, results: results}, nil
}

func tableNames(runs, results string) (string, string, error) {
	if runs == "" {
		runs = DefaultRunsTable
	}
	if results == "" {
		results = DefaultResultsTable
	}
	for _, name := range []string{runs, results} {
		if !validTableName.MatchString(name) {
			return "", "", fmt.Errorf("invalid table name %q", name)
		}
	}
	return runs, results, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *RunStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the runs and results tables when they do not exist.
func (s *RunStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	clinic_name TEXT NOT NULL DEFAULT '',
	start_url TEXT NOT NULL DEFAULT '',
	urls JSONB NOT NULL DEFAULT '[]',
	submitted_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	error_text TEXT NOT NULL DEFAULT '',
	report_uri TEXT NOT NULL DEFAULT '',
	ok_count INTEGER NOT NULL DEFAULT 0,
	warning_count INTEGER NOT NULL DEFAULT 0,
	error_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS %[2]s (
	run_id TEXT NOT NULL REFERENCES %[1]s (id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	page_url TEXT NOT NULL,
	check_name TEXT NOT NULL,
	status TEXT NOT NULL,
	details TEXT NOT NULL,
	severity TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);`, s.runs, s.results)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate audit tables: %w", err)
	}
	return nil
}

// CreateRun inserts a new run row.
func (s *RunStore) CreateRun(ctx context.Context, run audit.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	urls, err := marshalURLs(run.URLs)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	status,
	clinic_name,
	start_url,
	urls,
	submitted_at,
	started_at,
	finished_at,
	error_text,
	report_uri,
	ok_count,
	warning_count,
	error_count
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`, s.runs)
	args := []any{
		run.ID,
		string(run.Status),
		run.ClinicName,
		run.StartURL,
		urls,
		run.Submitted,
		run.Started,
		run.Finished,
		run.ErrorText,
		run.ReportURI,
		run.Summary.OK,
		run.Summary.Warning,
		run.Summary.Error,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRun rewrites the mutable columns of an existing run.
func (s *RunStore) UpdateRun(ctx context.Context, run audit.RunRecord) error {
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	started_at = $3,
	finished_at = $4,
	error_text = $5,
	report_uri = $6,
	ok_count = $7,
	warning_count = $8,
	error_count = $9
WHERE id = $1`, s.runs)
	tag, err := s.pool.Exec(ctx, query,
		run.ID,
		string(run.Status),
		run.Started,
		run.Finished,
		run.ErrorText,
		run.ReportURI,
		run.Summary.OK,
		run.Summary.Warning,
		run.Summary.Error,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update run %s: %w", run.ID, audit.ErrNotFound)
	}
	return nil
}

// SaveResults replaces the results of a run in one transaction, copying rows in bulk.
func (s *RunStore) SaveResults(ctx context.Context, runID string, results []audit.CheckResult) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	if _, err = tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE run_id = $1`, s.results), runID); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	if len(results) > 0 {
		rows := make([][]any, 0, len(results))
		for i, r := range results {
			rows = append(rows, []any{runID, i, r.PageURL, r.CheckName, string(r.Status), r.Details, string(r.Severity)})
		}
		if _, err = tx.CopyFrom(ctx, pgx.Identifier{s.results}, resultColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy results: %w", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit results: %w", err)
	}
	return nil
}

// GetRun loads a run or returns audit.ErrNotFound.
func (s *RunStore) GetRun(ctx context.Context, runID string) (audit.RunRecord, error) {
	query := fmt.Sprintf(`
SELECT id, status, clinic_name, start_url, urls, submitted_at, started_at, finished_at,
	error_text, report_uri, ok_count, warning_count, error_count
FROM %s WHERE id = $1`, s.runs)

	var (
		rec    audit.RunRecord
		status string
		urls   []byte
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&rec.ID,
		&status,
		&rec.ClinicName,
		&rec.StartURL,
		&urls,
		&rec.Submitted,
		&rec.Started,
		&rec.Finished,
		&rec.ErrorText,
		&rec.ReportURI,
		&rec.Summary.OK,
		&rec.Summary.Warning,
		&rec.Summary.Error,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.RunRecord{}, audit.ErrNotFound
	}
	if err != nil {
		return audit.RunRecord{}, fmt.Errorf("select run: %w", err)
	}
	rec.Status = audit.RunStatus(status)
	if len(urls) > 0 {
		if err := json.Unmarshal(urls, &rec.URLs); err != nil {
			return audit.RunRecord{}, fmt.Errorf("decode urls: %w", err)
		}
	}
	return rec, nil
}

// ListResults returns the results of a run in the order they were saved.
func (s *RunStore) ListResults(ctx context.Context, runID string) ([]audit.CheckResult, error) {
	query := fmt.Sprintf(`
SELECT page_url, check_name, status, details, severity
FROM %s WHERE run_id = $1 ORDER BY seq`, s.results)
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("select results: %w", err)
	}
	defer rows.Close()

	var out []audit.CheckResult
	for rows.Next() {
		var (
			r                audit.CheckResult
			status, severity string
		)
		if err := rows.Scan(&r.PageURL, &r.CheckName, &status, &r.Details, &severity); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Status = audit.Status(status)
		r.Severity = audit.Severity(severity)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	if len(out) == 0 {
		if _, err := s.GetRun(ctx, runID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func marshalURLs(urls []string) ([]byte, error) {
	if urls == nil {
		urls = []string{}
	}
	data, err := json.Marshal(urls)
	if err != nil {
		return nil, fmt.Errorf("marshal urls: %w", err)
	}
	return data, nil
}
