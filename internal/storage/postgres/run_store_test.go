package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
)

func newMockStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewRunStoreWithPool(mock, "", "")
	require.NoError(t, err)
	return store, mock
}

func TestNewRunStoreWithPoolValidatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRunStoreWithPool(nil, "", "")
	require.Error(t, err)
	_, err = NewRunStoreWithPool(mock, "runs; DROP TABLE x", "")
	require.ErrorContains(t, err, "invalid table name")
	_, err = NewRunStoreWithPool(mock, "", "1results")
	require.ErrorContains(t, err, "invalid table name")
	// Unquoted identifiers fold to lower case, so mixed case would miss the COPY target.
	_, err = NewRunStoreWithPool(mock, "", "AuditResults")
	require.ErrorContains(t, err, "invalid table name")
}

func TestNewRunStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewRunStore(context.Background(), Config{})
	require.ErrorContains(t, err, "db.dsn")
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_runs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRunInsertsRow(t *testing.T) {
	t.Parallel()

	// Arrange
	store, mock := newMockStore(t)
	submitted := time.Unix(1700000000, 0).UTC()
	run := audit.RunRecord{
		ID:         "run-1",
		Status:     audit.RunStatusQueued,
		ClinicName: "さくら歯科",
		URLs:       []string{"https://a.example/"},
		Submitted:  submitted,
	}
	mock.ExpectExec("INSERT INTO audit_runs").
		WithArgs(
			"run-1",
			"queued",
			"さくら歯科",
			"",
			[]byte(`["https://a.example/"]`),
			submitted,
			run.Started,
			run.Finished,
			"",
			"",
			0,
			0,
			0,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// Act
	err := store.CreateRun(context.Background(), run)

	// Assert
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRunRequiresID(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	require.Error(t, store.CreateRun(context.Background(), audit.RunRecord{}))
}

func TestUpdateRunNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE audit_runs SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateRun(context.Background(), audit.RunRecord{ID: "missing", Status: audit.RunStatusFailed})
	require.ErrorIs(t, err, audit.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunWritesSummary(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	finished := time.Unix(1700000100, 0).UTC()
	run := audit.RunRecord{
		ID:        "run-1",
		Status:    audit.RunStatusSucceeded,
		Finished:  &finished,
		ReportURI: "memory://reports/run-1/abc.xlsx",
		Summary:   audit.Summary{OK: 3, Warning: 1, Error: 2},
	}
	mock.ExpectExec("UPDATE audit_runs SET").
		WithArgs("run-1", "succeeded", run.Started, &finished, "", run.ReportURI, 3, 1, 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpdateRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveResultsCopiesInTransaction(t *testing.T) {
	t.Parallel()

	// Arrange
	store, mock := newMockStore(t)
	results := []audit.CheckResult{
		{PageURL: "https://a.example/", CheckName: "Link", Status: audit.StatusOK, Details: "ok", Severity: audit.SeverityHigh},
		{PageURL: "https://a.example/", CheckName: "Phone", Status: audit.StatusError, Details: "bad", Severity: audit.SeverityHigh},
	}
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM audit_results").
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"audit_results"}, resultColumns).
		WillReturnResult(2)
	mock.ExpectCommit()

	// Act
	err := store.SaveResults(context.Background(), "run-1", results)

	// Assert
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveResultsRollsBackOnCopyFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM audit_results").
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"audit_results"}, resultColumns).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.SaveResults(context.Background(), "run-1", []audit.CheckResult{{PageURL: "https://a.example/"}})
	require.ErrorContains(t, err, "copy results")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveResultsEmptyOnlyClears(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM audit_results").
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCommit()

	require.NoError(t, store.SaveResults(context.Background(), "run-1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	// Arrange
	store, mock := newMockStore(t)
	submitted := time.Unix(1700000000, 0).UTC()
	finished := submitted.Add(time.Minute)
	rows := mock.NewRows([]string{
		"id", "status", "clinic_name", "start_url", "urls", "submitted_at", "started_at", "finished_at",
		"error_text", "report_uri", "ok_count", "warning_count", "error_count",
	}).AddRow(
		"run-1", "succeeded", "さくら歯科", "https://a.example/", []byte(`[]`), submitted, (*time.Time)(nil), &finished,
		"", "memory://r.xlsx", 4, 1, 0,
	)
	mock.ExpectQuery("SELECT id, status").WithArgs("run-1").WillReturnRows(rows)

	// Act
	got, err := store.GetRun(context.Background(), "run-1")

	// Assert
	require.NoError(t, err)
	require.Equal(t, audit.RunStatusSucceeded, got.Status)
	require.Equal(t, "https://a.example/", got.StartURL)
	require.Equal(t, submitted, got.Submitted)
	require.Nil(t, got.Started)
	require.Equal(t, finished, *got.Finished)
	require.Equal(t, audit.Summary{OK: 4, Warning: 1}, got.Summary)
	require.Empty(t, got.URLs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, status").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err := store.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, audit.ErrNotFound)
}

func TestListResultsOrdersBySeq(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rows := mock.NewRows([]string{"page_url", "check_name", "status", "details", "severity"}).
		AddRow("https://a.example/", "Link", "ok", "fine", "high").
		AddRow("https://a.example/", "Phone", "warning", "check", "high")
	mock.ExpectQuery("SELECT page_url, check_name").WithArgs("run-1").WillReturnRows(rows)

	got, err := store.ListResults(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, []audit.CheckResult{
		{PageURL: "https://a.example/", CheckName: "Link", Status: audit.StatusOK, Details: "fine", Severity: audit.SeverityHigh},
		{PageURL: "https://a.example/", CheckName: "Phone", Status: audit.StatusWarning, Details: "check", Severity: audit.SeverityHigh},
	}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListResultsUnknownRun(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT page_url, check_name").WithArgs("missing").
		WillReturnRows(mock.NewRows([]string{"page_url", "check_name", "status", "details", "severity"}))
	mock.ExpectQuery("SELECT id, status").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err := store.ListResults(context.Background(), "missing")
	require.ErrorIs(t, err, audit.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWrapsPoolError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewRunStoreWithPool(mock, "", "")
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err = store.Ping(context.Background())
	require.ErrorContains(t, err, "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}
