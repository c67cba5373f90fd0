package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	// Arrange
	ctx := context.Background()
	store := NewRunStore()
	submitted := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	run := audit.RunRecord{
		ID:         "run-1",
		Status:     audit.RunStatusQueued,
		ClinicName: "さくら歯科",
		URLs:       []string{"https://a.example/"},
		Submitted:  submitted,
	}

	// Act
	require.NoError(t, store.CreateRun(ctx, run))
	finished := submitted.Add(time.Minute)
	run.Status = audit.RunStatusSucceeded
	run.Finished = &finished
	run.Summary = audit.Summary{OK: 2, Error: 1}
	require.NoError(t, store.UpdateRun(ctx, run))
	results := []audit.CheckResult{
		{PageURL: "https://a.example/", CheckName: "Link", Status: audit.StatusOK},
		{PageURL: "https://a.example/", CheckName: "Phone", Status: audit.StatusError},
	}
	require.NoError(t, store.SaveResults(ctx, "run-1", results))

	// Assert
	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, audit.RunStatusSucceeded, got.Status)
	require.Equal(t, finished, *got.Finished)
	require.Equal(t, audit.Summary{OK: 2, Error: 1}, got.Summary)

	listed, err := store.ListResults(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, results, listed)
}

func TestRunStoreCopiesRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRunStore()
	urls := []string{"https://a.example/"}
	require.NoError(t, store.CreateRun(ctx, audit.RunRecord{ID: "run-1", URLs: urls}))
	urls[0] = "mutated"

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, "https://a.example/", got.URLs[0])
}

func TestRunStoreErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRunStore()

	require.Error(t, store.CreateRun(ctx, audit.RunRecord{}))
	require.NoError(t, store.CreateRun(ctx, audit.RunRecord{ID: "dup"}))
	require.Error(t, store.CreateRun(ctx, audit.RunRecord{ID: "dup"}))

	_, err := store.GetRun(ctx, "missing")
	require.ErrorIs(t, err, audit.ErrNotFound)
	_, err = store.ListResults(ctx, "missing")
	require.ErrorIs(t, err, audit.ErrNotFound)
	require.ErrorIs(t, store.UpdateRun(ctx, audit.RunRecord{ID: "missing"}), audit.ErrNotFound)
	require.ErrorIs(t, store.SaveResults(ctx, "missing", nil), audit.ErrNotFound)
}

func TestRunStoreListRunsNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRunStore()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateRun(ctx, audit.RunRecord{ID: "old", Submitted: base}))
	require.NoError(t, store.CreateRun(ctx, audit.RunRecord{ID: "new", Submitted: base.Add(time.Hour)}))

	runs := store.ListRuns()
	require.Len(t, runs, 2)
	require.Equal(t, "new", runs[0].ID)
	require.Equal(t, "old", runs[1].ID)
}
