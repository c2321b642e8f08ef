package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pressroom/internal/build"
	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/source"
)

func report(id string, started time.Time) *build.BuildReport {
	return &build.BuildReport{
		RunID:     id,
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
		Scope:     "all",
		Built:     2,
		Outputs:   5,
	}
}

func TestRecordAndList(t *testing.T) {
	store, err := NewSQLiteStore(MemoryPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Record(ctx, report("run-1", base)))

	failed := report("run-2", base.Add(time.Minute))
	failed.Failed = 1
	failed.Commit = "deadbeef"
	failed.Failures = []build.Failure{{Path: "photo.jpg", Kind: source.KindImage, Error: "decode"}}
	require.NoError(t, store.Record(ctx, failed))

	runs, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-2", runs[0].RunID, "newest first")
	require.Equal(t, "partial", runs[0].Outcome)
	require.Equal(t, "deadbeef", runs[0].Commit)
	require.Equal(t, failed.Failures, runs[0].Failures)
	require.Equal(t, 1500*time.Millisecond, runs[1].Duration)
	require.Equal(t, base, runs[1].StartedAt)
	require.Equal(t, "success", runs[1].Outcome)

	limited, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestGet(t *testing.T) {
	store, err := NewSQLiteStore(MemoryPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	require.NoError(t, store.Record(ctx, report("run-1", time.Now())))

	run, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, 2, run.Built)

	_, err = store.Get(ctx, "missing")
	require.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestDuplicateRunIDIsRejected(t *testing.T) {
	store, err := NewSQLiteStore(MemoryPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	r := report("run-1", time.Now())
	require.NoError(t, store.Record(t.Context(), r))
	err = store.Record(t.Context(), r)
	require.True(t, errors.HasCategory(err, errors.CategoryHistory))
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(t.Context(), report("run-1", time.Now())))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	runs, err := reopened.List(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}
