package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagehq/triage-cli/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j, err := s.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, StatusQueued, j.Status)

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, StatusQueued, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.Nil(t, got.Summary)
}

func TestStore_Get_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStore_ProgressLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j, err := s.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, s.MarkRunning(ctx, j.ID))
	require.NoError(t, s.UpdateProgress(ctx, j.ID, 42, "Processed 4/10 items"))

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, 42, got.Progress)
	assert.Equal(t, "Processed 4/10 items", got.Message)
}

func TestStore_Complete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j, err := s.Create(ctx)
	require.NoError(t, err)

	summary := model.Summary{Status: "completed", Processed: 10, Failed: 1, Tickets: 10}
	require.NoError(t, s.Complete(ctx, j.ID, summary))

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 10, got.Summary.Processed)
	assert.Equal(t, 1, got.Summary.Failed)
}

func TestStore_Fail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j, err := s.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Fail(ctx, j.ID, "store unavailable"))

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "store unavailable", got.Error)
}

func TestStore_UpdateMissingJob(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateProgress(context.Background(), "ghost", 50, "halfway")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStore_CountByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx)
	require.NoError(t, err)
	_, err = s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, a.ID, "boom"))

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[StatusQueued])
	assert.Equal(t, 1, counts[StatusFailed])
}

func TestStore_DeleteOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old, err := s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, old.ID, model.Summary{Status: "completed"}))
	// Backdate the completed job past the retention window.
	_, err = s.db.ExecContext(ctx, `UPDATE jobs SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-48*time.Hour), old.ID)
	require.NoError(t, err)

	active, err := s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, s.MarkRunning(ctx, active.ID))

	n, err := s.DeleteOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, old.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = s.Get(ctx, active.ID)
	assert.NoError(t, err, "running jobs survive cleanup")
}

func TestStore_DeleteOlderThan_SkipsRecentTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j, err := s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, j.ID, model.Summary{Status: "completed"}))

	n, err := s.DeleteOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
