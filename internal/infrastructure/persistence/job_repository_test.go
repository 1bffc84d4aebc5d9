package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/sellersync/internal/domain/job"
	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormJobRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewGormJobRepository(newTestDB(t))
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	j := job.New(job.TypeFinancialEvents, []byte(`{"days":7}`), 3, now)
	require.NoError(t, repo.Create(ctx, j))

	ok, err := repo.Claim(ctx, j.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, j.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "a running job cannot be claimed twice")

	retryAt := now.Add(time.Minute)
	require.NoError(t, repo.Reschedule(ctx, j.ID, "rate limited", retryAt))

	ok, err = repo.Claim(ctx, j.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "not due yet")

	ok, err = repo.Claim(ctx, j.ID, retryAt)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.SaveProgress(ctx, j.ID, `{"windows":2}`))
	require.NoError(t, repo.Complete(ctx, j.ID, `{"updated":4}`, retryAt))

	stored, err := repo.FindByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusSucceeded, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, `{"updated":4}`, stored.Result)
	assert.Equal(t, `{"windows":2}`, stored.Progress)
	assert.Empty(t, stored.LastError)
	assert.NotNil(t, stored.CompletedAt)

	assert.ErrorIs(t, repo.Fail(ctx, j.ID, "late", now), shared.ErrInvalidState)
}

func TestGormJobRepository_RequestCancel(t *testing.T) {
	ctx := context.Background()
	repo := NewGormJobRepository(newTestDB(t))
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	pending := job.New(job.TypeReturns, nil, 1, now)
	running := job.New(job.TypeFbaInventory, nil, 1, now)
	require.NoError(t, repo.Create(ctx, pending))
	require.NoError(t, repo.Create(ctx, running))
	ok, err := repo.Claim(ctx, running.ID, now)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.RequestCancel(ctx, pending.ID, now)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, got.Status)

	got, err = repo.RequestCancel(ctx, running.ID, now)
	require.NoError(t, err)
	assert.Equal(t, job.StatusRunning, got.Status)
	assert.True(t, got.CancelRequested)

	requested, err := repo.CancelRequested(ctx, running.ID)
	require.NoError(t, err)
	assert.True(t, requested)

	require.NoError(t, repo.MarkCancelled(ctx, running.ID, now))
	got, err = repo.FindByID(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, got.Status)
}

func TestGormJobRepository_DueIDsAndResetOrphaned(t *testing.T) {
	ctx := context.Background()
	repo := NewGormJobRepository(newTestDB(t))
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	due := job.New(job.TypeOrdersIncremental, nil, 1, now.Add(-time.Minute))
	later := job.New(job.TypeOrdersIncremental, nil, 1, now.Add(time.Hour))
	orphan := job.New(job.TypeOrdersHistorical, nil, 1, now.Add(-time.Hour))
	cancelling := job.New(job.TypeProfitRebuild, nil, 1, now.Add(-time.Hour))
	for _, j := range []*job.Job{due, later, orphan, cancelling} {
		require.NoError(t, repo.Create(ctx, j))
	}
	for _, j := range []*job.Job{orphan, cancelling} {
		ok, err := repo.Claim(ctx, j.ID, now)
		require.NoError(t, err)
		require.True(t, ok)
	}
	_, err := repo.RequestCancel(ctx, cancelling.ID, now)
	require.NoError(t, err)

	ids, err := repo.DueIDs(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{due.ID}, ids)

	restart := now.Add(time.Minute)
	n, err := repo.ResetOrphaned(ctx, restart)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.FindByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, got.Status)
	assert.Equal(t, "interrupted by restart", got.LastError)

	got, err = repo.FindByID(ctx, cancelling.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, got.Status)

	ids, err = repo.DueIDs(ctx, restart, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{due.ID, orphan.ID}, ids)

	jobs, err := repo.List(ctx, job.Filter{Type: job.TypeOrdersIncremental})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}
