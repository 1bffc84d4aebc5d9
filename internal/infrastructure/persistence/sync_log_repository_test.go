package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/erp/sellersync/internal/domain/syncrun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormSyncLogRepository_FindResumable(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSyncLogRepository(newTestDB(t))
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	finished := syncrun.NewSyncLog(syncrun.SyncTypeOrdersHistorical, start)
	finished.Checkpoint = syncrun.Checkpoint{TotalDays: 90, BatchSizeDays: 30, TotalBatches: 3, NextBatch: 3}
	finished.Succeed(start.Add(time.Hour))
	require.NoError(t, repo.Create(ctx, finished))

	interrupted := syncrun.NewSyncLog(syncrun.SyncTypeOrdersHistorical, start.Add(2*time.Hour))
	interrupted.Checkpoint = syncrun.Checkpoint{TotalDays: 90, BatchSizeDays: 30, TotalBatches: 3, NextBatch: 1}
	require.NoError(t, repo.Create(ctx, interrupted))

	other := syncrun.NewSyncLog(syncrun.SyncTypeOrdersHistorical, start.Add(3*time.Hour))
	other.Checkpoint = syncrun.Checkpoint{TotalDays: 60, BatchSizeDays: 30, TotalBatches: 2, NextBatch: 1}
	require.NoError(t, repo.Create(ctx, other))

	got, err := repo.FindResumable(ctx, syncrun.SyncTypeOrdersHistorical, 90, 30)
	require.NoError(t, err)
	assert.Equal(t, interrupted.ID, got.ID)
	assert.Equal(t, 1, got.Checkpoint.NextBatch)

	got.Checkpoint.NextBatch = 3
	got.Counters.Add(syncrun.Counters{Processed: 10, Created: 8, Updated: 2})
	got.Fail(errors.New("all batches failed"), start.Add(4*time.Hour))
	require.NoError(t, repo.Save(ctx, got))

	_, err = repo.FindResumable(ctx, syncrun.SyncTypeOrdersHistorical, 90, 30)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	latest, err := repo.LatestSuccess(ctx, syncrun.SyncTypeOrdersHistorical)
	require.NoError(t, err)
	assert.Equal(t, finished.ID, latest.ID)

	logs, err := repo.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, other.ID, logs[0].ID)

	stored, err := repo.FindByID(ctx, interrupted.ID)
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusFailed, stored.Status)
	assert.Equal(t, 8, stored.Counters.Created)
	assert.Equal(t, "all batches failed", stored.ErrorMessage)
}

func TestGormSyncLogRepository_PendingReports(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSyncLogRepository(newTestDB(t))
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	log := syncrun.NewSyncLog(syncrun.SyncTypeOrdersHistorical, start)
	require.NoError(t, repo.Create(ctx, log))

	_, err := repo.FindPendingReport(ctx, log.ID, 0)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	window := shared.DateRange{Start: start, End: start.Add(30 * 24 * time.Hour)}
	report := syncrun.NewPendingReport(log.ID, 0, "GET_FLAT_FILE_ALL_ORDERS_DATA_BY_ORDER_DATE_GENERAL", "rpt-1", window)
	require.NoError(t, repo.SavePendingReport(ctx, report))

	report.Status = syncrun.PendingReportDone
	require.NoError(t, repo.SavePendingReport(ctx, report))

	got, err := repo.FindPendingReport(ctx, log.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "rpt-1", got.ReportID)
	assert.Equal(t, syncrun.PendingReportDone, got.Status)
	assert.True(t, got.RangeStart.Equal(start))
}
