package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/sellersync/internal/domain/profit"
	"github.com/erp/sellersync/internal/infrastructure/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBatch struct {
	rows      [][]any
	appendErr error
	sent      bool
	aborted   bool
}

func (b *fakeBatch) Append(v ...any) error {
	if b.appendErr != nil {
		return b.appendErr
	}
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Send() error {
	b.sent = true
	return nil
}

func (b *fakeBatch) Abort() error {
	b.aborted = true
	return nil
}

func newTestExporter(batch *fakeBatch) (*ClickHouseExporter, *string) {
	var query string
	e := &ClickHouseExporter{
		table:  "analytics.daily_profits",
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC) },
	}
	e.prepare = func(_ context.Context, q string) (rowBatch, error) {
		query = q
		return batch, nil
	}
	return e, &query
}

func TestClickHouseExporter_Export(t *testing.T) {
	batch := &fakeBatch{}
	e, query := newTestExporter(batch)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	n, err := e.Export(context.Background(), []profit.DailyProfit{
		{Date: day, SKU: "SKU-1", Units: 2, Revenue: decimal.NewFromInt(40)},
		{Date: day, SKU: "SKU-2", Units: 1, Revenue: decimal.NewFromInt(10)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "INSERT INTO analytics.daily_profits", *query)
	assert.True(t, batch.sent)
	require.Len(t, batch.rows, 2)
	assert.Equal(t, day, batch.rows[0][0])
	assert.Equal(t, "SKU-1", batch.rows[0][1])
	assert.Equal(t, int64(2), batch.rows[0][2])
	assert.Len(t, batch.rows[0], 11)
}

func TestClickHouseExporter_ExportEmpty(t *testing.T) {
	batch := &fakeBatch{}
	e, query := newTestExporter(batch)

	n, err := e.Export(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, *query, "no batch is prepared for an empty export")
}

func TestClickHouseExporter_AppendError(t *testing.T) {
	batch := &fakeBatch{appendErr: errors.New("type mismatch")}
	e, _ := newTestExporter(batch)

	_, err := e.Export(context.Background(), []profit.DailyProfit{{Date: time.Now(), SKU: "SKU-1"}})
	require.Error(t, err)
	assert.True(t, batch.aborted)
	assert.False(t, batch.sent)
}

func TestNewClickHouseExporter_RequiresAddr(t *testing.T) {
	_, err := NewClickHouseExporter(config.AnalyticsConfig{}, zap.NewNop())
	assert.Error(t, err)
}
