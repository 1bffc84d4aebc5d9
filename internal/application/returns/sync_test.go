package returns

import (
	"context"
	"testing"
	"time"

	"github.com/erp/sellersync/internal/domain/catalog"
	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/erp/sellersync/internal/domain/sales"
	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/erp/sellersync/internal/domain/syncrun"
	"github.com/erp/sellersync/internal/infrastructure/persistence"
	"github.com/erp/sellersync/internal/infrastructure/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubReports struct {
	doc     string
	err     error
	windows []shared.DateRange
	types   []string
}

func (s *stubReports) Request(_ context.Context, reportType string, window shared.DateRange) (string, error) {
	s.types = append(s.types, reportType)
	s.windows = append(s.windows, window)
	return "rpt-1", nil
}

func (s *stubReports) Await(context.Context, string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.doc), nil
}

const returnsDoc = "return-date\torder-id\tsku\tasin\tfnsku\tproduct-name\tquantity\tfulfillment-center-id\tdetailed-disposition\treason\tstatus\n" +
	"2024-03-05T08:00:00+00:00\t111-A\tSKU-1\tB01\tX001\tLamp\t2\tPHX3\tSELLABLE\tNOT_AS_DESCRIBED\tUnit returned to inventory\n" +
	"not-a-date\t111-B\tSKU-2\t\t\t\t1\t\t\t\t\n" +
	"2024-03-06T08:00:00+00:00\t\tSKU-3\t\t\t\t1\t\t\t\t\n" +
	"2024-03-06T09:00:00+00:00\t999-Z\tSKU-9\t\t\t\t\t\t\t\t\n"

func TestSync_Run(t *testing.T) {
	ctx := context.Background()
	db := persistencetest.NewDB(t)
	orders := persistence.NewGormOrderRepository(db)
	products := persistence.NewGormProductRepository(db)
	returns := persistence.NewGormReturnRepository(db)
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := orders.UpsertOrder(ctx, &sales.Order{
		AmazonOrderID:      "111-A",
		PurchaseDate:       now.Add(-10 * 24 * time.Hour),
		LastUpdatedDate:    now.Add(-10 * 24 * time.Hour),
		Status:             sales.OrderStatusDelivered,
		FulfillmentChannel: sales.FulfillmentChannelFBA,
	})
	require.NoError(t, err)
	_, err = products.EnsureExists(ctx, catalog.NewPlaceholder("SKU-1", "", ""))
	require.NoError(t, err)

	reports := &stubReports{doc: returnsDoc}
	svc := NewSync(reports, returns, orders, products, persistence.NewGormSyncLogRepository(db), zap.NewNop(),
		WithClock(func() time.Time { return now }),
	)

	run, err := svc.Run(ctx, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusSuccess, run.Status)
	assert.Equal(t, syncrun.Counters{Processed: 4, Created: 2, Skipped: 2}, run.Counters)
	assert.Equal(t, []string{marketplace.ReportTypeCustomerReturns}, reports.types)
	assert.Equal(t, now.Add(-DefaultLookback), reports.windows[0].Start)

	ret, err := returns.FindByOrderAndSKU(ctx, "111-A", "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, 2, ret.Quantity)
	assert.Equal(t, "SELLABLE", ret.Disposition)
	assert.Equal(t, "PHX3", ret.FulfillmentCenter)

	unknown, err := returns.FindByOrderAndSKU(ctx, "999-Z", "SKU-9")
	require.NoError(t, err)
	assert.Equal(t, 1, unknown.Quantity, "missing quantity counts as one unit")

	order, err := orders.FindOrder(ctx, "111-A")
	require.NoError(t, err)
	assert.Equal(t, sales.OrderStatusReturned, order.Status)

	p, err := products.FindBySKU(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, "B01", p.ASIN)
	assert.Equal(t, "X001", p.FNSKU)
	assert.Equal(t, "Lamp", p.Title)

	run, err = svc.Run(ctx, time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Counters.Updated)
	assert.Equal(t, 0, run.Counters.Created)
}

func TestSync_Run_ReportFailed(t *testing.T) {
	db := persistencetest.NewDB(t)
	reports := &stubReports{err: &marketplace.ReportFailedError{ReportID: "rpt-1", Status: marketplace.ReportStatusFatal}}
	svc := NewSync(reports,
		persistence.NewGormReturnRepository(db),
		persistence.NewGormOrderRepository(db),
		persistence.NewGormProductRepository(db),
		persistence.NewGormSyncLogRepository(db),
		zap.NewNop(),
	)

	run, err := svc.Run(context.Background(), 0, nil)
	assert.ErrorIs(t, err, marketplace.ErrReportFailed)
	assert.Equal(t, syncrun.StatusFailed, run.Status)
}
