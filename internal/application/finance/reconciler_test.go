package finance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/erp/sellersync/internal/domain/sales"
	"github.com/erp/sellersync/internal/domain/syncrun"
	"github.com/erp/sellersync/internal/infrastructure/persistence"
	"github.com/erp/sellersync/internal/infrastructure/persistence/persistencetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

type feedCall struct {
	start time.Time
	token string
	page  *marketplace.FinancialEventPage
	err   error
}

// scriptedFeed answers calls in order and checks each was asked for the
// expected window and token.
type scriptedFeed struct {
	t     *testing.T
	calls []feedCall
	n     int
}

func (f *scriptedFeed) ListFinancialEvents(_ context.Context, postedAfter, _ time.Time, nextToken string) (*marketplace.FinancialEventPage, error) {
	require.Less(f.t, f.n, len(f.calls), "unexpected call for %s token %q", postedAfter, nextToken)
	call := f.calls[f.n]
	f.n++
	assert.True(f.t, call.start.Equal(postedAfter), "call %d window", f.n)
	assert.Equal(f.t, call.token, nextToken, "call %d token", f.n)
	return call.page, call.err
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func shipmentEvent(orderID, sku string, charges, fees []marketplace.AmountLine) marketplace.FinancialEvent {
	return marketplace.FinancialEvent{
		AmazonOrderID: orderID,
		Items: []marketplace.FinancialEventItem{{
			SellerSKU: sku,
			Quantity:  1,
			Charges:   charges,
			Fees:      fees,
		}},
	}
}

func TestReconciler_Run(t *testing.T) {
	ctx := context.Background()
	db := persistencetest.NewDB(t)
	orders := persistence.NewGormOrderRepository(db)
	returns := persistence.NewGormReturnRepository(db)
	logs := persistence.NewGormSyncLogRepository(db)

	day0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day1 := day0.Add(24 * time.Hour)

	_, err := orders.UpsertOrder(ctx, &sales.Order{
		AmazonOrderID:      "111-A",
		PurchaseDate:       day0,
		LastUpdatedDate:    day0,
		Status:             sales.OrderStatusShipped,
		FulfillmentChannel: sales.FulfillmentChannelFBA,
	})
	require.NoError(t, err)
	_, err = orders.UpsertItem(ctx, &sales.OrderItem{AmazonOrderID: "111-A", SKU: "SKU-1", Quantity: 1, ItemPrice: amount("20")})
	require.NoError(t, err)
	_, err = returns.Upsert(ctx, &sales.Return{AmazonOrderID: "111-A", SKU: "SKU-1", ReturnDate: day1, Quantity: 1})
	require.NoError(t, err)

	firstPage := &marketplace.FinancialEventPage{
		Shipments: []marketplace.FinancialEvent{shipmentEvent("111-A", "SKU-1",
			[]marketplace.AmountLine{{Type: "Principal", Amount: amount("20")}},
			[]marketplace.AmountLine{{Type: "Commission", Amount: amount("-3")}},
		)},
		NextToken: "t1",
	}
	feed := &scriptedFeed{t: t, calls: []feedCall{
		{start: day0, page: firstPage},
		{start: day0, token: "t1", err: fmt.Errorf("list events: %w", marketplace.ErrRateLimited)},
		{start: day0, page: firstPage},
		{start: day0, token: "t1", page: &marketplace.FinancialEventPage{
			Shipments: []marketplace.FinancialEvent{shipmentEvent("111-A", "SKU-1", nil,
				[]marketplace.AmountLine{{Type: "FBAPerUnitFulfillmentFee", Amount: amount("-4")}},
			)},
		}},
		{start: day1, err: fmt.Errorf("list events: %w", marketplace.ErrTokenExpired)},
		{start: day1, page: &marketplace.FinancialEventPage{
			Shipments: []marketplace.FinancialEvent{shipmentEvent("999-Z", "SKU-X",
				[]marketplace.AmountLine{{Type: "Principal", Amount: amount("5")}}, nil,
			)},
			Refunds: []marketplace.FinancialEvent{shipmentEvent("111-A", "SKU-1",
				[]marketplace.AmountLine{{Type: "Principal", Amount: amount("-20")}}, nil,
			)},
		}},
	}}

	var waits []time.Duration
	r := NewReconciler(feed, orders, returns, logs,
		Config{WindowDays: 1, FlushEveryKeys: 10, RateLimitWait: time.Second, MaxRateLimitRetries: 2},
		zap.NewNop(),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}),
	)

	res, err := r.Run(ctx, Request{PostedAfter: day0, PostedBefore: day0.Add(48 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, len(feed.calls), feed.n)

	assert.Equal(t, syncrun.StatusSuccess, res.Status)
	assert.Equal(t, 2, res.Windows)
	assert.Equal(t, 1, res.RateLimitRetries)
	assert.Equal(t, 1, res.RequeuedWindows)
	assert.Equal(t, 0, res.FailedWindows)
	assert.Equal(t, 1, res.RefundsApplied)
	assert.Equal(t, syncrun.Counters{Processed: 2, Updated: 1, Skipped: 1}, res.Counters)
	assert.Equal(t, []time.Duration{time.Second}, waits)

	item, err := orders.FindItem(ctx, "111-A", "SKU-1")
	require.NoError(t, err)
	assert.True(t, item.ReferralFee.Equal(amount("3")), "replayed window must not double count: %s", item.ReferralFee)
	assert.True(t, item.FulfillmentFee.Equal(amount("4")))
	assert.True(t, item.TotalFees.Equal(amount("7")))
	assert.True(t, item.ActualRevenue.Equal(amount("20")))
	assert.Equal(t, sales.FeesSourceFinancialEvents, item.FeesSource)

	ret, err := returns.FindByOrderAndSKU(ctx, "111-A", "SKU-1")
	require.NoError(t, err)
	assert.True(t, ret.RefundAmount.Equal(amount("20")))

	stored, err := logs.FindByID(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusSuccess, stored.Status)
	assert.Equal(t, 1, stored.Counters.Updated)
}

func TestReconciler_Run_RateLimitFlushesBeforeWaiting(t *testing.T) {
	ctx := context.Background()
	db := persistencetest.NewDB(t)
	orders := persistence.NewGormOrderRepository(db)
	day0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	const keys = 40
	pages := [2]*marketplace.FinancialEventPage{{NextToken: "t1"}, {NextToken: "t2"}}
	for i := 0; i < keys; i++ {
		id := fmt.Sprintf("200-%02d", i)
		_, err := orders.UpsertOrder(ctx, &sales.Order{
			AmazonOrderID:   id,
			PurchaseDate:    day0,
			LastUpdatedDate: day0,
			Status:          sales.OrderStatusShipped,
		})
		require.NoError(t, err)
		_, err = orders.UpsertItem(ctx, &sales.OrderItem{AmazonOrderID: id, SKU: "SKU-1", Quantity: 1, ItemPrice: amount("10")})
		require.NoError(t, err)

		page := pages[i%2]
		page.Shipments = append(page.Shipments, shipmentEvent(id, "SKU-1",
			[]marketplace.AmountLine{{Type: "Principal", Amount: amount("10")}},
			[]marketplace.AmountLine{{Type: "Commission", Amount: amount("-1.50")}},
		))
	}

	feed := &scriptedFeed{t: t, calls: []feedCall{
		{start: day0, page: pages[0]},
		{start: day0, token: "t1", page: pages[1]},
		{start: day0, token: "t2", err: fmt.Errorf("list events: %w", marketplace.ErrRateLimited)},
		{start: day0, page: pages[0]},
		{start: day0, token: "t1", page: pages[1]},
		{start: day0, token: "t2", page: &marketplace.FinancialEventPage{}},
	}}

	sleeps := 0
	r := NewReconciler(feed, orders,
		persistence.NewGormReturnRepository(db),
		persistence.NewGormSyncLogRepository(db),
		Config{WindowDays: 1, FlushEveryKeys: 1000, RateLimitWait: time.Minute, MaxRateLimitRetries: 1},
		zap.NewNop(),
		WithSleeper(func(context.Context, time.Duration) error {
			sleeps++
			for i := 0; i < keys; i++ {
				item, err := orders.FindItem(ctx, fmt.Sprintf("200-%02d", i), "SKU-1")
				require.NoError(t, err)
				assert.True(t, item.ReferralFee.Equal(amount("1.50")), "key %d not stored before the wait", i)
			}
			return nil
		}),
	)

	res, err := r.Run(ctx, Request{PostedAfter: day0, PostedBefore: day0.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 1, sleeps)
	assert.Equal(t, len(feed.calls), feed.n)
	assert.Equal(t, keys, res.Counters.Updated)

	item, err := orders.FindItem(ctx, "200-07", "SKU-1")
	require.NoError(t, err)
	assert.True(t, item.ReferralFee.Equal(amount("1.50")), "replay must not double count: %s", item.ReferralFee)
}

// flakyReturns fails the first Save.
type flakyReturns struct {
	sales.ReturnRepository
	saves int
}

func (f *flakyReturns) Save(ctx context.Context, ret *sales.Return) error {
	f.saves++
	if f.saves == 1 {
		return fmt.Errorf("connection reset")
	}
	return f.ReturnRepository.Save(ctx, ret)
}

func TestReconciler_Run_RefundFlushFailureKeepsKeys(t *testing.T) {
	ctx := context.Background()
	db := persistencetest.NewDB(t)
	day0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	returns := &flakyReturns{ReturnRepository: persistence.NewGormReturnRepository(db)}
	_, err := returns.Upsert(ctx, &sales.Return{AmazonOrderID: "300-A", SKU: "SKU-1", ReturnDate: day0, Quantity: 1})
	require.NoError(t, err)

	feed := &scriptedFeed{t: t, calls: []feedCall{
		{start: day0, page: &marketplace.FinancialEventPage{
			Refunds: []marketplace.FinancialEvent{shipmentEvent("300-A", "SKU-1",
				[]marketplace.AmountLine{{Type: "Principal", Amount: amount("-12")}}, nil,
			)},
		}},
	}}
	r := NewReconciler(feed,
		persistence.NewGormOrderRepository(db),
		returns,
		persistence.NewGormSyncLogRepository(db),
		Config{WindowDays: 1},
		zap.NewNop(),
	)

	res, err := r.Run(ctx, Request{PostedAfter: day0, PostedBefore: day0.Add(24 * time.Hour)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, syncrun.StatusFailed, res.Status)
	assert.Equal(t, 2, returns.saves)
	assert.Equal(t, 1, res.RefundsApplied)

	ret, err := returns.FindByOrderAndSKU(ctx, "300-A", "SKU-1")
	require.NoError(t, err)
	assert.True(t, ret.RefundAmount.Equal(amount("12")), "the final flush retries the refund: %s", ret.RefundAmount)
}

func TestReconciler_Run_RateLimitRetriesExhausted(t *testing.T) {
	db := persistencetest.NewDB(t)
	day0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	limited := fmt.Errorf("list events: %w", marketplace.ErrRateLimited)
	feed := &scriptedFeed{t: t, calls: []feedCall{
		{start: day0, err: limited},
		{start: day0, err: limited},
	}}
	r := NewReconciler(feed,
		persistence.NewGormOrderRepository(db),
		persistence.NewGormReturnRepository(db),
		persistence.NewGormSyncLogRepository(db),
		Config{WindowDays: 1, MaxRateLimitRetries: 1},
		zap.NewNop(),
		WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)

	res, err := r.Run(context.Background(), Request{PostedAfter: day0, PostedBefore: day0.Add(24 * time.Hour)})
	require.Error(t, err)
	assert.ErrorIs(t, err, marketplace.ErrRateLimited)
	assert.Equal(t, syncrun.StatusFailed, res.Status)
}

func TestReconciler_Run_WindowSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	db := persistencetest.NewDB(t)
	day0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	feed := &scriptedFeed{t: t, calls: []feedCall{
		{start: day0, page: &marketplace.FinancialEventPage{}},
		{start: day0.Add(24 * time.Hour), err: fmt.Errorf("list events: %w", marketplace.ErrRateLimited)},
	}}
	r := NewReconciler(feed,
		persistence.NewGormOrderRepository(db),
		persistence.NewGormReturnRepository(db),
		persistence.NewGormSyncLogRepository(db),
		Config{WindowDays: 1},
		zap.NewNop(),
		WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)

	_, err := r.Run(context.Background(), Request{PostedAfter: day0, PostedBefore: day0.Add(48 * time.Hour)})
	require.Error(t, err)

	var windows []sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.Name() == "finance.window" {
			windows = append(windows, s)
		}
	}
	require.Len(t, windows, 2)
	assert.Contains(t, windows[0].Attributes(), attribute.Int("window", 0))
	assert.Equal(t, codes.Unset, windows[0].Status().Code)
	assert.Contains(t, windows[1].Attributes(), attribute.Int("window", 1))
	assert.Equal(t, codes.Error, windows[1].Status().Code)
}

func TestReconciler_Run_InvalidRange(t *testing.T) {
	r := NewReconciler(nil, nil, nil, nil, Config{}, zap.NewNop())
	now := time.Now()
	_, err := r.Run(context.Background(), Request{PostedAfter: now, PostedBefore: now})
	assert.ErrorIs(t, err, ErrInvalidRange)
}
