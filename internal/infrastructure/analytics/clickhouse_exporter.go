// Package analytics ships the daily profit projection to ClickHouse.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/erp/sellersync/internal/domain/profit"
	"github.com/erp/sellersync/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Ensure ClickHouseExporter implements profit.Exporter
var _ profit.Exporter = (*ClickHouseExporter)(nil)

type rowBatch interface {
	Append(v ...any) error
	Send() error
	Abort() error
}

// ClickHouseExporter appends projection rows to a ReplacingMergeTree table
// keyed by (date, sku), so re-exporting a day replaces its rows on merge.
type ClickHouseExporter struct {
	conn    driver.Conn
	prepare func(ctx context.Context, query string) (rowBatch, error)
	table   string
	logger  *zap.Logger
	now     func() time.Time
}

// NewClickHouseExporter connects and pings ClickHouse.
func NewClickHouseExporter(cfg config.AnalyticsConfig, logger *zap.Logger) (*ClickHouseExporter, error) {
	if len(cfg.Addr) == 0 {
		return nil, errors.New("analytics address is required")
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		DialTimeout:  10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	e := &ClickHouseExporter{
		conn:   conn,
		table:  fmt.Sprintf("%s.%s", cfg.Database, cfg.Table),
		logger: logger,
		now:    time.Now,
	}
	e.prepare = func(ctx context.Context, query string) (rowBatch, error) {
		return conn.PrepareBatch(ctx, query)
	}
	return e, nil
}

// EnsureTable creates the target table if it doesn't exist.
func (e *ClickHouseExporter) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			date                  Date,
			sku                   String,
			units                 Int64,
			revenue               Decimal(18, 4),
			amazon_fees           Decimal(18, 4),
			cogs                  Decimal(18, 4),
			promotional_discounts Decimal(18, 4),
			gross_profit          Decimal(18, 4),
			net_profit            Decimal(18, 4),
			margin_percent        Decimal(9, 4),
			exported_at           DateTime64(3)
		) ENGINE = ReplacingMergeTree(exported_at)
		ORDER BY (date, sku)
	`, e.table)

	if err := e.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create analytics table: %w", err)
	}
	return nil
}

// Export sends rows in one batch and returns how many were sent.
func (e *ClickHouseExporter) Export(ctx context.Context, rows []profit.DailyProfit) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batch, err := e.prepare(ctx, "INSERT INTO "+e.table)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}

	exportedAt := e.now().UTC()
	for _, r := range rows {
		err := batch.Append(
			r.Date.UTC(),
			r.SKU,
			r.Units,
			r.Revenue,
			r.AmazonFees,
			r.COGS,
			r.PromotionalDiscounts,
			r.GrossProfit,
			r.NetProfit,
			r.MarginPercent,
			exportedAt,
		)
		if err != nil {
			_ = batch.Abort()
			return 0, fmt.Errorf("failed to append %s %s: %w", r.Date.Format("2006-01-02"), r.SKU, err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch: %w", err)
	}

	e.logger.Info("Profit rows exported",
		zap.String("table", e.table),
		zap.Int("rows", len(rows)),
	)
	return len(rows), nil
}

// Close closes the connection
func (e *ClickHouseExporter) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}
