// Package profit maintains the daily profit projection and the sales
// velocity read model.
package profit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/erp/sellersync/internal/domain/profit"
	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/erp/sellersync/internal/domain/syncrun"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const day = 24 * time.Hour

// ErrExportDisabled is returned by Export when no analytics store is
// configured.
var ErrExportDisabled = errors.New("profit: analytics export is not configured")

// DefaultRebuildDays is the window rebuilt when a request names none.
const DefaultRebuildDays = 90

// Service rebuilds and reads the projection.
type Service struct {
	repo     profit.Repository
	logs     syncrun.Repository
	exporter profit.Exporter
	recorder syncrun.Recorder
	logger   *zap.Logger
	now      marketplace.Clock
}

// Option configures a Service.
type Option func(*Service)

// WithExporter enables Export.
func WithExporter(e profit.Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

// WithClock overrides the time source.
func WithClock(clock marketplace.Clock) Option {
	return func(s *Service) { s.now = clock }
}

// WithRecorder reports run metrics to r.
func WithRecorder(r syncrun.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewService creates a new Service
func NewService(repo profit.Repository, logs syncrun.Repository, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		logs:     logs,
		recorder: syncrun.NopRecorder{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rebuild re-aggregates the last days days, today included.
func (s *Service) Rebuild(ctx context.Context, days int, jobID *uuid.UUID) (*syncrun.SyncLog, error) {
	if days <= 0 {
		days = DefaultRebuildDays
	}
	started := s.now().UTC()
	to := startOfDay(started).Add(day)
	from := to.Add(-time.Duration(days) * day)

	run := syncrun.NewSyncLog(syncrun.SyncTypeDailyProfit, started)
	run.JobID = jobID
	if err := s.logs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create sync log: %w", err)
	}

	n, err := s.repo.Rebuild(ctx, from, to)
	if err != nil {
		run.Fail(fmt.Errorf("rebuild daily profit: %w", err), s.now())
	} else {
		run.Counters.Processed = n
		run.Counters.Created = n
		run.Succeed(s.now())
	}
	if saveErr := s.logs.Save(context.WithoutCancel(ctx), run); saveErr != nil {
		return run, fmt.Errorf("save sync log: %w", saveErr)
	}
	s.recorder.RecordCounters(ctx, syncrun.SyncTypeDailyProfit, run.Counters)
	s.recorder.RecordRun(ctx, syncrun.SyncTypeDailyProfit, run.Status, s.now().Sub(started))

	s.logger.Info("Daily profit rebuilt",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("rows", n),
		zap.String("status", string(run.Status)),
	)
	if err != nil {
		return run, fmt.Errorf("rebuild daily profit: %w", err)
	}
	return run, nil
}

// Daily returns projection rows dated in [from, to).
func (s *Service) Daily(ctx context.Context, from, to time.Time) ([]profit.DailyProfit, error) {
	if !from.Before(to) {
		return nil, shared.NewDomainError("INVALID_RANGE", "from must be before to")
	}
	return s.repo.List(ctx, from, to)
}

// Velocity returns units per day per SKU over the last days days.
func (s *Service) Velocity(ctx context.Context, days int) ([]profit.Velocity, error) {
	if days <= 0 {
		days = 30
	}
	since := startOfDay(s.now().UTC()).Add(day).Add(-time.Duration(days) * day)
	return s.repo.Velocity(ctx, since, days)
}

// Export ships projection rows dated in [from, to) to the analytics store.
func (s *Service) Export(ctx context.Context, from, to time.Time) (int, error) {
	if s.exporter == nil {
		return 0, ErrExportDisabled
	}
	rows, err := s.Daily(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := s.exporter.Export(ctx, rows)
	if err != nil {
		return n, fmt.Errorf("export daily profit: %w", err)
	}
	s.logger.Info("Daily profit exported", zap.Int("rows", n))
	return n, nil
}

// ExportRecent exports the last days days.
func (s *Service) ExportRecent(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		days = 7
	}
	to := startOfDay(s.now().UTC()).Add(day)
	return s.Export(ctx, to.Add(-time.Duration(days)*day), to)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
