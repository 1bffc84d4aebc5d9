package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/erp/sellersync/internal/domain/job"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Enqueuer accepts new jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType job.Type, payload any) (uuid.UUID, error)
}

// ScheduledEntry describes one registered cron trigger.
type ScheduledEntry struct {
	JobType job.Type  `json:"job_type"`
	Spec    string    `json:"spec"`
	Next    time.Time `json:"next_run_at"`
}

// CronTrigger enqueues jobs on cron schedules.
type CronTrigger struct {
	cron    *cron.Cron
	queue   Enqueuer
	logger  *zap.Logger
	timeout time.Duration

	mu        sync.Mutex
	entries   map[job.Type]cronEntry
	isRunning bool
}

type cronEntry struct {
	id   cron.EntryID
	spec string
}

// NewCronTrigger creates a trigger evaluating schedules in loc (UTC when nil).
func NewCronTrigger(queue Enqueuer, loc *time.Location, logger *zap.Logger) *CronTrigger {
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger: logger.Sugar()}
	return &CronTrigger{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		queue:   queue,
		logger:  logger,
		timeout: 30 * time.Second,
		entries: make(map[job.Type]cronEntry),
	}
}

// Add schedules jobType with the standard five-field spec. An empty spec
// leaves the type unscheduled.
func (c *CronTrigger) Add(spec string, jobType job.Type, payload any) error {
	if spec == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries[jobType]; ok {
		c.cron.Remove(prev.id)
	}
	id, err := c.cron.AddFunc(spec, func() { c.fire(jobType, payload) })
	if err != nil {
		return fmt.Errorf("%w: cron %q for %s: %v", ErrInvalidConfig, spec, jobType, err)
	}
	c.entries[jobType] = cronEntry{id: id, spec: spec}
	return nil
}

// Start starts evaluating schedules
func (c *CronTrigger) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return
	}
	c.isRunning = true
	c.cron.Start()
	c.logger.Info("Cron trigger started", zap.Int("entries", len(c.entries)))
}

// Stop stops the trigger and waits for in-flight enqueues.
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	select {
	case <-c.cron.Stop().Done():
		c.logger.Info("Cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerNow enqueues jobType immediately, outside its schedule.
func (c *CronTrigger) TriggerNow(ctx context.Context, jobType job.Type, payload any) (uuid.UUID, error) {
	id, err := c.queue.Enqueue(ctx, jobType, payload)
	if err != nil {
		return uuid.Nil, err
	}
	c.logger.Info("Manual trigger enqueued",
		zap.String("job_type", string(jobType)),
		zap.String("job_id", id.String()),
	)
	return id, nil
}

// Entries lists the registered schedules with their next fire time.
func (c *CronTrigger) Entries() []ScheduledEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ScheduledEntry, 0, len(c.entries))
	for jobType, e := range c.entries {
		next := c.cron.Entry(e.id).Next
		if next.IsZero() {
			if sched, err := cron.ParseStandard(e.spec); err == nil {
				next = sched.Next(time.Now().In(c.cron.Location()))
			}
		}
		out = append(out, ScheduledEntry{JobType: jobType, Spec: e.spec, Next: next})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].JobType < out[k].JobType })
	return out
}

func (c *CronTrigger) fire(jobType job.Type, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	id, err := c.queue.Enqueue(ctx, jobType, payload)
	if err != nil {
		c.logger.Error("Scheduled enqueue failed",
			zap.String("job_type", string(jobType)),
			zap.Error(err),
		)
		return
	}
	c.logger.Info("Scheduled job enqueued",
		zap.String("job_type", string(jobType)),
		zap.String("job_id", id.String()),
	)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
