package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/sellersync/internal/domain/job"
	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler runs one job. The returned value is stored as the job result.
// Handlers must return promptly once ctx is cancelled, after persisting
// whatever they have done so far.
type Handler func(ctx context.Context, j *job.Job, progress Progress) (any, error)

// Transport carries job ids from Enqueue and the poller to the workers.
// Delivery may be duplicated; the claim on the job row makes that harmless.
type Transport interface {
	Publish(ctx context.Context, id uuid.UUID) error
	Consume(ctx context.Context) (<-chan uuid.UUID, error)
	Close() error
}

// RunLocker serializes runs that share a key, across processes.
type RunLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// Config holds queue configuration
type Config struct {
	Workers       int
	MaxAttempts   int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	JobTimeout    time.Duration
	PollInterval  time.Duration
	RunLockTTL    time.Duration
}

// DefaultConfig returns default queue configuration
func DefaultConfig() Config {
	return Config{
		Workers:       3,
		MaxAttempts:   3,
		RetryDelay:    30 * time.Second,
		MaxRetryDelay: 30 * time.Minute,
		JobTimeout:    6 * time.Hour,
		PollInterval:  5 * time.Second,
		RunLockTTL:    10 * time.Minute,
	}
}

type registration struct {
	handler Handler
	lockKey string
}

// HandlerOption configures a registered handler.
type HandlerOption func(*registration)

// WithLockKey sets the run lock shared by the handler's jobs. Jobs with the
// same key never run at the same time. An empty key disables locking. The
// default key is the job type.
func WithLockKey(key string) HandlerOption {
	return func(r *registration) { r.lockKey = key }
}

// Queue is a durable job queue backed by job.Repository. Jobs are claimed
// with a conditional update, retried with exponential backoff and cancelled
// cooperatively.
type Queue struct {
	config    Config
	repo      job.Repository
	transport Transport
	locker    RunLocker
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	handlers  map[job.Type]registration
	running   map[uuid.UUID]context.CancelFunc
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
}

// NewQueue creates a new queue. A nil transport dispatches in process; a nil
// locker disables run locks.
func NewQueue(config Config, repo job.Repository, transport Transport, locker RunLocker, logger *zap.Logger) *Queue {
	def := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.RunLockTTL <= 0 {
		config.RunLockTTL = def.RunLockTTL
	}
	if transport == nil {
		transport = NewChannelTransport(100)
	}
	return &Queue{
		config:    config,
		repo:      repo,
		transport: transport,
		locker:    locker,
		logger:    logger,
		now:       time.Now,
		handlers:  make(map[job.Type]registration),
		running:   make(map[uuid.UUID]context.CancelFunc),
	}
}

// Register binds a handler to a job type. It must be called before Start.
func (q *Queue) Register(jobType job.Type, handler Handler, opts ...HandlerOption) {
	reg := registration{handler: handler, lockKey: string(jobType)}
	for _, opt := range opts {
		opt(&reg)
	}
	q.mu.Lock()
	q.handlers[jobType] = reg
	q.mu.Unlock()
}

// Start resets jobs orphaned by a previous process and starts the workers
// and the poller.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.isRunning {
		q.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.isRunning = true
	q.mu.Unlock()

	reset, err := q.repo.ResetOrphaned(ctx, q.now().UTC())
	if err != nil {
		q.abortStart()
		return fmt.Errorf("reset orphaned jobs: %w", err)
	}
	if reset > 0 {
		q.logger.Warn("Requeued jobs interrupted by a previous shutdown", zap.Int64("count", reset))
	}

	deliveries, err := q.transport.Consume(ctx)
	if err != nil {
		q.abortStart()
		return fmt.Errorf("consume job transport: %w", err)
	}

	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i, deliveries)
	}
	q.wg.Add(1)
	go q.pollLoop(ctx)

	q.logger.Info("Job queue started",
		zap.Int("workers", q.config.Workers),
		zap.Int("max_attempts", q.config.MaxAttempts),
		zap.Duration("poll_interval", q.config.PollInterval),
	)
	return nil
}

func (q *Queue) abortStart() {
	q.mu.Lock()
	q.cancel()
	q.isRunning = false
	q.mu.Unlock()
}

// Stop cancels running handlers and waits for the workers to exit.
// Interrupted jobs go back to PENDING.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	cancel := q.cancel
	q.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Job queue stopped gracefully")
		return q.transport.Close()
	case <-ctx.Done():
		q.logger.Warn("Job queue stop timed out")
		return ctx.Err()
	}
}

// Enqueue stores a new job and dispatches it. payload is JSON-encoded
// unless it already is raw JSON.
func (q *Queue) Enqueue(ctx context.Context, jobType job.Type, payload any) (uuid.UUID, error) {
	if _, ok := q.handler(jobType); !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}

	var data []byte
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return uuid.Nil, fmt.Errorf("encode payload: %w", err)
		}
		data = encoded
	}

	j := job.New(jobType, data, q.config.MaxAttempts, q.now().UTC())
	if err := q.repo.Create(ctx, j); err != nil {
		return uuid.Nil, fmt.Errorf("create job: %w", err)
	}
	q.dispatch(ctx, j.ID)

	q.logger.Info("Job enqueued",
		zap.String("job_id", j.ID.String()),
		zap.String("job_type", string(jobType)),
	)
	return j.ID, nil
}

// Get returns a job by id.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	j, err := q.repo.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	return j, err
}

// List returns jobs matching filter, newest first.
func (q *Queue) List(ctx context.Context, filter job.Filter) ([]job.Job, error) {
	return q.repo.List(ctx, filter)
}

// Cancel cancels a pending job outright and asks a running one to stop.
func (q *Queue) Cancel(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	j, err := q.repo.RequestCancel(ctx, id, q.now().UTC())
	if errors.Is(err, shared.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	stop := q.running[id]
	q.mu.Unlock()
	if stop != nil {
		stop()
	}

	q.logger.Info("Job cancellation requested",
		zap.String("job_id", id.String()),
		zap.String("status", string(j.Status)),
	)
	return j, nil
}

func (q *Queue) handler(jobType job.Type) (registration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	reg, ok := q.handlers[jobType]
	return reg, ok
}

func (q *Queue) dispatch(ctx context.Context, id uuid.UUID) {
	if err := q.transport.Publish(ctx, id); err != nil {
		q.logger.Warn("Job dispatch deferred to poller",
			zap.String("job_id", id.String()),
			zap.Error(err),
		)
	}
}

// pollLoop re-dispatches due jobs: retries whose backoff has passed, jobs
// whose dispatch was lost, and jobs that found their run lock taken.
func (q *Queue) pollLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := q.repo.DueIDs(ctx, q.now().UTC(), 100)
			if err != nil {
				if ctx.Err() == nil {
					q.logger.Warn("Failed to poll due jobs", zap.Error(err))
				}
				continue
			}
			for _, id := range ids {
				if err := q.transport.Publish(ctx, id); err != nil {
					break
				}
			}
		}
	}
}

// Backoff returns the delay before the given attempt is retried:
// base * 2^(attempt-1), capped at maxDelay.
func Backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}
