package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/erp/sellersync/internal/domain/job"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (q *Queue) worker(ctx context.Context, workerID int, deliveries <-chan uuid.UUID) {
	defer q.wg.Done()

	q.logger.Debug("Worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			q.logger.Debug("Worker stopping", zap.Int("worker_id", workerID))
			return
		case id, ok := <-deliveries:
			if !ok {
				return
			}
			q.process(ctx, id, workerID)
		}
	}
}

func (q *Queue) process(ctx context.Context, id uuid.UUID, workerID int) {
	j, err := q.repo.FindByID(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Warn("Failed to load delivered job", zap.String("job_id", id.String()), zap.Error(err))
		}
		return
	}
	if j.Status != job.StatusPending || j.CancelRequested || j.NextRunAt.After(q.now().UTC()) {
		return
	}

	reg, ok := q.handler(j.Type)
	if !ok {
		if claimed, _ := q.repo.Claim(ctx, id, q.now().UTC()); claimed {
			msg := fmt.Sprintf("%s: %s", ErrUnknownJobType, j.Type)
			_ = q.repo.Fail(ctx, id, msg, q.now().UTC())
		}
		return
	}

	release, acquired := q.acquire(ctx, reg.lockKey)
	if !acquired {
		q.logger.Debug("Run lock held elsewhere; job left pending",
			zap.String("job_id", id.String()),
			zap.String("lock_key", reg.lockKey),
		)
		return
	}
	defer release()

	claimed, err := q.repo.Claim(ctx, id, q.now().UTC())
	if err != nil || !claimed {
		return
	}
	j.Status = job.StatusRunning
	j.Attempts++

	logger := q.logger.With(
		zap.String("job_id", id.String()),
		zap.String("job_type", string(j.Type)),
		zap.Int("attempt", j.Attempts),
		zap.Int("worker_id", workerID),
	)
	logger.Info("Job started")

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if q.config.JobTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, q.config.JobTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	q.track(id, cancel)
	defer q.untrack(id)
	go q.watchCancel(runCtx, id, cancel)

	started := time.Now()
	progress := &jobProgress{repo: q.repo, id: id, logger: logger}
	result, runErr := q.run(runCtx, reg.handler, j, progress)
	cancel()

	q.finish(context.WithoutCancel(ctx), j, result, runErr, ctx.Err() != nil, logger, time.Since(started))
}

func (q *Queue) run(ctx context.Context, handler Handler, j *job.Job, progress Progress) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Job handler panicked",
				zap.String("job_id", j.ID.String()),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(ctx, j, progress)
}

func (q *Queue) finish(ctx context.Context, j *job.Job, result any, runErr error, stopping bool, logger *zap.Logger, elapsed time.Duration) {
	now := q.now().UTC()

	requested, err := q.repo.CancelRequested(ctx, j.ID)
	if err != nil {
		logger.Warn("Failed to read cancel flag", zap.Error(err))
	}

	switch {
	case requested:
		err = q.repo.MarkCancelled(ctx, j.ID, now)
		logger.Info("Job cancelled", zap.Duration("elapsed", elapsed))
	case runErr == nil:
		err = q.repo.Complete(ctx, j.ID, encodeResult(result), now)
		logger.Info("Job succeeded", zap.Duration("elapsed", elapsed))
	case stopping && !IsPermanent(runErr):
		err = q.repo.Reschedule(ctx, j.ID, "interrupted by shutdown", now)
		logger.Warn("Job interrupted by shutdown", zap.Error(runErr))
	case IsPermanent(runErr) || !j.AttemptsLeft():
		err = q.repo.Fail(ctx, j.ID, runErr.Error(), now)
		logger.Error("Job failed", zap.Error(runErr), zap.Duration("elapsed", elapsed))
	default:
		delay := Backoff(q.config.RetryDelay, q.config.MaxRetryDelay, j.Attempts)
		err = q.repo.Reschedule(ctx, j.ID, runErr.Error(), now.Add(delay))
		logger.Warn("Job attempt failed; retry scheduled",
			zap.Error(runErr),
			zap.Duration("retry_in", delay),
		)
	}
	if err != nil {
		logger.Error("Failed to record job outcome", zap.Error(err))
	}
}

// watchCancel polls the cancel flag so a cancellation requested through
// another process still stops the handler.
func (q *Queue) watchCancel(ctx context.Context, id uuid.UUID, cancel context.CancelFunc) {
	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requested, err := q.repo.CancelRequested(ctx, id)
			if err == nil && requested {
				cancel()
				return
			}
		}
	}
}

func (q *Queue) track(id uuid.UUID, cancel context.CancelFunc) {
	q.mu.Lock()
	q.running[id] = cancel
	q.mu.Unlock()
}

func (q *Queue) untrack(id uuid.UUID) {
	q.mu.Lock()
	delete(q.running, id)
	q.mu.Unlock()
}

// acquire takes the run lock for key and keeps it alive until release is
// called. A lock backend error counts as not acquired.
func (q *Queue) acquire(ctx context.Context, key string) (release func(), ok bool) {
	if q.locker == nil || key == "" {
		return func() {}, true
	}
	ttl := q.config.RunLockTTL
	token, ok, err := q.locker.TryLock(ctx, key, ttl)
	if err != nil {
		q.logger.Warn("Run lock unavailable", zap.String("lock_key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				held, err := q.locker.Extend(context.WithoutCancel(ctx), key, token, ttl)
				if err != nil || !held {
					q.logger.Warn("Run lock keepalive failed", zap.String("lock_key", key), zap.Error(err))
				}
			}
		}
	}()

	return func() {
		close(stop)
		wg.Wait()
		if err := q.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			q.logger.Warn("Failed to release run lock", zap.String("lock_key", key), zap.Error(err))
		}
	}, true
}

func encodeResult(result any) string {
	if result == nil {
		return ""
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}
