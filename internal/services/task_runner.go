package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTaskTimeout bounds a single detached task
const DefaultTaskTimeout = 30 * time.Second

// TaskRunner runs side effects detached from the request that triggered them.
// A task's error or panic is logged and never reaches the caller.
type TaskRunner struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *logrus.Logger
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(timeout time.Duration, logger *logrus.Logger) *TaskRunner {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &TaskRunner{
		timeout: timeout,
		logger:  logger,
	}
}

// Go starts fn on its own goroutine with a fresh context bounded by the runner's timeout
func (r *TaskRunner) Go(name string, fields logrus.Fields, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		entry := r.logger.WithField("task", name).WithFields(fields)
		defer func() {
			if rec := recover(); rec != nil {
				entry.WithField("panic", fmt.Sprint(rec)).Error("Detached task panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			entry.WithError(err).Warn("Detached task failed")
			return
		}
		entry.WithField("duration", time.Since(start).String()).Debug("Detached task finished")
	}()
}

// Wait blocks until every started task returns or ctx is done
func (r *TaskRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
