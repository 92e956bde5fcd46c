package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRunner(t *testing.T) {
	runner := NewTaskRunner(time.Second, newTestLogger())

	var ran atomic.Int32
	runner.Go("ok", nil, func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})
	runner.Go("fails", nil, func(ctx context.Context) error {
		ran.Add(1)
		return errors.New("smtp down")
	})
	runner.Go("panics", nil, func(ctx context.Context) error {
		ran.Add(1)
		panic("boom")
	})

	require.NoError(t, runner.Wait(context.Background()))
	assert.Equal(t, int32(3), ran.Load())
}

func TestTaskRunner_TaskContextHasDeadline(t *testing.T) {
	runner := NewTaskRunner(50*time.Millisecond, newTestLogger())

	var hadDeadline atomic.Bool
	runner.Go("deadline", nil, func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		hadDeadline.Store(ok)
		<-ctx.Done()
		return ctx.Err()
	})

	require.NoError(t, runner.Wait(context.Background()))
	assert.True(t, hadDeadline.Load())
}

func TestTaskRunner_WaitRespectsContext(t *testing.T) {
	runner := NewTaskRunner(time.Second, newTestLogger())
	release := make(chan struct{})
	defer close(release)

	runner.Go("slow", nil, func(ctx context.Context) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, runner.Wait(ctx), context.DeadlineExceeded)
}
