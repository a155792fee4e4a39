package troubleshoot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrStageTimeout is recorded when a stage misses its deadline.
var ErrStageTimeout = errors.New("stage deadline exceeded")

// outcome is a settled stage: its value, or the fallback and the cause.
type outcome[T any] struct {
	value T
	err   error
}

func (o outcome[T]) failed() bool { return o.err != nil }

// settle schedules fn on g. The group itself never fails: fn's error, panic
// or missed deadline is stored in out with fallback as the value.
func settle[T any](ctx context.Context, g *errgroup.Group, timeout time.Duration, fn func(context.Context) (T, error), fallback T, out *outcome[T]) {
	g.Go(func() error {
		*out = runStage(ctx, timeout, fn, fallback)
		return nil
	})
}

// runStage runs fn with panic recovery and an optional deadline. A timeout
// of zero means no deadline.
func runStage[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error), fallback T) outcome[T] {
	if timeout <= 0 {
		return call(ctx, fn, fallback)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() { done <- call(ctx, fn, fallback) }()

	select {
	case o := <-done:
		return o
	case <-ctx.Done():
		return outcome[T]{value: fallback, err: ErrStageTimeout}
	}
}

func call[T any](ctx context.Context, fn func(context.Context) (T, error), fallback T) (o outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			o = outcome[T]{value: fallback, err: fmt.Errorf("panic: %v", r)}
		}
	}()

	v, err := fn(ctx)
	if err != nil {
		return outcome[T]{value: fallback, err: err}
	}
	return outcome[T]{value: v}
}
