// SPDX-License-Identifier: Apache-2.0
// Package resilience provides timeout and retry helpers for action dispatch and
// generator calls.
package resilience

import (
	"context"
	"time"

	"github.com/jllopis/nerve/pkg/errors"
)

// WithTimeout executes fn with a timeout boundary. A zero or negative duration
// runs fn to completion on the caller's goroutine.
//
// fn receives a context carrying the deadline. When the deadline fires first
// WithTimeout returns errors.CodeTimeout immediately; fn keeps running in its
// goroutine until it observes the cancelled context.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		value, err := fn(ctx)
		done <- result{value, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, errors.New(errors.CodeTimeout, "operation exceeded timeout", ctx.Err()).
			WithContext("timeout", timeout.String()).
			WithRecoverable(true)
	case res := <-done:
		return res.value, res.err
	}
}
