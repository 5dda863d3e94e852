/*
Copyright 2025 Canonical Ltd.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package kube

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
)

// CheckSettings bound how long RetryCheck keeps observing a resource.
type CheckSettings struct {
	// Attempts is the maximum number of times the check runs.
	Attempts int
	// Delay is the pause between attempts.
	Delay time.Duration
	// MinObservations is how many consecutive successes are required.
	MinObservations int
}

// Default settings for readiness checks of cluster workloads.
var DefaultCheckSettings = CheckSettings{
	Attempts:        30,
	Delay:           2 * time.Second,
	MinObservations: 5,
}

// FatalError stops RetryCheck immediately.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal marks err as not worth retrying.
func Fatal(err error) error {
	return &FatalError{Err: err}
}

var errNotEnoughObservations = errors.New("not enough successful observations")

// RetryCheck runs check until it has succeeded MinObservations times in a
// row. A failed check resets the count. When the attempts run out the last
// check error is returned. Errors wrapped with Fatal are returned at once,
// unwrapped.
func RetryCheck(ctx context.Context, settings CheckSettings, check func(context.Context) error) error {
	return RetryCheckWithClock(ctx, clock.WallClock, settings, check)
}

// RetryCheckWithClock is RetryCheck with an explicit clock.
func RetryCheckWithClock(ctx context.Context, clk clock.Clock, settings CheckSettings, check func(context.Context) error) error {
	minObservations := settings.MinObservations
	if minObservations < 1 {
		minObservations = 1
	}
	attempts := settings.Attempts
	if attempts < minObservations {
		attempts = minObservations
	}
	delay := settings.Delay
	if delay <= 0 {
		delay = time.Millisecond
	}

	observations := 0
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if err := check(ctx); err != nil {
				observations = 0
				lastErr = err
				return err
			}
			observations++
			if observations < minObservations {
				return errNotEnoughObservations
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			var fatal *FatalError
			return errors.As(err, &fatal)
		},
		Attempts: attempts,
		Delay:    delay,
		Clock:    clk,
		Stop:     ctx.Done(),
	})
	if err == nil {
		return nil
	}

	var fatal *FatalError
	if errors.As(err, &fatal) {
		return fatal.Err
	}
	if retry.IsRetryStopped(err) {
		return ctx.Err()
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("check did not succeed %d times in a row within %d attempts", minObservations, attempts)
}
