package records

import (
	"context"
	"errors"
	"time"
)

// pollConfig controls a bounded polling loop.
type pollConfig struct {
	maxAttempts int
	delay       time.Duration
}

// errPollExhausted is returned by poll when fn never reported done.
var errPollExhausted = errors.New("poll attempts exhausted")

// poll calls fn until it reports done or fails, waiting delay between calls.
// It gives up with errPollExhausted after maxAttempts calls and returns the
// number of calls made.
func poll(ctx context.Context, cfg pollConfig, fn func() (bool, error)) (int, error) {
	for attempt := 1; ; attempt++ {
		done, err := fn()
		if err != nil {
			return attempt, err
		}
		if done {
			return attempt, nil
		}
		if attempt >= cfg.maxAttempts {
			return attempt, errPollExhausted
		}
		t := time.NewTimer(cfg.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return attempt, ctx.Err()
		case <-t.C:
		}
	}
}
