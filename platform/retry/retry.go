// Package retry runs short, bounded retries around store writes.
// This is part of the platform layer and contains no business logic.
package retry

import (
	"context"
	"time"

	"tour_portal_backend/platform/apperr"

	goretry "github.com/sethvargo/go-retry"
)

const (
	// DefaultAttempts is the total number of tries, including the first one.
	DefaultAttempts = 3
	// DefaultBackoff is the fixed delay between tries.
	DefaultBackoff = 200 * time.Millisecond
)

// Policy describes a fixed-backoff retry loop.
type Policy struct {
	Attempts int
	Backoff  time.Duration
}

// Default returns the policy used for lead store writes.
func Default() Policy {
	return Policy{Attempts: DefaultAttempts, Backoff: DefaultBackoff}
}

// Do calls fn until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done. Permanent errors (not found, conflict, validation)
// are returned after the first try.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = time.Millisecond
	}

	b := goretry.WithMaxRetries(uint64(attempts-1), goretry.NewConstant(backoff))
	return goretry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || apperr.IsPermanent(err) {
			return err
		}
		return goretry.RetryableError(err)
	})
}
