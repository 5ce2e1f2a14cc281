package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"tour_portal_backend/platform/apperr"
)

func TestDoRetriesTransientErrorsUpToAttempts(t *testing.T) {
	p := Policy{Attempts: 3, Backoff: time.Millisecond}
	transient := errors.New("connection reset")
	calls := 0

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoStopsOnSuccess(t *testing.T) {
	p := Policy{Attempts: 3, Backoff: time.Millisecond}
	calls := 0

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("temporary")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	p := Policy{Attempts: 3, Backoff: time.Millisecond}
	calls := 0

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return apperr.NotFound("lead not found")
	})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}
