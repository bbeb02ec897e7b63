package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/openmined/syncmirror/internal/remote"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy retries an operation once per entry in Delays, sleeping that
// long before each retry.
type RetryPolicy struct {
	Name   string
	Delays []time.Duration
}

var (
	// FolderRetryPolicy covers folder listing and creation: 3 attempts.
	FolderRetryPolicy = RetryPolicy{Name: "folder", Delays: []time.Duration{1 * time.Second, 2 * time.Second}}

	// TransferRetryPolicy covers file uploads, downloads and metadata: 3 attempts.
	TransferRetryPolicy = RetryPolicy{Name: "transfer", Delays: []time.Duration{2 * time.Second, 2 * time.Second}}

	// RootLookupRetryPolicy is used when pull looks for the remote root.
	RootLookupRetryPolicy = RootLookupPolicy{Attempts: 3, NotFoundDelay: 1 * time.Second, ErrorDelay: 2 * time.Second}
)

func (p RetryPolicy) Attempts() int {
	return len(p.Delays) + 1
}

func (p RetryPolicy) backoff() retry.Backoff {
	next := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		if next >= len(p.Delays) {
			return 0, true
		}
		d := p.Delays[next]
		next++
		return d, false
	})
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// attempts run out. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !remote.IsRetryable(err) {
			return err
		}
		if attempt < p.Attempts() {
			slog.Warn("retrying", "policy", p.Name, "op", op, "attempt", attempt, "of", p.Attempts(), "error", err)
		}
		return retry.RetryableError(err)
	})
}

// RootLookupPolicy waits differently for "not there yet" and for errors.
type RootLookupPolicy struct {
	Attempts      int
	NotFoundDelay time.Duration
	ErrorDelay    time.Duration
}
