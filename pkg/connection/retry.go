package connection

import (
	"context"
	"errors"
	"fmt"
)

// ErrGiveUp is returned by Retry once the attempt limit is reached. The
// last operation error is joined to it.
var ErrGiveUp = errors.New("giving up after retries")

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// OnRetry is called before sleeping between attempts.
type OnRetry func(attempt int, err error)

// Retry runs fn until it succeeds, returns a *Permanent error, ctx is done,
// or maxAttempts calls have failed. maxAttempts <= 0 retries forever.
// The backoff is reset on success.
func Retry(ctx context.Context, b *Backoff, maxAttempts int, onRetry OnRetry, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			b.Reset()
			return nil
		}

		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return errors.Join(fmt.Errorf("%w (%d attempts)", ErrGiveUp, attempt), err)
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if werr := b.Wait(ctx); werr != nil {
			return errors.Join(werr, err)
		}
	}
}
