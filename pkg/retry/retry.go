package retry

import (
	"context"
	"errors"
	"time"

	"github.com/wonny/aegis-metrics/pkg/clock"
)

// Policy is the single bounded-retry policy shared by every remote call site
// (source fetches and sink upserts).
// ⭐ SSOT: 재시도/백오프 정책은 여기서만
type Policy struct {
	MaxAttempts  int           // total attempts including the first one
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // backoff cap
	Clock        clock.Clock
}

// Attempt describes a failed attempt that is about to be retried
type Attempt struct {
	Number int // 1-based attempt that failed
	Delay  time.Duration
	Err    error
}

// Classifier reports whether err is worth another attempt
type Classifier func(err error) bool

// ErrExhausted marks an error returned after all attempts failed
var ErrExhausted = errors.New("retry attempts exhausted")

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is exhausted. Backoff doubles from InitialDelay up to MaxDelay.
// The returned error is the last error from fn, wrapped with ErrExhausted
// when the budget ran out.
func (p Policy) Do(ctx context.Context, retryable Classifier, onRetry func(Attempt), fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	delay := p.InitialDelay
	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if retryable == nil || !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		if onRetry != nil {
			onRetry(Attempt{Number: attempt, Delay: delay, Err: err})
		}
		if sleepErr := clk.Sleep(ctx, delay); sleepErr != nil {
			return errors.Join(err, sleepErr)
		}

		// Exponential backoff
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return &exhaustedError{err: err, attempts: attempts}
}

type exhaustedError struct {
	err      error
	attempts int
}

func (e *exhaustedError) Error() string {
	return e.err.Error()
}

// Unwrap exposes both the sentinel and the last cause to errors.Is/As
func (e *exhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.err}
}

// Attempts returns how many attempts were made before giving up
func Attempts(err error) int {
	var ex *exhaustedError
	if errors.As(err, &ex) {
		return ex.attempts
	}
	return 0
}
