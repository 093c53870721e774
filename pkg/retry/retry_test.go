package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetrier(maxAttempts int, opts ...Option) *Retrier {
	base := []Option{
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(5 * time.Millisecond),
		WithJitter(0),
	}
	return New(append(base, opts...)...)
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := fastRetrier(3).Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesRetryableError(t *testing.T) {
	calls := 0
	err := fastRetrier(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("transient"))
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetryPlainError(t *testing.T) {
	plain := errors.New("boom")
	calls := 0
	err := fastRetrier(3).Do(context.Background(), func(context.Context) error {
		calls++
		return plain
	})

	assert.ErrorIs(t, err, plain)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	inner := errors.New("bad input")
	calls := 0
	err := fastRetrier(5).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(inner)
	})

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	inner := errors.New("still failing")
	calls := 0
	err := fastRetrier(4).Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(inner)
	})

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, 4, calls)
}

func TestDoHonorsRetryIf(t *testing.T) {
	transient := errors.New("deadlock detected")
	calls := 0
	r := fastRetrier(3, WithRetryIf(func(err error) bool {
		return errors.Is(err, transient)
	}))

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return transient
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := fastRetrier(3).Do(ctx, func(context.Context) error {
		calls++
		return Retryable(errors.New("transient"))
	})

	assert.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestDoCallsOnRetryCallback(t *testing.T) {
	attempts := []int{}
	r := fastRetrier(3, WithOnRetry(func(attempt int, _ error, _ time.Duration) {
		attempts = append(attempts, attempt)
	}))

	_ = r.Do(context.Background(), func(context.Context) error {
		return Retryable(errors.New("transient"))
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestIsRetryableAndIsPermanent(t *testing.T) {
	err := errors.New("x")

	assert.True(t, IsRetryable(Retryable(err)))
	assert.False(t, IsRetryable(err))
	assert.True(t, IsPermanent(Permanent(err)))
	assert.False(t, IsPermanent(err))
	assert.Nil(t, Retryable(nil))
	assert.Nil(t, Permanent(nil))
}

func TestDoWithData(t *testing.T) {
	calls := 0
	got, err := DoWithData(context.Background(), func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, Retryable(errors.New("transient"))
		}
		return 42, nil
	}, WithMaxAttempts(3), WithInitialDelay(time.Millisecond), WithJitter(0))

	assert.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
}
