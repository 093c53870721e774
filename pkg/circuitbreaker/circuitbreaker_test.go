package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func succeeding(context.Context) error { return nil }

func tripped(t *testing.T, opts ...Option) *CircuitBreaker {
	t.Helper()

	cb := New("test", append([]Option{WithFailureThreshold(3)}, opts...)...)
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), failing), errBoom)
	}
	assert.Equal(t, StateOpen, cb.State())
	return cb
}

func TestClosedCircuitPassesThrough(t *testing.T) {
	cb := New("test")

	assert.NoError(t, cb.Execute(context.Background(), succeeding))
	assert.Equal(t, StateClosed, cb.State())
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := New("test", WithFailureThreshold(2))

	assert.ErrorIs(t, cb.Execute(context.Background(), failing), errBoom)
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(context.Background(), failing), errBoom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestOpenCircuitFailsFast(t *testing.T) {
	cb := tripped(t)

	calls := 0
	err := cb.Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, calls, "blocked request never reaches the dependency")
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New("test", WithFailureThreshold(2))

	assert.ErrorIs(t, cb.Execute(context.Background(), failing), errBoom)
	assert.NoError(t, cb.Execute(context.Background(), succeeding))
	assert.ErrorIs(t, cb.Execute(context.Background(), failing), errBoom)

	assert.Equal(t, StateClosed, cb.State(), "non-consecutive failures do not trip")
}

func TestHalfOpenProbeClosesCircuit(t *testing.T) {
	cb := tripped(t, WithTimeout(10*time.Millisecond), WithSuccessThreshold(1))

	time.Sleep(15 * time.Millisecond)

	assert.NoError(t, cb.Execute(context.Background(), succeeding))
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(context.Background(), succeeding))
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	cb := tripped(t, WithTimeout(10*time.Millisecond), WithSuccessThreshold(1))

	time.Sleep(15 * time.Millisecond)

	assert.ErrorIs(t, cb.Execute(context.Background(), failing), errBoom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestIsFailurePredicate(t *testing.T) {
	benign := errors.New("not found")
	cb := New("test",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, benign) }),
	)

	assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return benign }), benign)
	assert.Equal(t, StateClosed, cb.State(), "benign errors are not failures")

	assert.ErrorIs(t, cb.Execute(context.Background(), failing), errBoom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestOnStateChangeCallback(t *testing.T) {
	var transitions []string
	cb := New("catalog",
		WithFailureThreshold(1),
		WithOnStateChange(func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		}),
	)

	assert.ErrorIs(t, cb.Execute(context.Background(), failing), errBoom)

	assert.Equal(t, []string{"catalog:closed->open"}, transitions)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
