package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time          { return c.t }
func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func failing(context.Context) error { return errors.New("down") }
func passing(context.Context) error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &manualClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := New("test",
		WithFailureThreshold(2),
		WithTimeout(time.Minute),
		WithClock(clock.now),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)

	assert.Error(t, cb.Execute(context.Background(), failing))
	assert.Equal(t, StateClosed, cb.State())
	assert.Error(t, cb.Execute(context.Background(), failing))
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), passing)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejected(err))

	clock.advance(time.Minute)
	assert.NoError(t, cb.Execute(context.Background(), passing))
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.NoError(t, cb.Execute(context.Background(), passing))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &manualClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Second), WithClock(clock.now))

	_ = cb.Execute(context.Background(), failing)
	clock.advance(time.Second)
	_ = cb.Execute(context.Background(), failing)

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), passing), ErrCircuitOpen)
}

func TestBreaker_CancellationIsNotAFailure(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))

	err := cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Counts().TotalSuccesses)
}

func TestCall_ReturnsValue(t *testing.T) {
	cb := LedgerBreaker(nil, nil)

	v, err := Call(context.Background(), cb, func(context.Context) (int, error) { return 42, nil })

	assert.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, "ledger-db", cb.Name())

	cb.Reset()
	assert.Zero(t, cb.Counts().Requests)
}

func TestBreaker_IsFailureFiltersErrors(t *testing.T) {
	errNotFound := errors.New("not found")
	cb := New("test",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, errNotFound) }),
	)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return errNotFound }), errNotFound)
	}
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Execute(context.Background(), failing)
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreaker_HalfOpenQuotaAndSuccessThreshold(t *testing.T) {
	clock := &manualClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(2),
		WithMaxHalfOpenRequests(1),
		WithTimeout(time.Second),
		WithClock(clock.now),
	)
	_ = cb.Execute(context.Background(), failing)
	clock.advance(time.Second)

	// The first call after the cool-down is the only half-open request allowed in flight.
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		assert.ErrorIs(t, cb.Execute(ctx, passing), ErrTooManyRequests)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, StateHalfOpen, cb.State())

	assert.NoError(t, cb.Execute(context.Background(), passing))
	assert.Equal(t, StateClosed, cb.State())
}

func TestLedgerBreaker_UsesFailureFilter(t *testing.T) {
	errRejected := errors.New("check violation")
	cb := LedgerBreaker(nil, func(err error) bool { return !errors.Is(err, errRejected) })

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return errRejected })
	}
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failing)
	}
	assert.Equal(t, StateOpen, cb.State())
}
