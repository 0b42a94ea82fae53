package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome int

const (
	fail outcome = iota
	ok
)

// drive feeds outcomes into the breaker and returns the transitions seen.
func drive(b *Breaker, outcomes ...outcome) (opened, closed int) {
	for _, o := range outcomes {
		var change StateChange
		if o == fail {
			_, change = b.RecordFailure()
		} else {
			_, change = b.RecordSuccess()
		}
		if change.Opened {
			opened++
		}
		if change.Closed {
			closed++
		}
	}
	return opened, closed
}

func TestNewBreakerIsClosed(t *testing.T) {
	b := New("sendgrid")

	assert.Equal(t, "sendgrid", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
	assert.True(t, b.Allow())
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		successes  int
		outcomes   []outcome
		wantState  State
		wantOpened int
		wantClosed int
	}{
		{
			name:      "failures below threshold keep it closed",
			failures:  3,
			outcomes:  []outcome{fail, fail},
			wantState: StateClosed,
		},
		{
			name:       "threshold failures open it once",
			failures:   3,
			outcomes:   []outcome{fail, fail, fail, fail},
			wantState:  StateOpen,
			wantOpened: 1,
		},
		{
			name:      "a success in between restarts the failure run",
			failures:  3,
			outcomes:  []outcome{fail, fail, ok, fail, fail},
			wantState: StateClosed,
		},
		{
			name:       "successes close an open circuit",
			failures:   1,
			successes:  2,
			outcomes:   []outcome{fail, ok, ok},
			wantState:  StateClosed,
			wantOpened: 1,
			wantClosed: 1,
		},
		{
			name:       "a success while open moves to half-open",
			failures:   1,
			successes:  3,
			outcomes:   []outcome{fail, ok, ok},
			wantState:  StateHalfOpen,
			wantOpened: 1,
		},
		{
			name:       "a failure while half-open reopens and restarts the success run",
			failures:   1,
			successes:  2,
			outcomes:   []outcome{fail, ok, fail, ok},
			wantState:  StateHalfOpen,
			wantOpened: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []Option{WithFailureThreshold(tt.failures)}
			if tt.successes > 0 {
				opts = append(opts, WithSuccessThreshold(tt.successes))
			}
			b := New("mail", opts...)

			opened, closed := drive(b, tt.outcomes...)

			assert.Equal(t, tt.wantState, b.State())
			assert.Equal(t, tt.wantOpened, opened)
			assert.Equal(t, tt.wantClosed, closed)
		})
	}
}

func TestBreakerRecordReturnValues(t *testing.T) {
	b := New("mail", WithFailureThreshold(1), WithSuccessThreshold(1))

	useFallback, _ := b.RecordFailure()
	assert.True(t, useFallback, "open circuit asks for the fallback")

	useFallback, change := b.RecordFailure()
	assert.True(t, useFallback)
	assert.Equal(t, StateChange{}, change, "already open")

	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
}

func TestBreakerReset(t *testing.T) {
	b := New("mail", WithFailureThreshold(1))
	drive(b, fail)
	require.True(t, b.IsOpen())

	b.Reset()

	assert.False(t, b.IsOpen())
	assert.True(t, b.Allow())
}

func TestBreakerAllowsOneTrialPerCoolDown(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("mail",
		WithFailureThreshold(1),
		WithCoolDown(time.Minute),
		WithClock(func() time.Time { return now }),
	)

	drive(b, fail)
	assert.False(t, b.Allow(), "rejected inside the cool-down")

	now = now.Add(time.Minute)
	assert.True(t, b.Allow(), "trial admitted")
	assert.False(t, b.Allow(), "second trial waits for the next window")

	drive(b, fail)
	assert.False(t, b.Allow(), "a failed trial keeps the circuit open")

	now = now.Add(time.Minute)
	assert.True(t, b.Allow())
}

func TestBreakerHalfOpenAdmitsEveryCall(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("mail",
		WithFailureThreshold(1),
		WithSuccessThreshold(3),
		WithCoolDown(time.Minute),
		WithClock(func() time.Time { return now }),
	)
	drive(b, fail)
	now = now.Add(time.Minute)
	require.True(t, b.Allow())

	_, closed := drive(b, ok)
	require.Zero(t, closed)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.Equal(t, "half-open", b.State().String())
	assert.False(t, b.IsOpen())

	// No cool-down wait between the calls that close the circuit.
	for range 2 {
		require.True(t, b.Allow())
		drive(b, ok)
	}
	assert.Equal(t, StateClosed, b.State())

	t.Run("failure while half-open reopens at once", func(t *testing.T) {
		drive(b, fail)
		now = now.Add(time.Minute)
		require.True(t, b.Allow())
		drive(b, ok)
		require.Equal(t, StateHalfOpen, b.State())

		opened, _ := drive(b, fail)
		assert.Equal(t, 1, opened)
		assert.True(t, b.IsOpen())
		assert.False(t, b.Allow(), "a fresh cool-down starts")
	})
}

func TestOptionsIgnoreNonPositive(t *testing.T) {
	b := New("mail", WithFailureThreshold(0), WithSuccessThreshold(-1), WithCoolDown(0), WithClock(nil))

	assert.Equal(t, 5, b.failureThreshold)
	assert.Equal(t, 3, b.successThreshold)
	assert.Equal(t, 30*time.Second, b.coolDown)
	assert.NotNil(t, b.now)
}
