package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestDoRetriesTransientUntilSuccess(t *testing.T) {
	p := Default()
	p.Sleep = noSleep
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{Service: "rails", StatusCode: 503}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	p := Default()
	p.Sleep = noSleep
	var retries []int
	p.OnRetry = func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return &StatusError{Service: "rails", StatusCode: 429}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDoDoesNotRetryPermanentOrClientErrors(t *testing.T) {
	p := Default()
	p.Sleep = noSleep
	for name, failure := range map[string]error{
		"client error": &StatusError{Service: "rails", StatusCode: 422},
		"permanent":    Permanent(context.DeadlineExceeded),
		"plain":        errors.New("boom"),
	} {
		t.Run(name, func(t *testing.T) {
			calls := 0
			err := p.Do(context.Background(), func(context.Context) error {
				calls++
				return failure
			})
			require.Error(t, err)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestDoValueReturnsValue(t *testing.T) {
	p := Policy{MaxAttempts: 2, Sleep: noSleep}
	calls := 0
	v, err := DoValue(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", context.DeadlineExceeded
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Default()
	p.Sleep = noSleep
	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return &StatusError{Service: "rails", StatusCode: 500}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDelayIsBoundedAndJittered(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	for i := 0; i < 50; i++ {
		d0 := p.Delay(0)
		assert.GreaterOrEqual(t, d0, 50*time.Millisecond)
		assert.LessOrEqual(t, d0, 100*time.Millisecond)

		d5 := p.Delay(5)
		assert.GreaterOrEqual(t, d5, 150*time.Millisecond)
		assert.LessOrEqual(t, d5, 300*time.Millisecond)
	}
	assert.Zero(t, Policy{}.Delay(3))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&StatusError{StatusCode: 502}))
	assert.True(t, IsTransient(&StatusError{StatusCode: 429}))
	assert.False(t, IsTransient(&StatusError{StatusCode: 404}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.False(t, IsTransient(nil))
	assert.True(t, IsPermanent(Permanent(errors.New("x"))))
	assert.Nil(t, Permanent(nil))
}
