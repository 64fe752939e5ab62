package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky dependency")

func failing() error { return errFlaky }
func succeeding() error { return nil }

func newTestBreaker(failMax int, reset time.Duration) (*Breaker, *time.Time) {
	b := NewBreaker(BreakerConfig{FailMax: failMax, ResetTimeout: reset})
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAfterFailMax(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Call(failing), errFlaky)
	}
	assert.Equal(t, BreakerOpen, b.State())
	assert.Equal(t, 3, b.Failures())

	// Open circuit rejects without invoking fn.
	calls := 0
	err := b.Call(func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 0, calls)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	require.Error(t, b.Call(failing))
	require.Error(t, b.Call(failing))
	require.NoError(t, b.Call(succeeding))
	assert.Equal(t, 0, b.Failures())

	// The streak starts over.
	require.Error(t, b.Call(failing))
	require.Error(t, b.Call(failing))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenProbeRecovers(t *testing.T) {
	b, now := newTestBreaker(2, time.Minute)

	require.Error(t, b.Call(failing))
	require.Error(t, b.Call(failing))
	require.Equal(t, BreakerOpen, b.State())

	*now = now.Add(2 * time.Minute)
	assert.Equal(t, BreakerHalfOpen, b.State())

	require.NoError(t, b.Call(succeeding))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(2, time.Minute)

	require.Error(t, b.Call(failing))
	require.Error(t, b.Call(failing))

	*now = now.Add(2 * time.Minute)
	require.Equal(t, BreakerHalfOpen, b.State())

	assert.ErrorIs(t, b.Call(failing), errFlaky)
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)

	require.Error(t, b.Call(failing))
	require.Equal(t, BreakerOpen, b.State())

	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, 0, b.Failures())
	require.NoError(t, b.Call(succeeding))
}

func TestBreaker_Defaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{})
	assert.Equal(t, DefaultBreaker.FailMax, b.cfg.FailMax)
	assert.Equal(t, DefaultBreaker.ResetTimeout, b.cfg.ResetTimeout)
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
}
