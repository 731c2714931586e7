package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayAfter(t *testing.T) {
	constant := RetryPolicy{Delay: 100 * time.Millisecond, Backoff: BackoffConstant}
	exp := RetryPolicy{Delay: 100 * time.Millisecond, Backoff: BackoffExponential}
	capped := RetryPolicy{Delay: 100 * time.Millisecond, Backoff: BackoffExponential, MaxDelay: 250 * time.Millisecond}

	for n := 1; n <= 3; n++ {
		assert.Equal(t, 100*time.Millisecond, constant.DelayAfter(n))
	}
	assert.Equal(t, 100*time.Millisecond, exp.DelayAfter(1))
	assert.Equal(t, 200*time.Millisecond, exp.DelayAfter(2))
	assert.Equal(t, 400*time.Millisecond, exp.DelayAfter(3))
	assert.Equal(t, 250*time.Millisecond, capped.DelayAfter(3))
	assert.Equal(t, 250*time.Millisecond, capped.DelayAfter(60))
	assert.Zero(t, RetryPolicy{}.DelayAfter(2))
}

func TestDelayAfterSaturates(t *testing.T) {
	p := RetryPolicy{Delay: time.Nanosecond, Backoff: BackoffExponential}

	prev := time.Duration(0)
	for n := 1; n <= 200; n++ {
		d := p.DelayAfter(n)
		assert.Positive(t, d, "attempt %d", n)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", n)
		prev = d
	}
	assert.Equal(t, time.Duration(1<<62), p.DelayAfter(64))
}

func TestParseBackoff(t *testing.T) {
	b, err := ParseBackoff("Exponential")
	assert.NoError(t, err)
	assert.Equal(t, BackoffExponential, b)

	b, err = ParseBackoff("")
	assert.NoError(t, err)
	assert.Equal(t, BackoffConstant, b)

	_, err = ParseBackoff("fibonacci")
	assert.Error(t, err)
}
