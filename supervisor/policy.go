package supervisor

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Backoff selects how the delay grows between attempts.
type Backoff string

const (
	// BackoffConstant waits the same delay before every retry.
	BackoffConstant Backoff = "constant"
	// BackoffExponential doubles the delay after each failed attempt.
	BackoffExponential Backoff = "exponential"
)

// ParseBackoff maps a configuration string to a Backoff.
func ParseBackoff(s string) (Backoff, error) {
	switch Backoff(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackoffConstant:
		return BackoffConstant, nil
	case BackoffExponential:
		return BackoffExponential, nil
	default:
		return "", fmt.Errorf("unknown backoff %q", s)
	}
}

// RetryPolicy configures RunWithRetry.
type RetryPolicy struct {
	// Attempts is the total number of attempts, including the first.
	Attempts int
	// Delay is the wait after the first failed attempt.
	Delay time.Duration
	// Backoff selects constant or exponential growth.
	Backoff Backoff
	// MaxDelay caps exponential growth. Zero means uncapped.
	MaxDelay time.Duration
	// AttemptTimeout bounds each attempt. Zero means no per attempt deadline.
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy is three attempts with a constant 100ms delay.
var DefaultRetryPolicy = RetryPolicy{
	Attempts: 3,
	Delay:    100 * time.Millisecond,
	Backoff:  BackoffConstant,
}

// DelayAfter returns the wait that follows failed attempt n (1 based).
func (p RetryPolicy) DelayAfter(n int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	if p.Backoff != BackoffExponential || n <= 1 {
		return p.capped(p.Delay)
	}
	d := p.Delay
	for i := 1; i < n; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
		if d > math.MaxInt64/2 {
			break
		}
		d *= 2
	}
	return p.capped(d)
}

func (p RetryPolicy) capped(d time.Duration) time.Duration {
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
