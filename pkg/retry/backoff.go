// Package retry implements the exponential backoff with jitter (spec
// §4.4) used by pkg/httpclient's retrier, which serves the IAF adapters
// and ANC webhook delivery, plus the Intervals/NextInterval helpers ANC
// dispatch uses for policy-bundle backoff lists: delay = min(max,
// initial*2^attempt) + uniform(0, 0.25*delay). This exact asymmetric-jitter formula has no direct
// equivalent in the ecosystem backoff libraries (they jitter symmetrically
// around the computed delay), so it is hand-rolled here; pkg/httpclient
// additionally wraps cenkalti/backoff/v5 for its retry-loop control flow.
package retry

import (
	"math/rand"
	"time"
)

// Policy configures exponential backoff with jitter.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultPolicy matches the spec's stated defaults for shared plumbing.
func DefaultPolicy() Policy {
	return Policy{Initial: 1 * time.Second, Max: 30 * time.Second}
}

// Delay returns the backoff delay for the given zero-based attempt number,
// applying jitter in [0, 0.25*delay).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(p.Initial) * pow2(attempt)
	max := float64(p.Max)
	if base > max {
		base = max
	}
	jitter := rand.Float64() * 0.25 * base
	return time.Duration(base + jitter)
}

// RetryAfterOverride returns retryAfter when positive, else falls back to
// the computed policy delay — §4.4's "Retry-After overrides computed delay
// on 429/503".
func (p Policy) RetryAfterOverride(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	return p.Delay(attempt)
}

func pow2(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

// Intervals converts a policy-bundle backoff_intervals list (seconds) into
// durations, used by ANC dispatch's retry_policy(channel, severity).
func Intervals(seconds []int) []time.Duration {
	out := make([]time.Duration, len(seconds))
	for i, s := range seconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

// NextInterval indexes into intervals, clamping to the last entry once
// attempt exceeds its length — mirrors "backoff[min(attempt, |backoff|-1)]".
func NextInterval(intervals []time.Duration, attempt int) time.Duration {
	if len(intervals) == 0 {
		return 0
	}
	if attempt >= len(intervals) {
		attempt = len(intervals) - 1
	}
	if attempt < 0 {
		attempt = 0
	}
	return intervals[attempt]
}
