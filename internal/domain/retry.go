package domain

import (
	"math"
	"time"
)

// RetryPolicy holds the per-worker retry configuration consulted by the
// worker kernel, generalizing the teacher's single-job RetryConfig
// (MaxRetries/InitialDelay/Multiplier) into the three named backoff
// families spec.md §4.C and §7 define.
type RetryPolicy struct {
	// EnabledFamilies lists the backoff families this worker is willing to
	// retry under. A category whose family is not enabled here is treated
	// as non-retryable regardless of ErrorCategory.Retryable().
	EnabledFamilies map[BackoffFamily]bool
	// BackoffBase is the per-family base duration for backoff = base * 2^retryCount.
	BackoffBase map[BackoffFamily]time.Duration
	// MaxRetries is the maximum number of retry attempts for this worker (0 disables retry entirely).
	MaxRetries int
}

// ShouldRetry reports whether a task whose error classifies as category,
// currently at retryCount attempts, should be rescheduled rather than
// routed to DLQ.
func (p RetryPolicy) ShouldRetry(category ErrorCategory, retryCount int) bool {
	if !category.Retryable() {
		return false
	}
	if p.MaxRetries <= 0 {
		return false
	}
	if retryCount >= p.MaxRetries {
		return false
	}
	family := category.BackoffFamilyOf()
	return p.EnabledFamilies[family]
}

// Backoff computes the exponential reschedule delay for a category at the
// given retry count: base * 2^retryCount, per spec.md §4.C.
func (p RetryPolicy) Backoff(category ErrorCategory, retryCount int) time.Duration {
	family := category.BackoffFamilyOf()
	base := p.BackoffBase[family]
	if base <= 0 {
		base = time.Second
	}
	mult := math.Pow(2, float64(retryCount))
	return time.Duration(float64(base) * mult)
}
