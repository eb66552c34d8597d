// Package backoff computes capped exponential retry delays.
package backoff

import "time"

// Policy is a capped exponential backoff.
type Policy struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns min(Base*2^(attempt-1), Cap). Attempts below one are
// treated as the first attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return Delay(p.Base, p.Cap, attempt)
}

// Delay returns min(base*2^(attempt-1), ceiling).
func Delay(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d >= ceiling {
			return ceiling
		}
		d *= 2
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
