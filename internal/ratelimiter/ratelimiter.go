// Package ratelimiter throttles the request rate of a single connection.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket over requests.
//
// A nil *Limiter is valid and never throttles, which is what New returns
// when limiting is disabled. Callers do not need to check.
//
// Thread safety:
// All methods are safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
}

// New returns a limiter admitting requestsPerSecond sustained with bursts
// of up to burst requests. A zero rate disables limiting and returns nil.
// A zero burst is raised to one so that a positive rate can make progress.
func New(requestsPerSecond float64, burst int) *Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until a request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed now, consuming a token if so.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}

// Tokens returns the tokens currently available. Unlimited limiters report
// +Inf.
func (l *Limiter) Tokens() float64 {
	if l == nil {
		return float64(rate.Inf)
	}
	return l.limiter.Tokens()
}
