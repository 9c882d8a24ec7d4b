package http

import "time"

// rateLimiter caps inbound actions per minute. It is called from the
// connection's read loop only, so a rolling window timestamp is enough and
// no locking is needed.
type rateLimiter struct {
	limit   int
	counter int
	window  time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{limit: limit}
}

func (r *rateLimiter) allow(now time.Time) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	if now.Sub(r.window) >= time.Minute {
		r.window = now
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
