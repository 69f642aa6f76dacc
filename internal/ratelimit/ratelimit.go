package ratelimit

import (
	"sync"
	"time"
)

// Quota is the outcome of spending one request against a client's bucket.
// Remaining counts whole tokens left after the request; ResetAt is when the
// bucket is back to full.
type Quota struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// clientBucket holds the continuous token balance for one API client.
// Balances are fractional so refill accrues smoothly between requests.
type clientBucket struct {
	balance float64
	touched time.Time
}

// Limiter is a token-bucket limiter for API clients. Each client draws from
// its own bucket, sized by the client's configured rate or the default.
// User sessions never reach the limiter; the middleware lets them through.
type Limiter struct {
	mu          sync.Mutex
	clients     map[string]*clientBucket
	defaultRate int
	window      time.Duration
	now         func() time.Time // injectable clock for testing
}

// New creates a Limiter allowing defaultRate requests per window for clients
// without a configured override.
func New(defaultRate int, window time.Duration) *Limiter {
	return &Limiter{
		clients:     make(map[string]*clientBucket),
		defaultRate: defaultRate,
		window:      window,
		now:         time.Now,
	}
}

// Take spends one request from the client's bucket and reports the resulting
// quota. clientRate overrides the default when positive, and is re-read on
// every call so a changed client configuration takes effect immediately.
func (l *Limiter) Take(clientID string, clientRate int) Quota {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := l.defaultRate
	if clientRate > 0 {
		limit = clientRate
	}

	now := l.now()
	b, ok := l.clients[clientID]
	if !ok {
		b = &clientBucket{balance: float64(limit), touched: now}
		l.clients[clientID] = b
	}

	// Tokens accrue at limit/window per second, capped at the bucket size.
	perSecond := float64(limit) / l.window.Seconds()
	if elapsed := now.Sub(b.touched).Seconds(); elapsed > 0 {
		b.balance += elapsed * perSecond
	}
	if b.balance > float64(limit) {
		b.balance = float64(limit)
	}
	b.touched = now

	q := Quota{Limit: limit}
	if b.balance >= 1 {
		b.balance--
		q.Allowed = true
	}
	if b.balance > 0 {
		q.Remaining = int(b.balance)
	}

	if deficit := float64(limit) - b.balance; deficit > 0 {
		q.ResetAt = now.Add(time.Duration(deficit / perSecond * float64(time.Second)))
	} else {
		q.ResetAt = now
	}
	return q
}
