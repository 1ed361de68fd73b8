package cache

import (
	"sync"
	"time"
)

// failureThreshold opens the circuit after this many consecutive
// backend errors.
const failureThreshold = 5

// breaker trips the cache off after repeated Redis errors so a
// struggling cache never takes request latency down with it. While
// open, every read goes straight to the loader.
type breaker struct {
	mu       sync.Mutex
	cooldown time.Duration

	failures  int
	openUntil time.Time
}

func newBreaker(cooldown time.Duration) *breaker {
	return &breaker{cooldown: cooldown}
}

// allow reports whether cache traffic may proceed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().After(b.openUntil)
}

// fail records a backend error; the threshold trips the circuit.
func (b *breaker) fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= failureThreshold {
		b.openUntil = time.Now().Add(b.cooldown)
		b.failures = 0
	}
}

// success resets the consecutive-failure count.
func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}
