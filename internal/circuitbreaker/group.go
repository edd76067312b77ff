package circuitbreaker

import (
	"sync"
	"time"
)

// Group holds one breaker per key, created on first use
type Group struct {
	thresholds Thresholds
	resetDelay time.Duration
	callback   func(name string, from, to State)

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewGroup creates a breaker group sharing thresholds and reset delay
func NewGroup(t Thresholds, resetDelay time.Duration, callback func(name string, from, to State)) *Group {
	return &Group{
		thresholds: t,
		resetDelay: resetDelay,
		callback:   callback,
		breakers:   make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for key. A nil group returns nil.
func (g *Group) Get(key string) *CircuitBreaker {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	cb, ok := g.breakers[key]
	if !ok {
		cb = New(key, g.thresholds).WithStateCallback(g.callback)
		if g.resetDelay > 0 {
			cb.WithResetDelay(g.resetDelay)
		}
		g.breakers[key] = cb
	}
	return cb
}

// States returns a snapshot of every breaker state by key
func (g *Group) States() map[string]State {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]State, len(g.breakers))
	for k, cb := range g.breakers {
		out[k] = cb.GetState()
	}
	return out
}
