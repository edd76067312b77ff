// Package circuitbreaker tracks provider health and stops calling providers
// that keep failing until they have had time to recover.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrOpen is returned by Allow while the breaker is open
var ErrOpen = errors.New("circuit breaker open")

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, calls are rejected
	StateHalfOpen              // Probing whether the provider has recovered
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Thresholds defines the limits that trip the circuit breaker
type Thresholds struct {
	// Consecutive failures that open the circuit
	MaxFailures int `json:"max_failures"`

	// Half-open successes needed to close the circuit
	SuccessThreshold int `json:"success_threshold"`
}

// CircuitBreaker is a consecutive-failure breaker for one provider
type CircuitBreaker struct {
	name       string
	thresholds Thresholds

	state    State
	lastTrip time.Time

	// Duration before a half-open attempt
	resetDelay time.Duration

	mu sync.Mutex

	failures int

	// Successes seen in HalfOpen state
	successCount int

	onStateChange func(name string, from, to State)
	pending       []change
	notifyMu      sync.Mutex

	now func() time.Time
}

// New creates a new CircuitBreaker with the provided thresholds
func New(name string, t Thresholds) *CircuitBreaker {
	if t.MaxFailures <= 0 {
		t.MaxFailures = 3
	}
	if t.SuccessThreshold <= 0 {
		t.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		name:       name,
		thresholds: t,
		state:      StateClosed,
		resetDelay: 5 * time.Minute,
		now:        time.Now,
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithStateCallback sets a function called on every state transition.
// Calls are made in transition order after the breaker lock is released;
// the callback must not call back into the breaker.
func (cb *CircuitBreaker) WithStateCallback(callback func(name string, from, to State)) *CircuitBreaker {
	cb.onStateChange = callback
	return cb
}

// Allow reports whether a call may proceed. An open breaker whose reset
// delay has elapsed moves to half-open and lets the call through.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.unlock()

	if cb.state != StateOpen {
		return nil
	}
	if cb.now().Sub(cb.lastTrip) < cb.resetDelay {
		return ErrOpen
	}
	cb.transition(StateHalfOpen)
	cb.successCount = 0
	logrus.WithField("provider", cb.name).Info("Circuit breaker half-open: testing provider recovery")
	return nil
}

// RecordSuccess registers a successful call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.thresholds.SuccessThreshold {
			cb.transition(StateClosed)
			cb.successCount = 0
			logrus.WithField("provider", cb.name).Info("Circuit breaker closed: provider has recovered")
		}
	}
}

// RecordFailure registers a failed call and trips the breaker when needed
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.unlock()

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.thresholds.MaxFailures {
		cb.trip(err)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// trip opens the breaker. Caller holds mu.
func (cb *CircuitBreaker) trip(err error) {
	cb.lastTrip = cb.now()
	if cb.state == StateOpen {
		return
	}
	cb.transition(StateOpen)
	logrus.WithFields(logrus.Fields{
		"provider": cb.name,
		"failures": cb.failures,
	}).Warnf("Circuit breaker tripped: %v", err)
}

type change struct {
	from, to State
}

// transition changes state and queues the callback. Caller holds mu.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onStateChange != nil {
		cb.pending = append(cb.pending, change{from: from, to: to})
	}
}

// unlock releases mu and delivers queued transitions. notifyMu is taken
// before mu is released so deliveries follow transition order.
func (cb *CircuitBreaker) unlock() {
	pending := cb.pending
	cb.pending = nil
	if len(pending) == 0 {
		cb.mu.Unlock()
		return
	}

	cb.notifyMu.Lock()
	cb.mu.Unlock()
	defer cb.notifyMu.Unlock()
	for _, c := range pending {
		cb.onStateChange(cb.name, c.from, c.to)
	}
}
