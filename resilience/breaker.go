// Package resilience provides the circuit breaker that guards package sources.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State is the state of a Breaker.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are rejected until the cooldown elapses
	StateHalfOpen              // one trial call decides between closed and open
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Allow while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// Outcome classifies a finished call for Done.
type Outcome int

const (
	// Success closes a half-open breaker and resets the failure count.
	Success Outcome = iota
	// Failure counts towards Threshold and reopens a half-open breaker.
	Failure
	// Ignored releases a trial slot without changing state, for calls that
	// ended because the caller gave up.
	Ignored
)

// Config holds breaker configuration.
type Config struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int

	// Cooldown is how long the breaker stays open before a trial call.
	Cooldown time.Duration

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(from, to State)

	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig opens after 5 consecutive failures for 30 seconds.
func DefaultConfig() Config {
	return Config{Threshold: 5, Cooldown: 30 * time.Second}
}

// Breaker is a three-state circuit breaker. It is safe for concurrent use.
type Breaker struct {
	cfg Config

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// New creates a closed breaker. A Threshold below 1 is treated as 1.
func New(cfg Config) *Breaker {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// State returns the current state. An open breaker whose cooldown has
// elapsed still reports StateOpen until the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current count of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Allow reports whether a call may proceed. Every nil return must be paired
// with one Done.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.trial = true
	case StateHalfOpen:
		if b.trial {
			b.mu.Unlock()
			return ErrOpen
		}
		b.trial = true
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return nil
}

// Done records the outcome of a call admitted by Allow.
func (b *Breaker) Done(o Outcome) {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case StateClosed:
		switch o {
		case Success:
			b.failures = 0
		case Failure:
			b.failures++
			if b.failures >= b.cfg.Threshold {
				b.open()
			}
		}
	case StateHalfOpen:
		b.trial = false
		switch o {
		case Success:
			b.state = StateClosed
			b.failures = 0
		case Failure:
			b.failures++
			b.open()
		}
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

// Reset closes the breaker and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.trial = false
	b.mu.Unlock()

	b.notify(from, StateClosed)
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.cfg.Now()
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
