package errors

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the current state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed allows calls through and counts failures.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls until the reset timeout elapses.
	BreakerOpen

	// BreakerHalfOpen allows a single probe call through.
	BreakerHalfOpen
)

// String returns the state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned by Call while the breaker is open.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailMax is the number of consecutive failures that opens the breaker.
	// Default: 5
	FailMax int

	// ResetTimeout is how long the breaker stays open before allowing
	// a half-open probe. Default: 60s
	ResetTimeout time.Duration
}

// DefaultBreaker is the standard breaker configuration.
var DefaultBreaker = BreakerConfig{
	FailMax:      5,
	ResetTimeout: 60 * time.Second,
}

// Breaker is a circuit breaker guarding a repeatedly failing operation.
// Closed counts consecutive failures; FailMax failures open the circuit;
// after ResetTimeout a single probe is allowed, and its outcome either
// closes or re-opens the circuit.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    BreakerState
	failures int
	openedAt time.Time

	// now is overridable for tests.
	now func() time.Time
}

// NewBreaker creates a circuit breaker with the given configuration.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailMax <= 0 {
		cfg.FailMax = DefaultBreaker.FailMax
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultBreaker.ResetTimeout
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Call executes fn through the breaker.
func (b *Breaker) Call(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

// State returns the current breaker state, applying the open-to-half-open
// transition if the reset timeout has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset returns the breaker to closed with a zero failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	if b.state == BreakerOpen {
		return ErrBreakerOpen
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = BreakerClosed
		b.failures = 0
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.FailMax {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

// maybeHalfOpen transitions open to half-open once the timeout elapses.
// Caller must hold b.mu.
func (b *Breaker) maybeHalfOpen() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.state = BreakerHalfOpen
	}
}
