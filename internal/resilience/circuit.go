package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the breaker's position.
type CircuitState int

const (
	// CircuitClosed lets calls through; consecutive failures are counted.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls immediately until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen admits a single trial call to probe recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call outright. It
// is a reported condition in its own right, never folded into a generic
// timeout.
var ErrCircuitOpen = eris.New("storage circuit breaker is open")

// CircuitConfig controls a breaker.
type CircuitConfig struct {
	// FailureThreshold opens the circuit after this many consecutive
	// failures across all operations. Default: 5.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before admitting a
	// trial call. Default: 30s.
	Cooldown time.Duration

	// ShouldTrip decides whether an error counts toward the threshold.
	// When nil every non-nil error counts.
	ShouldTrip func(err error) bool

	// OnStateChange observes transitions, typically for logging.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitConfig returns the breaker policy used for the storage
// gateway.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Circuit is a single breaker shared by every operation against one backing
// store. It counts consecutive failures; once the threshold trips it fails
// fast for the cooldown window, then allows one probe (half-open) and
// closes again on probe success.
type Circuit struct {
	cfg CircuitConfig

	mu            sync.Mutex
	state         CircuitState
	failures      int
	lastFailure   time.Time
	probeInFlight bool

	now func() time.Time
}

// NewCircuit builds a breaker with cfg, falling back to defaults for zero
// fields.
func NewCircuit(cfg CircuitConfig) *Circuit {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Circuit{cfg: cfg, state: CircuitClosed, now: time.Now}
}

// Execute runs fn through the breaker.
func (c *Circuit) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := CircuitVal(ctx, c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// CircuitVal runs fn through the breaker, preserving its return value.
func CircuitVal[T any](ctx context.Context, c *Circuit, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := c.admit(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	c.record(err)
	return val, err
}

// State returns the current breaker position, accounting for an elapsed
// cooldown.
func (c *Circuit) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CircuitOpen && c.now().Sub(c.lastFailure) >= c.cfg.Cooldown {
		return CircuitHalfOpen
	}
	return c.state
}

// Failures returns the consecutive-failure count for observability.
func (c *Circuit) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// Reset forces the breaker closed. Used by tests and manual recovery.
func (c *Circuit) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.state
	c.state = CircuitClosed
	c.failures = 0
	c.probeInFlight = false
	if old != CircuitClosed && c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(old, CircuitClosed)
	}
}

func (c *Circuit) admit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if c.now().Sub(c.lastFailure) >= c.cfg.Cooldown {
			c.transition(CircuitHalfOpen)
			c.probeInFlight = true
			return nil
		}
		return ErrCircuitOpen
	case CircuitHalfOpen:
		// One probe at a time; concurrent callers fail fast.
		if c.probeInFlight {
			return ErrCircuitOpen
		}
		c.probeInFlight = true
		return nil
	default:
		return nil
	}
}

func (c *Circuit) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	trips := err != nil
	if err != nil && c.cfg.ShouldTrip != nil {
		trips = c.cfg.ShouldTrip(err)
	}

	if !trips {
		switch c.state {
		case CircuitHalfOpen:
			c.probeInFlight = false
			c.failures = 0
			c.transition(CircuitClosed)
		case CircuitClosed:
			c.failures = 0
		}
		return
	}

	c.failures++
	c.lastFailure = c.now()

	switch c.state {
	case CircuitClosed:
		if c.failures >= c.cfg.FailureThreshold {
			c.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		c.probeInFlight = false
		c.transition(CircuitOpen)
	}
}

func (c *Circuit) transition(to CircuitState) {
	from := c.state
	c.state = to
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(from, to)
	}
}
