// Package resilience provides the retry policy, condition waits and the
// circuit breaker used around every call to the portal.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState represents the state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed lets requests through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects requests until the cooldown has passed.
	BreakerOpen
	// BreakerHalfOpen lets a probe through to test recovery.
	BreakerHalfOpen
)

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

// ErrBreakerOpen is returned when a call is rejected because the breaker is open.
var ErrBreakerOpen = eris.New("circuit breaker is open")

// BreakerConfig controls circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	// Default: 5.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before letting a probe
	// through. Default: 30s.
	Cooldown time.Duration

	// ShouldTrip decides which errors count as failures. If nil, IsTransient
	// is used, so a 404 never opens the breaker.
	ShouldTrip func(err error) bool
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Breaker implements the circuit breaker pattern for one host.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewBreaker creates a breaker with the given config.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = IsTransient
	}
	return &Breaker{name: name, cfg: cfg, nowFunc: time.Now}
}

// Execute runs fn through the breaker. It returns ErrBreakerOpen without
// calling fn while the breaker is open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.nowFunc().Sub(b.openedAt) >= b.cfg.Cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerOpen {
		return nil
	}
	if b.nowFunc().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.transition(BreakerHalfOpen)
		return nil
	}
	return eris.Wrapf(ErrBreakerOpen, "host %s", b.name)
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !b.cfg.ShouldTrip(err) {
		b.failures = 0
		if b.state == BreakerHalfOpen {
			b.transition(BreakerClosed)
		}
		return
	}

	b.failures++
	switch {
	case b.state == BreakerHalfOpen:
		b.openedAt = b.nowFunc()
		b.transition(BreakerOpen)
	case b.state == BreakerClosed && b.failures >= b.cfg.FailureThreshold:
		b.openedAt = b.nowFunc()
		b.transition(BreakerOpen)
	}
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	zap.L().Info("resilience: circuit breaker state change",
		zap.String("host", b.name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
}

// Breakers manages one breaker per host.
type Breakers struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	cfg      BreakerConfig
}

// NewBreakers creates a registry of per-host breakers sharing cfg.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{breakers: make(map[string]*Breaker), cfg: cfg}
}

// Get returns the breaker for host, creating one if needed.
func (bs *Breakers) Get(host string) *Breaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.breakers[host]
	if !ok {
		b = NewBreaker(host, bs.cfg)
		bs.breakers[host] = b
	}
	return b
}
