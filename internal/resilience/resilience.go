// Package resilience wraps remote calls with a per-attempt timeout, retry
// with exponential backoff, and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrCircuitOpen indicates the circuit breaker is open.
	ErrCircuitOpen = gobreaker.ErrOpenState
	// ErrTooManyRequests indicates the half-open probe budget is spent.
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
	// ErrTimeout indicates an attempt ran past its deadline.
	ErrTimeout = errors.New("operation timed out")
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF-OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

func mapState(state gobreaker.State) CircuitState {
	switch state {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// Config holds the call policy.
type Config struct {
	Name string
	// Timeout bounds each attempt.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after the first.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	RandomFactor    float64
	// Retryable decides whether a failed attempt is repeated. Nil retries nothing.
	Retryable func(error) bool
	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures int
	// BreakerCooldown is how long the breaker stays open.
	BreakerCooldown time.Duration
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig(name string) Config {
	return Config{
		Name:            name,
		Timeout:         30 * time.Second,
		MaxRetries:      1,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
		RandomFactor:    0.1,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// Policy executes operations under Config.
type Policy struct {
	cfg    Config
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a policy. Zero values in cfg are replaced by DefaultConfig.
func New(cfg Config, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig(cfg.Name)
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = def.BreakerCooldown
	}

	log := logger.Named("resilience").With(zap.String("circuit", cfg.Name))
	failures := uint32(cfg.BreakerFailures)

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.Stringer("from", mapState(from)),
				zap.Stringer("to", mapState(to)))
		},
	}

	return &Policy{
		cfg:    cfg,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: log,
		sleep:  sleepContext,
	}
}

// State reports the current breaker state.
func (p *Policy) State() CircuitState {
	return mapState(p.cb.State())
}

// Do runs operation through the breaker, retrying failures that cfg.Retryable
// accepts. Each attempt gets its own timeout derived from ctx.
func (p *Policy) Do(ctx context.Context, operation func(context.Context) error) error {
	interval := p.cfg.InitialInterval
	attempts := p.cfg.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := p.attempt(ctx, operation)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("retry abandoned: %w", err)
		}
		if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
			return err
		}
		if p.cfg.Retryable == nil || !p.cfg.Retryable(err) || attempt == attempts {
			break
		}

		p.logger.Debug("operation failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("next_interval", interval),
			zap.Error(err))

		if err := p.sleep(ctx, interval); err != nil {
			return fmt.Errorf("retry abandoned: %w", lastErr)
		}

		jitter := 1.0 + p.cfg.RandomFactor*(2*rand.Float64()-1)
		interval = time.Duration(float64(interval) * p.cfg.Multiplier * jitter)
		if interval > p.cfg.MaxInterval {
			interval = p.cfg.MaxInterval
		}
	}

	return lastErr
}

func (p *Policy) attempt(ctx context.Context, operation func(context.Context) error) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()

		err := operation(attemptCtx)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s: %w", ErrTimeout, p.cfg.Timeout, err)
		}

		return nil, err
	})

	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
