package backend

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// BreakerConfig controls when the circuit breaker disables the primary.
type BreakerConfig struct {
	// Threshold is the consecutive-failure count that trips the breaker.
	Threshold int

	// Cooldown is how long the backend stays disabled after a trip.
	Cooldown time.Duration

	// OnTrip and OnReset fire on state transitions (metrics hooks).
	OnTrip  func()
	OnReset func()
}

// DefaultBreakerConfig matches the deployment defaults: five strikes, five
// minutes out.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold: 5,
		Cooldown:  5 * time.Minute,
	}
}

// Breaker tracks consecutive failures against one backend and disables it
// for a cooldown once the threshold is reached. State is process-wide, so
// every transition runs under the mutex; a single foreground caller does not
// need the lock, but concurrent deployments do.
type Breaker struct {
	mu            sync.Mutex
	threshold     int
	cooldown      time.Duration
	failures      int
	disabledUntil time.Time

	onTrip  func()
	onReset func()
	logger  *zap.Logger
	now     func() time.Time
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		onTrip:    cfg.OnTrip,
		onReset:   cfg.OnReset,
		logger:    logger,
		now:       time.Now,
	}
}

// Allow reports whether a call against the guarded backend may proceed.
// While the cooldown is running it returns false without any network
// activity. After the cooldown expires it returns true so that the next
// health check can probe the backend; the counter is only reset when that
// probe (or call) succeeds.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disabledUntil.IsZero() {
		return true
	}
	if b.now().Before(b.disabledUntil) {
		return false
	}
	return true
}

// RecordFailure counts one backend failure and trips the breaker when the
// threshold is reached (or re-arms the cooldown after a failed recovery
// probe).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures < b.threshold {
		return
	}

	tripped := b.disabledUntil.IsZero() || !b.now().Before(b.disabledUntil)
	b.disabledUntil = b.now().Add(b.cooldown)
	if tripped {
		b.logger.Warn("circuit breaker disabled backend",
			zap.Int("failures", b.failures),
			zap.Duration("cooldown", b.cooldown))
		if b.onTrip != nil {
			b.onTrip()
		}
	}
}

// RecordSuccess clears all breaker state. Called on the first successful
// health check (or generation) after the cooldown expires, and on ordinary
// successes to keep the failure count strictly consecutive.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasDisabled := !b.disabledUntil.IsZero()
	b.failures = 0
	b.disabledUntil = time.Time{}
	if wasDisabled {
		b.logger.Info("circuit breaker reset, backend re-enabled")
		if b.onReset != nil {
			b.onReset()
		}
	}
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
