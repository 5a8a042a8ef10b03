package backend

import (
	"context"
	"time"

	"go.uber.org/zap"

	"promptforge/internal/metrics"
)

// Route names the backend a request was dispatched to.
type Route string

const (
	RoutePrimary  Route = "primary"
	RouteFallback Route = "fallback"
)

// Selector decides, per request, whether to target the primary backend or
// its fallback. The decision is never cached: the primary is typically a
// locally hosted server that can vanish between calls.
type Selector struct {
	primary  *Backend
	fallback *Backend
	prober   HealthChecker

	fallbackEnabled bool
	breaker         *Breaker
	logger          *zap.Logger
	metrics         *metrics.Metrics
}

// SelectorOptions configures a Selector.
type SelectorOptions struct {
	Primary         *Backend
	Fallback        *Backend
	Prober          HealthChecker
	FallbackEnabled bool
	Breaker         *Breaker
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
}

// NewSelector builds a Selector. Prober is used against the primary only.
func NewSelector(opts SelectorOptions) *Selector {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		primary:         opts.Primary,
		fallback:        opts.Fallback,
		prober:          opts.Prober,
		fallbackEnabled: opts.FallbackEnabled,
		breaker:         opts.Breaker,
		logger:          logger,
		metrics:         opts.Metrics,
	}
}

// Select picks the backend for one request.
//
// With fallback disabled the primary is returned unconditionally and its
// errors propagate unmodified. Otherwise the primary is health-probed under
// its own short deadline; a breaker in cooldown skips the probe entirely
// (no network traffic toward a disabled backend), and any probe failure
// routes to the fallback.
func (s *Selector) Select(ctx context.Context) (*Backend, Route) {
	if !s.fallbackEnabled || s.fallback == nil {
		return s.primary, RoutePrimary
	}

	if s.breaker != nil && !s.breaker.Allow() {
		s.logger.Debug("primary disabled by circuit breaker, using fallback")
		s.metrics.FallbackSelected()
		return s.fallback, RouteFallback
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout())
	defer cancel()

	if err := s.prober.CheckHealth(probeCtx, s.primary.Endpoint.URL); err != nil {
		s.logger.Info("primary health probe failed, using fallback",
			zap.String("primary", s.primary.Endpoint.URL),
			zap.Error(err))
		if s.breaker != nil {
			s.breaker.RecordFailure()
		}
		s.metrics.FallbackSelected()
		return s.fallback, RouteFallback
	}

	if s.breaker != nil {
		s.breaker.RecordSuccess()
	}
	return s.primary, RoutePrimary
}

// Report feeds a generation-call outcome on the primary into the breaker.
// Results from the fallback route are not counted: the breaker guards the
// primary only.
func (s *Selector) Report(route Route, err error) {
	if s.breaker == nil || route != RoutePrimary {
		return
	}
	if err != nil {
		s.breaker.RecordFailure()
	} else {
		s.breaker.RecordSuccess()
	}
}

// FallbackEnabled reports whether a fallback backend is configured and
// permitted.
func (s *Selector) FallbackEnabled() bool {
	return s.fallbackEnabled && s.fallback != nil
}

func (s *Selector) probeTimeout() time.Duration {
	if t := s.primary.Endpoint.HealthTimeout; t > 0 {
		return t
	}
	return 30 * time.Second
}
