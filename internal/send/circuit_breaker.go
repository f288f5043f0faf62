package send

import (
	"sync"
	"time"
)

// DefaultCircuitBreakerCooldown is how long an open circuit waits before
// it is eligible to close again.
const DefaultCircuitBreakerCooldown = 1 * time.Minute

// CircuitBreakerConfig configures a CircuitBreaker's open threshold and
// cooldown.
type CircuitBreakerConfig struct {
	Threshold      int
	CooldownPeriod time.Duration
}

// DefaultCircuitBreakerConfig returns sensible defaults: five consecutive
// provider failures opens the circuit for one minute.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Threshold: 5, CooldownPeriod: DefaultCircuitBreakerCooldown}
}

// CircuitBreaker tracks one organization's provider failure streak.
type CircuitBreaker struct {
	mu             sync.RWMutex
	failures       int
	threshold      int
	cooldownPeriod time.Duration
	lastFailure    time.Time
	isOpen         bool
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{threshold: threshold, cooldownPeriod: cooldown}
}

// IsOpen reports whether the circuit is currently open, auto-closing it
// if the cooldown period has elapsed.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.RLock()
	open := cb.isOpen
	lastFailure := cb.lastFailure
	cooldown := cb.cooldownPeriod
	cb.mu.RUnlock()

	if !open {
		return false
	}
	if time.Since(lastFailure) <= cooldown {
		return true
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.isOpen && time.Since(cb.lastFailure) > cb.cooldownPeriod {
		cb.isOpen = false
		cb.failures = 0
	}
	return cb.isOpen
}

// RecordSuccess resets the failure streak.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.isOpen = false
}

// RecordFailure records a provider failure, opening the circuit once the
// threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = time.Now()
	if cb.failures >= cb.threshold {
		cb.isOpen = true
	}
}

// IntegrationCircuitBreaker manages one CircuitBreaker per organization,
// so a provider outage affecting one org does not throttle another.
type IntegrationCircuitBreaker struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	config   CircuitBreakerConfig
}

// NewIntegrationCircuitBreaker constructs a per-organization circuit
// breaker manager.
func NewIntegrationCircuitBreaker(cfg CircuitBreakerConfig) *IntegrationCircuitBreaker {
	if cfg.Threshold == 0 {
		cfg.Threshold = 5
	}
	if cfg.CooldownPeriod == 0 {
		cfg.CooldownPeriod = DefaultCircuitBreakerCooldown
	}
	return &IntegrationCircuitBreaker{breakers: make(map[string]*CircuitBreaker), config: cfg}
}

func (icb *IntegrationCircuitBreaker) getOrCreate(orgID string) *CircuitBreaker {
	icb.mu.Lock()
	defer icb.mu.Unlock()
	if cb, ok := icb.breakers[orgID]; ok {
		return cb
	}
	cb := newCircuitBreaker(icb.config.Threshold, icb.config.CooldownPeriod)
	icb.breakers[orgID] = cb
	return cb
}

// IsOpen reports whether an organization's circuit is open.
func (icb *IntegrationCircuitBreaker) IsOpen(orgID string) bool {
	return icb.getOrCreate(orgID).IsOpen()
}

// RecordSuccess records a successful send for an organization.
func (icb *IntegrationCircuitBreaker) RecordSuccess(orgID string) {
	icb.getOrCreate(orgID).RecordSuccess()
}

// RecordFailure records a failed send for an organization.
func (icb *IntegrationCircuitBreaker) RecordFailure(orgID string) {
	icb.getOrCreate(orgID).RecordFailure()
}
