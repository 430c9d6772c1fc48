package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/stockcast-go/internal/models"
	"github.com/irfndi/stockcast-go/pkg/interfaces"
)

// ErrCircuitOpen is returned while a breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the current state of the circuit breaker
type CircuitBreakerState int

const (
	Closed CircuitBreakerState = iota
	Open
	HalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"` // Number of failures before opening
	SuccessThreshold int           `json:"success_threshold"` // Number of successes to close from half-open
	Timeout          time.Duration `json:"timeout"`           // Time to wait before trying half-open
	MaxRequests      int           `json:"max_requests"`      // Max requests allowed in half-open state
}

// CircuitBreakerStats holds statistics for the circuit breaker
type CircuitBreakerStats struct {
	TotalRequests      int64 `json:"total_requests"`
	SuccessfulRequests int64 `json:"successful_requests"`
	FailedRequests     int64 `json:"failed_requests"`
	RejectedRequests   int64 `json:"rejected_requests"`
	StateChanges       int64 `json:"state_changes"`
}

// CircuitBreaker stops calling a failing dependency for a cool-down period.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger *logrus.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitBreakerState
	failureCount    int
	successCount    int
	halfOpenCalls   int
	lastStateChange time.Time
	stats           CircuitBreakerStats
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger *logrus.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 1
	}

	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logger,
		now:             time.Now,
		state:           Closed,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn unless the breaker is open. fn runs without the lock held.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allow() {
		cb.logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.name,
			"state":           cb.State().String(),
		}).Debug("Circuit breaker is open, rejecting request")
		return ErrCircuitOpen
	}

	err := fn(ctx)
	// Caller cancellations say nothing about the dependency.
	if err != nil && ctx.Err() != nil {
		cb.release()
		return err
	}
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.stats.TotalRequests++
	switch cb.state {
	case Open:
		if cb.now().Sub(cb.lastStateChange) < cb.config.Timeout {
			cb.stats.RejectedRequests++
			return false
		}
		cb.setState(HalfOpen)
		fallthrough
	case HalfOpen:
		if cb.halfOpenCalls >= cb.config.MaxRequests {
			cb.stats.RejectedRequests++
			return false
		}
		cb.halfOpenCalls++
	}
	return true
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == HalfOpen && cb.halfOpenCalls > 0 {
		cb.halfOpenCalls--
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.stats.SuccessfulRequests++
		switch cb.state {
		case Closed:
			cb.failureCount = 0
		case HalfOpen:
			cb.halfOpenCalls--
			cb.successCount++
			if cb.successCount >= cb.config.SuccessThreshold {
				cb.setState(Closed)
			}
		}
		return
	}

	cb.stats.FailedRequests++
	switch cb.state {
	case Closed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.setState(Open)
		}
	case HalfOpen:
		// Any failure in half-open state should open the circuit
		cb.setState(Open)
	}

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"state":           cb.state.String(),
		"failure_count":   cb.failureCount,
	}).WithError(err).Warn("Circuit breaker: failed execution")
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(newState CircuitBreakerState) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = cb.now()
	cb.stats.StateChanges++
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenCalls = 0

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"old_state":       oldState.String(),
		"new_state":       newState.String(),
	}).Info("Circuit breaker state changed")
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns the current statistics
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stats
}

// GuardedReportStore reads from primary through a circuit breaker and falls
// back to a second store when the primary fails or the breaker is open.
type GuardedReportStore struct {
	primary  interfaces.ReportStore
	fallback interfaces.ReportStore
	breaker  *CircuitBreaker
	logger   *logrus.Logger
}

// NewGuardedReportStore wraps primary. fallback may be nil.
func NewGuardedReportStore(primary, fallback interfaces.ReportStore, breaker *CircuitBreaker, logger *logrus.Logger) *GuardedReportStore {
	return &GuardedReportStore{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

// Latest implements interfaces.ReportStore.
func (g *GuardedReportStore) Latest(ctx context.Context) (*models.ForecastReport, error) {
	var report *models.ForecastReport
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		report, err = g.primary.Latest(ctx)
		return err
	})
	if err == nil && report != nil {
		return report, nil
	}
	if g.fallback == nil {
		return report, err
	}

	if err != nil {
		g.logger.WithError(err).Debug("Serving forecast from fallback store")
	}
	fallbackReport, ferr := g.fallback.Latest(ctx)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	if fallbackReport == nil {
		return nil, err
	}
	return fallbackReport, nil
}
