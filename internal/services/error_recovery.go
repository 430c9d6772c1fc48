package services

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Retry policy names used by the forecast run.
const (
	PolicySinkWrite       = "sink_write"
	PolicyDatabaseConnect = "database_connect"
	PolicyRedisConnect    = "redis_connect"
)

// ErrorRecoveryManager retries transient failures of named operations.
type ErrorRecoveryManager struct {
	logger        *logrus.Logger
	retryPolicies map[string]*RetryPolicy
	mu            sync.RWMutex
}

// RetryPolicy defines retry behavior for failed operations
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// OperationResult describes how a retried operation ended.
type OperationResult struct {
	Attempts int
	Duration time.Duration
	Err      error
}

// NewErrorRecoveryManager creates a manager with no policies registered.
// Operations without a policy run exactly once.
func NewErrorRecoveryManager(logger *logrus.Logger) *ErrorRecoveryManager {
	return &ErrorRecoveryManager{
		logger:        logger,
		retryPolicies: make(map[string]*RetryPolicy),
	}
}

// NewDefaultErrorRecoveryManager registers DefaultRetryPolicies.
func NewDefaultErrorRecoveryManager(logger *logrus.Logger) *ErrorRecoveryManager {
	erm := NewErrorRecoveryManager(logger)
	for name, policy := range DefaultRetryPolicies() {
		erm.RegisterRetryPolicy(name, policy)
	}
	return erm
}

// RegisterRetryPolicy registers a retry policy for a specific operation
func (erm *ErrorRecoveryManager) RegisterRetryPolicy(name string, policy *RetryPolicy) {
	erm.mu.Lock()
	defer erm.mu.Unlock()

	erm.retryPolicies[name] = policy
}

// ExecuteWithRetry runs operation until it succeeds, the policy runs out of
// retries or ctx is done. The last operation error is returned.
func (erm *ErrorRecoveryManager) ExecuteWithRetry(ctx context.Context, name string, operation func(context.Context) error) error {
	return erm.Execute(ctx, name, operation).Err
}

// Execute is ExecuteWithRetry with attempt accounting.
func (erm *ErrorRecoveryManager) Execute(ctx context.Context, name string, operation func(context.Context) error) *OperationResult {
	start := time.Now()
	result := &OperationResult{}

	erm.mu.RLock()
	policy := erm.retryPolicies[name]
	erm.mu.RUnlock()

	maxRetries := 0
	if policy != nil {
		maxRetries = policy.MaxRetries
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := erm.calculateDelay(policy, attempt)
			erm.logger.WithFields(logrus.Fields{
				"operation": name,
				"attempt":   attempt + 1,
				"delay_ms":  delay.Milliseconds(),
			}).WithError(result.Err).Warn("Retrying operation")

			if err := sleepContext(ctx, delay); err != nil {
				result.Err = errors.Join(result.Err, err)
				break
			}
		}

		result.Attempts++
		result.Err = operation(ctx)
		if result.Err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	result.Duration = time.Since(start)
	if result.Err != nil && result.Attempts > 1 {
		erm.logger.WithFields(logrus.Fields{
			"operation": name,
			"attempts":  result.Attempts,
		}).WithError(result.Err).Error("Operation failed after retries")
	} else if result.Err == nil && result.Attempts > 1 {
		erm.logger.WithFields(logrus.Fields{
			"operation": name,
			"attempts":  result.Attempts,
		}).Info("Operation recovered")
	}
	return result
}

// calculateDelay calculates the delay for exponential backoff with jitter
func (erm *ErrorRecoveryManager) calculateDelay(policy *RetryPolicy, attempt int) time.Duration {
	factor := policy.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := float64(policy.InitialDelay) * math.Pow(factor, float64(attempt-1))
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}

	// Up to 10% either way.
	if policy.JitterEnabled && delay > 0 {
		jitter := delay * 0.1 * (rand.Float64()*2 - 1)
		delay += jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DefaultRetryPolicies returns the policies for the run's external writes.
func DefaultRetryPolicies() map[string]*RetryPolicy {
	return map[string]*RetryPolicy{
		PolicySinkWrite: {
			MaxRetries:    2,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
		PolicyDatabaseConnect: {
			MaxRetries:    3,
			InitialDelay:  time.Second,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
		PolicyRedisConnect: {
			MaxRetries:    3,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
	}
}
