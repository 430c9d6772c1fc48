package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/stockcast-go/internal/logging"
	"github.com/irfndi/stockcast-go/pkg/interfaces"
)

func fastPolicy(retries int) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:    retries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func TestErrorRecoveryManager_ExecuteWithRetry(t *testing.T) {
	tests := []struct {
		name         string
		policy       *RetryPolicy
		failures     int
		wantAttempts int
		wantErr      bool
	}{
		{name: "no policy runs once", policy: nil, failures: 1, wantAttempts: 1, wantErr: true},
		{name: "first try succeeds", policy: fastPolicy(3), failures: 0, wantAttempts: 1},
		{name: "recovers after retries", policy: fastPolicy(3), failures: 2, wantAttempts: 3},
		{name: "gives up", policy: fastPolicy(2), failures: 10, wantAttempts: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			erm := NewErrorRecoveryManager(logging.NewDiscardLogger())
			if tt.policy != nil {
				erm.RegisterRetryPolicy("op", tt.policy)
			}

			calls := 0
			result := erm.Execute(context.Background(), "op", func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return errors.New("connection reset")
				}
				return nil
			})

			assert.Equal(t, tt.wantAttempts, result.Attempts)
			assert.Equal(t, tt.wantAttempts, calls)
			if tt.wantErr {
				assert.EqualError(t, result.Err, "connection reset")
			} else {
				assert.NoError(t, result.Err)
			}
		})
	}
}

func TestErrorRecoveryManager_StopsOnCancel(t *testing.T) {
	erm := NewErrorRecoveryManager(logging.NewDiscardLogger())
	erm.RegisterRetryPolicy("op", &RetryPolicy{MaxRetries: 5, InitialDelay: time.Hour, BackoffFactor: 2})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := erm.ExecuteWithRetry(ctx, "op", func(context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	})

	assert.Equal(t, 1, calls)
	assert.ErrorContains(t, err, "timeout")
}

func TestErrorRecoveryManager_CalculateDelay(t *testing.T) {
	erm := NewErrorRecoveryManager(logging.NewDiscardLogger())
	policy := &RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	assert.Equal(t, 100*time.Millisecond, erm.calculateDelay(policy, 1))
	assert.Equal(t, 200*time.Millisecond, erm.calculateDelay(policy, 2))
	assert.Equal(t, 400*time.Millisecond, erm.calculateDelay(policy, 3))
	assert.Equal(t, time.Second, erm.calculateDelay(policy, 10), "capped at MaxDelay")

	policy.JitterEnabled = true
	for i := 0; i < 20; i++ {
		d := erm.calculateDelay(policy, 2)
		assert.GreaterOrEqual(t, d, 180*time.Millisecond)
		assert.LessOrEqual(t, d, 220*time.Millisecond)
	}
}

func TestDefaultRetryPolicies(t *testing.T) {
	policies := DefaultRetryPolicies()
	for _, name := range []string{PolicySinkWrite, PolicyDatabaseConnect, PolicyRedisConnect} {
		require.Contains(t, policies, name)
		assert.Positive(t, policies[name].MaxRetries, name)
	}
}

func TestForecastPipeline_RetriesSinkWrites(t *testing.T) {
	flaky := new(mockSink)
	flaky.On("Write", mock.Anything, mock.Anything).Return(errors.New("broken pipe")).Once()
	flaky.On("Write", mock.Anything, mock.Anything).Return(nil).Once()

	erm := NewErrorRecoveryManager(logging.NewDiscardLogger())
	erm.RegisterRetryPolicy(PolicySinkWrite, fastPolicy(2))

	pipeline := NewForecastPipeline(testPipelineConfig(), interfaces.NewStaticPeriodSource(pipelineRecords(6)), nil, logging.NewDiscardLogger(), flaky).
		WithRecovery(erm)
	report, err := pipeline.Run(context.Background())

	require.NoError(t, err)
	require.NotNil(t, report)
	flaky.AssertNumberOfCalls(t, "Write", 2)
}
