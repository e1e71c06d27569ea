package partner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_DelayFor(t *testing.T) {
	tests := []struct {
		name   string
		policy RetryPolicy
		delays []time.Duration
	}{
		{
			name:   "exponential doubles per attempt",
			policy: RetryPolicy{MaxAttempts: 3, Delay: 5000 * time.Millisecond, Backoff: BackoffExponential},
			delays: []time.Duration{5000 * time.Millisecond, 10000 * time.Millisecond, 20000 * time.Millisecond},
		},
		{
			name:   "linear grows by the base delay",
			policy: RetryPolicy{MaxAttempts: 3, Delay: 5000 * time.Millisecond, Backoff: BackoffLinear},
			delays: []time.Duration{5000 * time.Millisecond, 10000 * time.Millisecond, 15000 * time.Millisecond},
		},
		{
			name:   "default policy is exponential",
			policy: DefaultRetryPolicy(),
			delays: []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, want := range tt.delays {
				assert.Equal(t, want, tt.policy.DelayFor(i+1), "attempt %d", i+1)
			}
		})
	}
}

func TestRetryPolicy_DelayForClampsAttempt(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Delay: time.Second, Backoff: BackoffExponential}
	assert.Equal(t, time.Second, policy.DelayFor(0))
	assert.Equal(t, time.Second, policy.DelayFor(-5))
}

func TestRetryPolicy_Validate(t *testing.T) {
	valid := RetryPolicy{MaxAttempts: 3, Delay: time.Second, Backoff: BackoffLinear}
	require.NoError(t, valid.Validate())

	assert.Error(t, RetryPolicy{MaxAttempts: 0, Delay: time.Second, Backoff: BackoffLinear}.Validate())
	assert.Error(t, RetryPolicy{MaxAttempts: 3, Delay: 0, Backoff: BackoffLinear}.Validate())
	assert.Error(t, RetryPolicy{MaxAttempts: 3, Delay: time.Second, Backoff: "fibonacci"}.Validate())
}
