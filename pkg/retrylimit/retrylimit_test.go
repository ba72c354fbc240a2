package retrylimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (s statusErr) Error() string   { return http.StatusText(int(s)) }
func (s statusErr) StatusCode() int { return int(s) }

func fastConfig(attempts int) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = attempts
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	cfg.RateLimitDelay = time.Millisecond
	return cfg
}

func TestAdaptiveLimiter(t *testing.T) {
	lim := NewAdaptiveLimiter(4, 1, 6, 1, 0.5)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lim.now = func() time.Time { return now }

	lim.Success()
	assert.Equal(t, 5.0, lim.CurrentLimit())
	lim.Success()
	lim.Success()
	assert.Equal(t, 6.0, lim.CurrentLimit(), "capped at max")
	assert.Equal(t, 6, lim.CurrentBurst())

	lim.RateLimited()
	assert.Equal(t, 3.0, lim.CurrentLimit())
	lim.Success()
	assert.Equal(t, 3.0, lim.CurrentLimit(), "no increase during the cooldown")

	lim.RateLimited()
	lim.RateLimited()
	assert.Equal(t, 1.0, lim.CurrentLimit(), "floored at min")

	now = now.Add(errorCooldown + time.Second)
	lim.Success()
	assert.Equal(t, 2.0, lim.CurrentLimit())
}

func TestNewAdaptiveLimiterBounds(t *testing.T) {
	lim := NewAdaptiveLimiter(50, 0, 10, 1, 0.5)
	assert.Equal(t, 10.0, lim.CurrentLimit())
	assert.EqualValues(t, 1, lim.MinLimit())
	assert.EqualValues(t, 10, lim.MaxLimit())
}

func TestWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{"first try", nil, 1, false},
		{"server error then ok", []error{statusErr(502)}, 2, false},
		{"rate limited then ok", []error{statusErr(429), statusErr(429)}, 3, false},
		{"plain error then ok", []error{errors.New("flaky")}, 2, false},
		{"client error stops", []error{statusErr(403)}, 1, true},
		{"fatal stops", []error{Fatal(errors.New("bad input"))}, 1, true},
		{"exhausted", []error{statusErr(500), statusErr(500), statusErr(500)}, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithRetryConfig(context.Background(), func() error {
				calls++
				if calls <= len(tt.errs) {
					return tt.errs[calls-1]
				}
				return nil
			}, NewAdaptiveLimiter(100, 1, 100, 1, 0.5), fastConfig(3))
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithRetryExhaustedWrapsLast(t *testing.T) {
	err := WithRetryConfig(context.Background(), func() error { return statusErr(503) }, nil, fastConfig(2))
	require.Error(t, err)
	var h HTTPError
	require.ErrorAs(t, err, &h)
	assert.Equal(t, 503, h.StatusCode())
	assert.Contains(t, err.Error(), "max attempts (2)")
}

func TestWithRetryContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := WithRetryMax(ctx, func() error { calls++; return nil }, nil, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestOnRetry(t *testing.T) {
	var attempts []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error) { attempts = append(attempts, attempt) }
	_ = WithRetryConfig(context.Background(), func() error { return errors.New("x") }, nil, cfg)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestAddJitter(t *testing.T) {
	assert.Equal(t, time.Duration(0), addJitter(0))
	assert.Equal(t, time.Duration(3), addJitter(3))
	for range 20 {
		d := addJitter(100 * time.Millisecond)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 125*time.Millisecond)
	}
}
