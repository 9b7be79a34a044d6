package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSleeper records delays without actually sleeping.
type fakeSleeper struct {
	delays []time.Duration
}

func (f *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.delays = append(f.delays, d)
	return nil
}

var errTemporary = errors.New("temporary")

func TestDo_SucceedsFirstTry(t *testing.T) {
	t.Parallel()
	s := &fakeSleeper{}
	err := doWithSleeper(context.Background(), ForProbes(2, time.Second), func() error { return nil }, s)
	require.NoError(t, err)
	assert.Empty(t, s.delays)
}

func TestDo_ProbePolicyLinearBackoff(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	s := &fakeSleeper{}

	err := doWithSleeper(context.Background(), ForProbes(2, time.Second), func() error {
		calls.Add(1)
		return errTemporary
	}, s)

	assert.ErrorIs(t, err, errTemporary)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, s.delays)
}

func TestDo_SucceedsAfterRetry(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	s := &fakeSleeper{}
	err := doWithSleeper(context.Background(), ForProbes(3, time.Millisecond), func() error {
		if calls.Add(1) < 3 {
			return errTemporary
		}
		return nil
	}, s)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, s.delays, 2)
}

func TestDo_NotRetryable(t *testing.T) {
	t.Parallel()
	permanent := errors.New("permanent")
	cfg := ForProbes(5, time.Second)
	cfg.Retryable = func(err error) bool { return errors.Is(err, errTemporary) }

	var calls atomic.Int32
	s := &fakeSleeper{}
	err := doWithSleeper(context.Background(), cfg, func() error {
		calls.Add(1)
		return permanent
	}, s)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, s.delays)
}

func TestDo_StopError(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	err := doWithSleeper(context.Background(), ForProbes(5, time.Second), func() error {
		calls.Add(1)
		return Stop(errTemporary)
	}, &fakeSleeper{})
	assert.ErrorIs(t, err, errTemporary)
	var stop *StopError
	assert.False(t, errors.As(err, &stop), "StopError is unwrapped")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_OnRetry(t *testing.T) {
	t.Parallel()
	var attempts []int
	cfg := ForProbes(2, 10*time.Millisecond)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		assert.ErrorIs(t, err, errTemporary)
		assert.Equal(t, CalcDelay(cfg, attempt), delay)
	}
	_ = doWithSleeper(context.Background(), cfg, func() error { return errTemporary }, &fakeSleeper{})
	assert.Equal(t, []int{0, 1}, attempts)
}

func TestDo_ZeroAttempts(t *testing.T) {
	t.Parallel()
	called := false
	err := Do(context.Background(), Config{}, func() error {
		called = true
		return errTemporary
	})
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestDo_RespectsContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, ForProbes(2, time.Second), func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_ContextCancelledDuringSleep(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Do(ctx, ForProbes(4, 10*time.Second), func() error { return errTemporary })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCalcDelay_AllStrategies(t *testing.T) {
	t.Parallel()
	base := Config{InitDelay: time.Second, MaxDelay: 30 * time.Second}

	tests := []struct {
		name     string
		strategy Strategy
		attempt  int
		want     time.Duration
	}{
		{"linear 0", Linear, 0, time.Second},
		{"linear 2", Linear, 2, 3 * time.Second},
		{"exponential 0", Exponential, 0, time.Second},
		{"exponential 3", Exponential, 3, 8 * time.Second},
		{"exponential capped", Exponential, 100, 30 * time.Second},
		{"constant", Constant, 7, time.Second},
		{"linear capped", Linear, 99, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Strategy = tt.strategy
			assert.Equal(t, tt.want, CalcDelay(cfg, tt.attempt))
		})
	}
}

func TestCalcDelay_JitterNeverExceedsMax(t *testing.T) {
	t.Parallel()
	cfg := Config{InitDelay: 10 * time.Second, MaxDelay: 10 * time.Second, Strategy: Constant, Jitter: true}
	for i := 0; i < 200; i++ {
		d := CalcDelay(cfg, i)
		assert.LessOrEqual(t, d, cfg.MaxDelay)
		assert.GreaterOrEqual(t, d, 7*time.Second)
	}
}

func TestCalcDelay_ZeroInitDelay(t *testing.T) {
	t.Parallel()
	assert.Zero(t, CalcDelay(Config{Strategy: Exponential, Jitter: true}, 5))
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()
	for _, s := range []Strategy{Linear, Exponential, Constant} {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	got, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, Linear, got)

	_, err = ParseStrategy("fibonacci")
	assert.Error(t, err)
}
