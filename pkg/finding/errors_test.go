package finding

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors_Wrapping(t *testing.T) {
	wrapped := fmt.Errorf("probing: %w", ErrTimeout)
	if !errors.Is(wrapped, ErrTimeout) {
		t.Error("errors.Is must work through wrapping for ErrTimeout")
	}
	if errors.Is(wrapped, ErrTargetUnreachable) {
		t.Error("must not match different sentinel")
	}
}

func TestSentinelErrors_AllDefined(t *testing.T) {
	sentinels := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrTimeout", ErrTimeout, "finding: timeout"},
		{"ErrTargetUnreachable", ErrTargetUnreachable, "finding: target unreachable"},
		{"ErrInvalidTarget", ErrInvalidTarget, "finding: invalid target url"},
		{"ErrRateLimited", ErrRateLimited, "finding: target rate limiting detected"},
	}

	for _, s := range sentinels {
		t.Run(s.name, func(t *testing.T) {
			if s.err == nil {
				t.Fatalf("%s must not be nil", s.name)
			}
			if got := s.err.Error(); got != s.msg {
				t.Errorf("%s.Error() = %q, want %q", s.name, got, s.msg)
			}
		})
	}
}
