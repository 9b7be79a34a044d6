package defaults_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sensinfor/sensinfor/pkg/defaults"
)

func TestVersionIsSemver(t *testing.T) {
	t.Parallel()
	assert.Regexp(t, regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9]+)?$`), defaults.Version)
}

func TestModeConcurrencyOrdering(t *testing.T) {
	t.Parallel()
	assert.Greater(t, defaults.ConcurrencyFast, defaults.ConcurrencyStandard)
	assert.Greater(t, defaults.ConcurrencyStandard, defaults.ConcurrencyThorough)
	assert.LessOrEqual(t, defaults.ConcurrencyFast, defaults.ConcurrencyMax)
}

func TestThresholdRanges(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.5, defaults.SimhashThreshold, 0.5)
	assert.InDelta(t, 50, defaults.Soft404Threshold, 50)
	assert.Less(t, defaults.MinSecretLength, defaults.MaxSecretLength)
}

func TestExitCodesDistinct(t *testing.T) {
	t.Parallel()
	codes := []int{
		defaults.ExitSuccess,
		defaults.ExitFindings,
		defaults.ExitUserError,
		defaults.ExitNetworkError,
		defaults.ExitInternalError,
	}
	seen := map[int]bool{}
	for _, c := range codes {
		assert.False(t, seen[c], "duplicate exit code %d", c)
		seen[c] = true
	}
}
