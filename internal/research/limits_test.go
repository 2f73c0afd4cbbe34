package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimitsNormalized(t *testing.T) {
	assert.Equal(t, DefaultLimits(), Limits{AllowClarification: true}.Normalized())

	custom := Limits{MaxIterations: 2, MaxConcurrentResearchers: 1, MaxClarificationRounds: 1}
	assert.Equal(t, custom, custom.Normalized())

	got := Limits{MaxClarificationRounds: -4}.Normalized()
	assert.Equal(t, 3, got.MaxClarificationRounds)
	assert.False(t, got.AllowClarification)
}
