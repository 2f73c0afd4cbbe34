package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDepthGuidance(t *testing.T) {
	assert.Contains(t, DepthShallow.Guidance(), "1-2 sub-agents maximum")
	assert.Contains(t, DepthDeep.Guidance(), "up to max sub-agents")
	assert.Equal(t, DepthModerate.Guidance(), Depth("exhaustive").Guidance())
	assert.Equal(t, "Balance depth and breadth. Use 2-3 sub-agents for distinct topics. Cover main points thoroughly.", Depth("").Guidance())
}

func TestParseDepth(t *testing.T) {
	tests := []struct {
		in   string
		want Depth
	}{
		{"shallow", DepthShallow},
		{" Deep ", DepthDeep},
		{"moderate", DepthModerate},
		{"", DepthModerate},
		{"bottomless", DepthModerate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseDepth(tt.in), tt.in)
	}
}

func TestNewBrief(t *testing.T) {
	b, err := NewBrief("  Study tidal power  ", []string{"cost", " ", "siting"}, "unknown")
	assert.NoError(t, err)
	assert.Equal(t, "Study tidal power", b.Text)
	assert.Equal(t, []string{"cost", "siting"}, b.KeyAreas)
	assert.Equal(t, DepthModerate, b.Depth)

	_, err = NewBrief("   ", nil, "deep")
	assert.ErrorIs(t, err, ErrEmptyBrief)
}
