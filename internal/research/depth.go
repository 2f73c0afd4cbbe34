package research

import "strings"

// Depth controls breadth and thoroughness guidance for the planner.
type Depth string

const (
	DepthShallow  Depth = "shallow"
	DepthModerate Depth = "moderate"
	DepthDeep     Depth = "deep"
)

var depthGuidance = map[Depth]string{
	DepthShallow:  "Focus on high-level overview only. Use 1-2 sub-agents maximum. Prioritize speed over comprehensiveness.",
	DepthModerate: "Balance depth and breadth. Use 2-3 sub-agents for distinct topics. Cover main points thoroughly.",
	DepthDeep:     "Conduct comprehensive investigation. Use up to max sub-agents. Explore all angles and gather extensive evidence.",
}

// ParseDepth normalizes s. Empty or unrecognized values become moderate.
func ParseDepth(s string) Depth {
	d := Depth(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := depthGuidance[d]; ok {
		return d
	}
	return DepthModerate
}

// Guidance returns the planner guidance for d.
func (d Depth) Guidance() string {
	if g, ok := depthGuidance[d]; ok {
		return g
	}
	return depthGuidance[DepthModerate]
}
