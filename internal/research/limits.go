package research

// Limits bounds the pipeline. Values are read at the start of every phase so
// hot-reloaded limits apply to the next round.
type Limits struct {
	MaxIterations            int  `json:"max_iterations" mapstructure:"max_iterations"`
	MaxConcurrentResearchers int  `json:"max_concurrent_researchers" mapstructure:"max_concurrent_researchers"`
	MaxClarificationRounds   int  `json:"max_clarification_rounds" mapstructure:"max_clarification_rounds"`
	AllowClarification       bool `json:"allow_clarification" mapstructure:"allow_clarification"`
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
		MaxIterations:            6,
		MaxConcurrentResearchers: 3,
		MaxClarificationRounds:   3,
		AllowClarification:       true,
	}
}

// Normalized replaces non-positive values with defaults. Clarification is
// turned off with AllowClarification, not with a zero round count.
func (l Limits) Normalized() Limits {
	d := DefaultLimits()
	if l.MaxIterations <= 0 {
		l.MaxIterations = d.MaxIterations
	}
	if l.MaxConcurrentResearchers <= 0 {
		l.MaxConcurrentResearchers = d.MaxConcurrentResearchers
	}
	if l.MaxClarificationRounds <= 0 {
		l.MaxClarificationRounds = d.MaxClarificationRounds
	}
	return l
}
