package evaluation

import "fmt"

// GuardrailConfig holds the minimum scores a retrieval build must reach.
// Zero disables a check.
type GuardrailConfig struct {
	MinRecallAtK    float64
	MinMRRAtK       float64
	MinGateAccuracy float64
	MaxFailed       int
}

type Guardrails struct {
	config GuardrailConfig
}

func NewGuardrails(config GuardrailConfig) *Guardrails {
	if config.MaxFailed < 0 {
		config.MaxFailed = 0
	}
	return &Guardrails{config: config}
}

// Check returns one message per violated threshold.
func (g *Guardrails) Check(s *EvalSummary) []string {
	var violations []string
	if g.config.MinRecallAtK > 0 && s.AvgRecallAtK < g.config.MinRecallAtK {
		violations = append(violations, fmt.Sprintf("recall@%d %.3f below %.3f", s.K, s.AvgRecallAtK, g.config.MinRecallAtK))
	}
	if g.config.MinMRRAtK > 0 && s.AvgMRRAtK < g.config.MinMRRAtK {
		violations = append(violations, fmt.Sprintf("mrr@%d %.3f below %.3f", s.K, s.AvgMRRAtK, g.config.MinMRRAtK))
	}
	if g.config.MinGateAccuracy > 0 && s.GateAccuracy < g.config.MinGateAccuracy {
		violations = append(violations, fmt.Sprintf("gate accuracy %.3f below %.3f", s.GateAccuracy, g.config.MinGateAccuracy))
	}
	if s.Failed > g.config.MaxFailed {
		violations = append(violations, fmt.Sprintf("%d queries failed, at most %d allowed", s.Failed, g.config.MaxFailed))
	}
	return violations
}
