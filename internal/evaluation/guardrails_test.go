package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardrails_PassesHealthySummary(t *testing.T) {
	g := NewGuardrails(GuardrailConfig{MinRecallAtK: 0.6, MinMRRAtK: 0.5, MinGateAccuracy: 0.9})

	violations := g.Check(&EvalSummary{K: 5, AvgRecallAtK: 0.8, AvgMRRAtK: 0.7, GateAccuracy: 1})

	assert.Empty(t, violations)
}

func TestGuardrails_ReportsEveryViolation(t *testing.T) {
	g := NewGuardrails(GuardrailConfig{MinRecallAtK: 0.6, MinMRRAtK: 0.5, MinGateAccuracy: 0.9})

	violations := g.Check(&EvalSummary{K: 5, AvgRecallAtK: 0.4, AvgMRRAtK: 0.2, GateAccuracy: 0.5, Failed: 1})

	assert.Len(t, violations, 4)
	assert.Contains(t, violations[0], "recall@5")
}

func TestGuardrails_ZeroDisablesChecks(t *testing.T) {
	g := NewGuardrails(GuardrailConfig{MaxFailed: 2})

	assert.Empty(t, g.Check(&EvalSummary{Failed: 2}))
}
