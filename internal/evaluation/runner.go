package evaluation

import (
	"context"
	"strings"
	"time"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/retrieval"
)

// Gate decides whether a message warrants retrieval.
type Gate interface {
	Evaluate(message string) entities.GateDecision
}

// Retriever produces the retrieved context for a message.
type Retriever interface {
	Compose(ctx context.Context, query string, opts ...retrieval.Option) (*entities.RetrievedContext, error)
}

// Runner runs golden queries through the same gate and composer the chat
// service uses.
type Runner struct {
	gate      Gate
	retriever Retriever
	k         int
}

func NewRunner(gate Gate, retriever Retriever, k int) *Runner {
	if k <= 0 {
		k = DefaultK
	}
	return &Runner{gate: gate, retriever: retriever, k: k}
}

func (r *Runner) Run(ctx context.Context, queries []GoldenQuery) (*EvalSummary, error) {
	summary := &EvalSummary{
		K:            r.k,
		TotalQueries: len(queries),
		ByDifficulty: make(map[string]*DifficultySummary),
		Results:      make([]EvalResult, 0, len(queries)),
	}

	for _, gq := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := r.evaluate(ctx, gq)
		r.updateSummary(summary, gq, result)
		summary.Results = append(summary.Results, result)
	}

	r.finalizeSummary(summary)
	return summary, nil
}

func (r *Runner) evaluate(ctx context.Context, gq GoldenQuery) EvalResult {
	start := time.Now()
	decision := r.gate.Evaluate(gq.Query)
	result := EvalResult{
		QueryID:            gq.ID,
		Query:              gq.Query,
		Difficulty:         gq.Difficulty,
		Triggered:          decision.Triggered,
		GateCorrect:        decision.Triggered == gq.Positive(),
		RetrievedDiagnoses: []string{},
	}

	if decision.Triggered {
		rc, err := r.retriever.Compose(ctx, gq.Query, retrieval.WithTopK(r.k))
		if err != nil {
			result.Error = err.Error()
		} else if rc != nil {
			result.RetrievedDiagnoses = rankedDiagnoses(rc.Matches)
		}
	}
	result.Latency = time.Since(start)

	if gq.Positive() {
		expected := normalizeAll(gq.ExpectedDiagnoses)
		result.RecallAtK = RecallAtK(expected, result.RetrievedDiagnoses, r.k)
		result.MRRAtK = MRRAtK(expected, result.RetrievedDiagnoses, r.k)
	}
	return result
}

// rankedDiagnoses lists each diagnosis once, in the order it first appears.
func rankedDiagnoses(matches []entities.RetrievalMatch) []string {
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		d := normalize(m.Diagnosis)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = normalize(s)
	}
	return out
}

func (r *Runner) updateSummary(s *EvalSummary, gq GoldenQuery, res EvalResult) {
	s.AvgLatency += res.Latency
	if res.GateCorrect {
		s.GateAccuracy++
	}
	if len(res.RetrievedDiagnoses) > 0 {
		s.QueriesWithHits++
	}
	if res.Error != "" {
		s.Failed++
	}

	ds, ok := s.ByDifficulty[gq.Difficulty]
	if !ok {
		ds = &DifficultySummary{}
		s.ByDifficulty[gq.Difficulty] = ds
	}
	ds.Count++

	if !gq.Positive() {
		return
	}
	s.PositiveQueries++
	s.AvgRecallAtK += res.RecallAtK
	s.AvgMRRAtK += res.MRRAtK
	ds.Positive++
	ds.AvgRecallAtK += res.RecallAtK
	ds.AvgMRRAtK += res.MRRAtK
}

func (r *Runner) finalizeSummary(s *EvalSummary) {
	if s.TotalQueries > 0 {
		s.GateAccuracy /= float64(s.TotalQueries)
		s.AvgLatency /= time.Duration(s.TotalQueries)
	}
	if s.PositiveQueries > 0 {
		n := float64(s.PositiveQueries)
		s.AvgRecallAtK /= n
		s.AvgMRRAtK /= n
	}

	for _, ds := range s.ByDifficulty {
		if ds.Positive > 0 {
			n := float64(ds.Positive)
			ds.AvgRecallAtK /= n
			ds.AvgMRRAtK /= n
		}
	}
}
