package evaluation

import "time"

// DefaultK is the cut-off used for Recall@K and MRR@K.
const DefaultK = 5

// GoldenQuery represents a labeled user message with the diagnoses retrieval
// should surface. An empty ExpectedDiagnoses marks a message that must not
// trigger retrieval at all.
type GoldenQuery struct {
	ID                string   `json:"id"`
	Query             string   `json:"query"`
	ExpectedDiagnoses []string `json:"expected_diagnoses"`
	Difficulty        string   `json:"difficulty"` // easy, medium, hard
}

// Positive reports whether the query expects retrieval.
func (q GoldenQuery) Positive() bool {
	return len(q.ExpectedDiagnoses) > 0
}

// EvalResult holds the evaluation outcome for a single query.
type EvalResult struct {
	QueryID            string        `json:"query_id"`
	Query              string        `json:"query"`
	Difficulty         string        `json:"difficulty"`
	Triggered          bool          `json:"triggered"`
	GateCorrect        bool          `json:"gate_correct"`
	RecallAtK          float64       `json:"recall_at_k"`
	MRRAtK             float64       `json:"mrr_at_k"`
	RetrievedDiagnoses []string      `json:"retrieved_diagnoses"`
	Latency            time.Duration `json:"latency_ns"`
	Error              string        `json:"error,omitempty"`
}

// EvalSummary holds aggregate metrics across all golden queries. Recall and
// MRR are averaged over positive queries only.
type EvalSummary struct {
	K               int                           `json:"k"`
	TotalQueries    int                           `json:"total_queries"`
	PositiveQueries int                           `json:"positive_queries"`
	AvgRecallAtK    float64                       `json:"avg_recall_at_k"`
	AvgMRRAtK       float64                       `json:"avg_mrr_at_k"`
	GateAccuracy    float64                       `json:"gate_accuracy"`
	AvgLatency      time.Duration                 `json:"avg_latency_ns"`
	QueriesWithHits int                           `json:"queries_with_hits"`
	Failed          int                           `json:"failed"`
	ByDifficulty    map[string]*DifficultySummary `json:"by_difficulty"`
	Results         []EvalResult                  `json:"results,omitempty"`
}

// DifficultySummary holds metrics grouped by difficulty.
type DifficultySummary struct {
	Count        int     `json:"count"`
	Positive     int     `json:"positive"`
	AvgRecallAtK float64 `json:"avg_recall_at_k"`
	AvgMRRAtK    float64 `json:"avg_mrr_at_k"`
}
