package entities

// GateDecision is the outcome of the keyword retrieval gate.
type GateDecision struct {
	Triggered  bool     `json:"triggered"`
	Terms      []string `json:"terms,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// RetrievalMatch is one case that scored at or above the similarity threshold.
type RetrievalMatch struct {
	RecordID  string  `json:"record_id"`
	Diagnosis string  `json:"diagnosis"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
}

// RetrievedContext is built per request and never persisted.
type RetrievedContext struct {
	Query          string           `json:"query"`
	Matches        []RetrievalMatch `json:"matches"`
	FormattedBlock string           `json:"formatted_block"`
}
