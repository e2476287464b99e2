package entities

// Vital is one named measurement from a case row, kept in column order.
type Vital struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CaseRecord is one clinical case from the corpus. Records are normalised once
// at load and never mutated afterwards.
type CaseRecord struct {
	ID             string   `json:"id"`
	Age            int      `json:"age,omitempty"`
	Gender         string   `json:"gender,omitempty"`
	Diagnosis      string   `json:"diagnosis"`
	Symptoms       []string `json:"symptoms,omitempty"`
	Vitals         []Vital  `json:"vitals,omitempty"`
	Summary        string   `json:"summary,omitempty"`
	SearchableText string   `json:"searchable_text"`
}

// EmbeddingEntry pairs a record with its vector.
type EmbeddingEntry struct {
	RecordID   string    `json:"record_id"`
	Vector     []float32 `json:"vector"`
	SourceText string    `json:"source_text"`
}

// CaseSearchHit is a keyword search result from the external search engine.
type CaseSearchHit struct {
	Record *CaseRecord `json:"record"`
	Score  float64     `json:"score"`
}
