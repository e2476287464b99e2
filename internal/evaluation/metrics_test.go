package evaluation

import (
	"math"
	"testing"
)

const floatTolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

// --- RecallAtK tests ---

func TestRecallAtK_AllRelevantFound(t *testing.T) {
	relevant := []string{"malaria", "typhoid"}
	retrieved := []string{"typhoid", "malaria", "dengue"}
	got := RecallAtK(relevant, retrieved, 5)
	if !almostEqual(got, 1.0) {
		t.Errorf("expected 1.0, got %f", got)
	}
}

func TestRecallAtK_SomeRelevantMissing(t *testing.T) {
	relevant := []string{"malaria", "typhoid", "dengue", "cholera"}
	retrieved := []string{"malaria", "asthma", "typhoid"}
	got := RecallAtK(relevant, retrieved, 5)
	if !almostEqual(got, 0.5) {
		t.Errorf("expected 0.5, got %f", got)
	}
}

func TestRecallAtK_EmptyResults(t *testing.T) {
	got := RecallAtK([]string{"malaria"}, []string{}, 5)
	if !almostEqual(got, 0.0) {
		t.Errorf("expected 0.0, got %f", got)
	}
}

func TestRecallAtK_NoRelevantDocs(t *testing.T) {
	got := RecallAtK([]string{}, []string{"malaria"}, 5)
	if !almostEqual(got, 0.0) {
		t.Errorf("expected 0.0, got %f", got)
	}
}

func TestRecallAtK_KSmallerThanRetrieved(t *testing.T) {
	relevant := []string{"malaria", "typhoid", "dengue"}
	retrieved := []string{"malaria", "typhoid", "asthma", "dengue"}
	got := RecallAtK(relevant, retrieved, 3)
	if !almostEqual(got, 2.0/3.0) {
		t.Errorf("expected %f, got %f", 2.0/3.0, got)
	}
}

func TestRecallAtK_DuplicatesCountOnce(t *testing.T) {
	relevant := []string{"malaria", "malaria", "typhoid"}
	retrieved := []string{"malaria", "malaria"}
	got := RecallAtK(relevant, retrieved, 5)
	if !almostEqual(got, 0.5) {
		t.Errorf("expected 0.5, got %f", got)
	}
}

// --- MRRAtK tests ---

func TestMRRAtK_FirstResultRelevant(t *testing.T) {
	got := MRRAtK([]string{"malaria"}, []string{"malaria", "typhoid"}, 5)
	if !almostEqual(got, 1.0) {
		t.Errorf("expected 1.0, got %f", got)
	}
}

func TestMRRAtK_ThirdResultRelevant(t *testing.T) {
	got := MRRAtK([]string{"dengue"}, []string{"malaria", "typhoid", "dengue"}, 5)
	if !almostEqual(got, 1.0/3.0) {
		t.Errorf("expected %f, got %f", 1.0/3.0, got)
	}
}

func TestMRRAtK_RelevantBeyondK(t *testing.T) {
	got := MRRAtK([]string{"dengue"}, []string{"malaria", "typhoid", "dengue"}, 2)
	if !almostEqual(got, 0.0) {
		t.Errorf("expected 0.0, got %f", got)
	}
}

func TestMRRAtK_EmptyInputs(t *testing.T) {
	if got := MRRAtK([]string{}, []string{"malaria"}, 5); !almostEqual(got, 0.0) {
		t.Errorf("expected 0.0 for empty relevant, got %f", got)
	}
	if got := MRRAtK([]string{"malaria"}, []string{}, 5); !almostEqual(got, 0.0) {
		t.Errorf("expected 0.0 for empty retrieved, got %f", got)
	}
}

func TestMRRAtK_MultipleRelevant_ReturnsFirst(t *testing.T) {
	got := MRRAtK([]string{"malaria", "typhoid"}, []string{"asthma", "typhoid", "malaria"}, 5)
	if !almostEqual(got, 0.5) {
		t.Errorf("expected 0.5, got %f", got)
	}
}
