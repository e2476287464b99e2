package evaluation

// RecallAtK is the fraction of relevant items found in the first k retrieved.
// It is 0 when relevant is empty.
func RecallAtK(relevant, retrieved []string, k int) float64 {
	if len(relevant) == 0 {
		return 0.0
	}

	want := toSet(relevant)
	found := 0
	for _, r := range cutoff(retrieved, k) {
		if _, ok := want[r]; ok {
			found++
			delete(want, r)
		}
	}

	return float64(found) / float64(len(toSet(relevant)))
}

// MRRAtK is the reciprocal rank of the first relevant item in the first k
// retrieved, or 0 when none is relevant.
func MRRAtK(relevant, retrieved []string, k int) float64 {
	if len(relevant) == 0 || len(retrieved) == 0 {
		return 0.0
	}

	want := toSet(relevant)
	for i, r := range cutoff(retrieved, k) {
		if _, ok := want[r]; ok {
			return 1.0 / float64(i+1)
		}
	}

	return 0.0
}

func cutoff(retrieved []string, k int) []string {
	if k >= 0 && k < len(retrieved) {
		return retrieved[:k]
	}
	return retrieved
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
