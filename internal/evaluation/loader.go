package evaluation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// LoadGoldenQueries decodes a golden query set. Unknown fields are rejected so
// a misspelled key fails loudly instead of silently emptying a query.
func LoadGoldenQueries(path string) ([]GoldenQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading golden queries %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var queries []GoldenQuery
	if err := dec.Decode(&queries); err != nil {
		return nil, fmt.Errorf("decoding golden queries %s: %w", path, err)
	}

	for i := range queries {
		normalizeQuery(&queries[i])
	}
	return queries, nil
}

func normalizeQuery(q *GoldenQuery) {
	q.ID = strings.TrimSpace(q.ID)
	q.Query = strings.TrimSpace(q.Query)
	q.Difficulty = strings.ToLower(strings.TrimSpace(q.Difficulty))
	for i, d := range q.ExpectedDiagnoses {
		q.ExpectedDiagnoses[i] = strings.TrimSpace(d)
	}
}

var difficulties = []string{"easy", "medium", "hard"}

func validDifficulty(d string) bool {
	for _, v := range difficulties {
		if d == v {
			return true
		}
	}
	return false
}

// ValidateGoldenQueries reports every problem in the set, not just the first.
func ValidateGoldenQueries(queries []GoldenQuery) error {
	var errs []error
	seen := make(map[string]int, len(queries))

	for i, q := range queries {
		label := q.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			errs = append(errs, fmt.Errorf("query %s: missing id", label))
		} else if first, dup := seen[q.ID]; dup {
			errs = append(errs, fmt.Errorf("query %s: id already used by entry #%d", label, first))
		} else {
			seen[q.ID] = i
		}

		if strings.TrimSpace(q.Query) == "" {
			errs = append(errs, fmt.Errorf("query %s: missing query text", label))
		}
		for _, d := range q.ExpectedDiagnoses {
			if strings.TrimSpace(d) == "" {
				errs = append(errs, fmt.Errorf("query %s: blank expected diagnosis", label))
				break
			}
		}
		if !validDifficulty(q.Difficulty) {
			errs = append(errs, fmt.Errorf("query %s: difficulty %q is not one of %s", label, q.Difficulty, strings.Join(difficulties, "/")))
		}
	}
	return errors.Join(errs...)
}
