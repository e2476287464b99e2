// Package corpus loads the clinical case CSV into normalised case records.
package corpus

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	apperrors "github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/errors"
)

// column aliases, matched case-insensitively against the header
var (
	idColumns        = []string{"record_id", "id", "case_id"}
	ageColumns       = []string{"age"}
	genderColumns    = []string{"gender", "sex"}
	diagnosisColumns = []string{"diagnosis", "condition"}
	symptomColumns   = []string{"symptoms"}
	summaryColumns   = []string{"summary_text", "summary", "notes"}
)

// Load reads and normalises every row of the corpus at path. A missing or
// unreadable file is reported as CORPUS_UNAVAILABLE.
func Load(path string) ([]entities.CaseRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewCorpusUnavailableError(path, err)
	}
	defer f.Close()

	records, err := Parse(f)
	if err != nil {
		return nil, apperrors.NewCorpusUnavailableError(path, err)
	}
	return records, nil
}

// LoadWithFingerprint reads the corpus once and returns its records together
// with the SHA-256 of the raw bytes.
func LoadWithFingerprint(path string) ([]entities.CaseRecord, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", apperrors.NewCorpusUnavailableError(path, err)
	}
	records, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, "", apperrors.NewCorpusUnavailableError(path, err)
	}
	sum := sha256.Sum256(data)
	return records, hex.EncodeToString(sum[:]), nil
}

// Parse reads CSV rows from r. The first row must be the header.
func Parse(r io.Reader) ([]entities.CaseRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("corpus is empty")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	layout, err := newLayout(header)
	if err != nil {
		return nil, err
	}

	var records []entities.CaseRecord
	seen := make(map[string]int)
	for row := 1; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if blank(fields) {
			continue
		}

		rec := layout.record(fields, row)
		if prev, ok := seen[rec.ID]; ok {
			return nil, fmt.Errorf("row %d: duplicate record id %q (first seen on row %d)", row, rec.ID, prev)
		}
		seen[rec.ID] = row
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, errors.New("corpus has no records")
	}
	return records, nil
}

// Fingerprint returns the SHA-256 of the corpus file contents.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperrors.NewCorpusUnavailableError(path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", apperrors.NewCorpusUnavailableError(path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type layout struct {
	id, age, gender, diagnosis, symptoms, summary int
	vitals                                        []int
	names                                         []string
}

func newLayout(header []string) (*layout, error) {
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	l := &layout{
		id:        indexOf(names, idColumns),
		age:       indexOf(names, ageColumns),
		gender:    indexOf(names, genderColumns),
		diagnosis: indexOf(names, diagnosisColumns),
		symptoms:  indexOf(names, symptomColumns),
		summary:   indexOf(names, summaryColumns),
		names:     names,
	}
	if l.diagnosis < 0 {
		return nil, errors.New("header has no diagnosis column")
	}

	known := map[int]bool{l.id: true, l.age: true, l.gender: true, l.diagnosis: true, l.symptoms: true, l.summary: true}
	for i, name := range names {
		if !known[i] && name != "" {
			l.vitals = append(l.vitals, i)
		}
	}
	return l, nil
}

func (l *layout) record(fields []string, row int) entities.CaseRecord {
	rec := entities.CaseRecord{
		ID:        field(fields, l.id),
		Gender:    normalizeGender(field(fields, l.gender)),
		Diagnosis: collapse(field(fields, l.diagnosis)),
		Symptoms:  splitSymptoms(field(fields, l.symptoms)),
		Summary:   collapse(field(fields, l.summary)),
	}
	if rec.ID == "" {
		rec.ID = "row-" + strconv.Itoa(row)
	}
	if age, err := strconv.ParseFloat(field(fields, l.age), 64); err == nil && age >= 0 {
		rec.Age = int(age)
	}
	for _, i := range l.vitals {
		if v := field(fields, i); v != "" {
			rec.Vitals = append(rec.Vitals, entities.Vital{Name: l.names[i], Value: v})
		}
	}
	rec.SearchableText = SearchableText(rec)
	return rec
}

// EmbeddingText renders the short text that is vectorised for a record: the
// diagnosis followed by its symptoms. Demographics and vitals would dilute the
// similarity against a plain-language question, so they are left out. The
// summary stands in when a record lists no symptoms.
func EmbeddingText(rec entities.CaseRecord) string {
	text := orUnknown(rec.Diagnosis)
	switch {
	case len(rec.Symptoms) > 0:
		text += ". " + strings.Join(rec.Symptoms, ", ")
	case rec.Summary != "":
		text += ". " + rec.Summary
	}
	return text
}

// SearchableText renders the full text of a record for keyword search.
func SearchableText(rec entities.CaseRecord) string {
	var b strings.Builder
	b.WriteString("Diagnosis: ")
	b.WriteString(orUnknown(rec.Diagnosis))
	if rec.Age > 0 {
		fmt.Fprintf(&b, ". Age: %d", rec.Age)
	}
	if rec.Gender != "" {
		b.WriteString(". Gender: ")
		b.WriteString(rec.Gender)
	}
	if len(rec.Symptoms) > 0 {
		b.WriteString(". Symptoms: ")
		b.WriteString(strings.Join(rec.Symptoms, ", "))
	}
	if len(rec.Vitals) > 0 {
		b.WriteString(". Vitals: ")
		for i, v := range rec.Vitals {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strings.ReplaceAll(v.Name, "_", " "))
			b.WriteString(" ")
			b.WriteString(v.Value)
		}
	}
	if rec.Summary != "" {
		b.WriteString(". Summary: ")
		b.WriteString(rec.Summary)
	}
	return b.String()
}

func indexOf(names []string, aliases []string) int {
	for _, alias := range aliases {
		for i, n := range names {
			if n == alias {
				return i
			}
		}
	}
	return -1
}

func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func normalizeGender(g string) string {
	switch strings.ToLower(g) {
	case "m", "male", "man":
		return "male"
	case "f", "female", "woman":
		return "female"
	case "":
		return ""
	default:
		return strings.ToLower(g)
	}
}

func splitSymptoms(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' || r == '|' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = collapse(strings.ToLower(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
