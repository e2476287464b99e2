package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
)

const (
	contextHeader = "Relevant clinical cases from the reference database. They describe other patients and are provided as background only:"
	contextFooter = "Use these cases only where they are relevant to the user's question. Do not present them as the user's own history or as a diagnosis."

	maxSummaryRunes = 160
	maxVitals       = 4
)

var titleCaser = cases.Title(language.English)

// estimateTokens approximates the token count at four characters per token.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

type scoredCase struct {
	record *entities.CaseRecord
	score  float64
}

type caseGroup struct {
	heading string
	lines   []string
}

// formatBlock renders cases (already sorted best first) grouped by diagnosis
// and returns the block together with the cases that fit into maxTokens.
// The best case is always kept.
func formatBlock(scored []scoredCase, maxTokens int) (string, []scoredCase) {
	budget := maxTokens - estimateTokens(contextHeader) - estimateTokens(contextFooter)

	var (
		groups []*caseGroup
		byKey  = make(map[string]*caseGroup)
		kept   []scoredCase
		used   int
	)
	for i, sc := range scored {
		line := "- " + caseLine(sc.record)
		key := strings.ToLower(sc.record.Diagnosis)
		g, ok := byKey[key]

		cost := estimateTokens(line)
		if !ok {
			cost += estimateTokens(groupHeading(sc.record.Diagnosis))
		}
		if i > 0 && maxTokens > 0 && used+cost > budget {
			continue
		}
		used += cost

		if !ok {
			g = &caseGroup{heading: groupHeading(sc.record.Diagnosis)}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.lines = append(g.lines, line)
		kept = append(kept, sc)
	}

	var b strings.Builder
	b.WriteString(contextHeader)
	b.WriteString("\n")
	for _, g := range groups {
		b.WriteString("\n")
		b.WriteString(g.heading)
		b.WriteString("\n")
		for _, l := range g.lines {
			b.WriteString(l)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(contextFooter)
	return b.String(), kept
}

func groupHeading(diagnosis string) string {
	d := strings.TrimSpace(diagnosis)
	if d == "" {
		return "Other Cases:"
	}
	// keep acronyms such as HIV as written
	if d == strings.ToLower(d) {
		d = titleCaser.String(d)
	}
	return d + " Cases:"
}

// caseLine renders one case as a compact single line.
func caseLine(rec *entities.CaseRecord) string {
	var parts []string

	switch {
	case rec.Age > 0 && rec.Gender != "":
		parts = append(parts, fmt.Sprintf("%d-year-old %s", rec.Age, rec.Gender))
	case rec.Age > 0:
		parts = append(parts, fmt.Sprintf("%d-year-old patient", rec.Age))
	case rec.Gender != "":
		parts = append(parts, rec.Gender+" patient")
	default:
		parts = append(parts, "patient")
	}

	if len(rec.Symptoms) > 0 {
		parts = append(parts, "symptoms: "+strings.Join(rec.Symptoms, ", "))
	}
	if len(rec.Vitals) > 0 {
		n := min(len(rec.Vitals), maxVitals)
		vitals := make([]string, n)
		for i := 0; i < n; i++ {
			vitals[i] = strings.ReplaceAll(rec.Vitals[i].Name, "_", " ") + " " + rec.Vitals[i].Value
		}
		parts = append(parts, "vitals: "+strings.Join(vitals, ", "))
	}

	line := strings.Join(parts, "; ")
	if rec.Summary != "" {
		line += ". " + truncateRunes(rec.Summary, maxSummaryRunes)
	}
	return line
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "..."
}
