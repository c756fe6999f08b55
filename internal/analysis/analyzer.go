// Package analysis classifies publication content so downstream channels can
// rank notifications. Purely lexical: keyword scan, deadline and hearing
// detection, and a short extractive summary.
package analysis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"diario/internal/monitor/models"
)

// urgencyKeywords flag publications that usually demand immediate action.
var urgencyKeywords = []string{
	"liminar",
	"antecipação de tutela",
	"urgente",
	"mandado de segurança",
	"habeas corpus",
	"prazo",
	"intimação",
	"citação",
	"audiência",
	"sentença",
	"acórdão",
	"decisão",
	"despacho",
	"julgamento",
	"penhora",
	"bloqueio",
}

var (
	deadlinePattern = regexp.MustCompile(`prazo\s+de\s+(\d+)\s+dias?`)
	hearingPattern  = regexp.MustCompile(`audiência.+?(\d{2}/\d{2}/\d{4})`)
	sentenceSplit   = regexp.MustCompile(`[.!?]+`)
)

const summaryMaxLen = 200

// Analyzer derives priority, matched keywords and a summary from raw
// publication text. Stateless and deterministic.
type Analyzer struct{}

func New() *Analyzer {
	return &Analyzer{}
}

// Enrich fills the analysis fields of a payload in place.
func (a *Analyzer) Enrich(payload *models.PublicationPayload) {
	priority, keywords := a.Classify(payload.Content)
	payload.Priority = priority
	payload.Keywords = keywords
	payload.Summary = a.Summarize(payload.Content)
}

// Classify scores content by keyword density, then escalates on short
// procedural deadlines and scheduled hearings.
func (a *Analyzer) Classify(content string) (models.Priority, []string) {
	lower := strings.ToLower(content)

	var matched []string
	for _, keyword := range urgencyKeywords {
		if strings.Contains(lower, keyword) {
			matched = append(matched, keyword)
		}
	}

	var priority models.Priority
	switch {
	case len(matched) >= 3:
		priority = models.PriorityUrgent
	case len(matched) == 2:
		priority = models.PriorityHigh
	case len(matched) == 1:
		priority = models.PriorityMedium
	default:
		priority = models.PriorityLow
	}

	if m := deadlinePattern.FindStringSubmatch(lower); m != nil {
		days, err := strconv.Atoi(m[1])
		if err == nil {
			switch {
			case days <= 5:
				priority = maxPriority(priority, models.PriorityUrgent)
				matched = append(matched, fmt.Sprintf("prazo de %d dias", days))
			case days <= 15:
				priority = maxPriority(priority, models.PriorityHigh)
				matched = append(matched, fmt.Sprintf("prazo de %d dias", days))
			}
		}
	}

	if m := hearingPattern.FindStringSubmatch(lower); m != nil {
		priority = maxPriority(priority, models.PriorityHigh)
		matched = append(matched, "audiência em "+m[1])
	}

	return priority, matched
}

// Summarize returns the first few sentences of the content, capped at 200
// characters.
func (a *Analyzer) Summarize(content string) string {
	var sentences []string
	for _, s := range sentenceSplit.Split(content, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return ""
	}
	if len(sentences) > 3 {
		sentences = sentences[:3]
	}
	summary := strings.Join(sentences, ". ")
	if runes := []rune(summary); len(runes) > summaryMaxLen {
		summary = string(runes[:summaryMaxLen-3]) + "..."
	}
	return summary
}

func maxPriority(a, b models.Priority) models.Priority {
	if a > b {
		return a
	}
	return b
}
