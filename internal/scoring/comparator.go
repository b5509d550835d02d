package scoring

import (
	"strings"

	"github.com/SAP-F-2025/assessment-session/internal/models"
)

type ComparatorKind int

const (
	// CompareManual marks a question left for manual grading.
	CompareManual ComparatorKind = iota
	// CompareOptionText matches the selected option's text against the correct options.
	CompareOptionText
	// CompareAnswerText matches free text against a known correct answer.
	CompareAnswerText
)

func (k ComparatorKind) String() string {
	switch k {
	case CompareOptionText:
		return "option_text"
	case CompareAnswerText:
		return "answer_text"
	default:
		return "manual"
	}
}

// Comparator decides correctness for one question. Options are keyed by their
// display text, so duplicate option texts must be rejected upstream.
type Comparator struct {
	Kind     ComparatorKind
	accepted []string
}

// ComparatorFor picks the comparator matching the question type.
func ComparatorFor(q models.Question) Comparator {
	switch {
	case q.Type == models.MultipleChoice:
		accepted := make([]string, 0, len(q.Options))
		for _, text := range q.CorrectOptionTexts() {
			accepted = append(accepted, normalize(text))
		}
		return Comparator{Kind: CompareOptionText, accepted: accepted}
	case q.CorrectAnswer != nil:
		return Comparator{Kind: CompareAnswerText, accepted: []string{normalize(*q.CorrectAnswer)}}
	default:
		return Comparator{Kind: CompareManual}
	}
}

// Gradable reports whether the question counts toward the automatic tally.
func (c Comparator) Gradable() bool {
	return c.Kind != CompareManual
}

// Match compares an answer. A missing or blank answer never matches.
func (c Comparator) Match(answer string, present bool) bool {
	if !c.Gradable() || !present {
		return false
	}
	got := normalize(answer)
	if got == "" {
		return false
	}
	for _, want := range c.accepted {
		if got == want {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
