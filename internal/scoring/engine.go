// Package scoring computes the automatic score of a frozen answer snapshot.
package scoring

import "github.com/SAP-F-2025/assessment-session/internal/models"

type QuestionResult struct {
	QuestionID uint `json:"question_id"`
	Gradable   bool `json:"gradable"`
	IsCorrect  bool `json:"is_correct"`
}

type Result struct {
	CorrectCount  int              `json:"correct_count"`
	Total         int              `json:"total"`
	PerQuestion   []QuestionResult `json:"per_question"`
	RawScore      float64          `json:"raw_score"`
	MaxScore      float64          `json:"max_score"`
	NotApplicable bool             `json:"not_applicable"`
	PendingManual []uint           `json:"pending_manual,omitempty"`
}

// Score grades answers against def. Output order follows the question order
// of def, so identical inputs always produce identical results.
func Score(def *models.AssignmentDefinition, answers map[uint]string) Result {
	res := Result{
		PerQuestion: make([]QuestionResult, 0, len(def.Questions)),
		MaxScore:    def.MaxScore,
	}

	for _, q := range def.Questions {
		cmp := ComparatorFor(q)
		qr := QuestionResult{QuestionID: q.ID, Gradable: cmp.Gradable()}

		if !cmp.Gradable() {
			res.PendingManual = append(res.PendingManual, q.ID)
			res.PerQuestion = append(res.PerQuestion, qr)
			continue
		}

		answer, ok := answers[q.ID]
		qr.IsCorrect = cmp.Match(answer, ok)
		if qr.IsCorrect {
			res.CorrectCount++
		}
		res.Total++
		res.PerQuestion = append(res.PerQuestion, qr)
	}

	if res.Total == 0 {
		res.NotApplicable = true
		return res
	}

	res.RawScore = float64(res.CorrectCount) / float64(res.Total) * def.MaxScore
	return res
}
