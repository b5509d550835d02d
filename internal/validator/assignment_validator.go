package validator

import (
	"fmt"
	"strings"

	"github.com/SAP-F-2025/assessment-session/internal/errors"
	"github.com/SAP-F-2025/assessment-session/internal/models"
)

// AssignmentValidator checks the rules an assignment definition must satisfy
// before a session can be opened on it
type AssignmentValidator struct{}

func NewAssignmentValidator() *AssignmentValidator {
	return &AssignmentValidator{}
}

// Validate returns every rule violation found in def
func (v *AssignmentValidator) Validate(def *models.AssignmentDefinition) ValidationErrors {
	var errs ValidationErrors

	if def.DueDate.IsZero() {
		errs = append(errs, *errors.NewValidationErrorWithRule("due_date", "is required", "required", nil))
	}
	if def.TimeLimitMinutes < 0 {
		errs = append(errs, *errors.NewValidationErrorWithRule("time_limit_minutes", "must not be negative", "min", def.TimeLimitMinutes))
	}
	if def.SubmissionLimit != nil && *def.SubmissionLimit < 1 {
		errs = append(errs, *errors.NewValidationErrorWithRule("submission_limit", "must be at least 1 when set", "min", *def.SubmissionLimit))
	}
	if len(def.Questions) == 0 {
		errs = append(errs, *errors.NewValidationErrorWithRule("questions", "must contain at least one question", "required", nil))
		return errs
	}

	seen := make(map[uint]bool, len(def.Questions))
	for i, q := range def.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		if seen[q.ID] {
			errs = append(errs, *errors.NewValidationErrorWithRule(field+".id", "is duplicated", "unique", q.ID))
		}
		seen[q.ID] = true
		errs = append(errs, v.ValidateQuestion(field, &q)...)
	}

	return errs
}

// ValidateQuestion checks a single question. Multiple choice options are
// matched by text, so texts must be distinct after trimming and lowercasing.
func (v *AssignmentValidator) ValidateQuestion(field string, q *models.Question) ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(q.Text) == "" {
		errs = append(errs, *errors.NewValidationErrorWithRule(field+".text", "is required", "required", q.Text))
	}

	switch q.Type {
	case models.MultipleChoice:
		if len(q.Options) < 2 {
			errs = append(errs, *errors.NewValidationErrorWithRule(field+".options", "must have at least 2 options", "min", len(q.Options)))
		}
		texts := make(map[string]bool, len(q.Options))
		correct := 0
		for j, o := range q.Options {
			key := strings.ToLower(strings.TrimSpace(o.Text))
			if key == "" {
				errs = append(errs, *errors.NewValidationErrorWithRule(fmt.Sprintf("%s.options[%d].text", field, j), "is required", "required", o.Text))
				continue
			}
			if texts[key] {
				errs = append(errs, *errors.NewValidationErrorWithRule(fmt.Sprintf("%s.options[%d].text", field, j), "duplicates another option", "unique", o.Text))
			}
			texts[key] = true
			if o.IsCorrect {
				correct++
			}
		}
		if correct == 0 {
			errs = append(errs, *errors.NewValidationErrorWithRule(field+".options", "must mark at least one option correct", "correct_option", nil))
		}
	case models.ShortAnswer:
		if q.CorrectAnswer != nil && strings.TrimSpace(*q.CorrectAnswer) == "" {
			errs = append(errs, *errors.NewValidationErrorWithRule(field+".correct_answer", "must not be blank when set", "required", *q.CorrectAnswer))
		}
	case models.Essay:
		if len(q.Options) > 0 {
			errs = append(errs, *errors.NewValidationErrorWithRule(field+".options", "are not allowed for essay questions", "excluded", len(q.Options)))
		}
	default:
		errs = append(errs, *errors.NewValidationErrorWithRule(field+".type", "must be a valid question type", "question_type", q.Type))
	}

	return errs
}
