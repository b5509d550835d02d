package models

import (
	"time"

	"gorm.io/gorm"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "MULTIPLE_CHOICE"
	ShortAnswer    QuestionType = "SHORT_ANSWER"
	Essay          QuestionType = "ESSAY"
)

// DefaultTimeLimitMinutes is used when an assignment carries no time limit.
const DefaultTimeLimitMinutes = 15

// AssignmentDefinition is a timed assessment as published by the assignment catalog.
// It is treated as immutable for the whole lifetime of a session.
type AssignmentDefinition struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	Title               string     `json:"title" gorm:"not null;size:200" validate:"required,max=200"`
	TimeLimitMinutes    int        `json:"time_limit_minutes" gorm:"default:0" validate:"min=0,max=1440"`
	DueDate             time.Time  `json:"due_date" gorm:"not null;index" validate:"required"`
	MaxScore            float64    `json:"max_score" gorm:"not null" validate:"min=0"`
	AllowLateSubmission bool       `json:"allow_late_submission" gorm:"default:false"`
	SubmissionLimit     *int       `json:"submission_limit" validate:"omitempty,min=1"` // nil = unlimited
	Questions           []Question `json:"questions" gorm:"foreignKey:AssignmentID" validate:"required,min=1,dive"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (AssignmentDefinition) TableName() string {
	return "assignments"
}

// EffectiveTimeLimit returns the time limit in minutes, falling back to
// fallbackMinutes (or DefaultTimeLimitMinutes) when none is set.
func (a *AssignmentDefinition) EffectiveTimeLimit(fallbackMinutes int) int {
	if a.TimeLimitMinutes > 0 {
		return a.TimeLimitMinutes
	}
	if fallbackMinutes > 0 {
		return fallbackMinutes
	}
	return DefaultTimeLimitMinutes
}

// HasQuestion reports whether id belongs to this assignment.
func (a *AssignmentDefinition) HasQuestion(id uint) bool {
	for _, q := range a.Questions {
		if q.ID == id {
			return true
		}
	}
	return false
}

type Question struct {
	ID            uint         `json:"id" gorm:"primaryKey"`
	AssignmentID  uint         `json:"assignment_id" gorm:"not null;index"`
	Position      int          `json:"position" gorm:"not null;default:0"`
	Text          string       `json:"text" gorm:"type:text;not null" validate:"required"`
	Type          QuestionType `json:"type" gorm:"not null;size:32" validate:"required,question_type"`
	Options       []Option     `json:"options,omitempty" gorm:"foreignKey:QuestionID" validate:"dive"`
	CorrectAnswer *string      `json:"correct_answer,omitempty" gorm:"type:text"` // auto-gradable free text
}

func (Question) TableName() string {
	return "assignment_questions"
}

// CorrectOptionTexts lists the text of every option flagged correct.
func (q *Question) CorrectOptionTexts() []string {
	var texts []string
	for _, o := range q.Options {
		if o.IsCorrect {
			texts = append(texts, o.Text)
		}
	}
	return texts
}

type Option struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Position   int    `json:"position" gorm:"not null;default:0"`
	Text       string `json:"text" gorm:"type:text;not null" validate:"required"`
	IsCorrect  bool   `json:"is_correct" gorm:"default:false"`
}

func (Option) TableName() string {
	return "question_options"
}
