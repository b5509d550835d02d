package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubmissionAttempt is the persisted record of one completed session.
// Created exactly once per session and never modified afterwards.
type SubmissionAttempt struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	AssignmentID  uint      `json:"assignment_id" gorm:"not null;uniqueIndex:idx_learner_attempt"`
	LearnerID     string    `json:"learner_id" gorm:"not null;size:255;uniqueIndex:idx_learner_attempt"`
	AttemptNumber int       `json:"attempt_number" gorm:"not null;uniqueIndex:idx_learner_attempt"`
	SubmittedAt   time.Time `json:"submitted_at" gorm:"not null"`

	// Answers keyed by question ID; stored as JSONB in AnswersData.
	Answers     map[uint]string `json:"answers" gorm:"-"`
	AnswersData datatypes.JSON  `json:"-" gorm:"column:answers;type:jsonb"`

	// Scoring
	Score         float64 `json:"score"`
	MaxScore      float64 `json:"max_score"`
	CorrectCount  int     `json:"correct_count"`
	TotalGradable int     `json:"total_gradable"`
	NeedsManual   bool    `json:"needs_manual"`

	IsLate          bool `json:"is_late" gorm:"default:false"`
	IsAutoSubmitted bool `json:"is_auto_submitted" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at"`
}

func (SubmissionAttempt) TableName() string {
	return "submission_attempts"
}

func (a *SubmissionAttempt) BeforeSave(tx *gorm.DB) error {
	data, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}
	a.AnswersData = data
	return nil
}

func (a *SubmissionAttempt) AfterFind(tx *gorm.DB) error {
	if len(a.AnswersData) == 0 {
		a.Answers = map[uint]string{}
		return nil
	}
	if err := json.Unmarshal(a.AnswersData, &a.Answers); err != nil {
		return fmt.Errorf("failed to unmarshal answers: %w", err)
	}
	return nil
}

// SubmissionMessage is the user-facing explanation of how the attempt ended.
func (a *SubmissionAttempt) SubmissionMessage() string {
	if a.IsAutoSubmitted {
		return "auto-submitted because time expired"
	}
	return "submitted by learner"
}

// EvaluationResult is the enrichment returned by the external evaluation collaborator.
type EvaluationResult struct {
	StoredID      uint     `json:"stored_id"`
	Feedback      string   `json:"feedback"`
	AdjustedScore *float64 `json:"adjusted_score,omitempty"`
	Remarks       []string `json:"remarks,omitempty"`
}
