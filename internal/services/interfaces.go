package services

import (
	"context"

	"github.com/SAP-F-2025/assessment-session/internal/eligibility"
	"github.com/SAP-F-2025/assessment-session/internal/models"
	"github.com/SAP-F-2025/assessment-session/internal/session"
)

// SessionService owns the live assessment sessions of this process
type SessionService interface {
	Open(ctx context.Context, assignmentID uint, learnerID string) (*SessionResponse, error)
	Get(ctx context.Context, sessionID, learnerID string) (*SessionResponse, error)
	RecordAnswer(ctx context.Context, sessionID, learnerID string, req *RecordAnswerRequest) (*AnswerResponse, error)
	Submit(ctx context.Context, sessionID, learnerID string, req *SubmitRequest) (*session.Outcome, error)
	Close(ctx context.Context, sessionID, learnerID string) error
	CheckEligibility(ctx context.Context, assignmentID uint, learnerID string) (*EligibilityResponse, error)

	// Shutdown closes every live session
	Shutdown()
}

// ===== REQUESTS =====

type OpenSessionRequest struct {
	AssignmentID uint `json:"assignment_id" validate:"required"`
}

type RecordAnswerRequest struct {
	QuestionID uint   `json:"question_id" validate:"required"`
	Answer     string `json:"answer" validate:"max=10000"`
}

type SubmitRequest struct {
	// AcknowledgeIncomplete confirms a submission with unanswered questions
	AcknowledgeIncomplete bool `json:"acknowledge_incomplete"`
}

// ===== RESPONSES =====

// QuestionView is a question as shown to the learner, without answer keys
type QuestionView struct {
	ID      uint                `json:"id"`
	Index   int                 `json:"index"`
	Type    models.QuestionType `json:"type"`
	Text    string              `json:"text"`
	Options []string            `json:"options,omitempty"`
	Answer  string              `json:"answer,omitempty"`
}

type SessionResponse struct {
	session.View
	Questions []QuestionView `json:"questions,omitempty"`
}

type AnswerResponse struct {
	QuestionID uint `json:"question_id"`
	Accepted   bool `json:"accepted"`
	Answered   int  `json:"answered"`
	Total      int  `json:"total"`
}

type EligibilityResponse struct {
	AssignmentID      uint                  `json:"assignment_id"`
	Allowed           bool                  `json:"allowed"`
	Reason            eligibility.Reason    `json:"reason,omitempty"`
	RemainingAttempts eligibility.Remaining `json:"remaining_attempts"`
	IsLate            bool                  `json:"is_late"`
}
