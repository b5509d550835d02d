package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the session lifecycle transitions that are published
type EventType string

const (
	EventSessionStarted       EventType = "session.started"
	EventSessionBlocked       EventType = "session.blocked"
	EventSessionSubmitted     EventType = "session.submitted"
	EventSessionAutoSubmitted EventType = "session.auto_submitted"
	EventSessionSubmitFailed  EventType = "session.submit_failed"
	EventEvaluationFailed     EventType = "session.evaluation_failed"
	EventSessionAbandoned     EventType = "session.abandoned"
)

const (
	eventSource  = "assessment-session"
	eventVersion = "1.0"
)

// SessionEvent is the envelope for every published session event
type SessionEvent struct {
	ID           string                 `json:"id"`
	Type         EventType              `json:"type"`
	Timestamp    time.Time              `json:"timestamp"`
	Source       string                 `json:"source"`
	Version      string                 `json:"version"`
	SessionID    string                 `json:"session_id"`
	AssignmentID uint                   `json:"assignment_id"`
	LearnerID    string                 `json:"learner_id"`
	Data         interface{}            `json:"data,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

type SessionStartedData struct {
	TimeLimitSeconds int `json:"time_limit_seconds"`
	QuestionCount    int `json:"question_count"`
}

type SessionBlockedData struct {
	Reason string `json:"reason"`
}

type SessionSubmittedData struct {
	StoredID        uint    `json:"stored_id"`
	AttemptNumber   int     `json:"attempt_number"`
	Score           float64 `json:"score"`
	MaxScore        float64 `json:"max_score"`
	IsLate          bool    `json:"is_late"`
	IsAutoSubmitted bool    `json:"is_auto_submitted"`
	NeedsManual     bool    `json:"needs_manual"`
}

type FailureData struct {
	Error string `json:"error"`
}

// NewSessionEvent builds an event envelope with a fresh ID
func NewSessionEvent(eventType EventType, sessionID string, assignmentID uint, learnerID string, data interface{}) *SessionEvent {
	return &SessionEvent{
		ID:           GenerateEventID(),
		Type:         eventType,
		Timestamp:    time.Now(),
		Source:       eventSource,
		Version:      eventVersion,
		SessionID:    sessionID,
		AssignmentID: assignmentID,
		LearnerID:    learnerID,
		Data:         data,
	}
}

func GenerateEventID() string {
	return uuid.NewString()
}
