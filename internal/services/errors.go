package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/assessment-session/internal/errors"
	"github.com/SAP-F-2025/assessment-session/internal/session"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrConflict         = errors.New("resource conflict")

	// Assignment specific errors
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrAssignmentInvalid  = errors.New("assignment definition is invalid")

	// Session specific errors
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionAccessDenied = errors.New("access denied to session")
	ErrLearnerRequired     = errors.New("learner id is required")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

type PermissionError struct {
	LearnerID string `json:"learner_id"`
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
	Reason    string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: learner %s cannot %s session %s - %s",
		pe.LearnerID, pe.Action, pe.SessionID, pe.Reason)
}

func (pe *PermissionError) Unwrap() error {
	return ErrSessionAccessDenied
}

// Business rules surfaced to the learner
const (
	RuleEligibility          = "eligibility"
	RuleIncompleteSubmission = "incomplete_submission"
)

// ===== ERROR HELPERS =====

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

func NewPermissionError(learnerID, sessionID, action, reason string) *PermissionError {
	return &PermissionError{
		LearnerID: learnerID,
		SessionID: sessionID,
		Action:    action,
		Reason:    reason,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAssignmentNotFound) ||
		errors.Is(err, ErrSessionNotFound)
}

// IsUnauthorized checks if error represents an "unauthorized" condition
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrSessionAccessDenied)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrLearnerRequired) ||
		errors.Is(err, session.ErrUnknownQuestion) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a state conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, session.ErrNotInProgress) ||
		errors.Is(err, session.ErrSubmissionInFlight) ||
		errors.Is(err, session.ErrSessionClosed)
}

// IsUpstream checks if error came from a failing collaborator and may be retried
func IsUpstream(err error) bool {
	return session.IsRetryable(err)
}
