// Package eligibility decides whether a learner may start a new attempt.
// Every function here is pure: the caller supplies the current time.
package eligibility

import (
	"time"

	"github.com/SAP-F-2025/assessment-session/internal/models"
)

type Reason string

const (
	ReasonNone              Reason = ""
	ReasonOverdue           Reason = "OVERDUE"
	ReasonAttemptsExhausted Reason = "ATTEMPTS_EXHAUSTED"
)

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

// Remaining is the display value for attempts left. Count is meaningless when Unlimited.
type Remaining struct {
	Unlimited bool `json:"unlimited"`
	Count     int  `json:"count"`
}

// CanAttempt gates entry into a new session. When both the due-date and the
// attempt-count clauses fail, the overdue reason wins.
func CanAttempt(def *models.AssignmentDefinition, priorAttempts []models.SubmissionAttempt, now time.Time) Decision {
	overdue := IsLate(def, now)
	if overdue && !def.AllowLateSubmission {
		return Decision{Allowed: false, Reason: ReasonOverdue}
	}

	if def.SubmissionLimit != nil && len(priorAttempts) >= *def.SubmissionLimit {
		return Decision{Allowed: false, Reason: ReasonAttemptsExhausted}
	}

	return Decision{Allowed: true}
}

// RemainingAttempts is max(limit - used, 0), or unlimited when no limit is set.
func RemainingAttempts(def *models.AssignmentDefinition, priorAttempts []models.SubmissionAttempt) Remaining {
	if def.SubmissionLimit == nil {
		return Remaining{Unlimited: true}
	}
	left := *def.SubmissionLimit - len(priorAttempts)
	if left < 0 {
		left = 0
	}
	return Remaining{Count: left}
}

// IsLate reports whether at is strictly after the due date.
func IsLate(def *models.AssignmentDefinition, at time.Time) bool {
	return at.After(def.DueDate)
}
