package repositories

import (
	"context"

	"github.com/SAP-F-2025/assessment-session/internal/models"
)

// AttemptRepository stores completed submission attempts
type AttemptRepository interface {
	// FetchPriorAttempts lists a learner's earlier attempts, oldest first
	FetchPriorAttempts(ctx context.Context, assignmentID uint, learnerID string) ([]models.SubmissionAttempt, error)

	// CreateSubmission persists a finished attempt and returns its stored ID
	CreateSubmission(ctx context.Context, attempt *models.SubmissionAttempt) (uint, error)

	// FindSubmission loads the stored attempt with the given number, or ErrNotFound
	FindSubmission(ctx context.Context, assignmentID uint, learnerID string, attemptNumber int) (*models.SubmissionAttempt, error)
}
