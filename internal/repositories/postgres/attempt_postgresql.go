package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/SAP-F-2025/assessment-session/internal/models"
	"github.com/SAP-F-2025/assessment-session/internal/repositories"
	"gorm.io/gorm"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

func (a *AttemptPostgreSQL) FetchPriorAttempts(ctx context.Context, assignmentID uint, learnerID string) ([]models.SubmissionAttempt, error) {
	var attempts []models.SubmissionAttempt
	err := a.db.WithContext(ctx).
		Where("assignment_id = ? AND learner_id = ?", assignmentID, learnerID).
		Order("attempt_number ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prior attempts: %w", err)
	}
	return attempts, nil
}

// CreateSubmission inserts the attempt. The unique index on
// (assignment_id, learner_id, attempt_number) rejects a second insert.
func (a *AttemptPostgreSQL) CreateSubmission(ctx context.Context, attempt *models.SubmissionAttempt) (uint, error) {
	err := a.db.WithContext(ctx).Create(attempt).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return 0, repositories.ErrDuplicateSubmission
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create submission: %w", err)
	}
	return attempt.ID, nil
}

func (a *AttemptPostgreSQL) FindSubmission(ctx context.Context, assignmentID uint, learnerID string, attemptNumber int) (*models.SubmissionAttempt, error) {
	var attempt models.SubmissionAttempt
	err := a.db.WithContext(ctx).
		Where("assignment_id = ? AND learner_id = ? AND attempt_number = ?", assignmentID, learnerID, attemptNumber).
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find submission: %w", err)
	}
	return &attempt, nil
}
