package repositories

import (
	"context"
	"errors"

	"github.com/SAP-F-2025/assessment-session/internal/models"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicateSubmission = errors.New("submission already recorded for this attempt number")
)

// AssignmentRepository fetches immutable assignment definitions
type AssignmentRepository interface {
	FetchAssignment(ctx context.Context, id uint) (*models.AssignmentDefinition, error)
}

// AssignmentInvalidator is implemented by assignment repositories that cache
// definitions.
type AssignmentInvalidator interface {
	Invalidate(ctx context.Context, id uint) error
}

// Repository groups the repositories the session service depends on
type Repository interface {
	Assignment() AssignmentRepository
	Attempt() AttemptRepository
}

type repository struct {
	assignment AssignmentRepository
	attempt    AttemptRepository
}

func NewRepository(assignment AssignmentRepository, attempt AttemptRepository) Repository {
	return &repository{assignment: assignment, attempt: attempt}
}

func (r *repository) Assignment() AssignmentRepository {
	return r.assignment
}

func (r *repository) Attempt() AttemptRepository {
	return r.attempt
}
