package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/SAP-F-2025/assessment-session/internal/models"
	"github.com/SAP-F-2025/assessment-session/internal/repositories"
	"gorm.io/gorm"
)

type AssignmentPostgreSQL struct {
	db *gorm.DB
}

func NewAssignmentPostgreSQL(db *gorm.DB) repositories.AssignmentRepository {
	return &AssignmentPostgreSQL{db: db}
}

// FetchAssignment loads an assignment with its questions and options in display order
func (a *AssignmentPostgreSQL) FetchAssignment(ctx context.Context, id uint) (*models.AssignmentDefinition, error) {
	var def models.AssignmentDefinition
	err := a.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&def, id).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assignment %d: %w", id, err)
	}

	return &def, nil
}

// AutoMigrate creates or updates the tables owned by this service
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.AssignmentDefinition{},
		&models.Question{},
		&models.Option{},
		&models.SubmissionAttempt{},
	)
}
