package validator

import (
	"reflect"
	"strings"

	"github.com/SAP-F-2025/assessment-session/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator combines struct tag validation with assignment business rules
type Validator struct {
	structValidator     *validator.Validate
	assignmentValidator *AssignmentValidator
}

// New creates a new centralized validator instance
func New() *Validator {
	structValidator := validator.New(validator.WithRequiredStructEnabled())

	// Register all custom validators once
	registerCustomValidators(structValidator)

	return &Validator{
		structValidator:     structValidator,
		assignmentValidator: NewAssignmentValidator(),
	}
}

// ValidateStruct validates struct tags only
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.structValidator.Struct(s)
}

// Validate performs struct tag validation and, for assignment definitions,
// the business rules the scoring engine relies on.
func (v *Validator) Validate(s interface{}) error {
	if err := v.ValidateStruct(s); err != nil {
		if fieldErrors := ToValidationErrors(err); len(fieldErrors) > 0 {
			return fieldErrors
		}
		return err
	}

	if def, ok := s.(*models.AssignmentDefinition); ok {
		if errors := v.assignmentValidator.Validate(def); len(errors) > 0 {
			return errors
		}
	}

	return nil
}

// Assignment returns the assignment validator
func (v *Validator) Assignment() *AssignmentValidator {
	return v.assignmentValidator
}

// registerCustomValidators registers all custom validation functions
func registerCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("question_type", validateQuestionType)

	// Custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func validateQuestionType(fl validator.FieldLevel) bool {
	validTypes := []models.QuestionType{
		models.MultipleChoice,
		models.ShortAnswer,
		models.Essay,
	}

	value := fl.Field().String()
	for _, validType := range validTypes {
		if string(validType) == value {
			return true
		}
	}
	return false
}
