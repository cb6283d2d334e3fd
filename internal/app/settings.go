package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"quicktrivia/internal/domain"
)

var validate = validator.New()

// ValidateSettings checks settings before a game starts.
func ValidateSettings(s domain.QuizSettings) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return settingsError(fieldErrs[0])
	}
	return err
}

func settingsError(fe validator.FieldError) *domain.ValidationError {
	switch fe.Field() {
	case "QuestionCount":
		return &domain.ValidationError{
			Field:   "questionCount",
			Message: fmt.Sprintf("question count must be between %d and %d", domain.MinQuestionCount, domain.MaxQuestionCount),
		}
	case "Difficulty":
		return &domain.ValidationError{Field: "difficulty", Message: "difficulty must be easy, medium or hard"}
	case "CategoryID":
		return &domain.ValidationError{Field: "categoryId", Message: "category must not be negative"}
	default:
		return &domain.ValidationError{Field: fe.Field(), Message: fe.Error()}
	}
}

// ParseQuestionCount converts user input to a question count. Range checks
// happen on submit.
func ParseQuestionCount(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &domain.ValidationError{Field: "questionCount", Message: "question count must be a whole number"}
	}
	return n, nil
}
