package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

var providerNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)

// Validator validates screening inputs and sanitizes free text
type Validator struct {
	validator *validator.Validate
	sanitizer *bluemonday.Policy
}

// NewValidator creates a validator with the screening custom tags registered
func NewValidator() *Validator {
	v := &Validator{
		validator: validator.New(),
		sanitizer: bluemonday.StrictPolicy(),
	}
	v.registerCustomValidators()
	return v
}

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", ve[0].Message)
}

// ValidateStruct validates a struct using struct tags
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	validationErrs := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		validationErrs = append(validationErrs, ValidationError{
			Field:   fe.Namespace(),
			Tag:     fe.Tag(),
			Value:   fmt.Sprintf("%v", fe.Value()),
			Message: errorMessage(fe),
		})
	}
	return validationErrs
}

// SanitizeText strips all markup from reviewer supplied text
func (v *Validator) SanitizeText(input string) string {
	if input == "" {
		return input
	}
	return strings.TrimSpace(v.sanitizer.Sanitize(input))
}

func (v *Validator) registerCustomValidators() {
	v.validator.RegisterValidation("list_type", func(fl validator.FieldLevel) bool {
		return models.ListType(fl.Field().String()).Valid()
	})

	v.validator.RegisterValidation("provider_name", func(fl validator.FieldLevel) bool {
		return providerNamePattern.MatchString(fl.Field().String())
	})

	v.validator.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		switch models.Priority(fl.Field().String()) {
		case "", models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
			return true
		}
		return false
	})

	v.validator.RegisterValidation("decision", func(fl validator.FieldLevel) bool {
		return models.ReviewDecision(fl.Field().String()).Valid()
	})
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must contain at least %s item(s)", fe.Field(), fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date formatted as %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "list_type":
		return fmt.Sprintf("%s is not a known watchlist type", fe.Field())
	case "provider_name":
		return fmt.Sprintf("%s is not a valid provider name", fe.Field())
	case "priority":
		return fmt.Sprintf("%s must be one of: low normal high urgent", fe.Field())
	case "decision":
		return fmt.Sprintf("%s must be one of: true_positive false_positive inconclusive", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
