package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Message templates surfaced to clients for failed validations. Tests
// compare against these too.
const (
	ErrRequired = "is required"
	ErrMinValue = "must be at least %s"
	ErrMaxValue = "must be at most %s"
	ErrGtValue  = "must be greater than %s"
)

func NewValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// ValidationMessage converts validator errors into readable messages
func ValidationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return ErrRequired
	case "min":
		return fmt.Sprintf(ErrMinValue, err.Param())
	case "max":
		return fmt.Sprintf(ErrMaxValue, err.Param())
	case "gt":
		return fmt.Sprintf(ErrGtValue, err.Param())
	default:
		return "is invalid"
	}
}
