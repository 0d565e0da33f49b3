package middleware

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/marketloop/chat-service/internal/apperr"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs the validate struct tags on a request DTO and
// translates the first failure into a field-level validation error.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return apperr.Validationf("", "invalid request body")
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperr.Validationf(strings.ToLower(fe.Field()), "failed %s validation", fe.Tag())
	}
	return apperr.Validationf("", "invalid request body")
}

// ValidateID validates a resource identifier path parameter.
func ValidateID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validationf(field, "must be a valid id")
	}
	return nil
}

// ValidateUserID validates an externally issued user identifier.
func ValidateUserID(id string) error {
	if id == "" {
		return apperr.Validationf("user_id", "cannot be empty")
	}
	if len(id) > 64 {
		return apperr.Validationf("user_id", "exceeds maximum length")
	}
	return nil
}
