package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/onetask/onetask-api/internal/domain"
	"github.com/onetask/onetask-api/internal/service/auth"
	"github.com/onetask/onetask-api/internal/store"
)

// MapErrorToStatusCode maps domain, store, and auth errors to the
// appropriate HTTP status code. Unrecognized errors map to 500.
func MapErrorToStatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	// Authentication errors
	case errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Not-found errors (store.ErrNotFound covers the entity-specific variants)
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Validation errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidNotificationType),
		errors.Is(err, domain.ErrInvalidTaskAction),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-safe message for the given error.
// Internal details never reach the response body; they are logged separately.
func GetSafeErrorMessage(err error) string {
	switch MapErrorToStatusCode(err) {
	case http.StatusUnauthorized:
		return "Authentication required"
	case http.StatusNotFound:
		return "Resource not found"
	case http.StatusBadRequest:
		if validationMsg := SanitizeValidationError(err); validationMsg != "" {
			return validationMsg
		}
		return "Invalid request"
	case http.StatusConflict:
		return "Resource already exists"
	default:
		return "An internal error occurred"
	}
}

// SanitizeValidationError converts validator errors into a client-safe
// message naming the failing field but not the submitted value.
// Returns "" for non-validator errors.
func SanitizeValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return ""
	}
	if len(validationErrors) == 0 {
		return ""
	}

	fieldError := validationErrors[0]
	return fieldError.Field() + " " + getValidationTagMessage(fieldError)
}

func getValidationTagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "is too short"
	case "max":
		return "is too long"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return "has an invalid value"
	default:
		return "is invalid"
	}
}
