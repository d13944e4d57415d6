// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidNotificationType is returned when a notification type is not
	// one of the known types.
	ErrInvalidNotificationType = errors.New("invalid notification type")

	// ErrInvalidTaskAction is returned when a task event carries an action
	// outside the created/updated/completed/deleted set.
	ErrInvalidTaskAction = errors.New("invalid task action")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")
)
