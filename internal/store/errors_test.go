package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("some error"),
			expected: false,
		},
		{
			name:     "wrapped generic error",
			err:      fmt.Errorf("failed to do something: %w", errors.New("some error")),
			expected: false,
		},
		{
			name:     "ErrNotFound",
			err:      ErrNotFound,
			expected: true,
		},
		{
			name:     "wrapped ErrNotFound",
			err:      fmt.Errorf("failed to do something: %w", ErrNotFound),
			expected: true,
		},
		{
			name:     "ErrNotificationNotFound",
			err:      ErrNotificationNotFound,
			expected: true,
		},
		{
			name:     "ErrWorkspaceNotFound",
			err:      ErrWorkspaceNotFound,
			expected: true,
		},
		{
			name:     "ErrSessionNotFound",
			err:      ErrSessionNotFound,
			expected: true,
		},
		{
			name:     "wrapped entity-specific not found",
			err:      fmt.Errorf("loading: %w", ErrNotificationNotFound),
			expected: true,
		},
		{
			name:     "unrelated sentinel",
			err:      ErrDuplicate,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsNotFoundError(tt.err))
		})
	}
}
