package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/onetask/onetask-api/internal/config"
)

// DefaultJWTConfig returns a standard configuration for JWT authentication suitable for testing.
// This is the single source of truth for JWT test config.
func DefaultJWTConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:                   "test-jwt-secret-that-is-32-chars-long", // At least 32 chars
		TokenLifetimeMinutes:        60,
		RefreshTokenLifetimeMinutes: 1440,
	}
}

// NewTestJWTService creates a JWT service with default configuration for testing.
// This is the recommended way to create a JWT service for tests.
func NewTestJWTService() (JWTService, error) {
	return NewJWTService(DefaultJWTConfig())
}

// MustCreateTestJWTService creates a test JWT service and panics if it fails.
// Useful for test setup where error handling would be verbose.
func MustCreateTestJWTService() JWTService {
	service, err := NewTestJWTService()
	if err != nil {
		// ALLOW-PANIC
		panic(fmt.Sprintf("failed to create test JWT service: %v", err))
	}
	return service
}

// GenerateTokenForTesting creates a JWT access token for the specified user ID.
// This is a utility function for tests that need to create tokens without
// having to instantiate a JWT service.
func GenerateTokenForTesting(userID uuid.UUID) (string, error) {
	svc, err := NewTestJWTService()
	if err != nil {
		return "", fmt.Errorf("failed to create JWT service: %w", err)
	}
	return svc.GenerateToken(context.Background(), userID)
}

// GenerateExpiredTokenForTesting creates an access token that expired beyond
// the validator's clock skew allowance.
func GenerateExpiredTokenForTesting(userID uuid.UUID) (string, error) {
	svc, err := NewTestJWTService()
	if err != nil {
		return "", fmt.Errorf("failed to create JWT service: %w", err)
	}
	impl, ok := svc.(*hmacJWTService)
	if !ok {
		return "", fmt.Errorf("unexpected JWT service type %T", svc)
	}
	return impl.generate(
		context.Background(),
		userID,
		tokenTypeAccess,
		time.Now().Add(-1*time.Hour),
	)
}

// GenerateExpiredRefreshTokenForTesting creates an expired refresh token for testing.
func GenerateExpiredRefreshTokenForTesting(userID uuid.UUID) (string, error) {
	svc, err := NewTestJWTService()
	if err != nil {
		return "", fmt.Errorf("failed to create JWT service: %w", err)
	}
	impl, ok := svc.(*hmacJWTService)
	if !ok {
		return "", fmt.Errorf("unexpected JWT service type %T", svc)
	}
	return impl.GenerateRefreshTokenWithExpiry(
		context.Background(),
		userID,
		time.Now().Add(-1*time.Hour),
	)
}
