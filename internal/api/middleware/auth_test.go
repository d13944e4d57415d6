package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onetask/onetask-api/internal/api/middleware"
	"github.com/onetask/onetask-api/internal/api/shared"
	"github.com/onetask/onetask-api/internal/service/auth"
)

func newAuthenticatedServer(t *testing.T) (*middleware.AuthMiddleware, auth.JWTService) {
	t.Helper()
	jwtService := auth.MustCreateTestJWTService()
	return middleware.NewAuthMiddleware(jwtService), jwtService
}

// echoUserID responds with the user ID the middleware placed in the context.
func echoUserID(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		require.True(t, ok, "user ID missing from context")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(userID.String()))
	})
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	t.Run("valid token passes user ID through", func(t *testing.T) {
		t.Parallel()
		authMiddleware, jwtService := newAuthenticatedServer(t)
		userID := uuid.New()
		token, err := jwtService.GenerateToken(context.Background(), userID)
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		authMiddleware.Authenticate(echoUserID(t)).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, userID.String(), rec.Body.String())
	})

	t.Run("missing header returns 401", func(t *testing.T) {
		t.Parallel()
		authMiddleware, _ := newAuthenticatedServer(t)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		authMiddleware.Authenticate(echoUserID(t)).ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		var resp shared.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Authorization header required", resp.Error)
	})

	t.Run("malformed header returns 401", func(t *testing.T) {
		t.Parallel()
		authMiddleware, jwtService := newAuthenticatedServer(t)
		token, err := jwtService.GenerateToken(context.Background(), uuid.New())
		require.NoError(t, err)

		for _, header := range []string{token, "Basic " + token, "Bearer"} {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set("Authorization", header)
			authMiddleware.Authenticate(echoUserID(t)).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		}
	})

	t.Run("expired token returns 401", func(t *testing.T) {
		t.Parallel()
		authMiddleware, _ := newAuthenticatedServer(t)
		token, err := auth.GenerateExpiredTokenForTesting(uuid.New())
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		authMiddleware.Authenticate(echoUserID(t)).ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		var resp shared.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Token expired", resp.Error)
	})

	t.Run("refresh token rejected on access routes", func(t *testing.T) {
		t.Parallel()
		authMiddleware, jwtService := newAuthenticatedServer(t)
		refreshToken, err := jwtService.GenerateRefreshToken(context.Background(), uuid.New())
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+refreshToken)
		authMiddleware.Authenticate(echoUserID(t)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token returns 401", func(t *testing.T) {
		t.Parallel()
		authMiddleware, _ := newAuthenticatedServer(t)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		authMiddleware.Authenticate(echoUserID(t)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
