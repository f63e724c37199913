package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/apperrors"
	"github.com/travelgo/chat-engine/pkg/repositories"
)

// Middleware provides HTTP authentication middleware.
// It is thin and delegates token checks to AuthService.
type Middleware struct {
	authService AuthService
	users       repositories.UserRepository
	logger      *zap.Logger
}

// NewMiddleware creates auth middleware. A nil authService disables
// authentication and every request is anonymous.
func NewMiddleware(authService AuthService, users repositories.UserRepository, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		users:       users,
		logger:      logger.Named("auth"),
	}
}

// OptionalAuth resolves the caller when a token is present. Requests without
// a token pass through anonymously; an invalid token or a token for an
// unknown user is rejected with 401.
func (m *Middleware) OptionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.authService == nil {
			next(w, r)
			return
		}

		claims, err := m.authService.ValidateRequest(r)
		if errors.Is(err, ErrMissingAuthorization) {
			next(w, r)
			return
		}
		if err != nil {
			m.unauthorized(w, "Invalid or expired token")
			return
		}

		userID, _ := claims.UserID()
		user, err := m.users.GetByID(r.Context(), userID)
		if errors.Is(err, apperrors.ErrNotFound) {
			m.unauthorized(w, "Unknown user")
			return
		}
		if err != nil {
			m.logger.Error("Failed to load user", zap.Int64("user_id", userID), zap.Error(err))
			m.serviceUnavailable(w)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = WithUser(ctx, user)
		next(w, r.WithContext(ctx))
	}
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, "unauthorized", message)
}

func (m *Middleware) serviceUnavailable(w http.ResponseWriter) {
	writeError(w, http.StatusServiceUnavailable, "service_unavailable", "Authentication backend unavailable")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
