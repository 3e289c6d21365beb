package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/synthgen-io/synthgen/internal/api/response"
)

// TokenParser validates an access token and returns the subject user id.
type TokenParser interface {
	ParseAccessToken(token string) (uuid.UUID, error)
}

// Auth provides JWT authentication middleware.
type Auth struct {
	tokens TokenParser
}

// NewAuth creates a new Auth middleware.
func NewAuth(tokens TokenParser) *Auth {
	return &Auth{tokens: tokens}
}

// Authenticate validates the Bearer token and sets user_id in the request
// context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		userID, err := a.tokens.ParseAccessToken(raw)
		if err != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid or expired token", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetUserID(r.Context(), userID)))
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
