package mockapi

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	UserKey     contextKey = "user_id"
	UsernameKey contextKey = "username"
)

// TokenValidator resolves a bearer token to its user.
type TokenValidator interface {
	ValidateToken(tokenString string) (int, string, error)
}

type authMiddleware struct {
	validator TokenValidator
}

// Handle reads the token from the Authorization header, falling back to the
// token query parameter that WebSocket clients use.
func (am authMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""
		if h := r.Header.Get("Authorization"); h != "" {
			if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
				tokenString = strings.TrimSpace(tok)
			}
		}
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}

		userID, username, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), UserKey, userID)
		ctx = context.WithValue(ctx, UsernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identity(r *http.Request) (int, string, bool) {
	id, ok := r.Context().Value(UserKey).(int)
	name, ok2 := r.Context().Value(UsernameKey).(string)
	return id, name, ok && ok2
}
