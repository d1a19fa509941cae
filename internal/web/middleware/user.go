package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const userContextKey contextKey = "user"

// UserHeader carries the caller's user id, set by the gateway in front of the service.
const UserHeader = "X-User-ID"

const maxUserIDLength = 128

// UserID is middleware that puts the X-User-ID header into the request context.
// Requests without the header run as the anonymous user.
func UserID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := strings.TrimSpace(r.Header.Get(UserHeader))
			if len(user) > maxUserIDLength {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error": "user id too long"}`, http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetUserInContext(r.Context(), user)))
		})
	}
}

// GetUserFromContext returns the user id, empty for anonymous requests.
func GetUserFromContext(ctx context.Context) string {
	user, _ := ctx.Value(userContextKey).(string)
	return user
}

// SetUserInContext adds a user id to the context.
// This is primarily for testing - use UserID middleware in production.
func SetUserInContext(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
