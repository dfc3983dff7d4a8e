package common

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Roles recognised by the API. The gateway authenticates the caller and
// forwards identity in headers; this service only authorises.
const (
	RoleBuyer  = "buyer"
	RoleVendor = "vendor"
	RoleAdmin  = "admin"
)

type ctxKey string

const (
	userIDKey ctxKey = "identity/user-id"
	roleKey   ctxKey = "identity/role"
)

// WithIdentity stores the caller identity on the context.
func WithIdentity(ctx context.Context, id uuid.UUID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, id)
	return context.WithValue(ctx, roleKey, role)
}

// UserID extracts the caller identifier from the context if present.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// Role extracts the caller role from the context, defaulting to buyer.
func Role(ctx context.Context) string {
	if role, ok := ctx.Value(roleKey).(string); ok && role != "" {
		return role
	}
	return RoleBuyer
}

// Identity reads the X-User-ID and X-User-Role headers set by the gateway
// and attaches them to the request context. Requests without a parseable
// user id proceed anonymously; RequireUser rejects them downstream.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get("X-User-ID"))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		role := r.Header.Get("X-User-Role")
		switch role {
		case RoleBuyer, RoleVendor, RoleAdmin:
		default:
			role = RoleBuyer
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id, role)))
	})
}

// RequireUser rejects requests that carry no caller identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserID(r.Context()); !ok {
			JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing user identity", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects callers whose role is not in the allowed set.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := UserID(r.Context()); !ok {
				JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing user identity", nil)
				return
			}
			got := Role(r.Context())
			for _, role := range roles {
				if got == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			JSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
		})
	}
}
