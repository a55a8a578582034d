package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/ravenhacks/backend/internal/model"
)

// contextKey is an unexported type for context keys in this package, so
// no other package can read or shadow the values we store.
type contextKey string

const userKey contextKey = "user"

// TokenVerifier is the slice of the token lifecycle service the
// middleware needs. Declared here so auth does not import service.
type TokenVerifier interface {
	Verify(ctx context.Context, token string, typ model.TokenType) (model.TokenStatus, string, error)
}

// AccountSource loads the account for a verified subject id.
type AccountSource interface {
	GetByUUID(ctx context.Context, uuid string) (*model.User, error)
}

// Require returns a middleware enforcing a minimum role.
//
// It extracts the bearer token from the Authorization header, verifies it
// as an access token, loads the account, and compares roles. The verified
// account is stored in the request context exactly once; handlers read
// it with UserFromContext instead of re-decoding the token.
//
// 401 means the caller is not authenticated (missing, invalid, or expired
// token); 403 means the identity is valid but the role is insufficient.
// The check is read-only: it never touches the token record.
func Require(min model.Role, tokens TokenVerifier, users AccountSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "authorization header not provided")
				return
			}

			status, uuid, err := tokens.Verify(r.Context(), raw, model.TokenAccess)
			if err != nil {
				writeAuthError(w, http.StatusInternalServerError, "authentication check failed")
				return
			}
			switch status {
			case model.TokenExpired:
				writeAuthError(w, http.StatusUnauthorized, "token expired")
				return
			case model.TokenValid:
				// fall through
			default:
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			user, err := users.GetByUUID(r.Context(), uuid)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if user.Role < min {
				writeAuthError(w, http.StatusForbidden, "insufficient role")
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext retrieves the authenticated account placed in the
// context by Require. Returns (nil, false) on routes without the
// middleware.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	kind := "unauthorized"
	if status == http.StatusForbidden {
		kind = "forbidden"
	}
	_, _ = w.Write([]byte(`{"error":"` + kind + `","message":"` + message + `"}`))
}
