package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tabilist/tabilist/internal/token"
)

type contextKey int

const identityContextKey contextKey = iota

// Identity is the authenticated principal extracted from an access token.
// Role is the snapshot taken when the token was issued.
type Identity struct {
	UserID string
	Role   string
}

// ContextWithIdentity returns a new context carrying the given identity.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext extracts the identity from the context, or nil if not
// present.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey).(*Identity)
	return id
}

// Verifier validates access tokens. Implemented by token.Service.
type Verifier interface {
	VerifyAccess(tok string) (token.Payload, error)
}

// Middleware returns middleware that authenticates requests using a bearer
// access token. On success the identity is injected into the request context.
func Middleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := extractBearerToken(r)
			if tok == "" {
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}

			payload, err := verifier.VerifyAccess(tok)
			if err != nil {
				writeUnauthorized(w, "invalid or expired access token")
				return
			}

			ctx := ContextWithIdentity(r.Context(), &Identity{UserID: payload.UserID, Role: payload.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{
			Code:    "unauthorized",
			Message: message,
		},
	})
}
