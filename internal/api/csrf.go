package api

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
)

const (
	// CSRFCookieName is the readable cookie carrying the CSRF token.
	CSRFCookieName = "csrf_token"
	// CSRFHeaderName is the header same-origin script must echo it in.
	CSRFHeaderName = "X-CSRF-Token"
)

// generateCSRFToken returns a 32-byte random token, hex-encoded.
func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating csrf token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// setCSRFCookie sets the CSRF token as a cookie readable by same-origin
// script. Deliberately not HttpOnly: the double-submit pattern requires the
// client to read it back into the request header.
func setCSRFCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
}

// csrfGuard returns middleware implementing the stateless double-submit
// cookie check on mutating requests:
//
//   - Safe methods (GET, HEAD, OPTIONS) bypass the check entirely.
//   - A mutating request with no CSRF cookie is allowed through once, and a
//     fresh token is set so the client can echo it from then on. The client
//     has not yet had a chance to read a cookie, so there is nothing to
//     compare against (first-contact grace pass).
//   - A mutating request with a cookie must carry the identical value in the
//     X-CSRF-Token header or it is rejected with 403.
//
// The token is not bound to the session; onReject hooks (metrics) run before
// a rejection is written.
func csrfGuard(secure bool, onReject ...func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(CSRFCookieName)
			if err != nil || cookie.Value == "" {
				token, genErr := generateCSRFToken()
				if genErr != nil {
					writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
					return
				}
				setCSRFCookie(w, token, secure)
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get(CSRFHeaderName) != cookie.Value {
				for _, fn := range onReject {
					fn()
				}
				writeError(w, http.StatusForbidden, "csrf_mismatch", "missing or mismatched CSRF token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
