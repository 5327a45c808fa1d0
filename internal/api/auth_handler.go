package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/tabilist/tabilist/internal/auth"
	"github.com/tabilist/tabilist/internal/domain"
	"github.com/tabilist/tabilist/internal/metrics"
	"github.com/tabilist/tabilist/internal/user"
)

// refreshCookieName is the HttpOnly cookie carrying the refresh token. The
// refresh token never appears in a JSON body.
const refreshCookieName = "refresh_token"

// authHandler groups session-lifecycle HTTP handlers.
type authHandler struct {
	svc           *auth.Service
	refreshTTL    time.Duration
	secureCookies bool
	metrics       *metrics.Metrics
}

func newAuthHandler(svc *auth.Service, refreshTTL time.Duration, secureCookies bool, m *metrics.Metrics) *authHandler {
	return &authHandler{
		svc:           svc,
		refreshTTL:    refreshTTL,
		secureCookies: secureCookies,
		metrics:       m,
	}
}

func (h *authHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.refreshTTL.Seconds()),
		Secure:   h.secureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *authHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.secureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *authHandler) recordSuccess(operation string) {
	if h.metrics != nil {
		h.metrics.IncAuthSuccess(operation)
	}
}

func (h *authHandler) recordFailure(operation string) {
	if h.metrics != nil {
		h.metrics.IncAuthFailure(operation)
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *credentialsRequest) validate() string {
	c.Email = strings.TrimSpace(c.Email)
	if c.Email == "" || !strings.Contains(c.Email, "@") {
		return "a valid email is required"
	}
	if len(c.Password) < 8 {
		return "password must be at least 8 characters"
	}
	return ""
}

func userResponse(u *user.User) map[string]interface{} {
	return map[string]interface{}{
		"id":         u.ID,
		"email":      u.Email,
		"role":       u.Role,
		"created_at": u.CreatedAt,
	}
}

// Signup handles POST /api/v1/auth/signup.
func (h *authHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, "validation_error", msg)
		return
	}

	sess, err := h.svc.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		h.recordFailure("signup")
		writeDomainError(w, r, err)
		return
	}

	h.recordSuccess("signup")
	h.setRefreshCookie(w, sess.RefreshToken)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"access_token": sess.AccessToken,
		"user":         userResponse(sess.User),
	})
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "email and password are required")
		return
	}

	sess, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.recordFailure("login")
		writeDomainError(w, r, err)
		return
	}

	h.recordSuccess("login")
	h.setRefreshCookie(w, sess.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": sess.AccessToken,
		"user":         userResponse(sess.User),
	})
}

// Refresh handles POST /api/v1/auth/refresh. The refresh token is read from
// its cookie; any failure clears the cookie so the client falls back to a
// full login.
func (h *authHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		h.recordFailure("refresh")
		h.clearRefreshCookie(w)
		writeDomainError(w, r, domain.ErrInvalidToken)
		return
	}

	access, err := h.svc.Refresh(r.Context(), cookie.Value)
	if err != nil {
		h.recordFailure("refresh")
		h.clearRefreshCookie(w)
		writeDomainError(w, r, err)
		return
	}

	h.recordSuccess("refresh")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": access,
	})
}

// Logout handles POST /api/v1/auth/logout. It always clears the refresh
// cookie and never fails visibly, even when nothing was revoked.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if id := auth.IdentityFromContext(r.Context()); id != nil {
		userID = id.UserID
	}

	refreshToken := ""
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		refreshToken = cookie.Value
	}

	h.svc.Logout(r.Context(), refreshToken, userID)
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	u, err := h.svc.GetMe(r.Context(), id.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse(u))
}

// CSRFToken handles GET /api/v1/auth/csrf. It reuses the existing cookie
// token when present so an open tab does not invalidate another.
func (h *authHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token := ""
	if cookie, err := r.Cookie(CSRFCookieName); err == nil {
		token = cookie.Value
	}
	if token == "" {
		var err error
		token, err = generateCSRFToken()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
	}

	setCSRFCookie(w, token, h.secureCookies)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"csrf_token": token,
	})
}
