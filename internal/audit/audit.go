// Package audit emits security-relevant events from the session lifecycle.
// The sink is fire-and-forget: it must never block or fail the caller.
package audit

import (
	"context"
	"log/slog"
)

// Event kinds recorded by the session orchestrator.
const (
	KindSignup             = "SIGNUP"
	KindLoginSuccess       = "LOGIN_SUCCESS"
	KindLoginFailure       = "LOGIN_FAILURE"
	KindLogout             = "LOGOUT"
	KindRefreshTokenUsed   = "REFRESH_TOKEN_USED"
	KindRefreshTokenFailed = "REFRESH_TOKEN_FAILED"
)

// Failure reason tags. Logged server-side only; never exposed to callers.
const (
	ReasonUserNotFound     = "user_not_found"
	ReasonInvalidPassword  = "invalid_password"
	ReasonInvalidSignature = "invalid_signature"
	ReasonTokenNotFound    = "token_not_found"
	ReasonTokenExpired     = "token_expired"
)

// Event is a single audit record.
type Event struct {
	Kind   string
	UserID string
	Email  string
	Reason string
}

// Sink receives audit events.
type Sink interface {
	Log(ctx context.Context, e Event)
}

// SlogSink writes audit events as structured log entries.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink writing to logger, or the default logger if nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Log emits the event. It never returns an error; audit failures must not
// surface to the request path.
func (s *SlogSink) Log(ctx context.Context, e Event) {
	attrs := []any{"kind", e.Kind}
	if e.UserID != "" {
		attrs = append(attrs, "user_id", e.UserID)
	}
	if e.Email != "" {
		attrs = append(attrs, "email", e.Email)
	}
	if e.Reason != "" {
		attrs = append(attrs, "reason", e.Reason)
	}
	s.logger.InfoContext(ctx, "audit", attrs...)
}

// NopSink discards all events. Useful in tests.
type NopSink struct{}

// Log discards the event.
func (NopSink) Log(context.Context, Event) {}
