// Package auth implements the session lifecycle: signup, login, refresh and
// logout, combining the password verifier, the token service and refresh-token
// persistence. Failures are reported through the closed domain error set and
// every transition emits an audit event.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tabilist/tabilist/internal/audit"
	"github.com/tabilist/tabilist/internal/domain"
	"github.com/tabilist/tabilist/internal/password"
	"github.com/tabilist/tabilist/internal/token"
	"github.com/tabilist/tabilist/internal/user"
)

// UserStore is the credential-store surface the orchestrator needs.
type UserStore interface {
	Create(ctx context.Context, in user.CreateUserInput) (*user.User, error)
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// RefreshTokenStore persists refresh tokens so they can be revoked.
type RefreshTokenStore interface {
	Create(ctx context.Context, userID, tok string, expiresAt time.Time) (*token.RefreshToken, error)
	GetByToken(ctx context.Context, tok string) (*token.RefreshToken, error)
	DeleteByToken(ctx context.Context, tok string) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

// Session is the result of a successful signup or login.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *user.User
}

// Service is the session orchestrator.
type Service struct {
	users  UserStore
	tokens RefreshTokenStore
	issuer *token.Service
	hasher *password.Hasher
	sink   audit.Sink
	now    func() time.Time // injectable clock for testing
}

// NewService creates a session orchestrator. A nil sink discards audit events.
func NewService(users UserStore, tokens RefreshTokenStore, issuer *token.Service, hasher *password.Hasher, sink audit.Sink) *Service {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Service{
		users:  users,
		tokens: tokens,
		issuer: issuer,
		hasher: hasher,
		sink:   sink,
		now:    time.Now,
	}
}

// Signup registers a new user and opens a session for it.
func (s *Service) Signup(ctx context.Context, email, pw string) (*Session, error) {
	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrEmailExists
	}

	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return nil, err
	}

	u, err := s.users.Create(ctx, user.CreateUserInput{Email: email, PasswordHash: hash})
	if err != nil {
		return nil, err
	}

	sess, err := s.openSession(ctx, u)
	if err != nil {
		return nil, err
	}

	s.sink.Log(ctx, audit.Event{Kind: audit.KindSignup, UserID: u.ID, Email: u.Email})
	return sess, nil
}

// Login authenticates email/pw and opens a fresh session. The error shape and
// the work performed are identical whether the email exists or the password
// is wrong: both paths run a full hash comparison and both surface
// domain.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, pw string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash := ""
	if u != nil {
		hash = u.PasswordHash
	}
	if !s.hasher.VerifyWithTimingProtection(pw, hash) {
		reason := audit.ReasonInvalidPassword
		userID := ""
		if u == nil {
			reason = audit.ReasonUserNotFound
		} else {
			userID = u.ID
		}
		s.sink.Log(ctx, audit.Event{Kind: audit.KindLoginFailure, UserID: userID, Email: email, Reason: reason})
		return nil, domain.ErrInvalidCredentials
	}

	// Single-active-session policy: a successful login revokes every
	// previously issued refresh token for this user.
	if err := s.tokens.DeleteAllForUser(ctx, u.ID); err != nil {
		return nil, err
	}

	sess, err := s.openSession(ctx, u)
	if err != nil {
		return nil, err
	}

	s.sink.Log(ctx, audit.Event{Kind: audit.KindLoginSuccess, UserID: u.ID, Email: u.Email})
	return sess, nil
}

// Refresh validates a refresh token and mints a new access token. The
// refresh token itself is not rotated. A bad signature performs no database
// mutation; a token that passes signature checks but has no live row revokes
// every token for the decoded user before failing.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	payload, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		s.sink.Log(ctx, audit.Event{Kind: audit.KindRefreshTokenFailed, Reason: audit.ReasonInvalidSignature})
		return "", domain.ErrInvalidToken
	}

	row, err := s.tokens.GetByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			_ = s.tokens.DeleteAllForUser(ctx, payload.UserID)
			s.sink.Log(ctx, audit.Event{Kind: audit.KindRefreshTokenFailed, UserID: payload.UserID, Reason: audit.ReasonTokenNotFound})
			return "", domain.ErrInvalidToken
		}
		return "", err
	}

	if row.ExpiresAt.Before(s.now()) {
		_ = s.tokens.DeleteAllForUser(ctx, payload.UserID)
		s.sink.Log(ctx, audit.Event{Kind: audit.KindRefreshTokenFailed, UserID: payload.UserID, Reason: audit.ReasonTokenExpired})
		return "", domain.ErrInvalidToken
	}

	access, err := s.issuer.IssueAccess(token.Payload{UserID: payload.UserID, Role: payload.Role})
	if err != nil {
		return "", err
	}

	s.sink.Log(ctx, audit.Event{Kind: audit.KindRefreshTokenUsed, UserID: payload.UserID})
	return access, nil
}

// Logout revokes the given refresh token. It is idempotent and never fails
// from the caller's perspective: deletion errors are logged and swallowed.
func (s *Service) Logout(ctx context.Context, refreshToken, userID string) {
	if refreshToken != "" {
		if err := s.tokens.DeleteByToken(ctx, refreshToken); err != nil {
			slog.Error("logout token deletion failed", "error", err)
		}
	}
	s.sink.Log(ctx, audit.Event{Kind: audit.KindLogout, UserID: userID})
}

// GetMe resolves the authenticated user's account.
func (s *Service) GetMe(ctx context.Context, userID string) (*user.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *Service) openSession(ctx context.Context, u *user.User) (*Session, error) {
	payload := token.Payload{UserID: u.ID, Role: u.Role}

	access, err := s.issuer.IssueAccess(payload)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.IssueRefresh(payload)
	if err != nil {
		return nil, err
	}

	if _, err := s.tokens.Create(ctx, u.ID, refresh, s.now().Add(s.issuer.RefreshTTL())); err != nil {
		return nil, err
	}

	return &Session{AccessToken: access, RefreshToken: refresh, User: u}, nil
}
