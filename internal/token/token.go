// Package token issues and verifies the signed credentials used by the
// session lifecycle: short-lived stateless access tokens and longer-lived
// refresh tokens that are additionally persisted so they can be revoked.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tabilist/tabilist/internal/domain"
)

// Default token lifetimes.
const (
	AccessTTL  = 15 * time.Minute
	RefreshTTL = 7 * 24 * time.Hour
)

// Claims is the JWT payload for both token kinds. Role is a snapshot taken
// at issuance; it does not track later role changes until reissue.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// Payload identifies the subject a token is minted for.
type Payload struct {
	UserID string
	Role   string
}

// Service signs and verifies access and refresh tokens with separate secrets.
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time // injectable clock for testing
}

// NewService creates a Service. Zero TTLs fall back to the package defaults.
func NewService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Service {
	if accessTTL <= 0 {
		accessTTL = AccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = RefreshTTL
	}
	return &Service{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// AccessTTL returns the configured access-token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccess mints a signed access token for p.
func (s *Service) IssueAccess(p Payload) (string, error) {
	return s.issue(p, s.accessSecret, s.accessTTL)
}

// IssueRefresh mints a signed refresh token for p. The caller is expected to
// persist it so it can be revoked server-side.
func (s *Service) IssueRefresh(p Payload) (string, error) {
	return s.issue(p, s.refreshSecret, s.refreshTTL)
}

func (s *Service) issue(p Payload, secret []byte, ttl time.Duration) (string, error) {
	now := s.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: p.UserID,
		Role:   p.Role,
	})
	signed, err := t.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// VerifyAccess validates an access token and returns its payload.
func (s *Service) VerifyAccess(token string) (Payload, error) {
	return s.verify(token, s.accessSecret)
}

// VerifyRefresh validates a refresh token and returns its payload.
func (s *Service) VerifyRefresh(token string) (Payload, error) {
	return s.verify(token, s.refreshSecret)
}

func (s *Service) verify(token string, secret []byte) (Payload, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return Payload{}, domain.ErrInvalidToken
	}
	return Payload{UserID: claims.UserID, Role: claims.Role}, nil
}
