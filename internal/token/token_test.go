package token

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tabilist/tabilist/internal/domain"
)

// fakeClock is a controllable time source for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(clock *fakeClock) *Service {
	s := NewService("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	s.now = clock.Now
	return s
}

func TestIssueAndVerifyAccess(t *testing.T) {
	clock := newFakeClock(time.Now())
	s := newTestService(clock)

	tok, err := s.IssueAccess(Payload{UserID: "user-1", Role: "user"})
	if err != nil {
		t.Fatalf("IssueAccess() error: %v", err)
	}

	p, err := s.VerifyAccess(tok)
	if err != nil {
		t.Fatalf("VerifyAccess() error: %v", err)
	}
	if p.UserID != "user-1" {
		t.Errorf("expected user-1, got %q", p.UserID)
	}
	if p.Role != "user" {
		t.Errorf("expected role user, got %q", p.Role)
	}
}

func TestVerifyAccess_Expired(t *testing.T) {
	clock := newFakeClock(time.Now())
	s := newTestService(clock)

	tok, err := s.IssueAccess(Payload{UserID: "user-1", Role: "user"})
	if err != nil {
		t.Fatalf("IssueAccess() error: %v", err)
	}

	clock.Advance(16 * time.Minute)

	if _, err := s.VerifyAccess(tok); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyRefresh_OutlivesAccess(t *testing.T) {
	clock := newFakeClock(time.Now())
	s := newTestService(clock)

	tok, err := s.IssueRefresh(Payload{UserID: "user-1", Role: "user"})
	if err != nil {
		t.Fatalf("IssueRefresh() error: %v", err)
	}

	// Far past the access TTL but within the refresh TTL.
	clock.Advance(6 * 24 * time.Hour)

	p, err := s.VerifyRefresh(tok)
	if err != nil {
		t.Fatalf("VerifyRefresh() error: %v", err)
	}
	if p.UserID != "user-1" {
		t.Errorf("expected user-1, got %q", p.UserID)
	}

	clock.Advance(2 * 24 * time.Hour)
	if _, err := s.VerifyRefresh(tok); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken after refresh TTL, got %v", err)
	}
}

func TestSecretSeparation(t *testing.T) {
	clock := newFakeClock(time.Now())
	s := newTestService(clock)

	access, err := s.IssueAccess(Payload{UserID: "user-1"})
	if err != nil {
		t.Fatalf("IssueAccess() error: %v", err)
	}
	refresh, err := s.IssueRefresh(Payload{UserID: "user-1"})
	if err != nil {
		t.Fatalf("IssueRefresh() error: %v", err)
	}

	// An access token must never pass refresh verification and vice versa.
	if _, err := s.VerifyRefresh(access); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("access token accepted as refresh token: %v", err)
	}
	if _, err := s.VerifyAccess(refresh); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("refresh token accepted as access token: %v", err)
	}
}

func TestVerify_TamperedToken(t *testing.T) {
	clock := newFakeClock(time.Now())
	s := newTestService(clock)

	tok, err := s.IssueAccess(Payload{UserID: "user-1"})
	if err != nil {
		t.Fatalf("IssueAccess() error: %v", err)
	}

	tampered := tok[:len(tok)-2] + "xx"
	if _, err := s.VerifyAccess(tampered); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for tampered token, got %v", err)
	}

	other := NewService("different-secret", "refresh-secret", 0, 0)
	otherTok, err := other.IssueAccess(Payload{UserID: "user-1"})
	if err != nil {
		t.Fatalf("IssueAccess() error: %v", err)
	}
	if _, err := s.VerifyAccess(otherTok); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for foreign-signed token, got %v", err)
	}

	if _, err := s.VerifyAccess("not-a-jwt"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestNewService_DefaultTTLs(t *testing.T) {
	s := NewService("a", "r", 0, 0)
	if s.AccessTTL() != AccessTTL {
		t.Errorf("expected default access TTL %v, got %v", AccessTTL, s.AccessTTL())
	}
	if s.RefreshTTL() != RefreshTTL {
		t.Errorf("expected default refresh TTL %v, got %v", RefreshTTL, s.RefreshTTL())
	}
}
