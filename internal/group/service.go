// Package group implements the account-group authorization model: the
// tenancy entities, the role-based permission predicates guarding every
// group-scoped operation, and the invitation state machine.
package group

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tabilist/tabilist/internal/domain"
	"github.com/tabilist/tabilist/internal/user"
)

// Repository is the storage surface the service needs. Implemented by Store.
type Repository interface {
	CreateGroupWithOwner(ctx context.Context, in CreateGroupInput) (*AccountGroup, error)
	GetGroupByID(ctx context.Context, id string) (*AccountGroup, error)
	FindPersonalGroupByUserID(ctx context.Context, userID string) (*AccountGroup, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]*AccountGroup, error)
	UpdateGroup(ctx context.Context, id string, in UpdateGroupInput) (*AccountGroup, error)
	DeleteGroup(ctx context.Context, id string) error

	GetMember(ctx context.Context, groupID, userID string) (*Member, error)
	ListMembers(ctx context.Context, groupID string) ([]*Member, error)
	RemoveMember(ctx context.Context, groupID, userID string) error

	CreateInvitation(ctx context.Context, groupID, inviterID, inviteeID string, expiresAt time.Time) (*Invitation, error)
	GetInvitationByID(ctx context.Context, id string) (*Invitation, error)
	HasPendingInvitation(ctx context.Context, groupID, inviteeID string) (bool, error)
	ListInvitationsForInvitee(ctx context.Context, userID, status string) ([]*Invitation, error)
	UpdateInvitationStatus(ctx context.Context, id, from, to string) error
	AcceptInvitation(ctx context.Context, inv *Invitation) error
}

// UserResolver resolves invitee emails to accounts. Implemented by user.Store.
type UserResolver interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

// Service enforces the permission model over account groups.
type Service struct {
	repo  Repository
	users UserResolver
	now   func() time.Time // injectable clock for testing
}

// NewService creates an account-group service.
func NewService(repo Repository, users UserResolver) *Service {
	return &Service{repo: repo, users: users, now: time.Now}
}

// CreateShared creates a shared group; the creator becomes its owner member
// atomically with creation.
func (s *Service) CreateShared(ctx context.Context, userID, name, description string) (*AccountGroup, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	return s.repo.CreateGroupWithOwner(ctx, CreateGroupInput{
		Name:        name,
		Description: description,
		Type:        TypeShared,
		CreatedBy:   userID,
	})
}

// GetPersonal returns the user's personal group, creating it on first access.
func (s *Service) GetPersonal(ctx context.Context, userID string) (*AccountGroup, error) {
	g, err := s.repo.FindPersonalGroupByUserID(ctx, userID)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	g, err = s.repo.CreateGroupWithOwner(ctx, CreateGroupInput{
		Name:      "Personal",
		Type:      TypePersonal,
		CreatedBy: userID,
	})
	if err != nil {
		// A concurrent first access may have won the partial unique index
		// race; the existing row is the right answer.
		if existing, findErr := s.repo.FindPersonalGroupByUserID(ctx, userID); findErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return g, nil
}

// ListGroups returns every group the user created or belongs to.
func (s *Service) ListGroups(ctx context.Context, userID string) ([]*AccountGroup, error) {
	return s.repo.ListGroupsForUser(ctx, userID)
}

// Get returns a group if the user may read it: the creator or any member.
func (s *Service) Get(ctx context.Context, userID, groupID string) (*AccountGroup, error) {
	g, err := s.repo.GetGroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRead(ctx, userID, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Update changes a group's name/description. Allowed for the creator or
// members with role owner or admin.
func (s *Service) Update(ctx context.Context, userID, groupID string, in UpdateGroupInput) (*AccountGroup, error) {
	g, err := s.repo.GetGroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireManage(ctx, userID, g); err != nil {
		return nil, err
	}
	if in.Name != nil && *in.Name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", domain.ErrValidation)
	}
	return s.repo.UpdateGroup(ctx, groupID, in)
}

// Delete removes a group. Only the creator may delete, and personal groups
// are never deletable.
func (s *Service) Delete(ctx context.Context, userID, groupID string) error {
	g, err := s.repo.GetGroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.CreatedBy != userID || g.Type == TypePersonal {
		return domain.ErrForbidden
	}
	return s.repo.DeleteGroup(ctx, groupID)
}

// Leave removes the caller's own membership. Only members of shared groups
// may leave, and never the creator (the creator deletes instead).
func (s *Service) Leave(ctx context.Context, userID, groupID string) error {
	g, err := s.repo.GetGroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.Type != TypeShared || g.CreatedBy == userID {
		return domain.ErrForbidden
	}
	if _, err := s.repo.GetMember(ctx, groupID, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrForbidden
		}
		return err
	}
	return s.repo.RemoveMember(ctx, groupID, userID)
}

// ListMembers returns a group's members. Same read permission as Get.
func (s *Service) ListMembers(ctx context.Context, userID, groupID string) ([]*Member, error) {
	g, err := s.repo.GetGroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRead(ctx, userID, g); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, groupID)
}

// RemoveMember removes another user's membership. Allowed for the creator or
// owner/admin members; the creator's own row is never removable, and members
// cannot remove themselves through this path (they leave instead).
func (s *Service) RemoveMember(ctx context.Context, userID, groupID, targetID string) error {
	g, err := s.repo.GetGroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if err := s.requireManage(ctx, userID, g); err != nil {
		return err
	}
	if targetID == g.CreatedBy {
		return domain.ErrForbidden
	}
	if targetID == userID && userID != g.CreatedBy {
		return domain.ErrForbidden
	}
	return s.repo.RemoveMember(ctx, groupID, targetID)
}

// SendInvitation invites a user by email to a shared group. Any member (or
// the creator) may invite; this is intentionally not restricted to
// owner/admin roles.
func (s *Service) SendInvitation(ctx context.Context, userID, groupID, inviteeEmail string) (*Invitation, error) {
	if inviteeEmail == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrValidation)
	}

	g, err := s.repo.GetGroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRead(ctx, userID, g); err != nil {
		return nil, err
	}

	invitee, err := s.users.GetByEmail(ctx, inviteeEmail)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.GetMember(ctx, groupID, invitee.ID); err == nil {
		return nil, domain.ErrAlreadyMember
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	pending, err := s.repo.HasPendingInvitation(ctx, groupID, invitee.ID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, fmt.Errorf("%w: an invitation for this user is already pending", domain.ErrValidation)
	}

	return s.repo.CreateInvitation(ctx, groupID, userID, invitee.ID, s.now().Add(InvitationTTL))
}

// ListInvitations returns invitations addressed to the caller, optionally
// filtered by status.
func (s *Service) ListInvitations(ctx context.Context, userID, status string) ([]*Invitation, error) {
	switch status {
	case "", StatusPending, StatusAccepted, StatusRejected, StatusExpired:
	default:
		return nil, fmt.Errorf("%w: unknown invitation status %q", domain.ErrValidation, status)
	}
	return s.repo.ListInvitationsForInvitee(ctx, userID, status)
}

// Respond accepts or rejects an invitation. Only the invitee may respond,
// only while the invitation is pending and unexpired. An invitation read past
// its expiry is persisted as expired before the response is rejected. The
// accept path flips the status and inserts the membership row in one
// transaction.
func (s *Service) Respond(ctx context.Context, userID, invitationID string, accept bool) (*Invitation, error) {
	inv, err := s.repo.GetInvitationByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.InviteeID != userID {
		return nil, domain.ErrForbidden
	}
	if inv.Status != StatusPending {
		return nil, domain.ErrInvalidInvitationStatus
	}
	if inv.ExpiresAt.Before(s.now()) {
		// Lazy expiry: coerce the row before failing. A lost race here
		// means someone else already moved it out of pending.
		if err := s.repo.UpdateInvitationStatus(ctx, inv.ID, StatusPending, StatusExpired); err != nil &&
			!errors.Is(err, domain.ErrInvalidInvitationStatus) {
			return nil, err
		}
		return nil, domain.ErrInvitationExpired
	}

	if accept {
		if err := s.repo.AcceptInvitation(ctx, inv); err != nil {
			return nil, err
		}
		inv.Status = StatusAccepted
	} else {
		if err := s.repo.UpdateInvitationStatus(ctx, inv.ID, StatusPending, StatusRejected); err != nil {
			return nil, err
		}
		inv.Status = StatusRejected
	}
	return inv, nil
}

// requireRead allows the creator and any member.
func (s *Service) requireRead(ctx context.Context, userID string, g *AccountGroup) error {
	if g.CreatedBy == userID {
		return nil
	}
	_, err := s.repo.GetMember(ctx, g.ID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrForbidden
	}
	return err
}

// requireManage allows the creator and owner/admin members.
func (s *Service) requireManage(ctx context.Context, userID string, g *AccountGroup) error {
	if g.CreatedBy == userID {
		return nil
	}
	m, err := s.repo.GetMember(ctx, g.ID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrForbidden
	}
	if err != nil {
		return err
	}
	if m.Role != RoleOwner && m.Role != RoleAdmin {
		return domain.ErrForbidden
	}
	return nil
}
