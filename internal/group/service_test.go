package group

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tabilist/tabilist/internal/domain"
	"github.com/tabilist/tabilist/internal/user"
)

// --- mock repository ---

type mockRepo struct {
	groups      map[string]*AccountGroup
	members     map[string]*Member // key: groupID + "/" + userID
	invitations map[string]*Invitation
	nextID      int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		groups:      make(map[string]*AccountGroup),
		members:     make(map[string]*Member),
		invitations: make(map[string]*Invitation),
	}
}

func (m *mockRepo) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func memberKey(groupID, userID string) string { return groupID + "/" + userID }

func (m *mockRepo) CreateGroupWithOwner(ctx context.Context, in CreateGroupInput) (*AccountGroup, error) {
	if in.Type == TypePersonal {
		for _, g := range m.groups {
			if g.Type == TypePersonal && g.CreatedBy == in.CreatedBy {
				return nil, errors.New("unique constraint violation")
			}
		}
	}
	g := &AccountGroup{
		ID:          m.id("group"),
		Name:        in.Name,
		Description: in.Description,
		Type:        in.Type,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   time.Now(),
	}
	m.groups[g.ID] = g
	m.members[memberKey(g.ID, in.CreatedBy)] = &Member{
		AccountGroupID: g.ID, UserID: in.CreatedBy, Role: RoleOwner,
	}
	return g, nil
}

func (m *mockRepo) GetGroupByID(ctx context.Context, id string) (*AccountGroup, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return g, nil
}

func (m *mockRepo) FindPersonalGroupByUserID(ctx context.Context, userID string) (*AccountGroup, error) {
	for _, g := range m.groups {
		if g.Type == TypePersonal && g.CreatedBy == userID {
			return g, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockRepo) ListGroupsForUser(ctx context.Context, userID string) ([]*AccountGroup, error) {
	var out []*AccountGroup
	for _, g := range m.groups {
		if g.CreatedBy == userID {
			out = append(out, g)
			continue
		}
		if _, ok := m.members[memberKey(g.ID, userID)]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockRepo) UpdateGroup(ctx context.Context, id string, in UpdateGroupInput) (*AccountGroup, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if in.Name != nil {
		g.Name = *in.Name
	}
	if in.Description != nil {
		g.Description = *in.Description
	}
	return g, nil
}

func (m *mockRepo) DeleteGroup(ctx context.Context, id string) error {
	delete(m.groups, id)
	return nil
}

func (m *mockRepo) GetMember(ctx context.Context, groupID, userID string) (*Member, error) {
	mem, ok := m.members[memberKey(groupID, userID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return mem, nil
}

func (m *mockRepo) ListMembers(ctx context.Context, groupID string) ([]*Member, error) {
	var out []*Member
	for _, mem := range m.members {
		if mem.AccountGroupID == groupID {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *mockRepo) RemoveMember(ctx context.Context, groupID, userID string) error {
	k := memberKey(groupID, userID)
	if _, ok := m.members[k]; !ok {
		return domain.ErrNotFound
	}
	delete(m.members, k)
	return nil
}

func (m *mockRepo) CreateInvitation(ctx context.Context, groupID, inviterID, inviteeID string, expiresAt time.Time) (*Invitation, error) {
	inv := &Invitation{
		ID:             m.id("inv"),
		AccountGroupID: groupID,
		InviterID:      inviterID,
		InviteeID:      inviteeID,
		Status:         StatusPending,
		ExpiresAt:      expiresAt,
	}
	m.invitations[inv.ID] = inv
	return inv, nil
}

func (m *mockRepo) GetInvitationByID(ctx context.Context, id string) (*Invitation, error) {
	inv, ok := m.invitations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *mockRepo) HasPendingInvitation(ctx context.Context, groupID, inviteeID string) (bool, error) {
	for _, inv := range m.invitations {
		if inv.AccountGroupID == groupID && inv.InviteeID == inviteeID && inv.Status == StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) ListInvitationsForInvitee(ctx context.Context, userID, status string) ([]*Invitation, error) {
	var out []*Invitation
	for _, inv := range m.invitations {
		if inv.InviteeID != userID {
			continue
		}
		if status != "" && inv.Status != status {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (m *mockRepo) UpdateInvitationStatus(ctx context.Context, id, from, to string) error {
	inv, ok := m.invitations[id]
	if !ok || inv.Status != from {
		return domain.ErrInvalidInvitationStatus
	}
	inv.Status = to
	return nil
}

func (m *mockRepo) AcceptInvitation(ctx context.Context, inv *Invitation) error {
	if err := m.UpdateInvitationStatus(ctx, inv.ID, StatusPending, StatusAccepted); err != nil {
		return err
	}
	m.members[memberKey(inv.AccountGroupID, inv.InviteeID)] = &Member{
		AccountGroupID: inv.AccountGroupID, UserID: inv.InviteeID, Role: RoleMember,
	}
	return nil
}

type mockUsers struct {
	byEmail map[string]*user.User
}

func (m *mockUsers) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

// --- fixture ---

type fixture struct {
	svc   *Service
	repo  *mockRepo
	users *mockUsers
	now   time.Time
}

func newFixture() *fixture {
	f := &fixture{
		repo:  newMockRepo(),
		users: &mockUsers{byEmail: make(map[string]*user.User)},
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, f.users)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) addUser(id, email string) {
	f.users.byEmail[email] = &user.User{ID: id, Email: email, Role: "user"}
}

func (f *fixture) addMember(groupID, userID, role string) {
	f.repo.members[memberKey(groupID, userID)] = &Member{
		AccountGroupID: groupID, UserID: userID, Role: role,
	}
}

// --- group CRUD tests ---

func TestCreateShared(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	g, err := f.svc.CreateShared(ctx, "creator", "Summer Trip", "beach towns")
	if err != nil {
		t.Fatalf("CreateShared() error: %v", err)
	}
	if g.Type != TypeShared {
		t.Errorf("type = %q, want shared", g.Type)
	}

	// Creation makes the creator an owner member atomically.
	mem, err := f.repo.GetMember(ctx, g.ID, "creator")
	if err != nil {
		t.Fatalf("creator has no membership row: %v", err)
	}
	if mem.Role != RoleOwner {
		t.Errorf("creator role = %q, want owner", mem.Role)
	}
}

func TestCreateShared_RequiresName(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateShared(context.Background(), "creator", "", "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestGetPersonal_LazyCreate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	g1, err := f.svc.GetPersonal(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetPersonal() error: %v", err)
	}
	if g1.Type != TypePersonal {
		t.Errorf("type = %q, want personal", g1.Type)
	}

	// Second access returns the same group, never a second one.
	g2, err := f.svc.GetPersonal(ctx, "user-1")
	if err != nil {
		t.Fatalf("second GetPersonal() error: %v", err)
	}
	if g2.ID != g1.ID {
		t.Errorf("got a different personal group: %q vs %q", g2.ID, g1.ID)
	}
}

func TestGetPersonal_CreationRace(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Simulate a concurrent winner: the insert fails on the unique index but
	// a personal group exists by the time we look again.
	winner, err := f.repo.CreateGroupWithOwner(ctx, CreateGroupInput{
		Name: "Personal", Type: TypePersonal, CreatedBy: "user-1",
	})
	if err != nil {
		t.Fatalf("setup error: %v", err)
	}

	g, err := f.svc.GetPersonal(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetPersonal() error: %v", err)
	}
	if g.ID != winner.ID {
		t.Errorf("expected the winner's group %q, got %q", winner.ID, g.ID)
	}
}

func TestDelete_Permissions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	shared, _ := f.svc.CreateShared(ctx, "creator", "Trip", "")
	personal, _ := f.svc.GetPersonal(ctx, "creator")
	f.addMember(shared.ID, "admin-user", RoleAdmin)

	tests := []struct {
		name    string
		userID  string
		groupID string
		wantErr error
	}{
		{"non-creator admin cannot delete", "admin-user", shared.ID, domain.ErrForbidden},
		{"stranger cannot delete", "stranger", shared.ID, domain.ErrForbidden},
		{"personal group never deletable", "creator", personal.ID, domain.ErrForbidden},
		{"creator deletes shared group", "creator", shared.ID, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.Delete(ctx, tt.userID, tt.groupID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Delete() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdate_Permissions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	g, _ := f.svc.CreateShared(ctx, "creator", "Trip", "")
	f.addMember(g.ID, "admin-user", RoleAdmin)
	f.addMember(g.ID, "plain-member", RoleMember)

	name := "Renamed"
	tests := []struct {
		name    string
		userID  string
		wantErr error
	}{
		{"creator may update", "creator", nil},
		{"admin may update", "admin-user", nil},
		{"member may not update", "plain-member", domain.ErrForbidden},
		{"stranger may not update", "stranger", domain.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Update(ctx, tt.userID, g.ID, UpdateGroupInput{Name: &name})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Update() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdate_EmptyName(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	g, _ := f.svc.CreateShared(ctx, "creator", "Trip", "")
	empty := ""
	_, err := f.svc.Update(ctx, "creator", g.ID, UpdateGroupInput{Name: &empty})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for empty name, got %v", err)
	}
}

func TestGet_ReadPermission(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	g, _ := f.svc.CreateShared(ctx, "creator", "Trip", "")
	f.addMember(g.ID, "plain-member", RoleMember)

	if _, err := f.svc.Get(ctx, "plain-member", g.ID); err != nil {
		t.Errorf("member should read the group: %v", err)
	}
	if _, err := f.svc.Get(ctx, "stranger", g.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("stranger read = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Get(ctx, "creator", "no-such-group"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing group = %v, want ErrNotFound", err)
	}
}

// --- membership tests ---

func TestLeave(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	shared, _ := f.svc.CreateShared(ctx, "creator", "Trip", "")
	personal, _ := f.svc.GetPersonal(ctx, "creator")
	f.addMember(shared.ID, "plain-member", RoleMember)

	tests := []struct {
		name    string
		userID  string
		groupID string
		wantErr error
	}{
		{"member leaves shared group", "plain-member", shared.ID, nil},
		{"creator cannot leave own group", "creator", shared.ID, domain.ErrForbidden},
		{"cannot leave personal group", "creator", personal.ID, domain.ErrForbidden},
		{"non-member cannot leave", "stranger", shared.ID, domain.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.Leave(ctx, tt.userID, tt.groupID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Leave() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRemoveMember(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	g, _ := f.svc.CreateShared(ctx, "creator", "Trip", "")
	f.addMember(g.ID, "admin-user", RoleAdmin)
	f.addMember(g.ID, "plain-member", RoleMember)
	f.addMember(g.ID, "other-member", RoleMember)

	tests := []struct {
		name     string
		userID   string
		targetID string
		wantErr  error
	}{
		{"member cannot remove anyone", "plain-member", "other-member", domain.ErrForbidden},
		{"creator row is protected", "admin-user", "creator", domain.ErrForbidden},
		{"admin cannot remove self here", "admin-user", "admin-user", domain.ErrForbidden},
		{"admin removes a member", "admin-user", "plain-member", nil},
		{"creator removes a member", "creator", "other-member", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.RemoveMember(ctx, tt.userID, g.ID, tt.targetID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RemoveMember() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// --- invitation tests ---

func TestSendInvitation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addUser("bea-id", "bea@example.com")

	g, _ := f.svc.CreateShared(ctx, "creator", "Trip", "")

	inv, err := f.svc.SendInvitation(ctx, "creator", g.ID, "bea@example.com")
	if err != nil {
		t.Fatalf("SendInvitation() error: %v", err)
	}
	if inv.Status != StatusPending {
		t.Errorf("status = %q, want pending", inv.Status)
	}
	if inv.InviteeID != "bea-id" {
		t.Errorf("invitee = %q, want bea-id", inv.InviteeID)
	}
	if want := f.now.Add(InvitationTTL); !inv.ExpiresAt.Equal(want) {
		t.Errorf("expires at %v, want %v", inv.ExpiresAt, want)
	}
}

func TestSendInvitation_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addUser("bea-id", "bea@example.com")
	f.addUser("mem-id", "mem@example.com")

	g, _ := f.svc.CreateShared(ctx, "creator", "Trip", "")
	f.addMember(g.ID, "mem-id", RoleMember)
	if _, err := f.svc.SendInvitation(ctx, "creator", g.ID, "bea@example.com"); err != nil {
		t.Fatalf("setup invitation error: %v", err)
	}

	tests := []struct {
		name    string
		userID  string
		email   string
		wantErr error
	}{
		{"empty email", "creator", "", domain.ErrValidation},
		{"stranger cannot invite", "stranger", "bea@example.com", domain.ErrForbidden},
		{"unknown invitee", "creator", "ghost@example.com", domain.ErrNotFound},
		{"invitee already a member", "creator", "mem@example.com", domain.ErrAlreadyMember},
		{"duplicate pending invitation", "creator", "bea@example.com", domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SendInvitation(ctx, tt.userID, g.ID, tt.email)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SendInvitation() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRespond_Accept(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addUser("bea-id", "bea@example.com")

	g, _ := f.svc.CreateShared(ctx, "creator", "Trip", "")
	inv, _ := f.svc.SendInvitation(ctx, "creator", g.ID, "bea@example.com")

	got, err := f.svc.Respond(ctx, "bea-id", inv.ID, true)
	if err != nil {
		t.Fatalf("Respond(accept) error: %v", err)
	}
	if got.Status != StatusAccepted {
		t.Errorf("status = %q, want accepted", got.Status)
	}

	// Accepting creates the membership at role member.
	mem, err := f.repo.GetMember(ctx, g.ID, "bea-id")
	if err != nil {
		t.Fatalf("accepted invitee has no membership: %v", err)
	}
	if mem.Role != RoleMember {
		t.Errorf("joined role = %q, want member", mem.Role)
	}
}

func TestRespond_Reject(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addUser("bea-id", "bea@example.com")

	g, _ := f.svc.CreateShared(ctx, "creator", "Trip", "")
	inv, _ := f.svc.SendInvitation(ctx, "creator", g.ID, "bea@example.com")

	got, err := f.svc.Respond(ctx, "bea-id", inv.ID, false)
	if err != nil {
		t.Fatalf("Respond(reject) error: %v", err)
	}
	if got.Status != StatusRejected {
		t.Errorf("status = %q, want rejected", got.Status)
	}
	if _, err := f.repo.GetMember(ctx, g.ID, "bea-id"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("rejecting must not create a membership")
	}
}

func TestRespond_OnlyInvitee(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addUser("bea-id", "bea@example.com")

	g, _ := f.svc.CreateShared(ctx, "creator", "Trip", "")
	inv, _ := f.svc.SendInvitation(ctx, "creator", g.ID, "bea@example.com")

	// Not even the inviter may respond on the invitee's behalf.
	if _, err := f.svc.Respond(ctx, "creator", inv.ID, true); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("inviter respond = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Respond(ctx, "stranger", inv.ID, true); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("stranger respond = %v, want ErrForbidden", err)
	}
}

func TestRespond_TerminalStates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addUser("bea-id", "bea@example.com")

	g, _ := f.svc.CreateShared(ctx, "creator", "Trip", "")
	inv, _ := f.svc.SendInvitation(ctx, "creator", g.ID, "bea@example.com")

	if _, err := f.svc.Respond(ctx, "bea-id", inv.ID, false); err != nil {
		t.Fatalf("Respond(reject) error: %v", err)
	}

	// Rejected is terminal: no second answer, in either direction.
	if _, err := f.svc.Respond(ctx, "bea-id", inv.ID, true); !errors.Is(err, domain.ErrInvalidInvitationStatus) {
		t.Errorf("accept after reject = %v, want ErrInvalidInvitationStatus", err)
	}
	if _, err := f.svc.Respond(ctx, "bea-id", inv.ID, false); !errors.Is(err, domain.ErrInvalidInvitationStatus) {
		t.Errorf("reject after reject = %v, want ErrInvalidInvitationStatus", err)
	}
}

func TestRespond_LazyExpiry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addUser("bea-id", "bea@example.com")

	g, _ := f.svc.CreateShared(ctx, "creator", "Trip", "")
	inv, _ := f.svc.SendInvitation(ctx, "creator", g.ID, "bea@example.com")

	f.now = f.now.Add(InvitationTTL + time.Hour)

	_, err := f.svc.Respond(ctx, "bea-id", inv.ID, true)
	if !errors.Is(err, domain.ErrInvitationExpired) {
		t.Fatalf("expected ErrInvitationExpired, got %v", err)
	}

	// The expiry is persisted, not just reported.
	stored, _ := f.repo.GetInvitationByID(ctx, inv.ID)
	if stored.Status != StatusExpired {
		t.Errorf("stored status = %q, want expired", stored.Status)
	}
	if _, err := f.repo.GetMember(ctx, g.ID, "bea-id"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("expired invitation must not create a membership")
	}
}

func TestListInvitations(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addUser("bea-id", "bea@example.com")

	g1, _ := f.svc.CreateShared(ctx, "creator", "Trip", "")
	g2, _ := f.svc.CreateShared(ctx, "creator", "Hiking", "")
	inv1, _ := f.svc.SendInvitation(ctx, "creator", g1.ID, "bea@example.com")
	if _, err := f.svc.SendInvitation(ctx, "creator", g2.ID, "bea@example.com"); err != nil {
		t.Fatalf("setup invitation error: %v", err)
	}
	if _, err := f.svc.Respond(ctx, "bea-id", inv1.ID, false); err != nil {
		t.Fatalf("Respond() error: %v", err)
	}

	all, err := f.svc.ListInvitations(ctx, "bea-id", "")
	if err != nil {
		t.Fatalf("ListInvitations() error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 invitations, got %d", len(all))
	}

	pending, err := f.svc.ListInvitations(ctx, "bea-id", StatusPending)
	if err != nil {
		t.Fatalf("ListInvitations(pending) error: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 pending invitation, got %d", len(pending))
	}

	if _, err := f.svc.ListInvitations(ctx, "bea-id", "bogus"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bogus status filter = %v, want ErrValidation", err)
	}
}
