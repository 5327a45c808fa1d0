package group

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tabilist/tabilist/internal/domain"
)

// Store provides database operations for account groups, members and
// invitations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a group store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanGroup(scan func(dest ...any) error) (*AccountGroup, error) {
	g := &AccountGroup{}
	err := scan(&g.ID, &g.Name, &g.Description, &g.Type, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return g, nil
}

const groupColumns = `id, name, COALESCE(description, ''), type, created_by, created_at, updated_at`

// CreateGroupWithOwner inserts a group and its creator's owner membership row
// in a single transaction.
func (s *Store) CreateGroupWithOwner(ctx context.Context, in CreateGroupInput) (*AccountGroup, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	g, err := scanGroup(func(dest ...any) error {
		return tx.QueryRow(ctx,
			`INSERT INTO account_groups (name, description, type, created_by)
			 VALUES ($1, NULLIF($2, ''), $3, $4)
			 RETURNING `+groupColumns,
			in.Name, in.Description, in.Type, in.CreatedBy,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("creating account group: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO account_group_members (account_group_id, user_id, role)
		 VALUES ($1, $2, $3)`,
		g.ID, in.CreatedBy, RoleOwner,
	)
	if err != nil {
		return nil, fmt.Errorf("creating owner membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing group creation: %w", err)
	}
	return g, nil
}

// GetGroupByID retrieves a group by primary key.
func (s *Store) GetGroupByID(ctx context.Context, id string) (*AccountGroup, error) {
	g, err := scanGroup(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+groupColumns+` FROM account_groups WHERE id = $1`, id,
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting account group: %w", err)
	}
	return g, nil
}

// FindPersonalGroupByUserID retrieves the user's personal group.
func (s *Store) FindPersonalGroupByUserID(ctx context.Context, userID string) (*AccountGroup, error) {
	g, err := scanGroup(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+groupColumns+` FROM account_groups
			 WHERE created_by = $1 AND type = $2`, userID, TypePersonal,
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding personal group: %w", err)
	}
	return g, nil
}

// ListGroupsForUser returns every group the user created or is a member of.
func (s *Store) ListGroupsForUser(ctx context.Context, userID string) ([]*AccountGroup, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT g.id, g.name, COALESCE(g.description, ''), g.type, g.created_by, g.created_at, g.updated_at
		 FROM account_groups g
		 LEFT JOIN account_group_members m ON m.account_group_id = g.id
		 WHERE g.created_by = $1 OR m.user_id = $1
		 ORDER BY g.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing groups for user: %w", err)
	}
	defer rows.Close()

	var groups []*AccountGroup
	for rows.Next() {
		g, err := scanGroup(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning group row: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// UpdateGroup performs a partial update on the group with the given id.
func (s *Store) UpdateGroup(ctx context.Context, id string, in UpdateGroupInput) (*AccountGroup, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	if in.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *in.Name)
		argIdx++
	}
	if in.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = NULLIF($%d, '')", argIdx))
		args = append(args, *in.Description)
		argIdx++
	}

	if len(setClauses) == 0 {
		return s.GetGroupByID(ctx, id)
	}

	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE account_groups SET %s WHERE id = $%d RETURNING `+groupColumns,
		strings.Join(setClauses, ", "), argIdx,
	)

	g, err := scanGroup(func(dest ...any) error {
		return s.pool.QueryRow(ctx, query, args...).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating account group: %w", err)
	}
	return g, nil
}

// DeleteGroup removes a group. Members and invitations go with it via
// cascading foreign keys.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM account_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting account group: %w", err)
	}
	return nil
}

// GetMember retrieves the membership row for (groupID, userID).
func (s *Store) GetMember(ctx context.Context, groupID, userID string) (*Member, error) {
	m := &Member{}
	err := s.pool.QueryRow(ctx,
		`SELECT account_group_id, user_id, role, joined_at
		 FROM account_group_members
		 WHERE account_group_id = $1 AND user_id = $2`, groupID, userID,
	).Scan(&m.AccountGroupID, &m.UserID, &m.Role, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting membership: %w", err)
	}
	return m, nil
}

// ListMembers returns all members of a group joined with their email.
func (s *Store) ListMembers(ctx context.Context, groupID string) ([]*Member, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.account_group_id, m.user_id, u.email, m.role, m.joined_at
		 FROM account_group_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.account_group_id = $1
		 ORDER BY m.joined_at`, groupID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.AccountGroupID, &m.UserID, &m.Email, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// RemoveMember deletes the membership row for (groupID, userID).
func (s *Store) RemoveMember(ctx context.Context, groupID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM account_group_members WHERE account_group_id = $1 AND user_id = $2`,
		groupID, userID)
	if err != nil {
		return fmt.Errorf("removing member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanInvitation(scan func(dest ...any) error) (*Invitation, error) {
	inv := &Invitation{}
	err := scan(&inv.ID, &inv.AccountGroupID, &inv.InviterID, &inv.InviteeID,
		&inv.Status, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

const invitationColumns = `id, account_group_id, inviter_id, invitee_id, status, expires_at, created_at, updated_at`

// CreateInvitation inserts a pending invitation.
func (s *Store) CreateInvitation(ctx context.Context, groupID, inviterID, inviteeID string, expiresAt time.Time) (*Invitation, error) {
	inv, err := scanInvitation(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO account_group_invitations (account_group_id, inviter_id, invitee_id, status, expires_at)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING `+invitationColumns,
			groupID, inviterID, inviteeID, StatusPending, expiresAt,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("creating invitation: %w", err)
	}
	return inv, nil
}

// GetInvitationByID retrieves an invitation by primary key.
func (s *Store) GetInvitationByID(ctx context.Context, id string) (*Invitation, error) {
	inv, err := scanInvitation(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+invitationColumns+` FROM account_group_invitations WHERE id = $1`, id,
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting invitation: %w", err)
	}
	return inv, nil
}

// HasPendingInvitation reports whether a pending invitation exists for
// (groupID, inviteeID).
func (s *Store) HasPendingInvitation(ctx context.Context, groupID, inviteeID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM account_group_invitations
		   WHERE account_group_id = $1 AND invitee_id = $2 AND status = $3
		 )`, groupID, inviteeID, StatusPending,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking pending invitation: %w", err)
	}
	return exists, nil
}

// ListInvitationsForInvitee returns invitations addressed to userID,
// optionally filtered by status.
func (s *Store) ListInvitationsForInvitee(ctx context.Context, userID, status string) ([]*Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM account_group_invitations WHERE invitee_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}
	defer rows.Close()

	var invs []*Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning invitation row: %w", err)
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

// UpdateInvitationStatus flips an invitation from `from` to `to` as a
// conditional update, so two concurrent responders cannot both succeed.
// Returns domain.ErrInvalidInvitationStatus when the row is no longer in the
// expected state.
func (s *Store) UpdateInvitationStatus(ctx context.Context, id, from, to string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE account_group_invitations
		 SET status = $1, updated_at = now()
		 WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return fmt.Errorf("updating invitation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidInvitationStatus
	}
	return nil
}

// AcceptInvitation atomically flips the invitation to accepted and inserts
// the invitee's membership row. The status flip is conditional on the row
// still being pending; losing that race fails the whole transaction with
// domain.ErrInvalidInvitationStatus and inserts nothing.
func (s *Store) AcceptInvitation(ctx context.Context, inv *Invitation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE account_group_invitations
		 SET status = $1, updated_at = now()
		 WHERE id = $2 AND status = $3`,
		StatusAccepted, inv.ID, StatusPending)
	if err != nil {
		return fmt.Errorf("accepting invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidInvitationStatus
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO account_group_members (account_group_id, user_id, role)
		 VALUES ($1, $2, $3)`,
		inv.AccountGroupID, inv.InviteeID, RoleMember)
	if err != nil {
		return fmt.Errorf("inserting membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing invitation accept: %w", err)
	}
	return nil
}
