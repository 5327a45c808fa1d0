package group

import "time"

// Group types. Every user has exactly one personal group, lazily created on
// first access; shared groups are created explicitly.
const (
	TypePersonal = "personal"
	TypeShared   = "shared"
)

// Member roles within an account group.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Invitation statuses. Transitions are one-way: pending is the only state
// that can change.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusExpired  = "expired"
)

// InvitationTTL is how long an invitation stays answerable.
const InvitationTTL = 7 * 24 * time.Hour

// AccountGroup is a tenancy boundary scoping wishlist data.
type AccountGroup struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Member is a user's membership row in an account group. Email is joined in
// from the users table for listing.
type Member struct {
	AccountGroupID string    `json:"account_group_id"`
	UserID         string    `json:"user_id"`
	Email          string    `json:"email,omitempty"`
	Role           string    `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Invitation is a pending offer of membership in a shared group.
type Invitation struct {
	ID             string    `json:"id"`
	AccountGroupID string    `json:"account_group_id"`
	InviterID      string    `json:"inviter_id"`
	InviteeID      string    `json:"invitee_id"`
	Status         string    `json:"status"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreateGroupInput holds the fields for creating a group.
type CreateGroupInput struct {
	Name        string
	Description string
	Type        string
	CreatedBy   string
}

// UpdateGroupInput holds optional fields for a partial group update.
type UpdateGroupInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}
