package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tabilist/tabilist/internal/auth"
	"github.com/tabilist/tabilist/internal/group"
)

// groupHandler groups account-group HTTP handlers. Every route here sits
// behind the auth middleware; the service enforces the per-operation
// permission predicates.
type groupHandler struct {
	svc *group.Service
}

func newGroupHandler(svc *group.Service) *groupHandler {
	return &groupHandler{svc: svc}
}

func identity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return nil, false
	}
	return id, true
}

// List handles GET /api/v1/groups, returning groups the user created or
// belongs to.
func (h *groupHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	groups, err := h.svc.ListGroups(r.Context(), id.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if groups == nil {
		groups = []*group.AccountGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})
}

// Create handles POST /api/v1/groups, creating a shared group.
func (h *groupHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	g, err := h.svc.CreateShared(r.Context(), id.UserID, req.Name, req.Description)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// GetPersonal handles GET /api/v1/groups/personal. The group is created
// lazily on first access.
func (h *groupHandler) GetPersonal(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	g, err := h.svc.GetPersonal(r.Context(), id.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Get handles GET /api/v1/groups/{id}.
func (h *groupHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	g, err := h.svc.Get(r.Context(), id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Update handles PUT /api/v1/groups/{id}.
func (h *groupHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var in group.UpdateGroupInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	g, err := h.svc.Update(r.Context(), id.UserID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Delete handles DELETE /api/v1/groups/{id}.
func (h *groupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id.UserID, chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Leave handles POST /api/v1/groups/{id}/leave.
func (h *groupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	if err := h.svc.Leave(r.Context(), id.UserID, chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMembers handles GET /api/v1/groups/{id}/members.
func (h *groupHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	members, err := h.svc.ListMembers(r.Context(), id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if members == nil {
		members = []*group.Member{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

// RemoveMember handles DELETE /api/v1/groups/{id}/members/{userID}.
func (h *groupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	err := h.svc.RemoveMember(r.Context(), id.UserID, chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendInvitation handles POST /api/v1/groups/{id}/invitations.
func (h *groupHandler) SendInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	inv, err := h.svc.SendInvitation(r.Context(), id.UserID, chi.URLParam(r, "id"), req.Email)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// ListInvitations handles GET /api/v1/invitations, listing invitations for
// the caller, optionally filtered with ?status=.
func (h *groupHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	invs, err := h.svc.ListInvitations(r.Context(), id.UserID, r.URL.Query().Get("status"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if invs == nil {
		invs = []*group.Invitation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"invitations": invs})
}

// RespondInvitation handles POST /api/v1/invitations/{id}/respond.
func (h *groupHandler) RespondInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req struct {
		Action string `json:"action"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Action != "accept" && req.Action != "reject" {
		writeError(w, http.StatusBadRequest, "validation_error", "action must be accept or reject")
		return
	}

	inv, err := h.svc.Respond(r.Context(), id.UserID, chi.URLParam(r, "id"), req.Action == "accept")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
