package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aspira-app/aspira/api/internal/auth"
	"github.com/aspira-app/aspira/api/internal/db"
	"github.com/aspira-app/aspira/api/internal/governance"
	"github.com/aspira-app/aspira/api/internal/validation"
)

// TeamHandlers handles team and team-policy endpoints
type TeamHandlers struct {
	queries *db.Queries
}

// NewTeamHandlers creates new team handlers
func NewTeamHandlers(queries *db.Queries) *TeamHandlers {
	return &TeamHandlers{queries: queries}
}

// CreateTeamRequest is the request to create a team
type CreateTeamRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// CreateTeam creates a team with the caller as owner
func (h *TeamHandlers) CreateTeam(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	var req CreateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body"), nil)
		return
	}

	if err := validation.ValidateTeamName(req.Name); err != nil {
		WriteError(w, r, http.StatusBadRequest, err, nil)
		return
	}
	if err := validation.ValidateTeamSlug(req.Slug); err != nil {
		WriteError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	team := &db.Team{Name: req.Name, Slug: req.Slug}
	if err := h.queries.CreateTeam(r.Context(), team); err != nil {
		WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to create team"), nil)
		return
	}

	member := &db.TeamMember{TeamID: team.ID, UserID: userID, Role: "owner"}
	if err := h.queries.AddTeamMember(r.Context(), member); err != nil {
		WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to add owner"), nil)
		return
	}

	LogAuditEvent(r.Context(), h.queries, userID, "team.created", "team", &team.ID, map[string]interface{}{
		"name": team.Name,
		"slug": team.Slug,
	}, r)

	WriteSuccess(w, team, http.StatusCreated)
}

// GetTeam returns a team the caller belongs to
func (h *TeamHandlers) GetTeam(w http.ResponseWriter, r *http.Request) {
	member, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	team, err := h.queries.GetTeam(r.Context(), member.TeamID)
	if err != nil {
		WriteError(w, r, http.StatusNotFound, fmt.Errorf("team not found"), nil)
		return
	}

	WriteSuccess(w, team, http.StatusOK)
}

// ListMembers lists the members of a team the caller belongs to
func (h *TeamHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	member, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	members, err := h.queries.ListTeamMembers(r.Context(), member.TeamID)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, err, nil)
		return
	}

	WriteSuccess(w, members, http.StatusOK)
}

// AddMemberRequest is the request to add a team member
type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// AddMember adds a user to the team. Admins and owners only.
func (h *TeamHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	member, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body"), nil)
		return
	}

	if err := validation.ValidateUUID(req.UserID, "user_id"); err != nil {
		WriteError(w, r, http.StatusBadRequest, err, nil)
		return
	}
	if req.Role == "" {
		req.Role = "member"
	}
	if err := validation.ValidateTeamRole(req.Role); err != nil {
		WriteError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	if _, err := h.queries.GetUserByID(r.Context(), req.UserID); err != nil {
		WriteError(w, r, http.StatusNotFound, fmt.Errorf("user not found"), nil)
		return
	}

	newMember := &db.TeamMember{TeamID: member.TeamID, UserID: req.UserID, Role: req.Role}
	if err := h.queries.AddTeamMember(r.Context(), newMember); err != nil {
		WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to add member"), nil)
		return
	}

	LogAuditEvent(r.Context(), h.queries, member.UserID, "team.member_added", "team", &member.TeamID, map[string]interface{}{
		"member_user_id": req.UserID,
		"role":           req.Role,
	}, r)

	WriteSuccess(w, newMember, http.StatusCreated)
}

// GetTeamPolicy returns the team's governance policy
func (h *TeamHandlers) GetTeamPolicy(w http.ResponseWriter, r *http.Request) {
	member, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	policy, err := h.queries.GetTeamPolicy(r.Context(), member.TeamID)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, err, nil)
		return
	}
	if policy == nil {
		policy = &governance.TeamPolicy{}
	}

	WriteSuccess(w, policy, http.StatusOK)
}

// UpdateTeamPolicy replaces the team's governance policy. Admins and
// owners only; the change takes effect on members' next proposal.
func (h *TeamHandlers) UpdateTeamPolicy(w http.ResponseWriter, r *http.Request) {
	member, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var policy governance.TeamPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		WriteError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body"), nil)
		return
	}

	if policy.MinimumThreshold != nil {
		if err := validation.ValidateConfidenceThreshold(*policy.MinimumThreshold); err != nil {
			WriteError(w, r, http.StatusBadRequest, err, nil)
			return
		}
	}

	if err := h.queries.UpsertTeamPolicy(r.Context(), member.TeamID, member.UserID, &policy); err != nil {
		WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to update policy"), nil)
		return
	}

	LogAuditEvent(r.Context(), h.queries, member.UserID, "team.policy_updated", "team_policy", &member.TeamID, nil, r)

	WriteSuccess(w, policy, http.StatusOK)
}

// requireMember resolves the caller's membership in the team named by
// the route. Non-members get a 404, the same as a missing team.
func (h *TeamHandlers) requireMember(w http.ResponseWriter, r *http.Request) (*db.TeamMember, bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return nil, false
	}

	teamID := mux.Vars(r)["id"]
	if err := validation.ValidateUUID(teamID, "id"); err != nil {
		WriteError(w, r, http.StatusBadRequest, err, nil)
		return nil, false
	}

	member, err := h.queries.GetTeamMember(r.Context(), teamID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		WriteError(w, r, http.StatusNotFound, fmt.Errorf("team not found"), nil)
		return nil, false
	}
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, err, nil)
		return nil, false
	}

	return member, true
}

func (h *TeamHandlers) requireAdmin(w http.ResponseWriter, r *http.Request) (*db.TeamMember, bool) {
	member, ok := h.requireMember(w, r)
	if !ok {
		return nil, false
	}
	if member.Role != "owner" && member.Role != "admin" {
		WriteError(w, r, http.StatusForbidden, fmt.Errorf("team admin access required"), nil)
		return nil, false
	}
	return member, true
}
