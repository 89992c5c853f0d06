package server

import (
	"net/http"

	"gridloop/core/apperr"
	"gridloop/core/membership"
	"gridloop/core/validate"

	"github.com/gorilla/mux"
)

// CreateProjectHandler creates a project with the caller as first member.
func (h *APIHandler) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var req struct {
		Name          string `json:"name"`
		Tempo         int    `json:"tempo"`
		TimeSignature string `json:"timeSignature"`
		Description   string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	name, err := validate.Name(req.Name)
	if err != nil {
		respondError(w, err)
		return
	}
	tempo, err := validate.Tempo(req.Tempo)
	if err != nil {
		respondError(w, err)
		return
	}
	ts, err := validate.TimeSignature(req.TimeSignature)
	if err != nil {
		respondError(w, err)
		return
	}

	user, err := h.repos.Users.GetByID(r.Context(), userID)
	if err != nil {
		respondError(w, apperr.Persistence("load user", err))
		return
	}
	if user == nil {
		respondError(w, apperr.NotFound("user", userID))
		return
	}

	project, err := h.members.CreateProject(r.Context(), user, membership.ProjectParams{
		Name:          name,
		Tempo:         tempo,
		TimeSignature: ts,
		Description:   req.Description,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, project)
}

// GetProjectHandler returns a project's public header: membership state is
// visible to any authenticated user so they can find projects to join.
func (h *APIHandler) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	id, err := validate.ID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	project, err := h.repos.Projects.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, apperr.Persistence("load project", err))
		return
	}
	if project == nil {
		respondError(w, apperr.NotFound("project", id))
		return
	}

	users, err := h.repos.Projects.GetUsers(r.Context(), id)
	if err != nil {
		respondError(w, apperr.Persistence("load project members", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"project": project,
		"users":   users,
	})
}

// GetProjectDetailHandler returns the full project state a member's client
// renders: header, members, both grid axes and every clip.
func (h *APIHandler) GetProjectDetailHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}

	users, err := h.repos.Projects.GetUsers(r.Context(), project.ID)
	if err != nil {
		respondError(w, apperr.Persistence("load project members", err))
		return
	}
	scenes, tracks, grid, err := h.comp.ClipGrid(r.Context(), project.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"project": project,
		"users":   users,
		"scenes":  scenes,
		"tracks":  tracks,
		"clips":   grid,
	})
}

// UpdateProjectHandler changes the project header fields.
func (h *APIHandler) UpdateProjectHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Name          *string `json:"name"`
		Tempo         *int    `json:"tempo"`
		TimeSignature *string `json:"timeSignature"`
		Description   *string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if req.Name != nil {
		name, err := validate.Name(*req.Name)
		if err != nil {
			respondError(w, err)
			return
		}
		project.Name = name
	}
	if req.Tempo != nil {
		tempo, err := validate.Tempo(*req.Tempo)
		if err != nil {
			respondError(w, err)
			return
		}
		project.Tempo = tempo
	}
	if req.TimeSignature != nil {
		ts, err := validate.TimeSignature(*req.TimeSignature)
		if err != nil {
			respondError(w, err)
			return
		}
		project.TimeSignature = ts
	}
	if req.Description != nil {
		project.Description = *req.Description
	}

	if err := h.repos.Projects.Update(r.Context(), project); err != nil {
		respondError(w, apperr.Persistence("save project", err))
		return
	}

	h.broadcast("/project", map[string]interface{}{"ProjectId": project.ID})
	respondJSON(w, http.StatusOK, project)
}

// InviteHandler adds a user to the project's pending invites.
func (h *APIHandler) InviteHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	inviteeID, err := validate.ID(req.UserID)
	if err != nil {
		respondError(w, err)
		return
	}

	project, err = h.members.Invite(r.Context(), project, inviteeID)
	if err != nil {
		respondError(w, err)
		return
	}

	h.broadcast("/project/users", map[string]interface{}{
		"ProjectId": project.ID,
		"UserId":    inviteeID,
	})
	respondJSON(w, http.StatusOK, project)
}

// RequestAccessHandler records the caller's request to join. Open to any
// authenticated user, not just members.
func (h *APIHandler) RequestAccessHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := validate.ID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}

	project, err := h.repos.Projects.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, apperr.Persistence("load project", err))
		return
	}
	if project == nil {
		respondError(w, apperr.NotFound("project", id))
		return
	}

	project, err = h.members.RequestAccess(r.Context(), project, userID)
	if err != nil {
		respondError(w, err)
		return
	}

	h.broadcast("/project/users", map[string]interface{}{
		"ProjectId": project.ID,
		"UserId":    userID,
	})
	respondJSON(w, http.StatusOK, project)
}

// AcceptRequestHandler promotes a pending requester to member. Caller must
// already be a member.
func (h *APIHandler) AcceptRequestHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	requesterID, err := validate.ID(req.UserID)
	if err != nil {
		respondError(w, err)
		return
	}

	project, err = h.members.AcceptRequest(r.Context(), project, requesterID)
	if err != nil {
		respondError(w, err)
		return
	}

	h.broadcast("/project/users", map[string]interface{}{
		"ProjectId": project.ID,
		"UserId":    requesterID,
	})
	respondJSON(w, http.StatusOK, project)
}

// AcceptInviteHandler lets the invited caller join the project.
func (h *APIHandler) AcceptInviteHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := validate.ID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}

	project, err := h.repos.Projects.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, apperr.Persistence("load project", err))
		return
	}
	if project == nil {
		respondError(w, apperr.NotFound("project", id))
		return
	}

	project, err = h.members.AcceptInvite(r.Context(), project, userID)
	if err != nil {
		respondError(w, err)
		return
	}

	h.broadcast("/project/users", map[string]interface{}{
		"ProjectId": project.ID,
		"UserId":    userID,
	})
	respondJSON(w, http.StatusOK, project)
}

// LeaveProjectHandler removes the caller's membership. The last member to
// leave takes the project down with them.
func (h *APIHandler) LeaveProjectHandler(w http.ResponseWriter, r *http.Request) {
	project, userID, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}

	destroyed, err := h.members.Leave(r.Context(), project, userID)
	if err != nil {
		respondError(w, err)
		return
	}

	if destroyed {
		h.broadcast("/project", map[string]interface{}{
			"ProjectId": project.ID,
			"Deleted":   true,
		})
	} else {
		h.broadcast("/project/users", map[string]interface{}{
			"ProjectId": project.ID,
			"UserId":    userID,
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"projectDeleted": destroyed})
}
