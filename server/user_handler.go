package server

import (
	"fmt"
	"io"
	"net/http"

	"gridloop/core/apperr"
	"gridloop/core/auth"
	"gridloop/core/validate"
	"gridloop/logger"
	"gridloop/model"

	"github.com/gorilla/mux"
)

// RegisterHandler creates an account and returns a signed token.
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Bio      string `json:"bio"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	username, err := validate.Name(req.Username)
	if err != nil {
		respondError(w, err)
		return
	}
	password, err := validate.Password(req.Password)
	if err != nil {
		respondError(w, err)
		return
	}

	existing, err := h.repos.Users.GetByUsername(r.Context(), username)
	if err != nil {
		respondError(w, apperr.Persistence("check username", err))
		return
	}
	if existing != nil {
		respondError(w, apperr.NewValidation("username is already taken"))
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		respondError(w, fmt.Errorf("failed to hash password: %w", err))
		return
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		Avatar:       model.DefaultAvatar,
		AvatarType:   "image/jpeg",
		Bio:          req.Bio,
	}
	if err := h.repos.Users.Create(r.Context(), user); err != nil {
		respondError(w, apperr.Persistence("create user", err))
		return
	}

	token, err := h.authn.IssueToken(user.ID, user.Username)
	if err != nil {
		respondError(w, fmt.Errorf("failed to issue token: %w", err))
		return
	}

	logger.Info("user registered", logger.String("user", user.ID))
	respondJSON(w, http.StatusCreated, map[string]interface{}{"token": token, "user": user})
}

// LoginHandler verifies credentials and returns a signed token.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	user, err := h.repos.Users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		respondError(w, apperr.Persistence("load user", err))
		return
	}
	if user == nil || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid username or password"})
		return
	}

	token, err := h.authn.IssueToken(user.ID, user.Username)
	if err != nil {
		respondError(w, fmt.Errorf("failed to issue token: %w", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"token": token, "user": user})
}

// GetUsersHandler lists every account's public profile.
func (h *APIHandler) GetUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.repos.Users.GetAll(r.Context())
	if err != nil {
		respondError(w, apperr.Persistence("list users", err))
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// GetUserHandler returns one account's public profile.
func (h *APIHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := validate.ID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	user, err := h.repos.Users.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, apperr.Persistence("load user", err))
		return
	}
	if user == nil {
		respondError(w, apperr.NotFound("user", id))
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// GetOwnProjectsHandler lists the projects the caller is a member of.
func (h *APIHandler) GetOwnProjectsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	projects, err := h.repos.Users.GetProjects(r.Context(), userID)
	if err != nil {
		respondError(w, apperr.Persistence("list user projects", err))
		return
	}
	respondJSON(w, http.StatusOK, projects)
}

// UpdateProfileHandler changes the caller's username and/or bio. A changed
// username invalidates the old token's claims, so a fresh token rides along.
func (h *APIHandler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var req struct {
		Username *string `json:"username"`
		Bio      *string `json:"bio"`
	}
	if err := decodeJSON(r, &req); err != nil {
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

	if req.Username != nil && *req.Username != user.Username {
		username, err := validate.Name(*req.Username)
		if err != nil {
			respondError(w, err)
			return
		}
		existing, err := h.repos.Users.GetByUsername(r.Context(), username)
		if err != nil {
			respondError(w, apperr.Persistence("check username", err))
			return
		}
		if existing != nil {
			respondError(w, apperr.NewValidation("username is already taken"))
			return
		}
		user.Username = username
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}

	if err := h.repos.Users.Update(r.Context(), user); err != nil {
		respondError(w, apperr.Persistence("save user", err))
		return
	}

	token, err := h.authn.IssueToken(user.ID, user.Username)
	if err != nil {
		respondError(w, fmt.Errorf("failed to issue token: %w", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"token": token, "user": user})
}

// UpdatePasswordHandler changes the caller's password after re-verifying the
// current one.
func (h *APIHandler) UpdatePasswordHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
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
	if !auth.VerifyPassword(req.CurrentPassword, user.PasswordHash) {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "current password is incorrect"})
		return
	}

	password, err := validate.Password(req.NewPassword)
	if err != nil {
		respondError(w, err)
		return
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		respondError(w, fmt.Errorf("failed to hash password: %w", err))
		return
	}
	user.PasswordHash = hash

	if err := h.repos.Users.Update(r.Context(), user); err != nil {
		respondError(w, apperr.Persistence("save user", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// UploadAvatarHandler replaces the caller's avatar. Expects a multipart form
// with an "avatar" file field.
func (h *APIHandler) UploadAvatarHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, apperr.NewValidation("request must be multipart form data"))
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		respondError(w, apperr.NewValidation("avatar file is required"))
		return
	}
	defer file.Close()

	mimetype := header.Header.Get("Content-Type")
	if err := validate.Avatar(mimetype, header.Size); err != nil {
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

	key, err := h.blobs.PutAvatar(r.Context(), userID, file, header.Size, mimetype)
	if err != nil {
		respondError(w, fmt.Errorf("failed to store avatar: %w", err))
		return
	}

	user.Avatar = key
	user.AvatarType = mimetype
	if err := h.repos.Users.Update(r.Context(), user); err != nil {
		respondError(w, apperr.Persistence("save user", err))
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// GetAvatarHandler streams a user's avatar image.
func (h *APIHandler) GetAvatarHandler(w http.ResponseWriter, r *http.Request) {
	id, err := validate.ID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	user, err := h.repos.Users.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, apperr.Persistence("load user", err))
		return
	}
	if user == nil {
		respondError(w, apperr.NotFound("user", id))
		return
	}

	object, err := h.blobs.GetObject(r.Context(), user.Avatar)
	if err != nil {
		http.Error(w, "avatar not found", http.StatusNotFound)
		return
	}
	defer object.Close()

	contentType := user.AvatarType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("failed to stream avatar", logger.ErrorField(err), logger.String("user", id))
	}
}

// DeleteUserHandler removes the caller's account: messages, memberships
// (destroying any project orphaned by the departure), stored avatar, then
// the account itself.
func (h *APIHandler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
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

	if err := h.members.RemoveUser(r.Context(), user); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}
