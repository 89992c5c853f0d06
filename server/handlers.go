package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gridloop/cache"
	"gridloop/config"
	"gridloop/core/apperr"
	"gridloop/core/auth"
	"gridloop/core/composition"
	"gridloop/core/hub"
	"gridloop/core/membership"
	"gridloop/logger"
	"gridloop/model"
	"gridloop/repository"

	"github.com/gorilla/mux"
)

// APIHandler carries the wired engines and stores for all HTTP endpoints.
type APIHandler struct {
	cfg      *config.Config
	repos    *repository.Repositories
	comp     *composition.Engine
	members  *membership.Engine
	hub      *hub.Hub
	authn    *auth.Authenticator
	blobs    BlobGateway
	presence *cache.PresenceCache
}

// BlobGateway is the part of the object store the handlers touch directly:
// avatar uploads and clip content downloads. Everything else goes through
// the engines.
type BlobGateway interface {
	PutAvatar(ctx context.Context, userID string, r io.Reader, size int64, mimetype string) (string, error)
	RemoveAvatar(ctx context.Context, key string) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
}

// NewAPIHandler creates the API handler set.
func NewAPIHandler(
	cfg *config.Config,
	repos *repository.Repositories,
	comp *composition.Engine,
	members *membership.Engine,
	h *hub.Hub,
	authn *auth.Authenticator,
	blobs BlobGateway,
	presence *cache.PresenceCache,
) *APIHandler {
	return &APIHandler{
		cfg:      cfg,
		repos:    repos,
		comp:     comp,
		members:  members,
		hub:      h,
		authn:    authn,
		blobs:    blobs,
		presence: presence,
	}
}

// AuthMiddleware checks the Bearer token and puts the caller's identity on
// the request context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := h.authn.VerifyToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		ctx = context.WithValue(ctx, "username", claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext extracts the user ID from the request context.
func GetUserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value("userID").(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the username from the request context.
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value("username").(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}

// authorizeProject resolves the {id} project from the route and verifies the
// caller is a member. Every project-scoped mutation goes through this gate.
func (h *APIHandler) authorizeProject(r *http.Request) (*model.Project, string, error) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", apperr.ErrAuthorization, err)
	}
	projectID := mux.Vars(r)["id"]
	project, err := h.members.Authorize(r.Context(), projectID, userID)
	if err != nil {
		return nil, "", err
	}
	return project, userID, nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

// respondError maps the error taxonomy to HTTP statuses. Validation problems
// surface field by field; everything unclassified is a 500 with the detail
// kept in the log rather than the response.
func respondError(w http.ResponseWriter, err error) {
	var verr *apperr.ValidationError
	var merr *apperr.MalformedIndexError

	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": verr.Problems})
	case errors.As(err, &merr):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": merr.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, apperr.ErrAuthorization):
		respondJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, apperr.ErrAlreadyMember),
		errors.Is(err, apperr.ErrNotInvited),
		errors.Is(err, apperr.ErrNotRequested),
		errors.Is(err, apperr.ErrInvariantViolation):
		respondJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		logger.Error("request failed", logger.ErrorField(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.NewValidation("request body must be valid json")
	}
	return nil
}

// broadcast fans a mutation notice out to the project's channel. Failures
// are logged, never surfaced: the mutation already committed.
func (h *APIHandler) broadcast(path string, body map[string]interface{}) {
	if err := h.hub.BroadcastUpdate(path, body); err != nil {
		logger.Warn("broadcast failed",
			logger.ErrorField(err),
			logger.String("path", path))
	}
}
