package server

import (
	"context"
	"net/http"
	"strings"

	"gridloop/core/hub"
	"gridloop/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ProjectChannelHandler upgrades the connection and subscribes the caller to
// the project's broadcast channel. Browsers cannot set headers on WebSocket
// requests, so the token may ride in the ?token query parameter instead of
// the Authorization header.
func (h *APIHandler) ProjectChannelHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		http.Error(w, "token is required", http.StatusUnauthorized)
		return
	}

	claims, err := h.authn.VerifyToken(token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	projectID := mux.Vars(r)["id"]
	if _, err := h.members.Authorize(r.Context(), projectID, claims.UserID); err != nil {
		respondError(w, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	session := hub.NewSession(h.hub, conn, projectID, claims.UserID, claims.Username)
	h.hub.Subscribe(session)

	if err := h.hub.BroadcastStatus(projectID, claims.UserID, claims.Username, "joined"); err != nil {
		logger.Warn("failed to broadcast join", logger.ErrorField(err))
	}

	// the request context dies when this handler returns; the hijacked
	// connection outlives it
	go session.WritePump()
	go session.ReadPump(context.Background())
}

// OnlineUsersHandler lists the members currently subscribed to the
// project's channel, per the shared presence state.
func (h *APIHandler) OnlineUsersHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}

	users, err := h.presence.OnlineUsers(r.Context(), project.ID)
	if err != nil {
		logger.Warn("failed to read presence", logger.ErrorField(err), logger.String("project", project.ID))
		users = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"online": users})
}
