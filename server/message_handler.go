package server

import (
	"fmt"
	"net/http"
	"strconv"

	"gridloop/core/apperr"
	"gridloop/core/validate"
	"gridloop/model"

	"github.com/gorilla/mux"
)

// PostMessageHandler appends a chat message to the project.
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	project, userID, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	content, err := validate.Message(req.Content)
	if err != nil {
		respondError(w, err)
		return
	}

	msg := &model.Message{
		ProjectID: project.ID,
		UserID:    userID,
		Content:   content,
	}
	if err := h.repos.Messages.Create(r.Context(), msg); err != nil {
		respondError(w, apperr.Persistence("create message", err))
		return
	}

	h.broadcast("/message", map[string]interface{}{
		"ProjectId": project.ID,
		"MessageId": msg.ID,
	})
	respondJSON(w, http.StatusCreated, msg)
}

// GetMessagesHandler lists project chat, newest last. Supports ?limit and
// ?offset for paging.
func (h *APIHandler) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}

	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	messages, err := h.repos.Messages.GetByProject(r.Context(), project.ID, limit, offset)
	if err != nil {
		respondError(w, apperr.Persistence("list messages", err))
		return
	}
	respondJSON(w, http.StatusOK, messages)
}

// DeleteMessageHandler removes a chat message. Only the author may delete.
func (h *APIHandler) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	project, userID, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}

	messageID, err := validate.ID(mux.Vars(r)["messageId"])
	if err != nil {
		respondError(w, err)
		return
	}
	msg, err := h.repos.Messages.GetByID(r.Context(), messageID)
	if err != nil {
		respondError(w, apperr.Persistence("load message", err))
		return
	}
	if msg == nil || msg.ProjectID != project.ID {
		respondError(w, apperr.NotFound("message", messageID))
		return
	}
	if msg.UserID != userID {
		respondError(w, fmt.Errorf("only the author may delete a message: %w", apperr.ErrAuthorization))
		return
	}

	if err := h.repos.Messages.Delete(r.Context(), messageID); err != nil {
		respondError(w, apperr.Persistence("delete message", err))
		return
	}

	h.broadcast("/message", map[string]interface{}{
		"ProjectId": project.ID,
		"MessageId": messageID,
		"Deleted":   true,
	})
	respondJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}
