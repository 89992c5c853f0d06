package server

import (
	"io"
	"net/http"

	"gridloop/core/apperr"
	"gridloop/core/validate"
	"gridloop/logger"
	"gridloop/model"

	"github.com/gorilla/mux"
)

// GetClipGridHandler returns both grid axes and the clip at every
// intersection, keyed clips[sceneId][trackId].
func (h *APIHandler) GetClipGridHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}

	scenes, tracks, grid, err := h.comp.ClipGrid(r.Context(), project.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scenes": scenes,
		"tracks": tracks,
		"clips":  grid,
	})
}

// GetClipHandler returns one clip.
func (h *APIHandler) GetClipHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	clip, err := h.loadProjectClip(r, project.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, clip)
}

// UpdateClipNameHandler renames a clip.
func (h *APIHandler) UpdateClipNameHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	clip, err := h.loadProjectClip(r, project.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Name string `json:"name"`
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

	updated, err := h.comp.UpdateClipName(r.Context(), clip.ID, name)
	if err != nil {
		respondError(w, err)
		return
	}

	h.broadcast("/clip", map[string]interface{}{
		"ProjectId": project.ID,
		"SceneId":   updated.SceneID,
		"TrackId":   updated.TrackID,
		"ClipId":    updated.ID,
	})
	respondJSON(w, http.StatusOK, updated)
}

// UpdateClipDataHandler changes a clip's tempo and time signature.
func (h *APIHandler) UpdateClipDataHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	clip, err := h.loadProjectClip(r, project.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Tempo         int    `json:"tempo"`
		TimeSignature string `json:"timeSignature"`
	}
	if err := decodeJSON(r, &req); err != nil {
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

	updated, err := h.comp.UpdateClipData(r.Context(), clip.ID, tempo, ts)
	if err != nil {
		respondError(w, err)
		return
	}

	h.broadcast("/clip", map[string]interface{}{
		"ProjectId": project.ID,
		"SceneId":   updated.SceneID,
		"TrackId":   updated.TrackID,
		"ClipId":    updated.ID,
	})
	respondJSON(w, http.StatusOK, updated)
}

// UploadClipContentHandler stores a clip's audio payload. Expects a
// multipart form with a "content" file field whose mimetype matches the
// owning track's type.
func (h *APIHandler) UploadClipContentHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	clip, err := h.loadProjectClip(r, project.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, apperr.NewValidation("request must be multipart form data"))
		return
	}
	file, header, err := r.FormFile("content")
	if err != nil {
		respondError(w, apperr.NewValidation("content file is required"))
		return
	}
	defer file.Close()

	mimetype := header.Header.Get("Content-Type")
	updated, err := h.comp.UploadClipContent(r.Context(), clip.ID, mimetype, file, header.Size)
	if err != nil {
		respondError(w, err)
		return
	}

	h.broadcast("/clip/content", map[string]interface{}{
		"ProjectId": project.ID,
		"SceneId":   updated.SceneID,
		"TrackId":   updated.TrackID,
		"ClipId":    updated.ID,
	})
	respondJSON(w, http.StatusOK, updated)
}

// GetClipContentHandler streams a clip's stored audio payload.
func (h *APIHandler) GetClipContentHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	clip, err := h.loadProjectClip(r, project.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	if clip.Content == nil {
		respondError(w, apperr.NotFound("clip content", clip.ID))
		return
	}

	track, err := h.repos.Tracks.GetByID(r.Context(), clip.TrackID)
	if err != nil {
		respondError(w, apperr.Persistence("load track", err))
		return
	}

	object, err := h.blobs.GetObject(r.Context(), *clip.Content)
	if err != nil {
		http.Error(w, "clip content not found", http.StatusNotFound)
		return
	}
	defer object.Close()

	contentType := "application/octet-stream"
	if track != nil {
		contentType = track.Type
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("failed to stream clip content",
			logger.ErrorField(err),
			logger.String("clip", clip.ID))
	}
}

// ClearClipContentHandler removes a clip's stored payload, leaving the clip
// itself in place.
func (h *APIHandler) ClearClipContentHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	clip, err := h.loadProjectClip(r, project.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	updated, err := h.comp.ClearClipContent(r.Context(), clip.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	h.broadcast("/clip/content", map[string]interface{}{
		"ProjectId": project.ID,
		"SceneId":   updated.SceneID,
		"TrackId":   updated.TrackID,
		"ClipId":    updated.ID,
		"Deleted":   true,
	})
	respondJSON(w, http.StatusOK, updated)
}

// loadProjectClip resolves the {clipId} route var and verifies the clip's
// scene belongs to the authorized project.
func (h *APIHandler) loadProjectClip(r *http.Request, projectID string) (*model.Clip, error) {
	clipID, err := validate.ID(mux.Vars(r)["clipId"])
	if err != nil {
		return nil, err
	}
	clip, err := h.repos.Clips.GetByID(r.Context(), clipID)
	if err != nil {
		return nil, apperr.Persistence("load clip", err)
	}
	if clip == nil {
		return nil, apperr.NotFound("clip", clipID)
	}
	scene, err := h.repos.Scenes.GetByID(r.Context(), clip.SceneID)
	if err != nil {
		return nil, apperr.Persistence("load scene", err)
	}
	if scene == nil || scene.ProjectID != projectID {
		return nil, apperr.NotFound("clip", clipID)
	}
	return clip, nil
}
