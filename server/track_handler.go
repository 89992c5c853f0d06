package server

import (
	"net/http"

	"gridloop/core/apperr"
	"gridloop/core/composition"
	"gridloop/core/validate"
	"gridloop/model"

	"github.com/gorilla/mux"
)

// CreateTrackHandler appends a track column to the grid. One clip per
// existing scene is created with it.
func (h *APIHandler) CreateTrackHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Name     string                 `json:"name"`
		Settings map[string]interface{} `json:"settings"`
		Type     string                 `json:"type"`
		Index    *int                   `json:"index"`
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
	settings, err := validate.Settings(req.Settings)
	if err != nil {
		respondError(w, err)
		return
	}
	trackType, err := validate.Type(req.Type)
	if err != nil {
		respondError(w, err)
		return
	}

	track, err := h.comp.CreateTrack(r.Context(), project, composition.TrackParams{
		Name:     name,
		Settings: settings,
		Type:     trackType,
		Index:    req.Index,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	h.broadcast("/project/tracks", map[string]interface{}{
		"ProjectId": project.ID,
		"TrackId":   track.ID,
	})
	respondJSON(w, http.StatusCreated, track)
}

// GetTrackHandler returns one track with its clips.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	track, err := h.loadProjectTrack(r, project.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, track)
}

// UpdateTrackHandler changes a track's name, settings or type.
func (h *APIHandler) UpdateTrackHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	track, err := h.loadProjectTrack(r, project.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Name     *string                `json:"name"`
		Settings map[string]interface{} `json:"settings"`
		Type     *string                `json:"type"`
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
		track.Name = name
	}
	if req.Settings != nil {
		settings, err := validate.Settings(req.Settings)
		if err != nil {
			respondError(w, err)
			return
		}
		track.Settings = settings
	}
	if req.Type != nil {
		trackType, err := validate.Type(*req.Type)
		if err != nil {
			respondError(w, err)
			return
		}
		track.Type = trackType
	}

	if err := h.repos.Tracks.Update(r.Context(), track); err != nil {
		respondError(w, apperr.Persistence("save track", err))
		return
	}

	h.broadcast("/track", map[string]interface{}{
		"ProjectId": project.ID,
		"TrackId":   track.ID,
	})
	respondJSON(w, http.StatusOK, track)
}

// DestroyTrackHandler removes a track and its clips, closing the index gap.
func (h *APIHandler) DestroyTrackHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	track, err := h.loadProjectTrack(r, project.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	destroyed, err := h.comp.DestroyTrack(r.Context(), track.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	h.broadcast("/project/tracks", map[string]interface{}{
		"ProjectId": project.ID,
		"TrackId":   destroyed.ID,
		"Deleted":   true,
	})
	respondJSON(w, http.StatusOK, destroyed)
}

// ReorderTracksHandler moves a track to a new position and restamps the
// whole axis dense.
func (h *APIHandler) ReorderTracksHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		TrackID string `json:"trackId"`
		Index   int    `json:"index"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	trackID, err := validate.ID(req.TrackID)
	if err != nil {
		respondError(w, err)
		return
	}

	tracks, err := h.comp.ReorderTracks(r.Context(), project.ID, trackID, req.Index)
	if err != nil {
		respondError(w, err)
		return
	}

	h.broadcast("/project/tracks", map[string]interface{}{
		"ProjectId": project.ID,
	})
	respondJSON(w, http.StatusOK, tracks)
}

// loadProjectTrack resolves the {trackId} route var and verifies the track
// belongs to the authorized project.
func (h *APIHandler) loadProjectTrack(r *http.Request, projectID string) (*model.Track, error) {
	trackID, err := validate.ID(mux.Vars(r)["trackId"])
	if err != nil {
		return nil, err
	}
	track, err := h.repos.Tracks.GetByID(r.Context(), trackID)
	if err != nil {
		return nil, apperr.Persistence("load track", err)
	}
	if track == nil || track.ProjectID != projectID {
		return nil, apperr.NotFound("track", trackID)
	}
	return track, nil
}
