package server

import (
	"net/http"

	"gridloop/core/apperr"
	"gridloop/core/composition"
	"gridloop/core/validate"
	"gridloop/model"

	"github.com/gorilla/mux"
)

// CreateSceneHandler appends a scene row to the grid. One clip per existing
// track is created with it.
func (h *APIHandler) CreateSceneHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Name          string  `json:"name"`
		Tempo         *int    `json:"tempo"`
		TimeSignature *string `json:"timeSignature"`
		Bars          *int    `json:"bars"`
		Repeats       *int    `json:"repeats"`
		Index         *int    `json:"index"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if req.Name != "" {
		if _, err := validate.Name(req.Name); err != nil {
			respondError(w, err)
			return
		}
	}
	if req.Tempo != nil {
		if _, err := validate.Tempo(*req.Tempo); err != nil {
			respondError(w, err)
			return
		}
	}
	if req.TimeSignature != nil {
		if _, err := validate.TimeSignature(*req.TimeSignature); err != nil {
			respondError(w, err)
			return
		}
	}
	if req.Bars != nil && *req.Bars < 1 {
		respondError(w, apperr.NewValidation("bars must be a positive integer"))
		return
	}
	if req.Repeats != nil && *req.Repeats < 1 {
		respondError(w, apperr.NewValidation("repeats must be a positive integer"))
		return
	}

	scene, err := h.comp.CreateScene(r.Context(), project, composition.SceneParams{
		Name:          req.Name,
		Tempo:         req.Tempo,
		TimeSignature: req.TimeSignature,
		Bars:          req.Bars,
		Repeats:       req.Repeats,
		Index:         req.Index,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	h.broadcast("/project/scenes", map[string]interface{}{
		"ProjectId": project.ID,
		"SceneId":   scene.ID,
	})
	respondJSON(w, http.StatusCreated, scene)
}

// GetSceneHandler returns one scene with its clips.
func (h *APIHandler) GetSceneHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	scene, err := h.loadProjectScene(r, project.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, scene)
}

// UpdateSceneHandler changes a scene's playback fields.
func (h *APIHandler) UpdateSceneHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	scene, err := h.loadProjectScene(r, project.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Name          *string `json:"name"`
		Tempo         *int    `json:"tempo"`
		TimeSignature *string `json:"timeSignature"`
		Bars          *int    `json:"bars"`
		Repeats       *int    `json:"repeats"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if req.Name != nil {
		if *req.Name != "" {
			if _, err := validate.Name(*req.Name); err != nil {
				respondError(w, err)
				return
			}
		}
		scene.Name = *req.Name
	}
	if req.Tempo != nil {
		tempo, err := validate.Tempo(*req.Tempo)
		if err != nil {
			respondError(w, err)
			return
		}
		scene.Tempo = &tempo
	}
	if req.TimeSignature != nil {
		ts, err := validate.TimeSignature(*req.TimeSignature)
		if err != nil {
			respondError(w, err)
			return
		}
		scene.TimeSignature = &ts
	}
	if req.Bars != nil {
		if *req.Bars < 1 {
			respondError(w, apperr.NewValidation("bars must be a positive integer"))
			return
		}
		scene.Bars = *req.Bars
	}
	if req.Repeats != nil {
		if *req.Repeats < 1 {
			respondError(w, apperr.NewValidation("repeats must be a positive integer"))
			return
		}
		scene.Repeats = *req.Repeats
	}

	if err := h.repos.Scenes.Update(r.Context(), scene); err != nil {
		respondError(w, apperr.Persistence("save scene", err))
		return
	}

	h.broadcast("/scene", map[string]interface{}{
		"ProjectId": project.ID,
		"SceneId":   scene.ID,
	})
	respondJSON(w, http.StatusOK, scene)
}

// DestroySceneHandler removes a scene and its clips, closing the index gap.
func (h *APIHandler) DestroySceneHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	scene, err := h.loadProjectScene(r, project.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	destroyed, err := h.comp.DestroyScene(r.Context(), scene.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	h.broadcast("/project/scenes", map[string]interface{}{
		"ProjectId": project.ID,
		"SceneId":   destroyed.ID,
		"Deleted":   true,
	})
	respondJSON(w, http.StatusOK, destroyed)
}

// ReorderScenesHandler moves a scene to a new position and restamps the
// whole axis dense.
func (h *APIHandler) ReorderScenesHandler(w http.ResponseWriter, r *http.Request) {
	project, _, err := h.authorizeProject(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		SceneID string `json:"sceneId"`
		Index   int    `json:"index"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	sceneID, err := validate.ID(req.SceneID)
	if err != nil {
		respondError(w, err)
		return
	}

	scenes, err := h.comp.ReorderScenes(r.Context(), project.ID, sceneID, req.Index)
	if err != nil {
		respondError(w, err)
		return
	}

	h.broadcast("/project/scenes", map[string]interface{}{
		"ProjectId": project.ID,
	})
	respondJSON(w, http.StatusOK, scenes)
}

// loadProjectScene resolves the {sceneId} route var and verifies the scene
// belongs to the authorized project.
func (h *APIHandler) loadProjectScene(r *http.Request, projectID string) (*model.Scene, error) {
	sceneID, err := validate.ID(mux.Vars(r)["sceneId"])
	if err != nil {
		return nil, err
	}
	scene, err := h.repos.Scenes.GetByID(r.Context(), sceneID)
	if err != nil {
		return nil, apperr.Persistence("load scene", err)
	}
	if scene == nil || scene.ProjectID != projectID {
		return nil, apperr.NotFound("scene", sceneID)
	}
	return scene, nil
}
