package composition

import (
	"context"
	"fmt"
	"io"

	"gridloop/core/apperr"
	"gridloop/logger"
	"gridloop/model"
)

// GetClip loads a clip by id.
func (e *Engine) GetClip(ctx context.Context, clipID string) (*model.Clip, error) {
	clip, err := e.repos.Clips.GetByID(ctx, clipID)
	if err != nil {
		return nil, apperr.Persistence("load clip", err)
	}
	if clip == nil {
		return nil, apperr.NotFound("clip", clipID)
	}
	return clip, nil
}

// ClipGrid returns the project's clips keyed by scene id then track id,
// together with the scene and track sequences in grid order.
func (e *Engine) ClipGrid(ctx context.Context, projectID string) ([]model.Scene, []model.Track, map[string]map[string]model.Clip, error) {
	scenes, err := e.repos.Projects.GetScenes(ctx, projectID)
	if err != nil {
		return nil, nil, nil, apperr.Persistence("load scenes", err)
	}
	tracks, err := e.repos.Projects.GetTracks(ctx, projectID)
	if err != nil {
		return nil, nil, nil, apperr.Persistence("load tracks", err)
	}

	grid := make(map[string]map[string]model.Clip, len(scenes))
	for _, scene := range scenes {
		clips, err := e.repos.Scenes.GetClips(ctx, scene.ID)
		if err != nil {
			return nil, nil, nil, apperr.Persistence("load clips", err)
		}
		row := make(map[string]model.Clip, len(clips))
		for _, clip := range clips {
			row[clip.TrackID] = clip
		}
		grid[scene.ID] = row
	}
	return scenes, tracks, grid, nil
}

// UpdateClipName renames a clip.
func (e *Engine) UpdateClipName(ctx context.Context, clipID, name string) (*model.Clip, error) {
	clip, err := e.GetClip(ctx, clipID)
	if err != nil {
		return nil, err
	}
	clip.Name = name
	if err := e.repos.Clips.Update(ctx, clip); err != nil {
		return nil, apperr.Persistence("save clip", err)
	}
	return clip, nil
}

// UpdateClipData updates a clip's tempo and time signature.
func (e *Engine) UpdateClipData(ctx context.Context, clipID string, tempo int, timeSignature string) (*model.Clip, error) {
	clip, err := e.GetClip(ctx, clipID)
	if err != nil {
		return nil, err
	}
	clip.Tempo = tempo
	clip.TimeSignature = timeSignature
	if err := e.repos.Clips.Update(ctx, clip); err != nil {
		return nil, apperr.Persistence("save clip", err)
	}
	return clip, nil
}

// UploadClipContent stores a clip payload after checking its mimetype
// against the owning track's type. On a mismatch nothing is stored and no
// clip field changes; if persisting the key fails, the stored object is
// removed again.
func (e *Engine) UploadClipContent(ctx context.Context, clipID, mimetype string, r io.Reader, size int64) (*model.Clip, error) {
	clip, err := e.GetClip(ctx, clipID)
	if err != nil {
		return nil, err
	}
	track, err := e.repos.Tracks.GetByID(ctx, clip.TrackID)
	if err != nil {
		return nil, apperr.Persistence("load track", err)
	}
	if track == nil {
		return nil, apperr.NotFound("track", clip.TrackID)
	}
	if track.Type != mimetype {
		return nil, apperr.NewValidation(
			fmt.Sprintf("content type %s does not match track type %s", mimetype, track.Type))
	}

	key, err := e.content.PutClipContent(ctx, clipID, r, size, mimetype)
	if err != nil {
		return nil, apperr.Persistence("store clip content", err)
	}

	clip.Content = &key
	if err := e.repos.Clips.Update(ctx, clip); err != nil {
		if rmErr := e.content.RemoveClipContent(ctx, key); rmErr != nil {
			logger.Warn("failed to discard orphaned clip content",
				logger.ErrorField(rmErr),
				logger.String("clip", clipID))
		}
		return nil, apperr.Persistence("save clip", err)
	}

	logger.Info("clip content stored",
		logger.String("clip", clipID),
		logger.String("type", mimetype))
	return clip, nil
}

// ClearClipContent removes a clip's payload from the blob store and nils
// the content reference.
func (e *Engine) ClearClipContent(ctx context.Context, clipID string) (*model.Clip, error) {
	clip, err := e.GetClip(ctx, clipID)
	if err != nil {
		return nil, err
	}
	if clip.Content != nil {
		if err := e.content.RemoveClipContent(ctx, *clip.Content); err != nil {
			return nil, apperr.Persistence("remove clip content", err)
		}
		clip.Content = nil
		if err := e.repos.Clips.Update(ctx, clip); err != nil {
			return nil, apperr.Persistence("save clip", err)
		}
	}
	return clip, nil
}
