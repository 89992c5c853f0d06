// Package composition mutates the project grid: scenes, tracks and the
// clips at their intersections. Every mutation preserves the coverage
// invariant (each scene x track pair has exactly one clip) and keeps grid
// indices dense, 0..n-1 per axis.
package composition

import (
	"context"
	"fmt"
	"io"
	"sync"

	"gridloop/core/apperr"
	"gridloop/core/order"
	"gridloop/logger"
	"gridloop/model"
	"gridloop/repository"
)

// ContentStore is the blob store clip payloads live in.
type ContentStore interface {
	PutClipContent(ctx context.Context, clipID string, r io.Reader, size int64, mimetype string) (string, error)
	RemoveClipContent(ctx context.Context, key string) error
}

// Engine coordinates grid mutations against the repositories.
type Engine struct {
	repos   *repository.Repositories
	content ContentStore

	// one mutex per project serializes reorders; without it two concurrent
	// reorders read the same snapshot and the restamp of the loser leaves
	// duplicate or gapped indices
	locks sync.Map
}

// NewEngine creates a composition engine.
func NewEngine(repos *repository.Repositories, content ContentStore) *Engine {
	return &Engine{repos: repos, content: content}
}

func (e *Engine) projectLock(projectID string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(projectID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// ReleaseProject drops the project's reorder lock. Called once the project
// has been destroyed; the entry would otherwise outlive it for the rest of
// the process.
func (e *Engine) ReleaseProject(projectID string) {
	e.locks.Delete(projectID)
}

// SceneParams are the optional fields of a new scene.
type SceneParams struct {
	Name          string
	Tempo         *int
	TimeSignature *string
	Bars          *int
	Repeats       *int
	Index         *int
}

// TrackParams are the fields of a new track.
type TrackParams struct {
	Name     string
	Settings model.SettingsMap
	Type     string
	Index    *int
}

// CreateScene appends a scene to the project and creates one clip per
// existing track, seeded with the project's tempo and time signature. The
// scene, its clips and the index stamp are one transaction.
func (e *Engine) CreateScene(ctx context.Context, project *model.Project, params SceneParams) (*model.Scene, error) {
	lock := e.projectLock(project.ID)
	lock.Lock()
	defer lock.Unlock()

	var created *model.Scene
	err := e.repos.Transact(ctx, func(tx *repository.Repositories) error {
		index, err := e.resolveSceneIndex(ctx, tx, project.ID, params.Index)
		if err != nil {
			return err
		}

		scene := &model.Scene{
			ProjectID:     project.ID,
			Name:          params.Name,
			Tempo:         params.Tempo,
			TimeSignature: params.TimeSignature,
			Bars:          4,
			Repeats:       1,
			Index:         index,
		}
		if params.Bars != nil {
			scene.Bars = *params.Bars
		}
		if params.Repeats != nil {
			scene.Repeats = *params.Repeats
		}
		if err := tx.Scenes.Create(ctx, scene); err != nil {
			return apperr.Persistence("create scene", err)
		}

		tracks, err := tx.Projects.GetTracks(ctx, project.ID)
		if err != nil {
			return apperr.Persistence("load tracks", err)
		}
		clips := make([]model.Clip, 0, len(tracks))
		for _, track := range tracks {
			clips = append(clips, model.Clip{
				SceneID:       scene.ID,
				TrackID:       track.ID,
				Tempo:         project.Tempo,
				TimeSignature: project.TimeSignature,
			})
		}
		if err := tx.Clips.CreateBatch(ctx, clips); err != nil {
			return apperr.Persistence("create clips for scene", err)
		}

		created, err = tx.Scenes.GetByIDWithClips(ctx, scene.ID)
		if err != nil {
			return apperr.Persistence("reload scene", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("scene created",
		logger.String("project", project.ID),
		logger.String("scene", created.ID),
		logger.Int("index", created.Index))
	return created, nil
}

// CreateTrack appends a track to the project and creates one clip per
// existing scene, seeded with the project's tempo and time signature.
func (e *Engine) CreateTrack(ctx context.Context, project *model.Project, params TrackParams) (*model.Track, error) {
	lock := e.projectLock(project.ID)
	lock.Lock()
	defer lock.Unlock()

	var created *model.Track
	err := e.repos.Transact(ctx, func(tx *repository.Repositories) error {
		index, err := e.resolveTrackIndex(ctx, tx, project.ID, params.Index)
		if err != nil {
			return err
		}

		track := &model.Track{
			ProjectID: project.ID,
			Name:      params.Name,
			Settings:  params.Settings,
			Type:      params.Type,
			Index:     index,
		}
		if err := tx.Tracks.Create(ctx, track); err != nil {
			return apperr.Persistence("create track", err)
		}

		scenes, err := tx.Projects.GetScenes(ctx, project.ID)
		if err != nil {
			return apperr.Persistence("load scenes", err)
		}
		clips := make([]model.Clip, 0, len(scenes))
		for _, scene := range scenes {
			clips = append(clips, model.Clip{
				SceneID:       scene.ID,
				TrackID:       track.ID,
				Tempo:         project.Tempo,
				TimeSignature: project.TimeSignature,
			})
		}
		if err := tx.Clips.CreateBatch(ctx, clips); err != nil {
			return apperr.Persistence("create clips for track", err)
		}

		created, err = tx.Tracks.GetByIDWithClips(ctx, track.ID)
		if err != nil {
			return apperr.Persistence("reload track", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("track created",
		logger.String("project", project.ID),
		logger.String("track", created.ID),
		logger.Int("index", created.Index))
	return created, nil
}

func (e *Engine) resolveSceneIndex(ctx context.Context, tx *repository.Repositories, projectID string, requested *int) (int, error) {
	scenes, err := tx.Projects.GetScenes(ctx, projectID)
	if err != nil {
		return 0, apperr.Persistence("load scenes", err)
	}
	next, err := order.NextIndex(scenes, "index")
	if err != nil {
		return 0, err
	}
	if requested == nil {
		return next, nil
	}
	if *requested < 0 || *requested > next {
		return 0, fmt.Errorf("scene index %d is outside 0..%d: %w", *requested, next, apperr.ErrInvariantViolation)
	}
	for i := range scenes {
		if scenes[i].Index == *requested {
			return 0, fmt.Errorf("scene index %d is already occupied: %w", *requested, apperr.ErrInvariantViolation)
		}
	}
	return *requested, nil
}

func (e *Engine) resolveTrackIndex(ctx context.Context, tx *repository.Repositories, projectID string, requested *int) (int, error) {
	tracks, err := tx.Projects.GetTracks(ctx, projectID)
	if err != nil {
		return 0, apperr.Persistence("load tracks", err)
	}
	next, err := order.NextIndex(tracks, "index")
	if err != nil {
		return 0, err
	}
	if requested == nil {
		return next, nil
	}
	if *requested < 0 || *requested > next {
		return 0, fmt.Errorf("track index %d is outside 0..%d: %w", *requested, next, apperr.ErrInvariantViolation)
	}
	for i := range tracks {
		if tracks[i].Index == *requested {
			return 0, fmt.Errorf("track index %d is already occupied: %w", *requested, apperr.ErrInvariantViolation)
		}
	}
	return *requested, nil
}

// DestroyScene removes a scene, its clips, and restamps the remaining
// scenes' indices so they stay dense. One transaction; a second call on the
// same id reports NotFound.
func (e *Engine) DestroyScene(ctx context.Context, sceneID string) (*model.Scene, error) {
	scene, err := e.repos.Scenes.GetByID(ctx, sceneID)
	if err != nil {
		return nil, apperr.Persistence("load scene", err)
	}
	if scene == nil {
		return nil, apperr.NotFound("scene", sceneID)
	}

	lock := e.projectLock(scene.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	err = e.repos.Transact(ctx, func(tx *repository.Repositories) error {
		if err := tx.Clips.DeleteByScene(ctx, sceneID); err != nil {
			return apperr.Persistence("delete clips of scene", err)
		}
		if err := tx.Scenes.Delete(ctx, sceneID); err != nil {
			return apperr.Persistence("delete scene", err)
		}
		return restampScenes(ctx, tx, scene.ProjectID)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("scene destroyed",
		logger.String("project", scene.ProjectID),
		logger.String("scene", sceneID))
	return scene, nil
}

// DestroyTrack removes a track, its clips, and restamps the remaining
// tracks' indices.
func (e *Engine) DestroyTrack(ctx context.Context, trackID string) (*model.Track, error) {
	track, err := e.repos.Tracks.GetByID(ctx, trackID)
	if err != nil {
		return nil, apperr.Persistence("load track", err)
	}
	if track == nil {
		return nil, apperr.NotFound("track", trackID)
	}

	lock := e.projectLock(track.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	err = e.repos.Transact(ctx, func(tx *repository.Repositories) error {
		if err := tx.Clips.DeleteByTrack(ctx, trackID); err != nil {
			return apperr.Persistence("delete clips of track", err)
		}
		if err := tx.Tracks.Delete(ctx, trackID); err != nil {
			return apperr.Persistence("delete track", err)
		}
		return restampTracks(ctx, tx, track.ProjectID)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("track destroyed",
		logger.String("project", track.ProjectID),
		logger.String("track", trackID))
	return track, nil
}

// ReorderScenes moves the given scene to target and restamps every scene's
// index with its new positional rank. The read-reorder-restamp cycle is
// serialized per project and the writes are one transaction.
func (e *Engine) ReorderScenes(ctx context.Context, projectID, sceneID string, target int) ([]model.Scene, error) {
	lock := e.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	var reordered []model.Scene
	err := e.repos.Transact(ctx, func(tx *repository.Repositories) error {
		scenes, err := tx.Projects.GetScenes(ctx, projectID)
		if err != nil {
			return apperr.Persistence("load scenes", err)
		}
		reordered, err = order.ReorderByField(scenes, "id", sceneID, target)
		if err != nil {
			return err
		}
		for i := range reordered {
			if reordered[i].Index != i {
				if err := tx.Scenes.UpdateIndex(ctx, reordered[i].ID, i); err != nil {
					return apperr.Persistence("restamp scene index", err)
				}
			}
			reordered[i].Index = i
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reordered, nil
}

// ReorderTracks moves the given track to target, restamping every track's
// index with its new positional rank.
func (e *Engine) ReorderTracks(ctx context.Context, projectID, trackID string, target int) ([]model.Track, error) {
	lock := e.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	var reordered []model.Track
	err := e.repos.Transact(ctx, func(tx *repository.Repositories) error {
		tracks, err := tx.Projects.GetTracks(ctx, projectID)
		if err != nil {
			return apperr.Persistence("load tracks", err)
		}
		reordered, err = order.ReorderByField(tracks, "id", trackID, target)
		if err != nil {
			return err
		}
		for i := range reordered {
			if reordered[i].Index != i {
				if err := tx.Tracks.UpdateIndex(ctx, reordered[i].ID, i); err != nil {
					return apperr.Persistence("restamp track index", err)
				}
			}
			reordered[i].Index = i
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reordered, nil
}

func restampScenes(ctx context.Context, tx *repository.Repositories, projectID string) error {
	scenes, err := tx.Projects.GetScenes(ctx, projectID)
	if err != nil {
		return apperr.Persistence("load scenes", err)
	}
	for i, scene := range scenes {
		if scene.Index != i {
			if err := tx.Scenes.UpdateIndex(ctx, scene.ID, i); err != nil {
				return apperr.Persistence("restamp scene index", err)
			}
		}
	}
	return nil
}

func restampTracks(ctx context.Context, tx *repository.Repositories, projectID string) error {
	tracks, err := tx.Projects.GetTracks(ctx, projectID)
	if err != nil {
		return apperr.Persistence("load tracks", err)
	}
	for i, track := range tracks {
		if track.Index != i {
			if err := tx.Tracks.UpdateIndex(ctx, track.ID, i); err != nil {
				return apperr.Persistence("restamp track index", err)
			}
		}
	}
	return nil
}
