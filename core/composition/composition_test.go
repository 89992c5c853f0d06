package composition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"gridloop/core/apperr"
	"gridloop/model"
	"gridloop/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Project{},
		&model.Scene{},
		&model.Track{},
		&model.Clip{},
		&model.Message{},
	))
	return repository.New(db)
}

func newTestProject(t *testing.T, repos *repository.Repositories) *model.Project {
	t.Helper()
	project := &model.Project{
		Name:          "test project",
		Tempo:         120,
		TimeSignature: "4/4",
	}
	require.NoError(t, repos.Projects.Create(context.Background(), project))
	return project
}

type fakeContentStore struct {
	objects map[string][]byte
	failPut bool
}

func newFakeContentStore() *fakeContentStore {
	return &fakeContentStore{objects: make(map[string][]byte)}
}

func (f *fakeContentStore) PutClipContent(_ context.Context, clipID string, r io.Reader, _ int64, _ string) (string, error) {
	if f.failPut {
		return "", fmt.Errorf("store unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	key := "clips/" + clipID
	f.objects[key] = data
	return key, nil
}

func (f *fakeContentStore) RemoveClipContent(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func trackParams(name string) TrackParams {
	return TrackParams{
		Name:     name,
		Settings: model.SettingsMap{"gain": 0.5},
		Type:     "audio/wav",
	}
}

func TestCreateSceneAssignsDenseIndices(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	for want := 0; want < 3; want++ {
		scene, err := engine.CreateScene(ctx, project, SceneParams{})
		require.NoError(t, err)
		assert.Equal(t, want, scene.Index)
		assert.Equal(t, 4, scene.Bars)
		assert.Equal(t, 1, scene.Repeats)
	}
}

func TestCreateSceneRejectsOccupiedIndex(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	_, err := engine.CreateScene(ctx, project, SceneParams{Name: "intro"})
	require.NoError(t, err)

	zero := 0
	_, err = engine.CreateScene(ctx, project, SceneParams{Name: "clash", Index: &zero})
	require.ErrorIs(t, err, apperr.ErrInvariantViolation)

	// the rejected scene was not written
	scenes, err := repos.Projects.GetScenes(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, scenes, 1)
}

func TestCreateSceneRejectsIndexPastNextSlot(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	_, err := engine.CreateScene(ctx, project, SceneParams{})
	require.NoError(t, err)

	for _, bad := range []int{2, 99, -1} {
		index := bad
		_, err = engine.CreateScene(ctx, project, SceneParams{Index: &index})
		assert.ErrorIs(t, err, apperr.ErrInvariantViolation)
	}
}

func TestCreateSceneAcceptsNextSlotIndex(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	_, err := engine.CreateScene(ctx, project, SceneParams{})
	require.NoError(t, err)

	one := 1
	scene, err := engine.CreateScene(ctx, project, SceneParams{Index: &one})
	require.NoError(t, err)
	assert.Equal(t, 1, scene.Index)
}

func TestCreateTrackRejectsOccupiedIndex(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	_, err := engine.CreateTrack(ctx, project, trackParams("drums"))
	require.NoError(t, err)

	zero := 0
	params := trackParams("bass")
	params.Index = &zero
	_, err = engine.CreateTrack(ctx, project, params)
	require.ErrorIs(t, err, apperr.ErrInvariantViolation)

	tracks, err := repos.Projects.GetTracks(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, tracks, 1)
}

func TestReleaseProjectDropsLock(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	_, err := engine.CreateScene(ctx, project, SceneParams{})
	require.NoError(t, err)
	_, held := engine.locks.Load(project.ID)
	require.True(t, held)

	engine.ReleaseProject(project.ID)
	_, held = engine.locks.Load(project.ID)
	assert.False(t, held)
}

func TestCreateSceneSeedsClipPerTrack(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	_, err := engine.CreateTrack(ctx, project, trackParams("drums"))
	require.NoError(t, err)
	_, err = engine.CreateTrack(ctx, project, trackParams("bass"))
	require.NoError(t, err)

	scene, err := engine.CreateScene(ctx, project, SceneParams{Name: "intro"})
	require.NoError(t, err)
	require.Len(t, scene.Clips, 2)
	for _, clip := range scene.Clips {
		assert.Equal(t, project.Tempo, clip.Tempo)
		assert.Equal(t, project.TimeSignature, clip.TimeSignature)
		assert.Nil(t, clip.Content)
	}
}

func TestCreateTrackSeedsClipPerScene(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := engine.CreateScene(ctx, project, SceneParams{})
		require.NoError(t, err)
	}

	track, err := engine.CreateTrack(ctx, project, trackParams("keys"))
	require.NoError(t, err)
	assert.Equal(t, 0, track.Index)
	assert.Len(t, track.Clips, 3)
}

func TestGridCoverage(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	// interleave creation on both axes; every intersection must end up
	// with exactly one clip
	_, err := engine.CreateScene(ctx, project, SceneParams{})
	require.NoError(t, err)
	_, err = engine.CreateTrack(ctx, project, trackParams("drums"))
	require.NoError(t, err)
	_, err = engine.CreateScene(ctx, project, SceneParams{})
	require.NoError(t, err)
	_, err = engine.CreateTrack(ctx, project, trackParams("bass"))
	require.NoError(t, err)
	_, err = engine.CreateScene(ctx, project, SceneParams{})
	require.NoError(t, err)

	count, err := repos.Clips.CountByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3*2), count)

	scenes, tracks, grid, err := engine.ClipGrid(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, scenes, 3)
	require.Len(t, tracks, 2)
	for _, scene := range scenes {
		require.Len(t, grid[scene.ID], 2)
		for _, track := range tracks {
			_, ok := grid[scene.ID][track.ID]
			assert.True(t, ok, "missing clip at %s x %s", scene.ID, track.ID)
		}
	}
}

func TestDestroySceneRestampsAndCascades(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	_, err := engine.CreateTrack(ctx, project, trackParams("drums"))
	require.NoError(t, err)

	var scenes []*model.Scene
	for i := 0; i < 3; i++ {
		scene, err := engine.CreateScene(ctx, project, SceneParams{})
		require.NoError(t, err)
		scenes = append(scenes, scene)
	}

	_, err = engine.DestroyScene(ctx, scenes[1].ID)
	require.NoError(t, err)

	remaining, err := repos.Projects.GetScenes(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, scenes[0].ID, remaining[0].ID)
	assert.Equal(t, scenes[2].ID, remaining[1].ID)
	for i, scene := range remaining {
		assert.Equal(t, i, scene.Index)
	}

	count, err := repos.Clips.CountByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestDestroySceneTwiceReportsNotFound(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	scene, err := engine.CreateScene(ctx, project, SceneParams{})
	require.NoError(t, err)

	_, err = engine.DestroyScene(ctx, scene.ID)
	require.NoError(t, err)

	_, err = engine.DestroyScene(ctx, scene.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestDestroyTrackRestampsAndCascades(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	_, err := engine.CreateScene(ctx, project, SceneParams{})
	require.NoError(t, err)

	var tracks []*model.Track
	for _, name := range []string{"drums", "bass", "keys"} {
		track, err := engine.CreateTrack(ctx, project, trackParams(name))
		require.NoError(t, err)
		tracks = append(tracks, track)
	}

	_, err = engine.DestroyTrack(ctx, tracks[0].ID)
	require.NoError(t, err)

	remaining, err := repos.Projects.GetTracks(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	for i, track := range remaining {
		assert.Equal(t, i, track.Index)
	}

	count, err := repos.Clips.CountByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestReorderScenes(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		scene, err := engine.CreateScene(ctx, project, SceneParams{})
		require.NoError(t, err)
		ids = append(ids, scene.ID)
	}

	reordered, err := engine.ReorderScenes(ctx, project.ID, ids[0], 2)
	require.NoError(t, err)
	require.Len(t, reordered, 4)
	assert.Equal(t, []string{ids[1], ids[2], ids[0], ids[3]},
		[]string{reordered[0].ID, reordered[1].ID, reordered[2].ID, reordered[3].ID})
	for i, scene := range reordered {
		assert.Equal(t, i, scene.Index)
	}

	// the new order is persisted
	persisted, err := repos.Projects.GetScenes(ctx, project.ID)
	require.NoError(t, err)
	for i, scene := range persisted {
		assert.Equal(t, reordered[i].ID, scene.ID)
		assert.Equal(t, i, scene.Index)
	}
}

func TestReorderScenesUnknownID(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	_, err := engine.CreateScene(ctx, project, SceneParams{})
	require.NoError(t, err)

	_, err = engine.ReorderScenes(ctx, project.ID, "00000000-0000-0000-0000-000000000000", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestReorderTracksClampsTarget(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"drums", "bass", "keys"} {
		track, err := engine.CreateTrack(ctx, project, trackParams(name))
		require.NoError(t, err)
		ids = append(ids, track.ID)
	}

	reordered, err := engine.ReorderTracks(ctx, project.ID, ids[0], 99)
	require.NoError(t, err)
	assert.Equal(t, ids[0], reordered[len(reordered)-1].ID)
	for i, track := range reordered {
		assert.Equal(t, i, track.Index)
	}
}

func TestUpdateClipNameAndData(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	engine := NewEngine(repos, newFakeContentStore())
	ctx := context.Background()

	_, err := engine.CreateTrack(ctx, project, trackParams("drums"))
	require.NoError(t, err)
	scene, err := engine.CreateScene(ctx, project, SceneParams{})
	require.NoError(t, err)
	require.Len(t, scene.Clips, 1)
	clipID := scene.Clips[0].ID

	clip, err := engine.UpdateClipName(ctx, clipID, "groove")
	require.NoError(t, err)
	assert.Equal(t, "groove", clip.Name)

	clip, err = engine.UpdateClipData(ctx, clipID, 140, "3/4")
	require.NoError(t, err)
	assert.Equal(t, 140, clip.Tempo)
	assert.Equal(t, "3/4", clip.TimeSignature)
}

func TestUploadClipContentChecksTrackType(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	store := newFakeContentStore()
	engine := NewEngine(repos, store)
	ctx := context.Background()

	_, err := engine.CreateTrack(ctx, project, trackParams("drums")) // audio/wav
	require.NoError(t, err)
	scene, err := engine.CreateScene(ctx, project, SceneParams{})
	require.NoError(t, err)
	clipID := scene.Clips[0].ID

	payload := []byte("not really audio")
	_, err = engine.UploadClipContent(ctx, clipID, "audio/midi", bytes.NewReader(payload), int64(len(payload)))
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.Empty(t, store.objects, "mismatched upload must not reach the store")

	clip, err := engine.GetClip(ctx, clipID)
	require.NoError(t, err)
	assert.Nil(t, clip.Content)
}

func TestUploadAndClearClipContent(t *testing.T) {
	repos := newTestRepos(t)
	project := newTestProject(t, repos)
	store := newFakeContentStore()
	engine := NewEngine(repos, store)
	ctx := context.Background()

	_, err := engine.CreateTrack(ctx, project, trackParams("drums"))
	require.NoError(t, err)
	scene, err := engine.CreateScene(ctx, project, SceneParams{})
	require.NoError(t, err)
	clipID := scene.Clips[0].ID

	payload := []byte("wav bytes")
	clip, err := engine.UploadClipContent(ctx, clipID, "audio/wav", bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	require.NotNil(t, clip.Content)
	assert.Equal(t, payload, store.objects[*clip.Content])

	clip, err = engine.ClearClipContent(ctx, clipID)
	require.NoError(t, err)
	assert.Nil(t, clip.Content)
	assert.Empty(t, store.objects)
}
