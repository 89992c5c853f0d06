package membership

import (
	"context"
	"errors"
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

func newTestUser(t *testing.T, repos *repository.Repositories, username string) *model.User {
	t.Helper()
	user := &model.User{
		Username:     username,
		PasswordHash: "x",
		Avatar:       model.DefaultAvatar,
	}
	require.NoError(t, repos.Users.Create(context.Background(), user))
	return user
}

type fakeAvatarStore struct {
	removed []string
}

func (f *fakeAvatarStore) RemoveAvatar(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

func newTestEngine(repos *repository.Repositories) (*Engine, *fakeAvatarStore) {
	avatars := &fakeAvatarStore{}
	return NewEngine(repos, avatars, nil), avatars
}

func createProject(t *testing.T, engine *Engine, creator *model.User) *model.Project {
	t.Helper()
	project, err := engine.CreateProject(context.Background(), creator, ProjectParams{
		Name:          "jam",
		Tempo:         120,
		TimeSignature: "4/4",
	})
	require.NoError(t, err)
	return project
}

func TestCreateProjectAddsCreator(t *testing.T) {
	repos := newTestRepos(t)
	engine, _ := newTestEngine(repos)
	ctx := context.Background()

	alice := newTestUser(t, repos, "alice")
	project := createProject(t, engine, alice)

	isMember, err := repos.Projects.HasUser(ctx, project.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, isMember)

	count, err := repos.Projects.CountUsers(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestAuthorize(t *testing.T) {
	repos := newTestRepos(t)
	engine, _ := newTestEngine(repos)
	ctx := context.Background()

	alice := newTestUser(t, repos, "alice")
	bob := newTestUser(t, repos, "bob")
	project := createProject(t, engine, alice)

	got, err := engine.Authorize(ctx, project.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, project.ID, got.ID)

	_, err = engine.Authorize(ctx, project.ID, bob.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrAuthorization))

	_, err = engine.Authorize(ctx, "00000000-0000-0000-0000-000000000000", alice.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestInviteFlow(t *testing.T) {
	repos := newTestRepos(t)
	engine, _ := newTestEngine(repos)
	ctx := context.Background()

	alice := newTestUser(t, repos, "alice")
	bob := newTestUser(t, repos, "bob")
	project := createProject(t, engine, alice)

	project, err := engine.Invite(ctx, project, bob.ID)
	require.NoError(t, err)
	assert.True(t, project.Invited.Contains(bob.ID))

	// repeat invite is a no-op, not a duplicate
	project, err = engine.Invite(ctx, project, bob.ID)
	require.NoError(t, err)
	assert.Len(t, project.Invited, 1)

	// inviting a member fails
	_, err = engine.Invite(ctx, project, alice.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyMember))

	// inviting an unknown user fails
	_, err = engine.Invite(ctx, project, "00000000-0000-0000-0000-000000000000")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	project, err = engine.AcceptInvite(ctx, project, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, project.Invited)

	isMember, err := repos.Projects.HasUser(ctx, project.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, isMember)
}

func TestAcceptInviteWithoutInvite(t *testing.T) {
	repos := newTestRepos(t)
	engine, _ := newTestEngine(repos)
	ctx := context.Background()

	alice := newTestUser(t, repos, "alice")
	bob := newTestUser(t, repos, "bob")
	project := createProject(t, engine, alice)

	_, err := engine.AcceptInvite(ctx, project, bob.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotInvited))
}

func TestRequestFlow(t *testing.T) {
	repos := newTestRepos(t)
	engine, _ := newTestEngine(repos)
	ctx := context.Background()

	alice := newTestUser(t, repos, "alice")
	bob := newTestUser(t, repos, "bob")
	project := createProject(t, engine, alice)

	project, err := engine.RequestAccess(ctx, project, bob.ID)
	require.NoError(t, err)
	assert.True(t, project.Requests.Contains(bob.ID))

	project, err = engine.RequestAccess(ctx, project, bob.ID)
	require.NoError(t, err)
	assert.Len(t, project.Requests, 1)

	_, err = engine.RequestAccess(ctx, project, alice.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyMember))

	project, err = engine.AcceptRequest(ctx, project, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, project.Requests)

	isMember, err := repos.Projects.HasUser(ctx, project.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, isMember)
}

func TestAcceptRequestWithoutRequest(t *testing.T) {
	repos := newTestRepos(t)
	engine, _ := newTestEngine(repos)
	ctx := context.Background()

	alice := newTestUser(t, repos, "alice")
	bob := newTestUser(t, repos, "bob")
	project := createProject(t, engine, alice)

	_, err := engine.AcceptRequest(ctx, project, bob.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotRequested))
}

func TestAdmitClearsBothPendingLists(t *testing.T) {
	repos := newTestRepos(t)
	engine, _ := newTestEngine(repos)
	ctx := context.Background()

	alice := newTestUser(t, repos, "alice")
	bob := newTestUser(t, repos, "bob")
	project := createProject(t, engine, alice)

	project, err := engine.Invite(ctx, project, bob.ID)
	require.NoError(t, err)
	project, err = engine.RequestAccess(ctx, project, bob.ID)
	require.NoError(t, err)

	project, err = engine.AcceptRequest(ctx, project, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, project.Invited)
	assert.Empty(t, project.Requests)
}

func TestLeaveKeepsProjectWhileMembersRemain(t *testing.T) {
	repos := newTestRepos(t)
	engine, _ := newTestEngine(repos)
	ctx := context.Background()

	alice := newTestUser(t, repos, "alice")
	bob := newTestUser(t, repos, "bob")
	project := createProject(t, engine, alice)

	project, err := engine.Invite(ctx, project, bob.ID)
	require.NoError(t, err)
	project, err = engine.AcceptInvite(ctx, project, bob.ID)
	require.NoError(t, err)

	destroyed, err := engine.Leave(ctx, project, bob.ID)
	require.NoError(t, err)
	assert.False(t, destroyed)

	still, err := repos.Projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.NotNil(t, still)
}

func TestLastMemberLeavingDestroysProject(t *testing.T) {
	repos := newTestRepos(t)
	engine, _ := newTestEngine(repos)
	ctx := context.Background()

	alice := newTestUser(t, repos, "alice")
	project := createProject(t, engine, alice)

	// give the project some grid state so the cascade is observable
	scene := &model.Scene{ProjectID: project.ID, Bars: 4, Repeats: 1}
	require.NoError(t, repos.Scenes.Create(ctx, scene))
	track := &model.Track{ProjectID: project.ID, Name: "drums", Type: "audio/wav"}
	require.NoError(t, repos.Tracks.Create(ctx, track))
	require.NoError(t, repos.Clips.Create(ctx, &model.Clip{
		SceneID: scene.ID, TrackID: track.ID, Tempo: 120, TimeSignature: "4/4",
	}))

	destroyed, err := engine.Leave(ctx, project, alice.ID)
	require.NoError(t, err)
	assert.True(t, destroyed)

	gone, err := repos.Projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	remainingScene, err := repos.Scenes.GetByID(ctx, scene.ID)
	require.NoError(t, err)
	assert.Nil(t, remainingScene)

	remainingClip, err := repos.Clips.GetBySceneAndTrack(ctx, scene.ID, track.ID)
	require.NoError(t, err)
	assert.Nil(t, remainingClip)
}

type fakeGridLocks struct {
	released []string
}

func (f *fakeGridLocks) ReleaseProject(projectID string) {
	f.released = append(f.released, projectID)
}

func TestDestroyedProjectReleasesGridLock(t *testing.T) {
	repos := newTestRepos(t)
	grid := &fakeGridLocks{}
	engine := NewEngine(repos, &fakeAvatarStore{}, grid)
	alice := newTestUser(t, repos, "alice")
	bob := newTestUser(t, repos, "bob")
	project := createProject(t, engine, alice)

	project, err := engine.Invite(context.Background(), project, bob.ID)
	require.NoError(t, err)
	project, err = engine.AcceptInvite(context.Background(), project, bob.ID)
	require.NoError(t, err)

	// the project survives the first leave, so no lock is released
	destroyed, err := engine.Leave(context.Background(), project, bob.ID)
	require.NoError(t, err)
	require.False(t, destroyed)
	assert.Empty(t, grid.released)

	destroyed, err = engine.Leave(context.Background(), project, alice.ID)
	require.NoError(t, err)
	require.True(t, destroyed)
	assert.Equal(t, []string{project.ID}, grid.released)
}

func TestRemoveUser(t *testing.T) {
	repos := newTestRepos(t)
	engine, avatars := newTestEngine(repos)
	ctx := context.Background()

	alice := newTestUser(t, repos, "alice")
	bob := newTestUser(t, repos, "bob")
	alice.Avatar = "avatars/" + alice.ID
	require.NoError(t, repos.Users.Update(ctx, alice))

	shared := createProject(t, engine, alice)
	shared, err := engine.Invite(ctx, shared, bob.ID)
	require.NoError(t, err)
	shared, err = engine.AcceptInvite(ctx, shared, bob.ID)
	require.NoError(t, err)

	solo := createProject(t, engine, alice)

	require.NoError(t, repos.Messages.Create(ctx, &model.Message{
		ProjectID: shared.ID, UserID: alice.ID, Content: "hi",
	}))

	require.NoError(t, engine.RemoveUser(ctx, alice))

	// the shared project survives with bob, the solo project is destroyed
	still, err := repos.Projects.GetByID(ctx, shared.ID)
	require.NoError(t, err)
	require.NotNil(t, still)
	gone, err := repos.Projects.GetByID(ctx, solo.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	messages, err := repos.Messages.GetByProject(ctx, shared.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)

	deleted, err := repos.Users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, deleted)

	assert.Equal(t, []string{"avatars/" + alice.ID}, avatars.removed)
}

func TestDefaultAvatarIsNotRemoved(t *testing.T) {
	repos := newTestRepos(t)
	engine, avatars := newTestEngine(repos)
	ctx := context.Background()

	alice := newTestUser(t, repos, "alice")
	require.NoError(t, engine.RemoveUser(ctx, alice))
	assert.Empty(t, avatars.removed)
}
