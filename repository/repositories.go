package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories bundles every data-access interface bound to one db handle,
// so multi-entity mutations can run inside a single transaction.
type Repositories struct {
	DB       *gorm.DB
	Users    UserRepository
	Projects ProjectRepository
	Scenes   SceneRepository
	Tracks   TrackRepository
	Clips    ClipRepository
	Messages MessageRepository
}

// New creates the repository bundle.
func New(db *gorm.DB) *Repositories {
	return &Repositories{
		DB:       db,
		Users:    NewGormUserRepository(db),
		Projects: NewGormProjectRepository(db),
		Scenes:   NewGormSceneRepository(db),
		Tracks:   NewGormTrackRepository(db),
		Clips:    NewGormClipRepository(db),
		Messages: NewGormMessageRepository(db),
	}
}

// Transact runs fn with a repository bundle bound to one transaction.
// Any error from fn rolls the whole transaction back.
func (r *Repositories) Transact(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}
