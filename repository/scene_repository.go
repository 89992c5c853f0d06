package repository

import (
	"context"
	"errors"

	"gridloop/model"

	"gorm.io/gorm"
)

// SceneRepository is the scene data access interface.
type SceneRepository interface {
	Create(ctx context.Context, scene *model.Scene) error
	GetByID(ctx context.Context, id string) (*model.Scene, error)
	GetByIDWithClips(ctx context.Context, id string) (*model.Scene, error)
	Update(ctx context.Context, scene *model.Scene) error
	UpdateIndex(ctx context.Context, id string, index int) error
	Delete(ctx context.Context, id string) error
	GetClips(ctx context.Context, sceneID string) ([]model.Clip, error)
}

type gormSceneRepository struct {
	db *gorm.DB
}

// NewGormSceneRepository creates a GORM scene repository.
func NewGormSceneRepository(db *gorm.DB) SceneRepository {
	return &gormSceneRepository{db: db}
}

func (r *gormSceneRepository) Create(ctx context.Context, scene *model.Scene) error {
	return r.db.WithContext(ctx).Create(scene).Error
}

func (r *gormSceneRepository) GetByID(ctx context.Context, id string) (*model.Scene, error) {
	var scene model.Scene
	err := r.db.WithContext(ctx).Where("scene_id = ?", id).First(&scene).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &scene, nil
}

func (r *gormSceneRepository) GetByIDWithClips(ctx context.Context, id string) (*model.Scene, error) {
	var scene model.Scene
	err := r.db.WithContext(ctx).Preload("Clips").Where("scene_id = ?", id).First(&scene).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &scene, nil
}

func (r *gormSceneRepository) Update(ctx context.Context, scene *model.Scene) error {
	return r.db.WithContext(ctx).Save(scene).Error
}

func (r *gormSceneRepository) UpdateIndex(ctx context.Context, id string, index int) error {
	return r.db.WithContext(ctx).Model(&model.Scene{}).
		Where("scene_id = ?", id).
		Update("grid_index", index).Error
}

func (r *gormSceneRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("scene_id = ?", id).Delete(&model.Scene{}).Error
}

func (r *gormSceneRepository) GetClips(ctx context.Context, sceneID string) ([]model.Clip, error) {
	var clips []model.Clip
	err := r.db.WithContext(ctx).Where("scene_id = ?", sceneID).Find(&clips).Error
	return clips, err
}
