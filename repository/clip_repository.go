package repository

import (
	"context"
	"errors"

	"gridloop/model"

	"gorm.io/gorm"
)

// ClipRepository is the clip data access interface.
type ClipRepository interface {
	Create(ctx context.Context, clip *model.Clip) error
	CreateBatch(ctx context.Context, clips []model.Clip) error
	GetByID(ctx context.Context, id string) (*model.Clip, error)
	GetBySceneAndTrack(ctx context.Context, sceneID, trackID string) (*model.Clip, error)
	Update(ctx context.Context, clip *model.Clip) error
	DeleteByScene(ctx context.Context, sceneID string) error
	DeleteByTrack(ctx context.Context, trackID string) error
	CountByProject(ctx context.Context, projectID string) (int64, error)
}

type gormClipRepository struct {
	db *gorm.DB
}

// NewGormClipRepository creates a GORM clip repository.
func NewGormClipRepository(db *gorm.DB) ClipRepository {
	return &gormClipRepository{db: db}
}

func (r *gormClipRepository) Create(ctx context.Context, clip *model.Clip) error {
	return r.db.WithContext(ctx).Create(clip).Error
}

func (r *gormClipRepository) CreateBatch(ctx context.Context, clips []model.Clip) error {
	if len(clips) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&clips).Error
}

func (r *gormClipRepository) GetByID(ctx context.Context, id string) (*model.Clip, error) {
	var clip model.Clip
	err := r.db.WithContext(ctx).Where("clip_id = ?", id).First(&clip).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &clip, nil
}

func (r *gormClipRepository) GetBySceneAndTrack(ctx context.Context, sceneID, trackID string) (*model.Clip, error) {
	var clip model.Clip
	err := r.db.WithContext(ctx).
		Where("scene_id = ? AND track_id = ?", sceneID, trackID).
		First(&clip).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &clip, nil
}

func (r *gormClipRepository) Update(ctx context.Context, clip *model.Clip) error {
	return r.db.WithContext(ctx).Save(clip).Error
}

func (r *gormClipRepository) DeleteByScene(ctx context.Context, sceneID string) error {
	return r.db.WithContext(ctx).Where("scene_id = ?", sceneID).Delete(&model.Clip{}).Error
}

func (r *gormClipRepository) DeleteByTrack(ctx context.Context, trackID string) error {
	return r.db.WithContext(ctx).Where("track_id = ?", trackID).Delete(&model.Clip{}).Error
}

func (r *gormClipRepository) CountByProject(ctx context.Context, projectID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Clip{}).
		Joins("JOIN scenes ON scenes.scene_id = clips.scene_id").
		Where("scenes.project_id = ?", projectID).
		Count(&count).Error
	return count, err
}
