package repository

import (
	"context"
	"errors"

	"gridloop/model"

	"gorm.io/gorm"
)

// TrackRepository is the track data access interface.
type TrackRepository interface {
	Create(ctx context.Context, track *model.Track) error
	GetByID(ctx context.Context, id string) (*model.Track, error)
	GetByIDWithClips(ctx context.Context, id string) (*model.Track, error)
	Update(ctx context.Context, track *model.Track) error
	UpdateIndex(ctx context.Context, id string, index int) error
	Delete(ctx context.Context, id string) error
	GetClips(ctx context.Context, trackID string) ([]model.Clip, error)
}

type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository creates a GORM track repository.
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

func (r *gormTrackRepository) Create(ctx context.Context, track *model.Track) error {
	return r.db.WithContext(ctx).Create(track).Error
}

func (r *gormTrackRepository) GetByID(ctx context.Context, id string) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).Where("track_id = ?", id).First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

func (r *gormTrackRepository) GetByIDWithClips(ctx context.Context, id string) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).Preload("Clips").Where("track_id = ?", id).First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

func (r *gormTrackRepository) Update(ctx context.Context, track *model.Track) error {
	return r.db.WithContext(ctx).Save(track).Error
}

func (r *gormTrackRepository) UpdateIndex(ctx context.Context, id string, index int) error {
	return r.db.WithContext(ctx).Model(&model.Track{}).
		Where("track_id = ?", id).
		Update("grid_index", index).Error
}

func (r *gormTrackRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("track_id = ?", id).Delete(&model.Track{}).Error
}

func (r *gormTrackRepository) GetClips(ctx context.Context, trackID string) ([]model.Clip, error) {
	var clips []model.Clip
	err := r.db.WithContext(ctx).Where("track_id = ?", trackID).Find(&clips).Error
	return clips, err
}
