package repository

import (
	"context"
	"errors"

	"gridloop/model"

	"gorm.io/gorm"
)

// ProjectRepository is the project data access interface, including the
// many-to-many membership association.
type ProjectRepository interface {
	Create(ctx context.Context, project *model.Project) error
	GetByID(ctx context.Context, id string) (*model.Project, error)
	Update(ctx context.Context, project *model.Project) error
	Destroy(ctx context.Context, id string) error

	GetScenes(ctx context.Context, projectID string) ([]model.Scene, error)
	GetTracks(ctx context.Context, projectID string) ([]model.Track, error)

	GetUsers(ctx context.Context, projectID string) ([]model.User, error)
	AddUser(ctx context.Context, projectID, userID string) error
	RemoveUser(ctx context.Context, projectID, userID string) error
	HasUser(ctx context.Context, projectID, userID string) (bool, error)
	CountUsers(ctx context.Context, projectID string) (int64, error)
}

type gormProjectRepository struct {
	db *gorm.DB
}

// NewGormProjectRepository creates a GORM project repository.
func NewGormProjectRepository(db *gorm.DB) ProjectRepository {
	return &gormProjectRepository{db: db}
}

func (r *gormProjectRepository) Create(ctx context.Context, project *model.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *gormProjectRepository) GetByID(ctx context.Context, id string) (*model.Project, error) {
	var project model.Project
	err := r.db.WithContext(ctx).Where("project_id = ?", id).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &project, nil
}

func (r *gormProjectRepository) Update(ctx context.Context, project *model.Project) error {
	return r.db.WithContext(ctx).Save(project).Error
}

// Destroy removes the project and everything under it in one transaction:
// clips of its scenes, scenes, tracks, messages, membership rows, then the
// project row.
func (r *gormProjectRepository) Destroy(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("scene_id IN (?)",
			tx.Model(&model.Scene{}).Select("scene_id").Where("project_id = ?", id),
		).Delete(&model.Clip{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&model.Scene{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&model.Track{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Table("users_projects").Where("project_id = ?", id).Delete(nil).Error; err != nil {
			return err
		}
		return tx.Where("project_id = ?", id).Delete(&model.Project{}).Error
	})
}

func (r *gormProjectRepository) GetScenes(ctx context.Context, projectID string) ([]model.Scene, error) {
	var scenes []model.Scene
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("grid_index ASC").
		Find(&scenes).Error
	return scenes, err
}

func (r *gormProjectRepository) GetTracks(ctx context.Context, projectID string) ([]model.Track, error) {
	var tracks []model.Track
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("grid_index ASC").
		Find(&tracks).Error
	return tracks, err
}

func (r *gormProjectRepository) GetUsers(ctx context.Context, projectID string) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Joins("JOIN users_projects ON users_projects.user_id = users.user_id").
		Where("users_projects.project_id = ?", projectID).
		Find(&users).Error
	return users, err
}

func (r *gormProjectRepository) AddUser(ctx context.Context, projectID, userID string) error {
	return r.db.WithContext(ctx).
		Model(&model.Project{ID: projectID}).
		Association("Users").
		Append(&model.User{ID: userID})
}

func (r *gormProjectRepository) RemoveUser(ctx context.Context, projectID, userID string) error {
	return r.db.WithContext(ctx).
		Table("users_projects").
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(nil).Error
}

func (r *gormProjectRepository) HasUser(ctx context.Context, projectID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("users_projects").
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *gormProjectRepository) CountUsers(ctx context.Context, projectID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("users_projects").
		Where("project_id = ?", projectID).
		Count(&count).Error
	return count, err
}
