package repository

import (
	"context"
	"errors"

	"gridloop/model"

	"gorm.io/gorm"
)

// MessageRepository is the message data access interface.
type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	GetByProject(ctx context.Context, projectID string, limit, offset int) ([]model.Message, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
}

type gormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a GORM message repository.
func NewGormMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

func (r *gormMessageRepository) Create(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *gormMessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).Where("message_id = ?", id).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *gormMessageRepository) GetByProject(ctx context.Context, projectID string, limit, offset int) ([]model.Message, error) {
	var messages []model.Message
	q := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&messages).Error
	return messages, err
}

func (r *gormMessageRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("message_id = ?", id).Delete(&model.Message{}).Error
}

func (r *gormMessageRepository) DeleteByUser(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.Message{}).Error
}
