package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a chat line posted by a member to a project.
type Message struct {
	ID        string    `json:"messageId" gorm:"column:message_id;primaryKey;size:36"`
	ProjectID string    `json:"projectId" gorm:"size:36;index;not null"`
	UserID    string    `json:"userId" gorm:"size:36;index;not null"`
	Content   string    `json:"content" gorm:"size:150;not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName sets the table name.
func (Message) TableName() string {
	return "messages"
}

// BeforeCreate assigns a fresh id when none was supplied.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
