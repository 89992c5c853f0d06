package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultAvatar is the object key served when a user never uploaded one.
// It is never deleted from the blob store.
const DefaultAvatar = "avatars/default-avatar.jpg"

// User represents an account. Membership in projects is the many-to-many
// users_projects association.
type User struct {
	ID           string    `json:"userId" gorm:"column:user_id;primaryKey;size:36"`
	Username     string    `json:"username" gorm:"size:18;not null;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"`
	Avatar       string    `json:"avatar,omitempty" gorm:"size:255"`
	AvatarType   string    `json:"avatarType,omitempty" gorm:"size:32"`
	Bio          string    `json:"bio,omitempty" gorm:"type:text"`
	Projects     []Project `json:"-" gorm:"many2many:users_projects;joinForeignKey:UserID;joinReferences:ProjectID"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName sets the table name.
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns a fresh id and the default avatar when unset.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Avatar == "" {
		u.Avatar = DefaultAvatar
		u.AvatarType = "image/jpeg"
	}
	return nil
}

// HasDefaultAvatar reports whether the user still has the stock avatar.
func (u *User) HasDefaultAvatar() bool {
	return u.Avatar == "" || u.Avatar == DefaultAvatar
}
