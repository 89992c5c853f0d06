package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Scene is a horizontal time-slot in the project grid. Tempo and time
// signature are nullable; a nil value inherits the project's.
type Scene struct {
	ID            string    `json:"sceneId" gorm:"column:scene_id;primaryKey;size:36"`
	ProjectID     string    `json:"projectId" gorm:"size:36;index;not null"`
	Name          string    `json:"name,omitempty" gorm:"size:100"`
	Tempo         *int      `json:"tempo,omitempty"`
	TimeSignature *string   `json:"timeSignature,omitempty" gorm:"size:8"`
	Bars          int       `json:"bars" gorm:"not null;default:4"`
	Repeats       int       `json:"repeats" gorm:"not null;default:1"`
	Index         int       `json:"index" gorm:"column:grid_index;not null"`
	Clips         []Clip    `json:"clips,omitempty" gorm:"foreignKey:SceneID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TableName sets the table name.
func (Scene) TableName() string {
	return "scenes"
}

// BeforeCreate assigns a fresh id when none was supplied.
func (s *Scene) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Field exposes the keys the ordering engine works with.
func (s Scene) Field(key string) (interface{}, bool) {
	switch key {
	case "index":
		return s.Index, true
	case "id":
		return s.ID, true
	}
	return nil, false
}
