package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Clip is the content unit at a scene x track intersection. Content is the
// blob store key of the audio/MIDI payload, nil while the clip is empty.
// Every (scene, track) pair of a project has exactly one clip.
type Clip struct {
	ID            string    `json:"clipId" gorm:"column:clip_id;primaryKey;size:36"`
	SceneID       string    `json:"sceneId" gorm:"size:36;not null;uniqueIndex:uq_scene_track"`
	TrackID       string    `json:"trackId" gorm:"size:36;not null;uniqueIndex:uq_scene_track;index"`
	Name          string    `json:"name,omitempty" gorm:"size:100"`
	Tempo         int       `json:"tempo" gorm:"not null"`
	TimeSignature string    `json:"timeSignature" gorm:"size:8;not null"`
	Content       *string   `json:"content,omitempty" gorm:"size:255"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TableName sets the table name.
func (Clip) TableName() string {
	return "clips"
}

// BeforeCreate assigns a fresh id when none was supplied.
func (c *Clip) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
