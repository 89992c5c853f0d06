package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SettingsMap is an opaque key-value bag interpreted by the client, never by
// the server. Stored as a JSON column.
type SettingsMap map[string]interface{}

// Scan implements sql.Scanner.
func (m *SettingsMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*m = nil
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*m = nil
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// Value implements driver.Valuer.
func (m SettingsMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Track is a vertical instrument lane in the project grid. Type is the
// mimetype every clip on this track must carry.
type Track struct {
	ID        string      `json:"trackId" gorm:"column:track_id;primaryKey;size:36"`
	ProjectID string      `json:"projectId" gorm:"size:36;index;not null"`
	Name      string      `json:"name" gorm:"size:100;not null"`
	Settings  SettingsMap `json:"settings" gorm:"type:json"`
	Type      string      `json:"type" gorm:"size:32;not null"`
	Index     int         `json:"index" gorm:"column:grid_index;not null"`
	Clips     []Clip      `json:"clips,omitempty" gorm:"foreignKey:TrackID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// TableName sets the table name.
func (Track) TableName() string {
	return "tracks"
}

// BeforeCreate assigns a fresh id when none was supplied.
func (t *Track) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Field exposes the keys the ordering engine works with.
func (t Track) Field(key string) (interface{}, bool) {
	switch key {
	case "index":
		return t.Index, true
	case "id":
		return t.ID, true
	}
	return nil, false
}
