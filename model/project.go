package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StringList is a JSON-encoded list of ids, used for the pending invite and
// access-request sets on a project. Stored as a JSON column so membership
// state rides along with the project row.
type StringList []string

// Scan implements sql.Scanner.
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*s = nil
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*s = nil
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Value implements driver.Valuer.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Contains reports whether id is present in the list.
func (s StringList) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Without returns a copy of the list with id removed.
func (s StringList) Without(id string) StringList {
	out := make(StringList, 0, len(s))
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Project is a shared musical workspace owned collectively by its members.
type Project struct {
	ID            string     `json:"projectId" gorm:"column:project_id;primaryKey;size:36"`
	Name          string     `json:"name" gorm:"size:100;not null"`
	Tempo         int        `json:"tempo" gorm:"not null"`
	TimeSignature string     `json:"timeSignature" gorm:"size:8;not null"`
	Description   string     `json:"description,omitempty" gorm:"type:text"`
	Invited       StringList `json:"invited" gorm:"type:json"`
	Requests      StringList `json:"requests" gorm:"type:json"`
	Users         []User     `json:"-" gorm:"many2many:users_projects;joinForeignKey:ProjectID;joinReferences:UserID"`
	Scenes        []Scene    `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	Tracks        []Track    `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	Messages      []Message  `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// TableName sets the table name.
func (Project) TableName() string {
	return "projects"
}

// BeforeCreate assigns a fresh id when none was supplied.
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
