package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PromptText  = "TEXT"
	PromptMC    = "MC"
	PromptScale = "SCALE"
)

// Options is an ordered list of answer choices, stored as a JSON column.
type Options []string

func (o Options) Value() (driver.Value, error) {
	if o == nil {
		return "[]", nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (o *Options) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*o = nil
		return nil
	case []byte:
		return json.Unmarshal(v, o)
	case string:
		return json.Unmarshal([]byte(v), o)
	}
	return errors.New("models: unsupported options column type")
}

// SavedPrompt is a reusable prompt template owned by a teacher.
type SavedPrompt struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	TeacherID string    `gorm:"type:uuid;index" json:"teacherId"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Options   Options   `gorm:"type:text" json:"options"`
	CreatedAt time.Time `json:"createdAt"`
}

func (p *SavedPrompt) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// PromptUse is the act of issuing a prompt inside a session. Immutable once
// created; a session's active prompt is its latest PromptUse.
type PromptUse struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID string    `gorm:"type:uuid;index" json:"sessionId"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Options   Options   `gorm:"type:text" json:"options"`
	CreatedAt time.Time `json:"createdAt"`
}

func (p *PromptUse) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func ValidPromptType(t string) bool {
	switch t {
	case PromptText, PromptMC, PromptScale:
		return true
	}
	return false
}
