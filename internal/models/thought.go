package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Thought struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	PromptUseID string    `gorm:"type:uuid;index" json:"promptUseId"`
	AuthorID    string    `gorm:"type:uuid;index" json:"authorId"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (t *Thought) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
