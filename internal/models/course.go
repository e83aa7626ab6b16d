package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Course struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	TeacherID string    `gorm:"type:uuid;index" json:"teacherId"`
	Title     string    `json:"title"`
	JoinCode  string    `gorm:"uniqueIndex" json:"joinCode"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c *Course) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
