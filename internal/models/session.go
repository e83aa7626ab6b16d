package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SessionActive    = "ACTIVE"
	SessionCompleted = "COMPLETED"
)

type Session struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID        string    `gorm:"type:uuid;index" json:"courseId"`
	Status          string    `gorm:"index" json:"status"`
	MaxSwapRequests int       `json:"maxSwapRequests"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"-"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
