package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LogEvent is an append-only audit record of a domain event.
type LogEvent struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Event     string    `gorm:"index" json:"event"`
	UserID    *string   `gorm:"type:uuid" json:"userId,omitempty"`
	Payload   []byte    `gorm:"type:jsonb" json:"payload,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

func (l *LogEvent) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
