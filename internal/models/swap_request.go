package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SwapRequest is one ledger row per student-initiated re-swap, counted
// against the session's MaxSwapRequests quota.
type SwapRequest struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID string    `gorm:"type:uuid;index" json:"studentId"`
	SessionID string    `gorm:"type:uuid;index" json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *SwapRequest) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
