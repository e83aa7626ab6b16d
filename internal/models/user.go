package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleStudent = "STUDENT"
	RoleTeacher = "TEACHER"
	RoleAdmin   = "ADMIN"
)

type User struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID   *string    `gorm:"uniqueIndex" json:"externalId,omitempty"`
	Email        string     `gorm:"uniqueIndex" json:"email"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	Password     string     `json:"-"`
	ConsentGiven bool       `json:"consentGiven"`
	ConsentDate  *time.Time `json:"consentDate,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func ValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}
