package users

import (
	"time"

	"boxoffice/internal/shared/money"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleOrganizer Role = "ORGANIZER"
	RoleStaff     Role = "STAFF"
)

// Status gates organizer accounts. Admins move organizers between states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

type User struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	FirstName string    `json:"first_name" gorm:"not null"`
	LastName  string    `json:"last_name" gorm:"not null"`
	Password  string    `json:"-" gorm:"not null"` // hide in json
	Role      Role      `json:"role" gorm:"type:varchar(20);not null;default:'ORGANIZER'"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Status    Status    `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE';index"`

	// Organizer fee plan; nil falls back to the platform default
	FeePercentBps *int64 `json:"fee_percent_bps,omitempty"`
	FeeFixedMinor *int64 `json:"fee_fixed_minor,omitempty"`
	// per complimentary ticket past the free allowance
	ComplimentaryFeeMinor *int64 `json:"complimentary_fee_minor,omitempty"`

	// Complimentary tickets issued across all of the organizer's events
	ComplimentaryUsed int `json:"complimentary_used" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// FeePlan returns the organizer's plan, filling unset parts from def.
func (u *User) FeePlan(def money.FeePlan) money.FeePlan {
	plan := def
	if u.FeePercentBps != nil {
		plan.PercentBps = *u.FeePercentBps
	}
	if u.FeeFixedMinor != nil {
		plan.FixedMinor = *u.FeeFixedMinor
	}
	return plan
}

// ComplimentaryFee returns the organizer's charge per extra complimentary ticket.
func (u *User) ComplimentaryFee(def int64) int64 {
	if u.ComplimentaryFeeMinor != nil {
		return *u.ComplimentaryFeeMinor
	}
	return def
}

func IsValidStatus(status string) bool {
	switch Status(status) {
	case StatusPending, StatusActive, StatusSuspended:
		return true
	}
	return false
}

func IsValidRole(role string) bool {
	switch Role(role) {
	case RoleAdmin, RoleOrganizer, RoleStaff:
		return true
	default:
		return false
	}
}
