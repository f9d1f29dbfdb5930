package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentMirror mirrors entry-fee payment data from the payments service.
// Table name: payment_mirrors
type PaymentMirror struct {
	ID           string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	PaymentID    string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"payment_id"` // primary lookup key
	UserID       string    `gorm:"type:uuid;not null;index" json:"user_id"`                  // external user ID
	TournamentID string    `gorm:"type:uuid;index" json:"tournament_id"`
	PaidAmount   int64     `gorm:"not null" json:"paid_amount"` // minor units (cents)
	Currency     string    `gorm:"type:varchar(8);not null" json:"currency"`
	Status       string    `gorm:"type:varchar(16);not null;index" json:"status"` // paid, pending, failed, refunded
	PaidAt       time.Time `json:"paid_at"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
