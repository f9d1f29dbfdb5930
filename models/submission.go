package models

import (
	"time"
)

const (
	SubmissionStatusPending  = "pending"
	SubmissionStatusApproved = "approved"
	SubmissionStatusRejected = "rejected"
)

// Submission is a single artwork entry into a tournament.
// Score and Rank are assigned during review; a submission must be approved
// before a certificate can be generated for it.
type Submission struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	TournamentID    string     `json:"tournament_id" gorm:"not null;index"`
	ApplicantUserID string     `json:"applicant_user_id" gorm:"not null;index"` // external profile service ID
	ApplicantName   string     `json:"applicant_name"`
	ArtworkURL      string     `json:"artwork_url"`
	Score           int64      `json:"score" gorm:"default:0"`
	Rank            int        `json:"rank" gorm:"default:0"` // 0 = not ranked
	Status          string     `json:"status" gorm:"default:'pending';index"`
	ReviewNote      string     `json:"review_note,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Tournament Tournament `json:"tournament,omitempty" gorm:"foreignKey:TournamentID"`
}
