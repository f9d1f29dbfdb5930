package models

import (
	"time"
)

const (
	TournamentStatusDraft     = "draft"
	TournamentStatusScheduled = "scheduled"
	TournamentStatusPublished = "published"
	TournamentStatusCompleted = "completed"
)

// Tournament represents an art competition hosted on the portal
type Tournament struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	Title           string     `json:"title" gorm:"not null"`
	Description     string     `json:"description"`
	Rules           string     `json:"rules"`
	Genre           string     `json:"genre"`
	EntryFee        float64    `json:"entry_fee" gorm:"default:0"`
	MainPhotoURL    string     `json:"main_photo_url"`
	Status          string     `json:"status" gorm:"default:'draft'"`
	StartTime       time.Time  `json:"start_time" gorm:"not null"`
	EndTime         time.Time  `json:"end_time"`
	PublishedAt     *time.Time `json:"published_at,omitempty" gorm:"index"`
	PublishSchedule *time.Time `json:"publish_schedule,omitempty"`
	SponsorName     string     `json:"sponsor_name"`
	IsFeatured      bool       `json:"is_featured" gorm:"default:false"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Photos      []TournamentPhoto `json:"photos,omitempty" gorm:"foreignKey:TournamentID"`
	Submissions []Submission      `json:"submissions,omitempty" gorm:"foreignKey:TournamentID"`

	// Calculated fields (not stored in DB)
	SubmissionsCount int64 `json:"submissions_count,omitempty" gorm:"-"`
}

type TournamentPhoto struct {
	ID           string `json:"id" gorm:"primaryKey"`
	TournamentID string `json:"tournament_id" gorm:"not null;index"`
	URL          string `json:"url"`
	SortOrder    int    `json:"sort_order" gorm:"column:sort_order;default:0"`
}

// MiniTournament represents a brief summary of a tournament for listing
type MiniTournament struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	Genre        string     `json:"genre,omitempty"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      time.Time  `json:"end_time"`
	MainPhotoURL string     `json:"main_photo_url"`
	EntryFee     float64    `json:"entry_fee"`
	SponsorName  string     `json:"sponsor_name"`
	IsFeatured   bool       `json:"is_featured"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
