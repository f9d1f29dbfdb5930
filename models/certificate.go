package models

import (
	"time"
)

// Certificate records an issued certificate for a reviewed submission.
// SubmissionID carries the unique index: at most one certificate can ever
// exist per submission, no matter how many times generation runs.
type Certificate struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	SubmissionID    string    `json:"submission_id" gorm:"not null;uniqueIndex"`
	TournamentID    string    `json:"tournament_id" gorm:"index"`
	CertificateURL  string    `json:"certificate_url"`
	RecipientName   string    `json:"recipient_name"`
	RecipientUserID string    `json:"recipient_user_id" gorm:"index"`
	Score           int64     `json:"score"`
	Rank            int       `json:"rank"`
	TournamentTitle string    `json:"tournament_title"`
	EmailSent       bool      `json:"email_sent"`
	EmailError      string    `json:"email_error,omitempty"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Per-item outcome of a generation batch
const (
	CertificateStatusCreated = "created"
	CertificateStatusExists  = "exists"
	CertificateStatusFailed  = "failed"
)

// CertificateResult is the outcome for one submission in a generation batch.
// Never persisted; consumed only by the batch response.
type CertificateResult struct {
	SubmissionID   string `json:"submission_id"`
	Status         string `json:"status"` // created | exists | failed
	CertificateID  string `json:"certificate_id,omitempty"`
	CertificateURL string `json:"certificate_url,omitempty"`
	EmailSent      bool   `json:"email_sent"`
	EmailError     string `json:"email_error,omitempty"`
	Message        string `json:"message,omitempty"` // populated on failure
}

// GenerateCertificatesResponse aggregates every per-submission result of one
// batch invocation. Results preserve the input order and no item is dropped:
// GeneratedCount + ExistingCount + FailedCount always equals len(Results).
type GenerateCertificatesResponse struct {
	Success          bool                `json:"success"`
	GeneratedCount   int                 `json:"generated_count"`
	ExistingCount    int                 `json:"existing_count"`
	FailedCount      int                 `json:"failed_count"`
	EmailSentCount   int                 `json:"email_sent_count"`
	EmailFailedCount int                 `json:"email_failed_count"`
	Results          []CertificateResult `json:"results"`
	Message          string              `json:"message"`
}
