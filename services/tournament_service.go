// services/tournament_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"competition-portal-system/models"
	"competition-portal-system/utils"
)

type TournamentService struct {
	DB *gorm.DB
}

func NewTournamentService(db *gorm.DB) *TournamentService {
	return &TournamentService{DB: db}
}

func (s *TournamentService) CreateTournament(c *fiber.Ctx) error {
	// --- Parse form values ---
	title := c.FormValue("title")
	description := c.FormValue("description")
	rules := c.FormValue("rules")
	genre := c.FormValue("genre")
	entryFeeStr := c.FormValue("entry_fee")
	startTimeStr := c.FormValue("start_time")
	endTimeStr := c.FormValue("end_time")
	sponsorName := c.FormValue("sponsor_name")
	publishScheduleStr := c.FormValue("publish_schedule") // Expected format: RFC3339

	// --- Validation ---
	if title == "" || startTimeStr == "" {
		return c.Status(400).JSON(fiber.Map{"error": "title and start_time are required"})
	}

	entryFee := 0.0
	if entryFeeStr != "" {
		if f, err := strconv.ParseFloat(entryFeeStr, 64); err == nil && f >= 0 {
			entryFee = f
		} else {
			return c.Status(400).JSON(fiber.Map{"error": "entry_fee must be a non-negative number"})
		}
	}

	startTime, err := time.Parse(time.RFC3339, startTimeStr)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid start_time (use RFC3339)"})
	}

	var endTime time.Time
	if endTimeStr != "" {
		endTime, err = time.Parse(time.RFC3339, endTimeStr)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid end_time (use RFC3339)"})
		}
	}

	var publishSchedule *time.Time
	if publishScheduleStr != "" {
		scheduledTime, err := time.Parse(time.RFC3339, publishScheduleStr)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid publish_schedule (use RFC3339)"})
		}
		publishSchedule = &scheduledTime
	}

	// --- Handle main photo → R2 ---
	var mainPhotoURL string
	if mainPhoto, err := c.FormFile("main_photo"); err == nil && mainPhoto.Size > 0 {
		ext := filepath.Ext(mainPhoto.Filename)
		if ext == "" {
			ext = ".jpg"
		}
		key := "tournaments/main/" + uuid.NewString() + ext
		url, err := utils.UploadFileToR2(mainPhoto, key)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to upload main photo"})
		}
		mainPhotoURL = url
	}

	status := models.TournamentStatusDraft
	if publishSchedule != nil {
		status = models.TournamentStatusScheduled
	}

	tournament := &models.Tournament{
		ID:              uuid.NewString(),
		Title:           title,
		Description:     description,
		Rules:           rules,
		Genre:           genre,
		EntryFee:        entryFee,
		MainPhotoURL:    mainPhotoURL,
		StartTime:       startTime,
		EndTime:         endTime,
		SponsorName:     sponsorName,
		PublishSchedule: publishSchedule,
		Status:          status,
	}

	if err := s.DB.Create(tournament).Error; err != nil {
		log.Printf("DB Error creating tournament: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "DB insert failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(tournament)
}

// GetAllTournaments returns the admin view including drafts.
func (s *TournamentService) GetAllTournaments(c *fiber.Ctx) error {
	var tournaments []models.Tournament
	if err := s.DB.Preload("Photos").Order("created_at DESC").Find(&tournaments).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	for i := range tournaments {
		s.DB.Model(&models.Submission{}).
			Where("tournament_id = ?", tournaments[i].ID).
			Count(&tournaments[i].SubmissionsCount)
	}
	return c.JSON(tournaments)
}

// GetPublishedTournamentsMini returns the public listing.
func (s *TournamentService) GetPublishedTournamentsMini(c *fiber.Ctx) error {
	var tournaments []models.Tournament
	if err := s.DB.
		Where("status = ?", models.TournamentStatusPublished).
		Order("is_featured DESC, published_at DESC").
		Find(&tournaments).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	minis := make([]models.MiniTournament, len(tournaments))
	for i, t := range tournaments {
		minis[i] = models.MiniTournament{
			ID:           t.ID,
			Title:        t.Title,
			Status:       t.Status,
			Genre:        t.Genre,
			StartTime:    t.StartTime,
			EndTime:      t.EndTime,
			MainPhotoURL: t.MainPhotoURL,
			EntryFee:     t.EntryFee,
			SponsorName:  t.SponsorName,
			IsFeatured:   t.IsFeatured,
			PublishedAt:  t.PublishedAt,
			CreatedAt:    t.CreatedAt,
		}
	}
	return c.JSON(minis)
}

func (s *TournamentService) GetTournamentByID(c *fiber.Ctx) error {
	id := c.Params("id")
	var tournament models.Tournament
	if err := s.DB.Preload("Photos").First(&tournament, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	s.DB.Model(&models.Submission{}).
		Where("tournament_id = ?", tournament.ID).
		Count(&tournament.SubmissionsCount)
	return c.JSON(tournament)
}

// PublishNow handles POST /tournaments/:id/publish/now
func (s *TournamentService) PublishNow(c *fiber.Ctx) error {
	id := c.Params("id")
	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	now := time.Now().UTC()
	tournament.Status = models.TournamentStatusPublished
	tournament.PublishedAt = &now
	tournament.PublishSchedule = nil
	if err := s.DB.Save(&tournament).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to publish tournament"})
	}
	log.Printf("✅ Published tournament: %s", tournament.Title)
	return c.JSON(tournament)
}

// SchedulePublish handles POST /tournaments/:id/publish/schedule
func (s *TournamentService) SchedulePublish(c *fiber.Ctx) error {
	id := c.Params("id")
	var req struct {
		PublishAt time.Time `json:"publish_at"`
	}
	if err := c.BodyParser(&req); err != nil || req.PublishAt.IsZero() {
		return c.Status(400).JSON(fiber.Map{"error": "publish_at (RFC3339) is required"})
	}
	if req.PublishAt.Before(time.Now()) {
		return c.Status(400).JSON(fiber.Map{"error": "publish_at must be in the future"})
	}

	res := s.DB.Model(&models.Tournament{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           models.TournamentStatusScheduled,
			"publish_schedule": req.PublishAt,
		})
	if res.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to schedule publish"})
	}
	if res.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
	}
	return c.JSON(fiber.Map{"status": "scheduled", "publish_at": req.PublishAt})
}

// SubmitArtwork handles POST /tournaments/:id/submissions
func (s *TournamentService) SubmitArtwork(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	userID := c.Locals("user_id").(string)

	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if tournament.Status != models.TournamentStatusPublished {
		return c.Status(400).JSON(fiber.Map{"error": "tournament is not open for submissions"})
	}

	applicantName := c.FormValue("applicant_name")

	artwork, err := c.FormFile("artwork")
	if err != nil || artwork.Size == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "artwork file is required"})
	}
	ext := filepath.Ext(artwork.Filename)
	if ext == "" {
		ext = ".jpg"
	}
	key := "submissions/" + tournamentID + "/" + uuid.NewString() + ext
	artworkURL, err := utils.UploadFileToR2(artwork, key)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to upload artwork"})
	}

	submission := &models.Submission{
		ID:              uuid.NewString(),
		TournamentID:    tournamentID,
		ApplicantUserID: userID,
		ApplicantName:   applicantName,
		ArtworkURL:      artworkURL,
		Status:          models.SubmissionStatusPending,
	}
	if err := s.DB.Create(submission).Error; err != nil {
		log.Printf("DB Error creating submission: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "DB insert failed"})
	}
	return c.Status(fiber.StatusCreated).JSON(submission)
}

// GetSubmissions handles GET /tournaments/:id/submissions (admin review view)
func (s *TournamentService) GetSubmissions(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	status := c.Query("status", "")

	db := s.DB.Where("tournament_id = ?", tournamentID)
	if status != "" {
		db = db.Where("status = ?", status)
	}

	var submissions []models.Submission
	if err := db.Order("created_at ASC").Find(&submissions).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(submissions)
}

// ReviewSubmission handles PATCH /submissions/:id/review — approve with
// score and rank, or reject. Only approved submissions are eligible for
// certificate generation.
func (s *TournamentService) ReviewSubmission(c *fiber.Ctx) error {
	id := c.Params("id")
	var req struct {
		Status string `json:"status"` // approved | rejected
		Score  *int64 `json:"score"`
		Rank   *int   `json:"rank"`
		Note   string `json:"note"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.Status != models.SubmissionStatusApproved && req.Status != models.SubmissionStatusRejected {
		return c.Status(400).JSON(fiber.Map{"error": "status must be approved or rejected"})
	}
	if req.Status == models.SubmissionStatusApproved && (req.Score == nil || req.Rank == nil) {
		return c.Status(400).JSON(fiber.Map{"error": "score and rank are required to approve"})
	}

	var submission models.Submission
	if err := s.DB.First(&submission, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "submission not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	now := time.Now().UTC()
	submission.Status = req.Status
	submission.ReviewNote = req.Note
	submission.ReviewedAt = &now
	if req.Score != nil {
		submission.Score = *req.Score
	}
	if req.Rank != nil {
		submission.Rank = *req.Rank
	}

	if err := s.DB.Save(&submission).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to save review"})
	}
	log.Printf("✅ Submission %s reviewed: %s", submission.ID, submission.Status)
	return c.JSON(submission)
}

// DeleteTournament handles DELETE /tournaments/:id
func (s *TournamentService) DeleteTournament(c *fiber.Ctx) error {
	id := c.Params("id")
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tournament_id = ?", id).Delete(&models.TournamentPhoto{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Tournament{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": fmt.Sprintf("delete failed: %v", err)})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
