// services/certificate_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"competition-portal-system/models"
)

// ErrEmptyBatch is the only batch-level fatal condition: an unusable input
// list fails fast before any per-submission work begins.
var ErrEmptyBatch = errors.New("submission_ids must be a non-empty list of identifiers")

// Collaborator contracts, substitutable in tests.
type artifactRenderer interface {
	Render(ctx context.Context, data CertificateData) (string, error)
}

type certificateNotifier interface {
	Send(ctx context.Context, to, recipientName, tournamentTitle, certificateID string) bool
}

type certificateStore interface {
	FindBySubmission(ctx context.Context, submissionID string) (models.Certificate, bool, error)
	Create(ctx context.Context, cert *models.Certificate) error
	MarkEmailOutcome(ctx context.Context, certificateID string, sent bool, emailErr string) error
}

type submissionSource interface {
	LoadSubmission(ctx context.Context, submissionID string) (models.Submission, error)
	Recipient(ctx context.Context, sub *models.Submission) (email, name string, err error)
}

// SubmissionSource reads submission snapshots and resolves notification
// recipients from the synced portal user table.
type SubmissionSource struct {
	DB *gorm.DB
}

func (s *SubmissionSource) LoadSubmission(ctx context.Context, submissionID string) (models.Submission, error) {
	var sub models.Submission
	err := s.DB.WithContext(ctx).Preload("Tournament").First(&sub, "id = ?", submissionID).Error
	return sub, err
}

// Recipient resolves the notification address and display name from the
// portal user snapshot, falling back to the submission's own fields. A user
// without a snapshot yields an empty address; a failing lookup is returned
// as an error so callers can tell a store fault from a missing email.
func (s *SubmissionSource) Recipient(ctx context.Context, sub *models.Submission) (email, name string, err error) {
	name = sub.ApplicantName
	var user models.PortalUser
	err = s.DB.WithContext(ctx).Where("external_user_id = ?", sub.ApplicantUserID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", name, nil
		}
		return "", name, fmt.Errorf("portal user lookup failed for %s: %w", sub.ApplicantUserID, err)
	}
	if name == "" {
		name = user.DisplayName()
	}
	return user.Email, name, nil
}

const (
	defaultCertificateWorkers = 4
	defaultStepTimeout        = 30 * time.Second
)

// CertificateService drives approved submissions through
// generate → persist → notify and folds the per-submission outcomes into a
// single batch report. Submissions are processed independently; the store's
// atomic create-if-absent is the only shared mutation point, so no ordering
// between items is required for correctness.
type CertificateService struct {
	DB          *gorm.DB
	Store       certificateStore
	Submissions submissionSource
	Renderer    artifactRenderer
	Mailer      certificateNotifier

	// NotifyExisting controls whether submissions whose certificate already
	// exists are (re)notified, or only newly created ones. Callers can
	// override it per batch.
	NotifyExisting bool

	Workers     int
	StepTimeout time.Duration
}

func NewCertificateService(db *gorm.DB, store *CertificateStore, renderer *CertificateRenderer, mailer *CertificateMailer) *CertificateService {
	return &CertificateService{
		DB:             db,
		Store:          store,
		Submissions:    &SubmissionSource{DB: db},
		Renderer:       renderer,
		Mailer:         mailer,
		NotifyExisting: true,
		Workers:        defaultCertificateWorkers,
		StepTimeout:    defaultStepTimeout,
	}
}

// GenerateCertificates handles POST /admin/certificates/generate
func (s *CertificateService) GenerateCertificates(c *fiber.Ctx) error {
	var req struct {
		SubmissionIDs  []string `json:"submission_ids"`
		NotifyExisting *bool    `json:"notify_existing"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	notifyExisting := s.NotifyExisting
	if req.NotifyExisting != nil {
		notifyExisting = *req.NotifyExisting
	}

	resp, err := s.GenerateForSubmissions(c.UserContext(), req.SubmissionIDs, notifyExisting)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(resp)
}

// GenerateForSubmissions runs the batch pipeline over the given submission
// IDs. Every input ID yields exactly one result, in input order; duplicates
// in the input are legal and each produces its own result. A cancelled
// context still returns a complete response: finished items keep their real
// outcomes and unprocessed ones are reported as failed with a cancellation
// message.
func (s *CertificateService) GenerateForSubmissions(ctx context.Context, submissionIDs []string, notifyExisting bool) (models.GenerateCertificatesResponse, error) {
	if len(submissionIDs) == 0 {
		return models.GenerateCertificatesResponse{}, ErrEmptyBatch
	}
	for _, id := range submissionIDs {
		if strings.TrimSpace(id) == "" {
			return models.GenerateCertificatesResponse{}, ErrEmptyBatch
		}
	}

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(submissionIDs) {
		workers = len(submissionIDs)
	}

	// Results are written by input position, never appended, so input order
	// is preserved regardless of completion order.
	results := make([]models.CertificateResult, len(submissionIDs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					results[idx] = models.CertificateResult{
						SubmissionID: submissionIDs[idx],
						Status:       models.CertificateStatusFailed,
						Message:      "batch cancelled before this submission was processed",
					}
					continue
				}
				results[idx] = s.processSubmission(ctx, submissionIDs[idx], notifyExisting)
			}
		}()
	}
	for i := range submissionIDs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return s.aggregate(results), nil
}

// processSubmission runs one submission through the per-item state machine.
// It always returns a finalized result; no error escapes to the batch level.
func (s *CertificateService) processSubmission(ctx context.Context, submissionID string, notifyExisting bool) models.CertificateResult {
	result := models.CertificateResult{SubmissionID: submissionID}

	sub, err := s.Submissions.LoadSubmission(ctx, submissionID)
	if err != nil {
		result.Status = models.CertificateStatusFailed
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Message = "submission not found"
		} else {
			result.Message = fmt.Sprintf("failed to load submission: %v", err)
		}
		return result
	}

	existing, found, err := s.Store.FindBySubmission(ctx, submissionID)
	if err != nil {
		result.Status = models.CertificateStatusFailed
		result.Message = fmt.Sprintf("certificate lookup failed: %v", err)
		return result
	}
	if found {
		result.Status = models.CertificateStatusExists
		result.CertificateID = existing.ID
		result.CertificateURL = existing.CertificateURL
		if notifyExisting {
			s.notify(ctx, &sub, existing.ID, existing.TournamentTitle, &result)
		}
		return result
	}

	if sub.Status != models.SubmissionStatusApproved {
		result.Status = models.CertificateStatusFailed
		result.Message = fmt.Sprintf("submission is not approved for certification (status: %s)", sub.Status)
		return result
	}
	if sub.Tournament.Title == "" {
		result.Status = models.CertificateStatusFailed
		result.Message = "submission snapshot is incomplete: tournament title missing"
		return result
	}
	email, recipientName, err := s.Submissions.Recipient(ctx, &sub)
	if err != nil {
		result.Status = models.CertificateStatusFailed
		result.Message = fmt.Sprintf("recipient lookup failed: %v", err)
		return result
	}
	if email == "" {
		result.Status = models.CertificateStatusFailed
		result.Message = "submission snapshot is incomplete: recipient email missing"
		return result
	}

	certificateID := uuid.NewString()

	renderCtx, cancelRender := context.WithTimeout(ctx, s.stepTimeout())
	defer cancelRender()
	artifactURL, err := s.Renderer.Render(renderCtx, CertificateData{
		CertificateID:   certificateID,
		RecipientName:   recipientName,
		Score:           sub.Score,
		Rank:            sub.Rank,
		TournamentTitle: sub.Tournament.Title,
	})
	if err != nil {
		result.Status = models.CertificateStatusFailed
		result.Message = fmt.Sprintf("certificate rendering failed: %v", err)
		return result
	}

	cert := models.Certificate{
		ID:              certificateID,
		SubmissionID:    sub.ID,
		TournamentID:    sub.TournamentID,
		CertificateURL:  artifactURL,
		RecipientName:   recipientName,
		RecipientUserID: sub.ApplicantUserID,
		Score:           sub.Score,
		Rank:            sub.Rank,
		TournamentTitle: sub.Tournament.Title,
	}

	persistCtx, cancelPersist := context.WithTimeout(ctx, s.stepTimeout())
	defer cancelPersist()
	err = s.Store.Create(persistCtx, &cert)
	if errors.Is(err, ErrCertificateExists) {
		// Lost the creation race — the winner's record is the certificate.
		winner, ok, ferr := s.Store.FindBySubmission(ctx, submissionID)
		if ferr != nil || !ok {
			result.Status = models.CertificateStatusFailed
			result.Message = "certificate exists but could not be loaded"
			return result
		}
		result.Status = models.CertificateStatusExists
		result.CertificateID = winner.ID
		result.CertificateURL = winner.CertificateURL
		if notifyExisting {
			s.notify(ctx, &sub, winner.ID, winner.TournamentTitle, &result)
		}
		return result
	}
	if err != nil {
		result.Status = models.CertificateStatusFailed
		result.Message = fmt.Sprintf("failed to save certificate: %v", err)
		return result
	}

	result.Status = models.CertificateStatusCreated
	result.CertificateID = cert.ID
	result.CertificateURL = cert.CertificateURL
	s.notify(ctx, &sub, cert.ID, cert.TournamentTitle, &result)
	return result
}

// notify attempts the certificate email for an issued certificate. Delivery
// and issuance are independent concerns: a failed send sets the email fields
// on the result but never changes its status.
func (s *CertificateService) notify(ctx context.Context, sub *models.Submission, certificateID, tournamentTitle string, result *models.CertificateResult) {
	email, recipientName, err := s.Submissions.Recipient(ctx, sub)
	if err != nil {
		log.Printf("⚠️  Recipient lookup failed for certificate %s: %v", certificateID, err)
	}

	notifyCtx, cancel := context.WithTimeout(ctx, s.stepTimeout())
	defer cancel()
	sent := s.Mailer.Send(notifyCtx, email, recipientName, tournamentTitle, certificateID)

	result.EmailSent = sent
	if !sent {
		result.EmailError = "certificate email could not be delivered"
	}
	if err := s.Store.MarkEmailOutcome(ctx, certificateID, sent, result.EmailError); err != nil {
		log.Printf("⚠️  Failed to record email outcome for certificate %s: %v", certificateID, err)
	}
}

func (s *CertificateService) aggregate(results []models.CertificateResult) models.GenerateCertificatesResponse {
	resp := models.GenerateCertificatesResponse{Results: results}
	for _, r := range results {
		switch r.Status {
		case models.CertificateStatusCreated:
			resp.GeneratedCount++
		case models.CertificateStatusExists:
			resp.ExistingCount++
		default:
			resp.FailedCount++
		}
		if r.EmailSent {
			resp.EmailSentCount++
		} else if r.EmailError != "" {
			resp.EmailFailedCount++
		}
	}
	resp.Success = resp.FailedCount == 0
	resp.Message = fmt.Sprintf(
		"Generated %d certificates, %d already existed, %d failed. Emails sent: %d, failed: %d.",
		resp.GeneratedCount, resp.ExistingCount, resp.FailedCount, resp.EmailSentCount, resp.EmailFailedCount,
	)
	return resp
}

func (s *CertificateService) stepTimeout() time.Duration {
	if s.StepTimeout > 0 {
		return s.StepTimeout
	}
	return defaultStepTimeout
}

// GetCertificateByID handles GET /certificates/:id
func (s *CertificateService) GetCertificateByID(c *fiber.Ctx) error {
	id := c.Params("id")
	var cert models.Certificate
	if err := s.DB.First(&cert, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "certificate not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(cert)
}

// GetMyCertificates handles GET /users/me/certificates
func (s *CertificateService) GetMyCertificates(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var certs []models.Certificate
	if err := s.DB.
		Where("recipient_user_id = ?", userID).
		Order("created_at DESC").
		Find(&certs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(certs)
}
