// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"competition-portal-system/models"
)

func (s *TournamentService) StartPublishScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: publish scheduled tournaments whose time has come
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var tournaments []models.Tournament
			now := time.Now().UTC()
			err := s.DB.Where("status = ? AND publish_schedule <= ?", models.TournamentStatusScheduled, now).
				Find(&tournaments).Error
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}

			for _, t := range tournaments {
				t.Status = models.TournamentStatusPublished
				t.PublishedAt = &now
				t.PublishSchedule = nil
				if err := s.DB.Save(&t).Error; err != nil {
					log.Printf("[Scheduler] Failed to publish tournament %s: %v", t.ID, err)
				} else {
					log.Printf("✅ Auto-published tournament: %s", t.Title)
				}
			}
		}),
	)
}

// StartEmailRetryScheduler periodically retries certificate emails whose
// delivery failed. Only certificates with a recorded failed attempt are
// retried; a success clears the error and stops further retries.
func (s *CertificateService) StartEmailRetryScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(func() {
			var pending []models.Certificate
			err := s.DB.
				Where("email_sent = ? AND email_error <> ''", false).
				Limit(100).
				Find(&pending).Error
			if err != nil {
				log.Printf("[EmailRetry] DB error: %v", err)
				return
			}
			if len(pending) == 0 {
				return
			}

			log.Printf("🔁 [EmailRetry] Retrying %d failed certificate email(s)", len(pending))
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			for _, cert := range pending {
				var sub models.Submission
				if err := s.DB.First(&sub, "id = ?", cert.SubmissionID).Error; err != nil {
					log.Printf("[EmailRetry] Submission %s missing for certificate %s", cert.SubmissionID, cert.ID)
					continue
				}
				email, name, err := s.Submissions.Recipient(ctx, &sub)
				if err != nil || email == "" {
					continue
				}

				sent := s.Mailer.Send(ctx, email, name, cert.TournamentTitle, cert.ID)
				emailErr := ""
				if !sent {
					emailErr = "certificate email could not be delivered"
				}
				if err := s.Store.MarkEmailOutcome(ctx, cert.ID, sent, emailErr); err != nil {
					log.Printf("[EmailRetry] Failed to record outcome for certificate %s: %v", cert.ID, err)
				}
			}
		}),
	)
}
