// services/certificate_store.go
package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"competition-portal-system/models"
)

// ErrCertificateExists signals that a certificate record already exists for
// the submission — either found up front or because a concurrent creator won
// the insert race. Callers must treat it as "exists", never as a failure.
var ErrCertificateExists = errors.New("certificate already exists for submission")

// CertificateStore is the sole gatekeeper of certificate idempotency.
// The certificates table carries a unique index on submission_id, so
// create-if-absent is a single atomic statement; the orchestrator never has
// to serialize calls for correctness.
type CertificateStore struct {
	DB *gorm.DB
}

func NewCertificateStore(db *gorm.DB) *CertificateStore {
	return &CertificateStore{DB: db}
}

// FindBySubmission returns the certificate for a submission, if one exists.
// A clean miss is (zero, false, nil), never an error.
func (s *CertificateStore) FindBySubmission(ctx context.Context, submissionID string) (models.Certificate, bool, error) {
	var cert models.Certificate
	if err := s.DB.WithContext(ctx).Where("submission_id = ?", submissionID).First(&cert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return cert, false, nil
		}
		return cert, false, err
	}
	return cert, true, nil
}

// Create inserts the certificate record only if none exists for its
// submission. The INSERT ... ON CONFLICT DO NOTHING runs as one statement
// against the unique index, so a lost race surfaces as zero affected rows
// and is returned as ErrCertificateExists.
func (s *CertificateStore) Create(ctx context.Context, cert *models.Certificate) error {
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "submission_id"}},
		DoNothing: true,
	}).Create(cert)
	if res.Error != nil {
		return fmt.Errorf("certificate insert failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCertificateExists
	}
	return nil
}

// MarkEmailOutcome records the delivery attempt on the persisted certificate.
// Delivery state is advisory only; failures here never affect issuance.
func (s *CertificateStore) MarkEmailOutcome(ctx context.Context, certificateID string, sent bool, emailErr string) error {
	return s.DB.WithContext(ctx).Model(&models.Certificate{}).
		Where("id = ?", certificateID).
		Updates(map[string]interface{}{"email_sent": sent, "email_error": emailErr}).Error
}

// CountForTournament reports how many certificates have been issued for a
// tournament (used by the admin dashboard).
func (s *CertificateStore) CountForTournament(ctx context.Context, tournamentID string) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Certificate{}).
		Where("tournament_id = ?", tournamentID).Count(&count).Error
	return count, err
}
