package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"competition-portal-system/models"
)

func setupStoreTest(t *testing.T) (*CertificateStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return NewCertificateStore(gdb), mock
}

func certificateRows(certs ...models.Certificate) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "submission_id", "tournament_id", "certificate_url",
		"recipient_name", "recipient_user_id", "score", "rank",
		"tournament_title", "email_sent", "email_error", "created_at", "updated_at",
	})
	for _, c := range certs {
		rows.AddRow(
			c.ID, c.SubmissionID, c.TournamentID, c.CertificateURL,
			c.RecipientName, c.RecipientUserID, c.Score, c.Rank,
			c.TournamentTitle, c.EmailSent, c.EmailError, time.Now(), time.Now(),
		)
	}
	return rows
}

func TestCertificateStoreFindBySubmission(t *testing.T) {
	store, mock := setupStoreTest(t)

	mock.ExpectQuery(`SELECT .+ FROM "certificates" WHERE submission_id =`).
		WillReturnRows(certificateRows(models.Certificate{
			ID:           "cert-1",
			SubmissionID: "s1",
		}))

	cert, found, err := store.FindBySubmission(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "cert-1", cert.ID)

	// a clean miss is not an error
	mock.ExpectQuery(`SELECT .+ FROM "certificates" WHERE submission_id =`).
		WillReturnRows(certificateRows())

	_, found, err = store.FindBySubmission(context.Background(), "s-unknown")
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateStoreCreate(t *testing.T) {
	store, mock := setupStoreTest(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "certificates" .+ ON CONFLICT .+ DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Create(context.Background(), &models.Certificate{
		ID:           "cert-1",
		SubmissionID: "s1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateStoreCreateDuplicate(t *testing.T) {
	store, mock := setupStoreTest(t)

	// conflicting insert affects zero rows
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "certificates" .+ ON CONFLICT .+ DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.Create(context.Background(), &models.Certificate{
		ID:           "cert-2",
		SubmissionID: "s1",
	})
	assert.ErrorIs(t, err, ErrCertificateExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateStoreMarkEmailOutcome(t *testing.T) {
	store, mock := setupStoreTest(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "certificates" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.MarkEmailOutcome(context.Background(), "cert-1", false, "certificate email could not be delivered")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateStoreCountForTournament(t *testing.T) {
	store, mock := setupStoreTest(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "certificates" WHERE tournament_id =`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := store.CountForTournament(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
