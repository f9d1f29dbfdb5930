package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"competition-portal-system/models"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeSubmissions struct {
	mu           sync.Mutex
	subs         map[string]models.Submission
	emails       map[string]string // applicant user ID -> email
	recipientErr error
}

func (f *fakeSubmissions) LoadSubmission(_ context.Context, submissionID string) (models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[submissionID]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return sub, nil
}

func (f *fakeSubmissions) Recipient(_ context.Context, sub *models.Submission) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recipientErr != nil {
		return "", sub.ApplicantName, f.recipientErr
	}
	return f.emails[sub.ApplicantUserID], sub.ApplicantName, nil
}

type fakeCertStore struct {
	mu       sync.Mutex
	certs    map[string]models.Certificate // submission ID -> certificate
	findErr  error
	outcomes map[string]bool // certificate ID -> sent
}

func newFakeCertStore() *fakeCertStore {
	return &fakeCertStore{
		certs:    map[string]models.Certificate{},
		outcomes: map[string]bool{},
	}
}

func (f *fakeCertStore) FindBySubmission(_ context.Context, submissionID string) (models.Certificate, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return models.Certificate{}, false, f.findErr
	}
	cert, ok := f.certs[submissionID]
	return cert, ok, nil
}

func (f *fakeCertStore) Create(_ context.Context, cert *models.Certificate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.certs[cert.SubmissionID]; ok {
		return ErrCertificateExists
	}
	f.certs[cert.SubmissionID] = *cert
	return nil
}

func (f *fakeCertStore) MarkEmailOutcome(_ context.Context, certificateID string, sent bool, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[certificateID] = sent
	return nil
}

type fakeRenderer struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeRenderer) Render(_ context.Context, data CertificateData) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "https://files.example.com/certificates/" + data.CertificateID + ".png", nil
}

type fakeMailer struct {
	mu    sync.Mutex
	ok    bool
	calls []string // certificate IDs
}

func (f *fakeMailer) Send(_ context.Context, _, _, _, certificateID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, certificateID)
	return f.ok
}

func (f *fakeMailer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func approvedSubmission(id, userID, name, title string) models.Submission {
	return models.Submission{
		ID:              id,
		TournamentID:    "t1",
		ApplicantUserID: userID,
		ApplicantName:   name,
		Score:           87,
		Rank:            2,
		Status:          models.SubmissionStatusApproved,
		Tournament:      models.Tournament{ID: "t1", Title: title},
	}
}

func newTestService(subs submissionSource, store certificateStore, renderer artifactRenderer, mailer certificateNotifier) *CertificateService {
	return &CertificateService{
		Store:          store,
		Submissions:    subs,
		Renderer:       renderer,
		Mailer:         mailer,
		NotifyExisting: true,
		Workers:        2,
		StepTimeout:    5 * time.Second,
	}
}

func assertCountsConsistent(t *testing.T, resp models.GenerateCertificatesResponse) {
	t.Helper()
	assert.Equal(t, len(resp.Results), resp.GeneratedCount+resp.ExistingCount+resp.FailedCount)
	assert.LessOrEqual(t, resp.EmailSentCount+resp.EmailFailedCount, resp.GeneratedCount+resp.ExistingCount)
}

// =============================================================================
// BATCH VALIDATION
// =============================================================================

func TestGenerateForSubmissionsRejectsEmptyBatch(t *testing.T) {
	svc := newTestService(
		&fakeSubmissions{subs: map[string]models.Submission{}, emails: map[string]string{}},
		newFakeCertStore(), &fakeRenderer{}, &fakeMailer{ok: true},
	)

	for _, ids := range [][]string{nil, {}, {"  "}, {"s1", ""}} {
		_, err := svc.GenerateForSubmissions(context.Background(), ids, true)
		assert.ErrorIs(t, err, ErrEmptyBatch, "ids=%v", ids)
	}
}

// =============================================================================
// PER-SUBMISSION OUTCOMES
// =============================================================================

func TestGenerateForSubmissionsMixedBatch(t *testing.T) {
	subs := &fakeSubmissions{
		subs: map[string]models.Submission{
			"s-new":      approvedSubmission("s-new", "u1", "Ada Lovelace", "Spring Showcase"),
			"s-existing": approvedSubmission("s-existing", "u2", "Grace Hopper", "Spring Showcase"),
		},
		emails: map[string]string{"u1": "ada@example.com", "u2": "grace@example.com"},
	}
	store := newFakeCertStore()
	store.certs["s-existing"] = models.Certificate{
		ID:              "cert-existing",
		SubmissionID:    "s-existing",
		CertificateURL:  "https://files.example.com/certificates/cert-existing.png",
		TournamentTitle: "Spring Showcase",
	}
	mailer := &fakeMailer{ok: true}
	svc := newTestService(subs, store, &fakeRenderer{}, mailer)

	resp, err := svc.GenerateForSubmissions(context.Background(), []string{"s-missing", "s-new", "s-existing"}, true)
	require.NoError(t, err)

	require.Len(t, resp.Results, 3)
	// input order is preserved
	assert.Equal(t, "s-missing", resp.Results[0].SubmissionID)
	assert.Equal(t, "s-new", resp.Results[1].SubmissionID)
	assert.Equal(t, "s-existing", resp.Results[2].SubmissionID)

	assert.Equal(t, models.CertificateStatusFailed, resp.Results[0].Status)
	assert.Equal(t, "submission not found", resp.Results[0].Message)
	assert.Equal(t, models.CertificateStatusCreated, resp.Results[1].Status)
	assert.NotEmpty(t, resp.Results[1].CertificateID)
	assert.NotEmpty(t, resp.Results[1].CertificateURL)
	assert.Equal(t, models.CertificateStatusExists, resp.Results[2].Status)
	assert.Equal(t, "cert-existing", resp.Results[2].CertificateID)

	assert.Equal(t, 1, resp.GeneratedCount)
	assert.Equal(t, 1, resp.ExistingCount)
	assert.Equal(t, 1, resp.FailedCount)
	assert.Equal(t, 2, resp.EmailSentCount)
	assert.Equal(t, 0, resp.EmailFailedCount)
	assert.False(t, resp.Success)
	assertCountsConsistent(t, resp)
}

func TestGenerateForSubmissionsIneligibleSubmissions(t *testing.T) {
	pending := approvedSubmission("s-pending", "u1", "Ada", "Spring Showcase")
	pending.Status = models.SubmissionStatusPending
	noTitle := approvedSubmission("s-no-title", "u2", "Grace", "")
	noEmail := approvedSubmission("s-no-email", "u3", "Edith", "Spring Showcase")

	subs := &fakeSubmissions{
		subs: map[string]models.Submission{
			"s-pending":  pending,
			"s-no-title": noTitle,
			"s-no-email": noEmail,
		},
		emails: map[string]string{"u1": "ada@example.com", "u2": "grace@example.com"},
	}
	store := newFakeCertStore()
	renderer := &fakeRenderer{}
	mailer := &fakeMailer{ok: true}
	svc := newTestService(subs, store, renderer, mailer)

	resp, err := svc.GenerateForSubmissions(context.Background(), []string{"s-pending", "s-no-title", "s-no-email"}, true)
	require.NoError(t, err)

	for _, r := range resp.Results {
		assert.Equal(t, models.CertificateStatusFailed, r.Status, r.SubmissionID)
	}
	assert.Contains(t, resp.Results[0].Message, "not approved")
	assert.Contains(t, resp.Results[1].Message, "tournament title missing")
	assert.Contains(t, resp.Results[2].Message, "recipient email missing")

	// Nothing eligible got anywhere near rendering or persistence.
	assert.Equal(t, 0, renderer.calls)
	assert.Empty(t, store.certs)
	assert.Equal(t, 0, mailer.callCount())
	assertCountsConsistent(t, resp)
}

func TestGenerateForSubmissionsRecipientLookupFailure(t *testing.T) {
	subs := &fakeSubmissions{
		subs:         map[string]models.Submission{"s1": approvedSubmission("s1", "u1", "Ada", "Spring Showcase")},
		emails:       map[string]string{"u1": "ada@example.com"},
		recipientErr: fmt.Errorf("portal user lookup failed for u1: connection refused"),
	}
	store := newFakeCertStore()
	renderer := &fakeRenderer{}
	mailer := &fakeMailer{ok: true}
	svc := newTestService(subs, store, renderer, mailer)

	resp, err := svc.GenerateForSubmissions(context.Background(), []string{"s1"}, true)
	require.NoError(t, err)

	r := resp.Results[0]
	assert.Equal(t, models.CertificateStatusFailed, r.Status)
	// a store fault is reported as such, not as a missing email
	assert.Contains(t, r.Message, "recipient lookup failed")
	assert.NotContains(t, r.Message, "recipient email missing")
	assert.Equal(t, 0, renderer.calls)
	assert.Empty(t, store.certs)
	assert.Equal(t, 0, mailer.callCount())
}

// blockingRenderer honours its context and never returns on its own.
type blockingRenderer struct{}

func (blockingRenderer) Render(ctx context.Context, _ CertificateData) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestGenerateForSubmissionsRenderTimeout(t *testing.T) {
	subs := &fakeSubmissions{
		subs:   map[string]models.Submission{"s1": approvedSubmission("s1", "u1", "Ada", "Spring Showcase")},
		emails: map[string]string{"u1": "ada@example.com"},
	}
	store := newFakeCertStore()
	mailer := &fakeMailer{ok: true}
	svc := newTestService(subs, store, blockingRenderer{}, mailer)
	svc.StepTimeout = 50 * time.Millisecond

	done := make(chan models.GenerateCertificatesResponse, 1)
	go func() {
		resp, err := svc.GenerateForSubmissions(context.Background(), []string{"s1"}, true)
		assert.NoError(t, err)
		done <- resp
	}()

	select {
	case resp := <-done:
		r := resp.Results[0]
		assert.Equal(t, models.CertificateStatusFailed, r.Status)
		assert.Contains(t, r.Message, "certificate rendering failed")
		assert.Empty(t, store.certs)
		assert.Equal(t, 0, mailer.callCount())
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not return after the render step timed out")
	}
}

func TestGenerateForSubmissionsRendererFailure(t *testing.T) {
	subs := &fakeSubmissions{
		subs:   map[string]models.Submission{"s1": approvedSubmission("s1", "u1", "Ada", "Spring Showcase")},
		emails: map[string]string{"u1": "ada@example.com"},
	}
	store := newFakeCertStore()
	mailer := &fakeMailer{ok: true}
	svc := newTestService(subs, store, &fakeRenderer{err: fmt.Errorf("upload refused")}, mailer)

	resp, err := svc.GenerateForSubmissions(context.Background(), []string{"s1"}, true)
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, models.CertificateStatusFailed, resp.Results[0].Status)
	assert.Contains(t, resp.Results[0].Message, "certificate rendering failed")
	assert.Empty(t, store.certs, "no record may be persisted without a stored artifact")
	assert.Equal(t, 0, mailer.callCount())
	assert.False(t, resp.Success)
}

func TestGenerateForSubmissionsEmailFailureDoesNotFailItem(t *testing.T) {
	subs := &fakeSubmissions{
		subs:   map[string]models.Submission{"s1": approvedSubmission("s1", "u1", "Ada", "Spring Showcase")},
		emails: map[string]string{"u1": "ada@example.com"},
	}
	store := newFakeCertStore()
	svc := newTestService(subs, store, &fakeRenderer{}, &fakeMailer{ok: false})

	resp, err := svc.GenerateForSubmissions(context.Background(), []string{"s1"}, true)
	require.NoError(t, err)

	r := resp.Results[0]
	assert.Equal(t, models.CertificateStatusCreated, r.Status)
	assert.False(t, r.EmailSent)
	assert.NotEmpty(t, r.EmailError)
	assert.Equal(t, 1, resp.GeneratedCount)
	assert.Equal(t, 0, resp.FailedCount)
	assert.Equal(t, 0, resp.EmailSentCount)
	assert.Equal(t, 1, resp.EmailFailedCount)
	assert.True(t, resp.Success, "delivery failure never fails the batch")

	sent, recorded := store.outcomes[r.CertificateID]
	assert.True(t, recorded)
	assert.False(t, sent)
}

// =============================================================================
// IDEMPOTENCY AND RACES
// =============================================================================

// raceStore simulates losing the insert race: the initial lookup misses,
// Create reports a conflict and the follow-up lookup returns the winner.
type raceStore struct {
	mu       sync.Mutex
	winner   models.Certificate
	finds    int
	outcomes map[string]bool
}

func (r *raceStore) FindBySubmission(_ context.Context, _ string) (models.Certificate, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	if r.finds == 1 {
		return models.Certificate{}, false, nil
	}
	return r.winner, true, nil
}

func (r *raceStore) Create(_ context.Context, _ *models.Certificate) error {
	return ErrCertificateExists
}

func (r *raceStore) MarkEmailOutcome(_ context.Context, certificateID string, sent bool, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]bool{}
	}
	r.outcomes[certificateID] = sent
	return nil
}

func TestGenerateForSubmissionsLostCreateRace(t *testing.T) {
	subs := &fakeSubmissions{
		subs:   map[string]models.Submission{"s1": approvedSubmission("s1", "u1", "Ada", "Spring Showcase")},
		emails: map[string]string{"u1": "ada@example.com"},
	}
	store := &raceStore{winner: models.Certificate{
		ID:              "cert-winner",
		SubmissionID:    "s1",
		CertificateURL:  "https://files.example.com/certificates/cert-winner.png",
		TournamentTitle: "Spring Showcase",
	}}
	mailer := &fakeMailer{ok: true}
	svc := newTestService(subs, store, &fakeRenderer{}, mailer)

	resp, err := svc.GenerateForSubmissions(context.Background(), []string{"s1"}, true)
	require.NoError(t, err)

	r := resp.Results[0]
	assert.Equal(t, models.CertificateStatusExists, r.Status)
	assert.Equal(t, "cert-winner", r.CertificateID)
	assert.Equal(t, store.winner.CertificateURL, r.CertificateURL)
	assert.Equal(t, 1, resp.ExistingCount)
	assert.Equal(t, 0, resp.FailedCount)
	// the notification references the winner's record, not the discarded one
	require.Equal(t, 1, mailer.callCount())
	assert.Equal(t, "cert-winner", mailer.calls[0])
}

func TestGenerateForSubmissionsDuplicateIDsInOneBatch(t *testing.T) {
	subs := &fakeSubmissions{
		subs:   map[string]models.Submission{"s1": approvedSubmission("s1", "u1", "Ada", "Spring Showcase")},
		emails: map[string]string{"u1": "ada@example.com"},
	}
	store := newFakeCertStore()
	svc := newTestService(subs, store, &fakeRenderer{}, &fakeMailer{ok: true})
	svc.Workers = 3

	resp, err := svc.GenerateForSubmissions(context.Background(), []string{"s1", "s1", "s1"}, true)
	require.NoError(t, err)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, 1, resp.GeneratedCount)
	assert.Equal(t, 2, resp.ExistingCount)
	assert.Equal(t, 0, resp.FailedCount)
	assert.Len(t, store.certs, 1, "exactly one record regardless of duplicate inputs")

	winner := store.certs["s1"]
	for _, r := range resp.Results {
		assert.Equal(t, winner.ID, r.CertificateID)
	}
	assertCountsConsistent(t, resp)
}

func TestGenerateForSubmissionsConcurrentBatches(t *testing.T) {
	subs := &fakeSubmissions{
		subs:   map[string]models.Submission{"s4": approvedSubmission("s4", "u4", "Mary", "Spring Showcase")},
		emails: map[string]string{"u4": "mary@example.com"},
	}
	store := newFakeCertStore()
	svcA := newTestService(subs, store, &fakeRenderer{}, &fakeMailer{ok: true})
	svcB := newTestService(subs, store, &fakeRenderer{}, &fakeMailer{ok: true})

	var wg sync.WaitGroup
	responses := make([]models.GenerateCertificatesResponse, 2)
	for i, svc := range []*CertificateService{svcA, svcB} {
		wg.Add(1)
		go func(i int, svc *CertificateService) {
			defer wg.Done()
			resp, err := svc.GenerateForSubmissions(context.Background(), []string{"s4"}, false)
			assert.NoError(t, err)
			responses[i] = resp
		}(i, svc)
	}
	wg.Wait()

	created := responses[0].GeneratedCount + responses[1].GeneratedCount
	existing := responses[0].ExistingCount + responses[1].ExistingCount
	assert.Equal(t, 1, created, "exactly one batch wins the creation")
	assert.Equal(t, 1, existing)
	assert.Equal(t, 0, responses[0].FailedCount+responses[1].FailedCount)
	assert.Len(t, store.certs, 1)
}

func TestGenerateForSubmissionsRerunIsIdempotent(t *testing.T) {
	subs := &fakeSubmissions{
		subs: map[string]models.Submission{
			"s1": approvedSubmission("s1", "u1", "Ada", "Spring Showcase"),
			"s2": approvedSubmission("s2", "u2", "Grace", "Spring Showcase"),
		},
		emails: map[string]string{"u1": "ada@example.com", "u2": "grace@example.com"},
	}
	store := newFakeCertStore()
	svc := newTestService(subs, store, &fakeRenderer{}, &fakeMailer{ok: true})

	first, err := svc.GenerateForSubmissions(context.Background(), []string{"s1", "s2"}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, first.GeneratedCount)

	second, err := svc.GenerateForSubmissions(context.Background(), []string{"s1", "s2"}, false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.GeneratedCount)
	assert.Equal(t, 2, second.ExistingCount)
	assert.True(t, second.Success)
	assert.Len(t, store.certs, 2)

	for i := range first.Results {
		assert.Equal(t, first.Results[i].CertificateID, second.Results[i].CertificateID)
	}
}

func TestGenerateForSubmissionsNotifyExistingPolicy(t *testing.T) {
	seed := func() (*CertificateService, *fakeMailer) {
		subs := &fakeSubmissions{
			subs:   map[string]models.Submission{"s1": approvedSubmission("s1", "u1", "Ada", "Spring Showcase")},
			emails: map[string]string{"u1": "ada@example.com"},
		}
		store := newFakeCertStore()
		store.certs["s1"] = models.Certificate{ID: "cert-1", SubmissionID: "s1", TournamentTitle: "Spring Showcase"}
		mailer := &fakeMailer{ok: true}
		return newTestService(subs, store, &fakeRenderer{}, mailer), mailer
	}

	svc, mailer := seed()
	resp, err := svc.GenerateForSubmissions(context.Background(), []string{"s1"}, false)
	require.NoError(t, err)
	assert.Equal(t, 0, mailer.callCount())
	assert.False(t, resp.Results[0].EmailSent)
	assert.Empty(t, resp.Results[0].EmailError)
	assert.Equal(t, 0, resp.EmailFailedCount)

	svc, mailer = seed()
	resp, err = svc.GenerateForSubmissions(context.Background(), []string{"s1"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, mailer.callCount())
	assert.True(t, resp.Results[0].EmailSent)
	assert.Equal(t, 1, resp.EmailSentCount)
}

// =============================================================================
// CANCELLATION
// =============================================================================

// cancellingRenderer cancels the batch after its first successful render.
type cancellingRenderer struct {
	fakeRenderer
	cancel context.CancelFunc
}

func (r *cancellingRenderer) Render(ctx context.Context, data CertificateData) (string, error) {
	url, err := r.fakeRenderer.Render(ctx, data)
	r.cancel()
	return url, err
}

func TestGenerateForSubmissionsCancellationMidBatch(t *testing.T) {
	subs := &fakeSubmissions{
		subs: map[string]models.Submission{
			"s1": approvedSubmission("s1", "u1", "Ada", "Spring Showcase"),
			"s2": approvedSubmission("s2", "u2", "Grace", "Spring Showcase"),
			"s3": approvedSubmission("s3", "u3", "Edith", "Spring Showcase"),
		},
		emails: map[string]string{"u1": "ada@example.com", "u2": "grace@example.com", "u3": "edith@example.com"},
	}
	store := newFakeCertStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestService(subs, store, &cancellingRenderer{cancel: cancel}, &fakeMailer{ok: true})
	svc.Workers = 1

	resp, err := svc.GenerateForSubmissions(ctx, []string{"s1", "s2", "s3"}, true)
	require.NoError(t, err)

	require.Len(t, resp.Results, 3, "every input still gets a result")
	assert.Equal(t, models.CertificateStatusCreated, resp.Results[0].Status)
	for _, r := range resp.Results[1:] {
		assert.Equal(t, models.CertificateStatusFailed, r.Status)
		assert.Equal(t, "batch cancelled before this submission was processed", r.Message)
	}
	assert.Equal(t, 1, resp.GeneratedCount)
	assert.Equal(t, 2, resp.FailedCount)
	assert.Len(t, store.certs, 1)
	assertCountsConsistent(t, resp)
}

// =============================================================================
// HTTP HANDLER
// =============================================================================

func TestGenerateCertificatesHandler(t *testing.T) {
	subs := &fakeSubmissions{
		subs:   map[string]models.Submission{"s1": approvedSubmission("s1", "u1", "Ada", "Spring Showcase")},
		emails: map[string]string{"u1": "ada@example.com"},
	}
	svc := newTestService(subs, newFakeCertStore(), &fakeRenderer{}, &fakeMailer{ok: true})

	app := fiber.New()
	app.Post("/admin/certificates/generate", svc.GenerateCertificates)

	post := func(body string) (int, []byte) {
		t.Helper()
		req := httptest.NewRequest(fiber.MethodPost, "/admin/certificates/generate", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		res, err := app.Test(req)
		require.NoError(t, err)
		defer res.Body.Close()
		payload, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		return res.StatusCode, payload
	}

	status, _ := post(`{"submission_ids": []}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = post(`not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, payload := post(`{"submission_ids": ["s1"]}`)
	require.Equal(t, fiber.StatusOK, status)
	var resp models.GenerateCertificatesResponse
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.GeneratedCount)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, models.CertificateStatusCreated, resp.Results[0].Status)
}
