package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pointSendGridAt redirects the mailer transport to a local test server for
// the duration of the test.
func pointSendGridAt(t *testing.T, url string) {
	t.Helper()
	prev := sendgridHost
	sendgridHost = url
	t.Cleanup(func() { sendgridHost = prev })
}

func TestCertificateMailerUnconfigured(t *testing.T) {
	t.Setenv("SENDGRID_API_KEY", "")

	m := NewCertificateMailer()
	assert.False(t, m.Configured())
	assert.False(t, m.Send(context.Background(), "ada@example.com", "Ada", "Spring Showcase", "cert-1"))
}

func TestCertificateMailerSend(t *testing.T) {
	t.Setenv("SENDGRID_API_KEY", "SG.test-key")
	t.Setenv("PORTAL_BASE_URL", "https://portal.example.com")

	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()
	pointSendGridAt(t, srv.URL)

	m := NewCertificateMailer()
	require.True(t, m.Configured())
	sent := m.Send(context.Background(), "ada@example.com", "Ada", "Spring Showcase", "cert-1")
	assert.True(t, sent)

	payload := string(body)
	assert.Contains(t, payload, "Your certificate for Spring Showcase is ready!")
	assert.Contains(t, payload, "https://portal.example.com/dashboard/certificates/cert-1")
	assert.Contains(t, payload, "ada@example.com")
	assert.Contains(t, payload, "text/plain")
	assert.Contains(t, payload, "text/html")
}

func TestCertificateMailerRecipientFallback(t *testing.T) {
	t.Setenv("SENDGRID_API_KEY", "SG.test-key")

	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()
	pointSendGridAt(t, srv.URL)

	m := NewCertificateMailer()
	assert.True(t, m.Send(context.Background(), "ada@example.com", "", "Spring Showcase", "cert-1"))
	assert.Contains(t, string(body), "Dear Participant")
}

func TestCertificateMailerRejections(t *testing.T) {
	t.Setenv("SENDGRID_API_KEY", "SG.test-key")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	pointSendGridAt(t, srv.URL)

	m := NewCertificateMailer()
	assert.False(t, m.Send(context.Background(), "ada@example.com", "Ada", "Spring Showcase", "cert-1"), "4xx from the provider is a delivery failure")
	assert.False(t, m.Send(context.Background(), "", "Ada", "Spring Showcase", "cert-1"), "missing address never hits the transport")
}
