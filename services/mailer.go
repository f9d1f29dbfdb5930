// services/mailer.go
package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// CertificateMailer sends the "your certificate is ready" notification.
// The transport is configured exactly once from process configuration: a
// missing API key disables the mailer for the process lifetime, and every
// Send short-circuits to false without touching the network. Send never
// panics past its boundary — a failed notification can never abort a batch.
type CertificateMailer struct {
	key           string
	from          *sgmail.Email
	portalBaseURL string
}

func NewCertificateMailer() *CertificateMailer {
	key := os.Getenv("SENDGRID_API_KEY")
	if key == "" {
		log.Println("⚠️  SENDGRID_API_KEY not set — certificate emails disabled for this process")
	}

	fromEmail := os.Getenv("CERTIFICATE_FROM_EMAIL")
	if fromEmail == "" {
		fromEmail = "certificates@artistrynu.com"
	}
	fromName := os.Getenv("CERTIFICATE_FROM_NAME")
	if fromName == "" {
		fromName = "ArtistryNU Team"
	}
	portalBaseURL := os.Getenv("PORTAL_BASE_URL")
	if portalBaseURL == "" {
		portalBaseURL = "https://portal.artistrynu.in"
	}

	return &CertificateMailer{
		key:           key,
		from:          sgmail.NewEmail(fromName, fromEmail),
		portalBaseURL: portalBaseURL,
	}
}

// Configured reports whether the transport can be used at all.
func (m *CertificateMailer) Configured() bool {
	return m.key != ""
}

// Send notifies the recipient that their certificate is ready for download.
// Returns true iff the transport accepted the message for delivery.
func (m *CertificateMailer) Send(ctx context.Context, to, recipientName, tournamentTitle, certificateID string) bool {
	if !m.Configured() {
		log.Printf("⚠️  [MAILER] Skipping certificate email to %s — transport not configured", to)
		return false
	}
	if to == "" {
		log.Printf("❌ [MAILER] No recipient address for certificate %s", certificateID)
		return false
	}
	if recipientName == "" {
		recipientName = "Participant"
	}

	downloadURL := fmt.Sprintf("%s/dashboard/certificates/%s", m.portalBaseURL, certificateID)
	subject := fmt.Sprintf("Your certificate for %s is ready!", tournamentTitle)

	text := fmt.Sprintf(`Dear %s,

Your certificate for the tournament "%s" has been generated.
Please download it from: %s

Congratulations on your achievement!

Best regards,
ArtistryNU Team`, recipientName, tournamentTitle, downloadURL)

	html := fmt.Sprintf(`<p>Dear %s,</p>

<p>Your certificate for the tournament <strong>"%s"</strong> has been generated.</p>
<p>Please download it from: <a href="%s">Certificate Download Link</a></p>

<p>Congratulations on your achievement!</p>

<p>Best regards,<br>
ArtistryNU Team</p>`, recipientName, tournamentTitle, downloadURL)

	p := sgmail.NewPersonalization()
	p.Subject = subject
	p.AddTos(sgmail.NewEmail(recipientName, to))

	msg := sgmail.NewV3Mail()
	msg.SetFrom(m.from)
	msg.AddPersonalizations(p)
	msg.AddContent(
		sgmail.NewContent("text/plain", text),
		sgmail.NewContent("text/html", html),
	)

	req := sendgrid.GetRequest(m.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(msg)

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		log.Printf("❌ [MAILER] Failed to send certificate email to %s: %v", to, err)
		return false
	}
	if res.StatusCode >= http.StatusBadRequest {
		log.Printf("❌ [MAILER] SendGrid rejected certificate email to %s: status %d", to, res.StatusCode)
		return false
	}
	return true
}
