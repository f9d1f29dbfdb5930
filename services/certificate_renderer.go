// services/certificate_renderer.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/gosimple/slug"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"competition-portal-system/utils"
)

// CertificateData is the submission snapshot the renderer composes into the
// certificate artifact.
type CertificateData struct {
	CertificateID   string
	RecipientName   string
	Score           int64
	Rank            int
	TournamentTitle string
}

// Base canvas is drawn at 1x with a bitmap face, then upscaled for output.
const (
	certBaseWidth  = 800
	certBaseHeight = 566
	certScale      = 2
)

var certTitleCaser = cases.Title(language.English)

// CertificateRenderer produces the certificate PNG for a submission and
// uploads it to object storage. The upload hook is injectable so tests can
// render without R2 credentials.
type CertificateRenderer struct {
	upload func(ctx context.Context, payload []byte, key, contentType string) (string, error)
}

func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{upload: utils.UploadBytesToR2}
}

// Render composes the artifact and stores it, returning the durable URL.
// Any error is terminal for the submission: no certificate record may be
// persisted without a successfully stored artifact.
func (r *CertificateRenderer) Render(ctx context.Context, data CertificateData) (string, error) {
	if data.RecipientName == "" || data.TournamentTitle == "" {
		return "", fmt.Errorf("incomplete certificate data: recipient name and tournament title are required")
	}

	payload, err := r.compose(data)
	if err != nil {
		return "", fmt.Errorf("failed to render certificate: %w", err)
	}

	key := fmt.Sprintf("certificates/%s/%s.png", slug.Make(data.TournamentTitle), data.CertificateID)
	url, err := r.upload(ctx, payload, key, "image/png")
	if err != nil {
		return "", fmt.Errorf("failed to store certificate artifact: %w", err)
	}
	return url, nil
}

func (r *CertificateRenderer) compose(data CertificateData) ([]byte, error) {
	base := image.NewRGBA(image.Rect(0, 0, certBaseWidth, certBaseHeight))

	background := color.RGBA{R: 252, G: 250, B: 245, A: 255}
	border := color.RGBA{R: 184, G: 148, B: 31, A: 255}
	ink := color.RGBA{R: 40, G: 40, B: 48, A: 255}

	draw.Draw(base, base.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)
	drawBorder(base, border, 12)

	lines := []string{
		"CERTIFICATE OF ACHIEVEMENT",
		"",
		"Awarded to",
		certTitleCaser.String(data.RecipientName),
		"",
		fmt.Sprintf("for rank %d with a score of %d", data.Rank, data.Score),
		fmt.Sprintf("in the tournament %q", data.TournamentTitle),
	}

	face := basicfont.Face7x13
	y := certBaseHeight/2 - (len(lines)*face.Height*2)/2
	for _, line := range lines {
		drawCenteredLine(base, face, line, y, ink)
		y += face.Height * 2
	}

	// Upscale the bitmap rendering to the output resolution
	out := image.NewRGBA(image.Rect(0, 0, certBaseWidth*certScale, certBaseHeight*certScale))
	draw.CatmullRom.Scale(out, out.Bounds(), base, base.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawBorder(img *image.RGBA, c color.RGBA, thickness int) {
	b := img.Bounds()
	for _, edge := range []image.Rectangle{
		image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+thickness),
		image.Rect(b.Min.X, b.Max.Y-thickness, b.Max.X, b.Max.Y),
		image.Rect(b.Min.X, b.Min.Y, b.Min.X+thickness, b.Max.Y),
		image.Rect(b.Max.X-thickness, b.Min.Y, b.Max.X, b.Max.Y),
	} {
		draw.Draw(img, edge, &image.Uniform{C: c}, image.Point{}, draw.Src)
	}
}

func drawCenteredLine(img *image.RGBA, face font.Face, line string, y int, c color.RGBA) {
	if line == "" {
		return
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: c},
		Face: face,
	}
	width := d.MeasureString(line)
	d.Dot = fixed.Point26_6{
		X: fixed.I(certBaseWidth)/2 - width/2,
		Y: fixed.I(y),
	}
	d.DrawString(line)
}
