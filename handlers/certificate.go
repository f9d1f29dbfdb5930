package handlers

import (
	"github.com/gofiber/fiber/v2"

	"competition-portal-system/middleware"
	"competition-portal-system/services"
)

func SetupCertificateRoutes(app *fiber.App, certService *services.CertificateService, statsService *services.StatsService, authClient *services.AuthServiceClient) {
	// SSE feed authenticates via query params (EventSource cannot set headers)
	app.Get("/users/me/certificates/stream", middleware.SSEAuthMiddleware(authClient), certService.StreamUserCertificatesSSE)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/certificates/:id", certService.GetCertificateByID)
	secured.Get("/users/me/certificates", certService.GetMyCertificates)

	// 🔒 Admin-only routes
	admin := secured.Group("/admin", middleware.RequireAdmin())

	// The batch pipeline: approved submissions → certificates + emails
	admin.Post("/certificates/generate", certService.GenerateCertificates)
	admin.Get("/stats", statsService.GetDashboardStats)
}
