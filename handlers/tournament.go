package handlers

import (
	"github.com/gofiber/fiber/v2"

	"competition-portal-system/middleware"
	"competition-portal-system/services"
)

func SetupTournamentRoutes(app *fiber.App, tournamentService *services.TournamentService) {
	// 🔓 Public routes (only published tournaments)
	app.Get("/tournaments/published", tournamentService.GetPublishedTournamentsMini)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/tournaments/:id", tournamentService.GetTournamentByID)

	// Submissions
	secured.Post("/tournaments/:id/submissions", tournamentService.SubmitArtwork)

	// 🔒 Admin-only routes
	admin := secured.Group("/admin", middleware.RequireAdmin())

	// Tournament CRUD
	admin.Post("/tournaments", tournamentService.CreateTournament)
	admin.Get("/tournaments", tournamentService.GetAllTournaments)
	admin.Delete("/tournaments/:id", tournamentService.DeleteTournament)

	// Publish scheduling
	admin.Post("/tournaments/:id/publish/now", tournamentService.PublishNow)
	admin.Post("/tournaments/:id/publish/schedule", tournamentService.SchedulePublish)

	// Review
	admin.Get("/tournaments/:id/submissions", tournamentService.GetSubmissions)
	admin.Patch("/submissions/:id/review", tournamentService.ReviewSubmission)
}
