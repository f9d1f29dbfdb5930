package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"competition-portal-system/handlers"
	"competition-portal-system/middleware"
	"competition-portal-system/models"
	"competition-portal-system/services"
	"competition-portal-system/utils"
	"competition-portal-system/workers"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 100 * 1024 * 1024, // 100MB — artwork uploads
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles, X-Service-Token, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Tournament{},
		&models.TournamentPhoto{},
		&models.Submission{},
		&models.Certificate{},
		&models.PortalUser{},
		&models.PaymentMirror{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	tournamentService := services.NewTournamentService(db)
	statsService := services.NewStatsService(db)

	// Certificate pipeline: store (idempotency), renderer (artifact),
	// mailer (notification), orchestrator (batch)
	certStore := services.NewCertificateStore(db)
	certRenderer := services.NewCertificateRenderer()
	certMailer := services.NewCertificateMailer()
	certService := services.NewCertificateService(db, certStore, certRenderer, certMailer)

	// --- Sync service configuration ---
	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	if syncServiceURL == "" {
		log.Fatal("SYNC_SERVICE_URL environment variable not set")
	}
	portalServiceToken := os.Getenv("PORTAL_SERVICE_TOKEN")
	if portalServiceToken == "" {
		log.Fatal("PORTAL_SERVICE_TOKEN environment variable not set")
	}

	authServiceURL := os.Getenv("AUTH_SERVICE_URL")
	if authServiceURL == "" {
		log.Fatal("AUTH_SERVICE_URL environment variable not set")
	}
	authClient := services.NewAuthServiceClient(authServiceURL, portalServiceToken)

	userSyncWorker := workers.NewPortalUserSyncWorker(db, syncServiceURL, "/api/v1/public/profiles", portalServiceToken)

	paymentSyncClient := workers.NewPaymentSyncClient(db)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go workers.PollPayments(ctx, paymentSyncClient, 30*time.Second)

	go func() {
		log.Println("Starting Portal User Sync Worker...")
		userSyncWorker.Start(ctx)
	}()

	tournamentService.StartPublishScheduler()
	certService.StartEmailRetryScheduler()

	// ✅ Setup routes — enforced Gateway auth globally
	handlers.SetupTournamentRoutes(app, tournamentService)
	handlers.SetupCertificateRoutes(app, certService, statsService, authClient)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Portal User Sync Worker running")
	log.Println("✅ Payment polling running (every 30s)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)
	if certMailer.Configured() {
		log.Println("✅ Certificate mailer configured")
	} else {
		log.Println("⚠️  Certificate mailer NOT configured — emails will be skipped")
	}

	<-ctx.Done()
	log.Println("Shutting down server...")
}
