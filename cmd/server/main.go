package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"school-library/internal/adapters/http/middleware"
	"school-library/internal/adapters/http/routes"
	"school-library/internal/adapters/mail"
	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/storage"
	"school-library/internal/config"
	"school-library/internal/core/services"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"

	_ "school-library/docs" // Swagger docs
)

// @title School Library API
// @version 1.0
// @description Catalog, membership and circulation service for a school library.

// @contact.name Library IT
// @contact.email library-it@school.example

// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	// Tracing and metrics
	telemetry, err := config.SetupTelemetry(context.Background(), cfg)
	if err != nil {
		log.Fatalf("❌ Failed to set up telemetry: %v", err)
	}

	// Connect to database
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer config.CloseDatabase()

	// Auto migrate (creates tables if not exist)
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("❌ Failed to auto migrate: %v", err)
	}
	log.Println("✅ Database migration completed")

	// Default policy, plus the admin account in dev mode
	if err := config.NewSeeder(db, cfg).Run(); err != nil {
		log.Printf("⚠️ Warning: Failed to seed data: %v", err)
	}

	files, err := storage.NewLocal(cfg.Upload.Dir, cfg.Upload.MaxSizeMB)
	if err != nil {
		log.Fatalf("❌ Failed to prepare upload directory: %v", err)
	}
	mailer := mail.NewSMTPMailer(cfg.Mail)
	if !mailer.Enabled() {
		log.Println("⚠️ SMTP not configured, emails will not be sent")
	}

	svc := services.NewContainer(db, cfg, files, mailer)

	// Scheduled maintenance (fines, overdue reminders, token cleanup)
	if cfg.Cron.Enabled {
		if err := svc.Maintenance.Start(); err != nil {
			log.Fatalf("❌ Failed to start scheduler: %v", err)
		}
		defer svc.Maintenance.Stop()
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "School Library API v1.0",
		ErrorHandler: middleware.CustomErrorHandler,
		BodyLimit:    (cfg.Upload.MaxSizeMB + 1) << 20,
		JSONEncoder:  jsoniter.ConfigCompatibleWithStandardLibrary.Marshal,
		JSONDecoder:  jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal,
	})

	// Setup middlewares
	middleware.Setup(app, cfg)

	// Setup routes
	routes.Setup(app, cfg, svc, routes.Options{
		UploadDir: files.Root(),
		Metrics:   telemetry.Reader,
	})

	// Graceful shutdown
	done := make(chan struct{})
	go gracefulShutdown(app, svc.Events, telemetry, done)

	// Start server
	log.Printf("🚀 Server starting on port %s [MODE: %s]", cfg.Port, cfg.AppMode)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}

	// Listen returns as soon as shutdown begins; wait for the flush
	<-done
}

// gracefulShutdown handles graceful shutdown and closes done when finished
func gracefulShutdown(app *fiber.App, events *services.EventHub, telemetry *config.Telemetry, done chan<- struct{}) {
	defer close(done)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	// Event streams never finish on their own
	events.Close()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("❌ Error during shutdown: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := telemetry.Shutdown(ctx); err != nil {
		log.Printf("❌ Error flushing telemetry: %v", err)
	}
	log.Println("✅ Server stopped gracefully")
}
