// ~/Documents/CODING/certvault/main.go
package main

import (
	"log"
	"os"
	"time"

	"certvault/database"
	"certvault/handlers"
	"certvault/handlers/admin"
	"certvault/middleware"
	"certvault/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// Validate critical environment variables
	validateEnvironment()

	// Initialize database
	database.InitDB()
	db := database.GetDB()
	defer database.CloseDB()

	// Wire services
	searchService := services.NewSearchIndexService(db)
	settingsService := services.NewSettingsService(db)

	attachmentRoot, err := settingsService.Get(services.SettingAttachmentRoot, getEnv("ATTACHMENT_ROOT", "./data/attachments"))
	if err != nil {
		log.Fatalf("❌ Failed to read settings: %v", err)
	}
	attachmentService := services.NewAttachmentService(db, attachmentRoot)
	if err := attachmentService.EnsureRoot(); err != nil {
		log.Fatalf("❌ Failed to create attachment root %s: %v", attachmentRoot, err)
	}

	flagService := services.NewFlagService(db)
	awardService := services.NewAwardService(db, searchService, attachmentService, flagService)
	memberService := services.NewMemberService(db, searchService)
	importService := services.NewImportService(db, awardService, flagService)
	exportService := services.NewExportService(awardService, flagService)
	statsService := services.NewStatsService(db)

	handlers.Init(awardService, memberService, flagService, attachmentService,
		importService, exportService, statsService, searchService, settingsService)
	admin.Init(searchService, settingsService)

	// Backfill the search index after a fresh migration or restore
	if rebuilt, err := searchService.RebuildIfEmpty(); err != nil {
		log.Printf("⚠️ Search index backfill failed: %v", err)
	} else if rebuilt {
		log.Println("🔄 Search index rebuilt from primary tables")
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    64 * 1024 * 1024, // spreadsheet uploads
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))

	// CORS configuration
	corsOrigins := os.Getenv("CORS_ORIGINS")
	if corsOrigins == "" {
		corsOrigins = "http://localhost:3000"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))

	// Apply rate limiting to all routes
	app.Use(middleware.RateLimitMiddleware())

	// API Routes
	api := app.Group("/api")

	// Public read-only routes
	api.Get("/awards", handlers.GetAwards)
	api.Get("/awards/:id", handlers.GetAward)
	api.Get("/members", handlers.GetMembers)
	api.Get("/members/:id", handlers.GetMember)
	api.Get("/flags", handlers.GetFlags)
	api.Get("/stats", handlers.GetStats)
	api.Get("/export", handlers.ExportAwards)
	api.Get("/template", handlers.DownloadTemplate)

	// Admin login with stricter rate limiting
	adminGroup := api.Group("/admin")
	adminGroup.Post("/login", middleware.AuthRateLimitMiddleware(), admin.Login)
	adminGroup.Post("/logout", admin.Logout)

	// Every mutating route requires an admin token
	protected := api.Group("", middleware.AdminAuthMiddleware)

	protected.Post("/awards", handlers.CreateAward)
	protected.Put("/awards/:id", handlers.UpdateAward)
	protected.Delete("/awards/:id", handlers.DeleteAward)
	protected.Post("/awards/batch-delete", handlers.BatchDeleteAwards)
	protected.Post("/awards/batch-update", handlers.BatchUpdateAwards)
	protected.Put("/awards/:id/flags", handlers.SetAwardFlags)

	protected.Post("/members", handlers.CreateMember)
	protected.Put("/members/:id", handlers.UpdateMember)
	protected.Delete("/members/:id", handlers.DeleteMember)

	protected.Post("/flags", handlers.CreateFlag)
	protected.Put("/flags/:key", handlers.UpdateFlag)
	protected.Delete("/flags/:key", handlers.DeleteFlag)

	// Recycle bin
	protected.Get("/trash/awards", handlers.GetDeletedAwards)
	protected.Post("/trash/awards/:id/restore", handlers.RestoreAward)
	protected.Delete("/trash/awards/:id", handlers.PurgeAward)
	protected.Get("/trash/attachments", handlers.GetDeletedAttachments)
	protected.Post("/attachments/delete", handlers.DeleteAttachments)
	protected.Post("/trash/attachments/restore", handlers.RestoreAttachments)
	protected.Delete("/trash/attachments", handlers.PurgeAttachments)

	// Bulk import
	protected.Post("/imports", handlers.UploadImport)
	protected.Get("/imports/jobs", handlers.GetImportJobs)
	protected.Get("/imports/jobs/:jobId", handlers.GetImportJob)

	// Protected admin maintenance routes
	adminProtected := adminGroup.Group("", middleware.AdminAuthMiddleware)
	adminProtected.Get("/verify", admin.VerifyToken)
	adminProtected.Post("/search/rebuild", admin.RebuildSearchIndex)
	adminProtected.Get("/settings", admin.GetSettings)
	adminProtected.Put("/settings", admin.UpdateSettings)

	// Import progress stream
	app.Use("/ws", handlers.RequireWebSocketUpgrade)
	app.Get("/ws/imports/:uploadId", handlers.ImportProgressSocket())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
			"version":   "1.0.0",
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	log.Printf("🚀 HTTP server starting on port %s", port)
	log.Printf("📊 Environment: %s", getEnv("APP_ENV", "development"))
	log.Printf("🔐 JWT Secret configured: %v", os.Getenv("JWT_SECRET") != "")
	log.Printf("📎 Attachment root: %s", attachmentRoot)

	if err := app.Listen(":" + port); err != nil {
		log.Fatal("Failed to start HTTP server:", err)
	}
}

// validateEnvironment checks for required environment variables
func validateEnvironment() {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("FATAL: JWT_SECRET environment variable must be set. Generate one with: openssl rand -base64 64")
	}
	if len(jwtSecret) < 32 {
		log.Fatal("FATAL: JWT_SECRET must be at least 32 characters long")
	}

	if os.Getenv("ADMIN_PASSWORD_HASH") == "" {
		log.Println("WARNING: ADMIN_PASSWORD_HASH not set; admin login is disabled")
	}

	appEnv := os.Getenv("APP_ENV")
	if appEnv == "production" {
		corsOrigins := os.Getenv("CORS_ORIGINS")
		if corsOrigins == "" || corsOrigins == "http://localhost:3000" {
			log.Println("WARNING: CORS_ORIGINS not properly configured for production")
		}
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Don't expose internal errors in production
	if os.Getenv("APP_ENV") == "production" && code == 500 {
		message = "An error occurred. Please try again later."
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
