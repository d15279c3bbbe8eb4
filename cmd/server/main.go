package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"paranotes/internal/config"
	"paranotes/internal/database"
	"paranotes/internal/handlers"
	"paranotes/internal/jobs"
	"paranotes/internal/logging"
	"paranotes/internal/middleware"
	"paranotes/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting ParaNotes Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, Namespace: %s)", cfg.Port, cfg.NotesNamespace)

	// Note store: MongoDB, then SQL, then in-memory
	var store services.NoteStore
	var closeStore func()
	switch {
	case cfg.MongoURI != "":
		mongoDB, err := database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
		}
		store = services.NewMongoNoteStore(mongoDB, cfg.NotesNamespace)
		closeStore = func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mongoDB.Close(ctx)
		}
	case cfg.NotesDBURL != "":
		db, err := database.New(cfg.NotesDBURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to database: %v", err)
		}
		store = services.NewSQLNoteStore(db, cfg.NotesNamespace)
		closeStore = func() { db.Close() }
	default:
		log.Println("⚠️  No MONGODB_URI or NOTES_DATABASE_URL set, notes are kept in memory only")
		store = services.NewMemoryNoteStore()
		closeStore = func() {}
	}
	defer closeStore()

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.EnsureSchema(schemaCtx); err != nil {
		log.Fatalf("❌ Failed to initialize note store: %v", err)
	}
	cancelSchema()

	// Redis is optional: shared rate limits and the cross-instance maintenance lock
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		var err error
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, falling back to local limits: %v", err)
			redisService = nil
		} else {
			defer redisService.Close()
		}
	}

	metrics := services.NewMetrics(prometheus.DefaultRegisterer)

	llmClient := services.NewLLMClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	classifier := services.NewClassifierService(llmClient, cfg.ConfidenceThreshold, cfg.ClassifierTimeout, metrics)
	slackClient := services.NewSlackClient(services.DefaultSlackAPIURL, cfg.SlackBotToken, cfg.ChatTimeout, metrics)

	reactions := services.Reactions{
		Done:   cfg.SlackDoneReaction,
		Delete: cfg.SlackDeleteReaction,
		Ack:    cfg.SlackAckReaction,
	}

	guard := services.NewDuplicateGuard(store, 10*time.Minute)
	qa := services.NewQAService(store, classifier, cfg.SearchMaxResults, cfg.QATopN)
	router := services.NewEventRouter(store, classifier, guard, qa, slackClient, reactions, metrics)
	router.SetRateLimiter(services.NewEventRateLimiter(redisService, cfg.RateLimitMax, cfg.RateLimitWindow))

	reminderService := services.NewReminderService(store, slackClient, cfg.ReminderTiers, cfg.ReminderCapPerRun, reactions, metrics)
	statusSyncService := services.NewStatusSyncService(store, slackClient, cfg.SyncCapPerRun, reactions, metrics)
	maintenanceJob := jobs.NewMaintenanceJob(reminderService, statusSyncService, redisService, cfg.MaintenanceTimeout)

	var jobScheduler *jobs.JobScheduler
	if cfg.SchedulerEnabled {
		var err error
		jobScheduler, err = jobs.NewJobScheduler()
		if err != nil {
			log.Fatalf("❌ Failed to create job scheduler: %v", err)
		}
		if err := jobScheduler.Register(jobs.MaintenanceJobName, cfg.MaintenanceCron, maintenanceJob); err != nil {
			log.Fatalf("❌ Failed to register maintenance job: %v", err)
		}
		jobScheduler.Start()
	} else {
		log.Println("⏸️  In-process scheduler disabled, expecting POST /api/cron/maintenance")
	}

	app := fiber.New(fiber.Config{
		AppName:      "ParaNotes v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.MaintenanceTimeout + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	fiberProm := fiberprometheus.New("paranotes")
	fiberProm.RegisterAt(app, "/metrics")
	app.Use(fiberProm.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Webhook=%d/min, Trigger=%d/min",
		rateLimitConfig.WebhookMax,
		rateLimitConfig.TriggerMax,
	)

	healthHandler := handlers.NewHealthHandler()
	healthHandler.AddCheck("store", store.Ping)
	if redisService != nil {
		healthHandler.AddCheck("redis", redisService.Ping)
	}

	if cfg.SlackSigningSecret == "" {
		log.Println("⚠️  SLACK_SIGNING_SECRET not set, Slack requests are not verified")
	}
	slackHandler := handlers.NewSlackEventsHandler(router, cfg.SlackSigningSecret, cfg.SlackChannelID, cfg.ClassifierTimeout+2*cfg.ChatTimeout+30*time.Second)
	maintenanceHandler := handlers.NewMaintenanceHandler(maintenanceJob)

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")
	api.Post("/slack/events", middleware.WebhookRateLimiter(rateLimitConfig), slackHandler.HandleEvents)
	api.Post("/cron/maintenance",
		middleware.TriggerRateLimiter(rateLimitConfig),
		middleware.CronAuthMiddleware(cfg.CronSecret),
		maintenanceHandler.Trigger,
	)

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("💬 Slack events: http://localhost:%s/api/slack/events", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	if jobScheduler != nil {
		log.Printf("🕐 Background jobs: maintenance (%s)", cfg.MaintenanceCron)
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if jobScheduler != nil {
			jobScheduler.Stop()
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
