package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hirecorrecto/interview-orchestrator/internal/config"
	"hirecorrecto/interview-orchestrator/internal/handlers"
	"hirecorrecto/interview-orchestrator/internal/repositories"
	"hirecorrecto/interview-orchestrator/internal/services"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log.Println("✅ Config loaded successfully")

	// Initialize database
	db, err := config.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Initializes repositories
	docRepo := repositories.NewDocumentRepository(db)
	interviewRepo := repositories.NewInterviewRepository(db)
	conversationRepo := repositories.NewConversationRepository(
		db,
		cfg.Persistence.TurnWriteMaxAttempts,
		cfg.Persistence.TurnWriteBackoff,
	)
	log.Println("✅ Repositories initialized successfully")

	// Initialize services
	storageService := services.NewStorageService(cfg.Storage.UploadPath)
	if err := storageService.EnsureUploadDir(); err != nil {
		log.Fatalf("❌ Failed to create upload directory: %v", err)
	}

	pdfParser := services.NewPDFParserService(0)

	pricing, err := loadPricing(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to load pricing table: %v", err)
	}
	usage := services.NewUsageAccountant(pricing)
	log.Println("✅ Services initialized successfully")

	// Initialize Gemini AI
	geminiService, err := services.NewGeminiService(cfg.Gemini.APIKey, cfg.Gemini.EmbedModel)
	if err != nil {
		log.Fatalf("❌ Failed to initialize Gemini AI: %v", err)
	}
	log.Printf("✅ Gemini AI initialized successfully (models: %v)\n", cfg.Gemini.Models)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engineOpts := []services.QuestionEngineOption{
		services.WithAskedQuestionLookup(interviewRepo),
	}

	// Initialize Qdrant
	if cfg.Qdrant.Enabled {
		qdrantService, err := services.NewQdrantService(
			cfg.Qdrant.URL,
			cfg.Qdrant.APIKey,
			cfg.Qdrant.Collection,
			geminiService,
		)
		if err != nil {
			log.Fatalf("❌ Failed to initialize Qdrant: %v", err)
		}

		if err := qdrantService.InitCollection(ctx); err != nil {
			log.Fatalf("❌ Failed to initialize Qdrant collection: %v", err)
		}
		engineOpts = append(engineOpts, services.WithReferenceIndex(qdrantService))
		log.Println("✅ Qdrant initialized successfully")
	} else {
		log.Println("ℹ️  Qdrant disabled, reference questions come straight from the optional pool")
	}

	// Initialize interview services
	engine := services.NewQuestionEngine(geminiService, cfg.Gemini.Models, engineOpts...)
	registry := services.NewSessionRegistry(services.RegistryConfig{
		Models: cfg.Gemini.Models,
		Transcript: services.TranscriptConfig{
			CoalesceWindow: cfg.Interview.CoalesceWindow,
			Debounce:       cfg.Interview.FollowUpDebounce,
			MinChars:       cfg.Interview.FollowUpMinChars,
			MinConfidence:  cfg.Interview.FollowUpMinConfidence,
		},
		DeflectionModelCheck: cfg.Interview.DeflectionModelCheck,
		IdleTTL:              cfg.Worker.SessionIdleTTL,
	}, geminiService, engine, usage)
	recorder := services.NewSessionRecorder(interviewRepo, conversationRepo)
	log.Println("✅ Session registry initialized")

	// Initialize worker
	worker := services.NewWorker(
		registry,
		recorder,
		cfg.Worker.Concurrency,
		cfg.Worker.SweepInterval,
	)

	// Start worker
	worker.Start(ctx)

	// Initialize Handlers
	uploadHandler := handlers.NewUploadHandler(
		docRepo,
		storageService,
		pdfParser,
		cfg.Storage.MaxFileSize,
	)
	interviewHandler := handlers.NewInterviewHandler(registry, recorder, docRepo)
	answerHandler := handlers.NewAnswerHandler(
		registry,
		recorder,
		worker,
		storageService,
		cfg.Storage.MaxFileSize,
		cfg.Server.RequestTimeout,
	)
	resultHandler := handlers.NewResultHandler(interviewRepo, conversationRepo)
	log.Println("✅ Handlers initialized")

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Interview Orchestrator API",
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout,
		BodyLimit:    int(cfg.Storage.MaxFileSize),
		ErrorHandler: customErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Routes
	api := app.Group("/api/v1")

	// Health check
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":          "healthy",
			"time":            time.Now(),
			"active_sessions": registry.ActiveSessions(),
		})
	})

	// API endpoints
	api.Post("/upload", uploadHandler.HandleUpload)

	sessions := api.Group("/sessions")
	sessions.Post("/", interviewHandler.HandleStartSession)
	sessions.Get("/:id", interviewHandler.HandleGetSession)
	sessions.Post("/:id/transcript", interviewHandler.HandleTranscript)
	sessions.Post("/:id/silence", interviewHandler.HandleSilence)
	sessions.Post("/:id/intent", interviewHandler.HandleIntent)
	sessions.Post("/:id/answers", answerHandler.HandleSubmitAnswer)
	sessions.Post("/:id/recommendation", interviewHandler.HandleRecommendation)
	sessions.Delete("/:id", interviewHandler.HandleEndSession)

	api.Get("/interviews/:id", resultHandler.HandleGetResult)

	// Root route
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Interview Orchestrator API",
			"version": "1.0.0",
			"endpoints": []string{
				"POST /api/v1/upload",
				"POST /api/v1/sessions",
				"GET /api/v1/sessions/:id",
				"POST /api/v1/sessions/:id/transcript",
				"POST /api/v1/sessions/:id/silence",
				"POST /api/v1/sessions/:id/intent",
				"POST /api/v1/sessions/:id/answers",
				"POST /api/v1/sessions/:id/recommendation",
				"DELETE /api/v1/sessions/:id",
				"GET /api/v1/interviews/:id",
				"GET /metrics",
			},
		})
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("\n🛑 Shutting down server...")
		if err := app.Shutdown(); err != nil {
			log.Printf("❌ Server forced to shutdown: %v", err)
		}
		worker.Stop()
		cancel()
	}()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("🚀 Server starting on %s\n", addr)
	log.Printf("📖 API Documentation: http://localhost%s\n", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// loadPricing reads the pricing file when one is configured and applies the
// environment overrides on top.
func loadPricing(cfg *config.Config) (*services.PricingTable, error) {
	pricing := services.DefaultPricing()
	if cfg.Pricing.File != "" {
		loaded, err := services.LoadPricing(cfg.Pricing.File)
		if err != nil {
			return nil, err
		}
		pricing = loaded
		log.Printf("✅ Pricing loaded from %s\n", cfg.Pricing.File)
	}

	if cfg.Pricing.DefaultModel != "" {
		if _, ok := pricing.Models[cfg.Pricing.DefaultModel]; !ok {
			return nil, fmt.Errorf("default pricing model %q has no price row", cfg.Pricing.DefaultModel)
		}
		pricing.DefaultModel = cfg.Pricing.DefaultModel
	}
	if cfg.Pricing.ExchangeRate > 0 {
		pricing.ExchangeRate = cfg.Pricing.ExchangeRate
	}
	if cfg.Pricing.Currency != "" {
		pricing.Currency = cfg.Pricing.Currency
	}
	return pricing, nil
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
