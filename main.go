package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shifahealth/adherence-backend/internal/audit"
	"github.com/shifahealth/adherence-backend/internal/calendar"
	"github.com/shifahealth/adherence-backend/internal/config"
	"github.com/shifahealth/adherence-backend/internal/engine"
	"github.com/shifahealth/adherence-backend/internal/handler"
	"github.com/shifahealth/adherence-backend/internal/middleware"
	"github.com/shifahealth/adherence-backend/internal/pdf"
	"github.com/shifahealth/adherence-backend/internal/repository"
	"github.com/shifahealth/adherence-backend/internal/security"
	"github.com/shifahealth/adherence-backend/internal/service"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize Zap logger
	var logger *zap.Logger
	if cfg.Server.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
	)

	// Initialize database connection pool with pgx
	pool, err := pgxpool.New(context.Background(), cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	// Test database connection
	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	logger.Info("Successfully connected to database")

	// Initialize encryption for the cultural-factors column
	encryptor, err := security.NewEncryptor([]byte(cfg.Security.ProfileEncryptionKey))
	if err != nil {
		logger.Fatal("Failed to initialize encryptor", zap.Error(err))
	}

	// Initialize storage and the cultural calendar
	eventStore := repository.NewEventStore(pool, encryptor, logger)
	calendarProvider := calendar.NewStaticProvider(logger)

	// Initialize the analysis engine
	analyzer := engine.NewConflictAnalyzer(calendarProvider, cfg.Engine, logger)
	calculator := engine.NewCalculator(cfg.Engine, logger)
	detector := engine.NewPatternDetector(cfg.Engine, logger)
	predictor := engine.NewRiskPredictor(analyzer, cfg.Engine, logger)
	insightGen := engine.NewInsightGenerator(cfg.Engine, logger)
	profileCache := engine.NewProfileCache(cfg.Engine.CacheTTL)

	analytics := engine.NewAnalyticsService(
		eventStore,
		profileCache,
		calculator,
		analyzer,
		detector,
		predictor,
		insightGen,
		cfg.Engine,
		logger,
	)
	recorder := engine.NewRecorder(eventStore, analyzer, analytics, cfg.Engine, logger)

	// Initialize audit logging and the erasure service
	auditLogger := audit.NewLogger(pool, logger)
	erasureService := service.NewErasureService(eventStore, analytics, auditLogger, logger)

	// Initialize PDF generator
	pdfGenerator := pdf.NewPDFGenerator(logger)

	// Initialize handlers
	adherenceHandler := handler.NewAdherenceHandler(recorder, analytics, auditLogger, logger)
	reportHandler := handler.NewReportHandler(analytics, pdfGenerator, auditLogger, cfg.Engine.WindowDays, logger)
	erasureHandler := handler.NewErasureHandler(erasureService, logger)
	systemHandler := handler.NewSystemHandler(pool, logger)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Gin router
	r := gin.New()

	// Add recovery middleware (must be first)
	r.Use(middleware.RecoveryMiddleware(logger))

	// Add CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Configure appropriately for production
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Add request ID middleware
	r.Use(middleware.RequestIDMiddleware())

	// Add request logging middleware
	r.Use(middleware.RequestLoggingMiddleware(logger))

	// Add error logging middleware
	r.Use(middleware.ErrorLoggingMiddleware(logger))

	// Add slow request logging middleware
	r.Use(middleware.SlowRequestLoggingMiddleware(logger, 1*time.Second))

	// Register routes
	r.GET("/health", systemHandler.GetHealth)

	v1 := r.Group("/api/v1")
	{
		adherence := v1.Group("/adherence")
		{
			adherence.POST("/events", adherenceHandler.PostAdherenceEvents)
			adherence.GET("/profile/:userId", adherenceHandler.GetAdherenceProfile)
			adherence.GET("/insights/:userId/:medicationId", adherenceHandler.GetMedicationInsights)
			adherence.GET("/risk/:userId/:medicationId", adherenceHandler.GetRiskPrediction)
			adherence.GET("/reminder-slot", adherenceHandler.GetReminderSlot)
			adherence.GET("/report/:userId", reportHandler.GetAdherenceReport)
		}

		users := v1.Group("/users")
		{
			users.DELETE("/:userId/data", erasureHandler.DeleteUserData)
			users.GET("/:userId/data", erasureHandler.ExportUserData)
			users.GET("/:userId/audit-logs", erasureHandler.GetAuditTrail)
		}
	}

	// Start the background analysis loop
	bgCtx, bgCancel := context.WithCancel(context.Background())
	go analytics.Run(bgCtx)

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the background loop before closing the database
	bgCancel()

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	analytics.Shutdown()

	// Close database connections
	pool.Close()

	logger.Info("Server exited")
}
