package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/voiceloop/backend/internal/advantage"
	"github.com/voiceloop/backend/internal/api/handlers"
	"github.com/voiceloop/backend/internal/authenticity"
	"github.com/voiceloop/backend/internal/banned"
	"github.com/voiceloop/backend/internal/config"
	"github.com/voiceloop/backend/internal/database"
	"github.com/voiceloop/backend/internal/drift"
	"github.com/voiceloop/backend/internal/health"
	"github.com/voiceloop/backend/internal/learner"
	"github.com/voiceloop/backend/internal/middleware"
	"github.com/voiceloop/backend/internal/migration"
	"github.com/voiceloop/backend/internal/oracle"
	"github.com/voiceloop/backend/internal/recommender"
	"github.com/voiceloop/backend/internal/repository"
	"github.com/voiceloop/backend/internal/trainer"
	"github.com/voiceloop/backend/pkg/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	logger := utils.GetLogger()
	logger.Info("Starting voiceloop backend...")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := cfg.ValidateOracle(); err != nil {
		logger.WithError(err).Fatal("Oracle configuration validation failed")
	}

	dbConfig := &database.Config{
		DatabaseURL: cfg.Database.URL,
		RedisURL:    cfg.Redis.URL,
		LogLevel:    os.Getenv("LOG_LEVEL"),
	}

	dbManager, err := database.NewManager(dbConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database manager")
	}
	defer dbManager.Close()

	migrationRunner := migration.NewRunner(dbManager, logger)
	if err := migrationRunner.RunMigrations("./migrations"); err != nil {
		logger.WithError(err).Fatal("Migrations failed")
	}

	repoManager := repository.NewRepositoryManager(dbManager.DB)
	cache := database.NewCache(dbManager.Redis, logger)

	// Oracle client; all services consume it through the retry wrapper
	oracleClient := oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, logger)
	completer := oracleClient.WithRetry()

	// Learning pipeline
	registry := banned.NewRegistry(repoManager.BannedPatterns, cache, logger)
	engine := advantage.NewEngine(repoManager.FeedbackEvents, cfg.Learning, logger)
	learn := learner.NewLearner(
		repoManager.FeedbackEvents,
		repoManager.Signals,
		repoManager.Learnings,
		repoManager.NegativeExamples,
		registry,
		cfg.Learning,
		logger,
	)
	train := trainer.NewTrainer(engine, repoManager.Profiles, completer, cache, cfg.Learning, logger)
	recommend := recommender.NewRecommender(repoManager.FeedbackEvents, repoManager.NegativeExamples, train, completer, logger)
	scorer := authenticity.NewScorer(registry, logger)
	grader := authenticity.NewGrader(completer, scorer, cfg.Learning, logger)
	tracker := drift.NewTracker(repoManager.Snapshots, cfg.Learning, logger)

	// Health monitoring
	healthChecker := health.NewHealthChecker(dbManager, repoManager.SystemHealth, oracleClient, logger)
	healthCtx, cancelHealth := context.WithCancel(context.Background())
	defer cancelHealth()
	go healthChecker.PeriodicHealthCheck(healthCtx, 30*time.Second)

	// Handlers
	feedbackHandler := handlers.NewFeedbackHandler(learn, logger)
	recommendHandler := handlers.NewRecommendHandler(recommend, logger)
	authenticityHandler := handlers.NewAuthenticityHandler(scorer, grader, tracker, logger)
	trainingHandler := handlers.NewTrainingHandler(train, learn, tracker, logger)
	bannedHandler := handlers.NewBannedHandler(registry, logger)
	healthHandler := handlers.NewHealthHandler(healthChecker, logger)

	router := setupRouter(feedbackHandler, recommendHandler, authenticityHandler, trainingHandler, bannedHandler, healthHandler)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancelHealth()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
	}

	logger.Info("Server stopped")
}

func setupRouter(
	feedback *handlers.FeedbackHandler,
	recommend *handlers.RecommendHandler,
	auth *handlers.AuthenticityHandler,
	training *handlers.TrainingHandler,
	bannedHandler *handlers.BannedHandler,
	healthHandler *handlers.HealthHandler,
) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestID())

	rateLimiter := middleware.NewRateLimiter(60)
	router.Use(rateLimiter.RateLimit())

	router.GET("/health", healthHandler.HandleHealth)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/feedback", feedback.HandleFeedback)
		v1.POST("/feedback/edit", feedback.HandleEditFeedback)
		v1.POST("/feedback/text", feedback.HandleTextFeedback)
		v1.POST("/feedback/rejection", feedback.HandleRejection)
		v1.POST("/feedback/outcome", feedback.HandleOutcome)

		v1.GET("/banned/:user_id", bannedHandler.HandleListPatterns)
		v1.DELETE("/banned/:user_id", bannedHandler.HandleRemovePattern)

		v1.POST("/recommendations/rank", recommend.HandleRank)

		v1.POST("/authenticity/score", auth.HandleScore)
		v1.POST("/authenticity/grade", auth.HandleGrade)

		v1.POST("/training/:user_id/train", training.HandleTrain)
		v1.POST("/training/:user_id/consolidate", training.HandleConsolidate)
		v1.GET("/training/:user_id/learnings", training.HandleLearnings)
		v1.POST("/training/:user_id/snapshot", training.HandleSnapshot)
		v1.POST("/training/:user_id/rollback", training.HandleRollback)
	}

	return router
}
