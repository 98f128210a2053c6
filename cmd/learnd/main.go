package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/advantage"
	"github.com/voiceloop/backend/internal/banned"
	"github.com/voiceloop/backend/internal/config"
	"github.com/voiceloop/backend/internal/database"
	"github.com/voiceloop/backend/internal/drift"
	"github.com/voiceloop/backend/internal/learner"
	"github.com/voiceloop/backend/internal/oracle"
	"github.com/voiceloop/backend/internal/repository"
	"github.com/voiceloop/backend/internal/trainer"
	"github.com/voiceloop/backend/pkg/utils"
)

// Command line flags
var (
	userFlag = flag.String("user", "", "Process a single user (default: all users with feedback)")
	dryRun   = flag.Bool("dry-run", false, "Report what would be trained without writing anything")
	verbose  = flag.Bool("verbose", false, "Enable verbose logging")
	window   = flag.Int("window", 0, "Override the feedback lookback window in days (0 = config default)")
)

// batchRunner runs the periodic learning pass: train, consolidate, snapshot.
type batchRunner struct {
	engine  *advantage.Engine
	trainer *trainer.Trainer
	learner *learner.Learner
	tracker *drift.Tracker
	events  interface {
		DistinctUsers(since time.Time) ([]string, error)
	}
	cfg    config.LearningConfig
	logger *logrus.Logger
}

func main() {
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	logger := utils.GetLogger()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.Info("Starting learning batch run...")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if *window > 0 {
		cfg.Learning.LookbackDays = *window
	}

	if !*dryRun {
		if err := cfg.ValidateOracle(); err != nil {
			logger.WithError(err).Fatal("Oracle configuration validation failed")
		}
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

	repoManager := repository.NewRepositoryManager(dbManager.DB)
	cache := database.NewCache(dbManager.Redis, logger)

	oracleClient := oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, logger)
	completer := oracleClient.WithRetry()

	registry := banned.NewRegistry(repoManager.BannedPatterns, cache, logger)
	engine := advantage.NewEngine(repoManager.FeedbackEvents, cfg.Learning, logger)

	runner := &batchRunner{
		engine: engine,
		trainer: trainer.NewTrainer(
			engine, repoManager.Profiles, completer, cache, cfg.Learning, logger),
		learner: learner.NewLearner(
			repoManager.FeedbackEvents,
			repoManager.Signals,
			repoManager.Learnings,
			repoManager.NegativeExamples,
			registry,
			cfg.Learning,
			logger,
		),
		tracker: drift.NewTracker(repoManager.Snapshots, cfg.Learning, logger),
		events:  repoManager.FeedbackEvents,
		cfg:     cfg.Learning,
		logger:  logger,
	}

	ctx := context.Background()

	users, err := runner.resolveUsers()
	if err != nil {
		logger.WithError(err).Fatal("Failed to resolve users")
	}
	if len(users) == 0 {
		logger.Info("No users with recent feedback, nothing to do")
		return
	}

	logger.WithField("users", len(users)).Info("Processing users")

	failures := 0
	for i, userID := range users {
		runner.logger.WithFields(logrus.Fields{
			"user_id":  userID,
			"progress": fmt.Sprintf("%d/%d", i+1, len(users)),
		}).Info("Processing user")

		if err := runner.processUser(ctx, userID); err != nil {
			runner.logger.WithError(err).WithField("user_id", userID).Error("Failed to process user")
			failures++
		}
	}

	logger.WithFields(logrus.Fields{
		"processed": len(users) - failures,
		"failures":  failures,
	}).Info("Learning batch run completed")

	if failures > 0 {
		os.Exit(1)
	}
}

func (r *batchRunner) resolveUsers() ([]string, error) {
	if *userFlag != "" {
		return []string{*userFlag}, nil
	}
	since := time.Now().AddDate(0, 0, -r.cfg.LookbackDays)
	return r.events.DistinctUsers(since)
}

func (r *batchRunner) processUser(ctx context.Context, userID string) error {
	if *dryRun {
		samples, err := r.engine.ComputeSamples(userID, r.cfg.LookbackDays)
		if err != nil {
			return err
		}
		r.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"samples": len(samples),
			"trained": len(samples) >= r.cfg.MinTrainingSamples,
		}).Info("DRY RUN: training eligibility")
		return nil
	}

	profile, err := r.trainer.TrainUserModel(ctx, userID)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	if profile != nil {
		r.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"version": profile.Version,
		}).Info("Trained profile version")
	}

	report, err := r.learner.Consolidate(ctx, userID)
	if err != nil {
		return fmt.Errorf("consolidation failed: %w", err)
	}
	r.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"promoted": report.PromotedPatterns,
		"pruned":   report.Pruned,
	}).Debug("Consolidation report")

	// Keep the scheduled snapshot cadence alive. The blended historical
	// profile drifts slowly, so this only fires the interval-based trigger;
	// drift-based snapshots come in through the API with fresh profiles.
	current, err := r.tracker.TimeWeightedProfile(ctx, userID, 10)
	if err != nil {
		return fmt.Errorf("profile blend failed: %w", err)
	}
	if current != nil {
		if _, _, err := r.tracker.CheckAndSnapshot(ctx, userID, current); err != nil {
			return fmt.Errorf("snapshot check failed: %w", err)
		}
	}

	return nil
}
