package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"essay-corrector-backend/internal/config"
	"essay-corrector-backend/internal/database"
	"essay-corrector-backend/internal/handlers"
	"essay-corrector-backend/internal/llm"
	"essay-corrector-backend/internal/logging"
	"essay-corrector-backend/internal/memstore"
	"essay-corrector-backend/internal/s3store"
	"essay-corrector-backend/internal/services"
	"essay-corrector-backend/internal/supabase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logging.New(cfg)

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := newRepository(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer closeRepo()

	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize object storage")
	}
	if store == nil {
		log.Warn("Object storage disabled. Uploads will be rejected.")
	}

	transcriber, err := newTranscriber(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize vision model client")
	}
	corrector, err := newCorrector(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize correction model client")
	}

	essays := services.NewEssayService(repo, store, transcriber, corrector, services.OptionsFromConfig(cfg), log)
	router := handlers.NewRouter(cfg, log, essays)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AIRequestTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}

// newRepository connects to Postgres and migrates it when DATABASE_URL is
// set; otherwise records live in memory for the life of the process.
func newRepository(ctx context.Context, cfg *config.Config, log *logrus.Logger) (services.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set. Using in-memory storage; data is lost on restart.")
		return memstore.New(), func() {}, nil
	}

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.NewMigrator(db, log).Run(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return supabase.NewDatabaseClient(db), func() { db.Close() }, nil
}

func newObjectStore(ctx context.Context, cfg *config.Config) (services.ObjectStore, error) {
	switch cfg.StorageBackend {
	case config.StorageSupabase:
		client, err := supabase.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return client.StorageClient(), nil
	case config.StorageS3:
		return s3store.New(ctx, cfg)
	default:
		return nil, nil
	}
}

func newTranscriber(ctx context.Context, cfg *config.Config) (services.Transcriber, error) {
	if cfg.VisionProvider == config.ProviderOpenAI {
		return llm.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIVisionModel, cfg.OpenAITextModel, cfg.AIMaxAttempts), nil
	}
	return llm.NewGeminiClient(ctx, cfg.GoogleAPIKey, cfg.GeminiVisionModel, cfg.GeminiTextModel, cfg.AIMaxAttempts)
}

func newCorrector(ctx context.Context, cfg *config.Config) (services.Corrector, error) {
	if cfg.CorrectionProvider == config.ProviderOpenAI {
		return llm.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIVisionModel, cfg.OpenAITextModel, cfg.AIMaxAttempts), nil
	}
	return llm.NewGeminiClient(ctx, cfg.GoogleAPIKey, cfg.GeminiVisionModel, cfg.GeminiTextModel, cfg.AIMaxAttempts)
}
