package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/voxhire/voxhire/config"
	"github.com/voxhire/voxhire/internal/api/handlers"
	"github.com/voxhire/voxhire/internal/api/middleware"
	"github.com/voxhire/voxhire/internal/api/routes"
	"github.com/voxhire/voxhire/internal/cache"
	"github.com/voxhire/voxhire/internal/logger"
	"github.com/voxhire/voxhire/internal/models"
	"github.com/voxhire/voxhire/internal/providers/analysis"
	"github.com/voxhire/voxhire/internal/providers/transcribe"
	mongorepo "github.com/voxhire/voxhire/internal/repositories/mongo"
	pgrepo "github.com/voxhire/voxhire/internal/repositories/postgres"
	"github.com/voxhire/voxhire/internal/services"
	"github.com/voxhire/voxhire/internal/storage"
	"github.com/voxhire/voxhire/internal/workers"
)

func main() {
	_ = godotenv.Load()

	l := logger.New()

	// Init PostgreSQL
	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	fmt.Println("PostgreSQL connected")

	// Init MongoDB
	if err := config.InitMongo(); err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.Fatalf("MongoDB index error: %v", err)
	}
	fmt.Println("MongoDB connected")

	// Init Redis
	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	fmt.Println("Redis connected")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipe := config.LoadPipeline()

	// Repositories
	tokenRepo := pgrepo.NewTokenRepo(config.PostgresDB)
	sessionRepo := pgrepo.NewSessionRepo(config.PostgresDB)
	recordingRepo := pgrepo.NewRecordingRepo(config.PostgresDB)
	interviewRepo := pgrepo.NewInterviewRepo(config.PostgresDB)
	questionRepo := pgrepo.NewQuestionRepo(config.PostgresDB)
	assessmentRepo := mongorepo.NewAssessmentRepo(config.MongoClient.Database(config.MongoDBName()))

	statusCache := cache.NewRedisCache(config.RedisClient)

	// Storage: GCS when a bucket is configured, local disk otherwise.
	var store storage.Store
	storageType := models.StorageLocal
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		gcs, err := storage.NewGCSStore(ctx, bucket)
		if err != nil {
			log.Fatalf("GCS init error: %v", err)
		}
		defer gcs.Close()
		store = gcs
		storageType = models.StorageRemote
	} else {
		dir := os.Getenv("RECORDINGS_DIR")
		if dir == "" {
			dir = "./recordings"
		}
		local, err := storage.NewLocalStore(dir)
		if err != nil {
			log.Fatalf("local storage init error: %v", err)
		}
		store = local
	}

	sttLang := os.Getenv("STT_LANGUAGE")
	if sttLang == "" {
		sttLang = "en-US"
	}
	stt, err := transcribe.NewGoogleSpeech(ctx, sttLang)
	if err != nil {
		log.Fatalf("Speech init error: %v", err)
	}
	defer stt.Close()

	modelName := os.Getenv("VERTEX_MODEL")
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	llm, err := analysis.NewVertexGemini(ctx, os.Getenv("GCP_PROJECT"), os.Getenv("GCP_LOCATION"), modelName)
	if err != nil {
		log.Fatalf("Vertex init error: %v", err)
	}
	defer llm.Close()

	// Services
	tokenSvc := services.NewTokenService(tokenRepo, sessionRepo, interviewRepo, l)
	recordingSvc := services.NewRecordingService(recordingRepo, sessionRepo, questionRepo, tokenRepo, store, stt, services.RecordingConfig{
		Workers:      pipe.TranscribeWorkers,
		RetryCeiling: pipe.RetryCeiling,
		BackoffBase:  pipe.RetryBase,
		BackoffCap:   pipe.RetryCap,
		StorageType:  storageType,
	}, l)
	batchSvc := services.NewBatchService(sessionRepo, recordingRepo, questionRepo, tokenRepo, recordingSvc, llm, assessmentRepo, statusCache, services.BatchConfig{
		AllowPartialAnalysis: pipe.AllowPartialAnalysis,
	}, l)

	// Background workers
	dispatcher := workers.NewDispatcher(batchSvc, recordingSvc, pipe.QueueWorkers, pipe.QueueSize, l)
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	scheduler := workers.NewRetryScheduler(recordingRepo, dispatcher, pipe.SweepInterval, pipe.RetryCeiling, l)
	go scheduler.Run(ctx)

	sessionSvc := services.NewSessionService(tokenSvc, tokenRepo, sessionRepo, recordingRepo, dispatcher, statusCache, pipe.StatusCacheTTL, l)

	// HTTP
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(l))

	routes.RegisterRoutes(r, routes.Deps{
		Candidate:   handlers.NewCandidateHandler(tokenSvc, sessionSvc, recordingSvc),
		Interviewer: handlers.NewInterviewerHandler(tokenSvc, sessionSvc, recordingSvc, batchSvc, interviewRepo, dispatcher),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
