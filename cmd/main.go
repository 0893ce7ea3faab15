package main

import (
  "context"
  "fmt"
  "os"

  "github.com/medvault/medvault-backend/internal/agents"
  "github.com/medvault/medvault-backend/internal/db"
  "github.com/medvault/medvault-backend/internal/extract"
  "github.com/medvault/medvault-backend/internal/handlers"
  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/middleware"
  "github.com/medvault/medvault-backend/internal/repos"
  "github.com/medvault/medvault-backend/internal/server"
  "github.com/medvault/medvault-backend/internal/services"
  "github.com/medvault/medvault-backend/internal/tasks"
  "github.com/medvault/medvault-backend/internal/types"
  "github.com/medvault/medvault-backend/internal/utils"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  ctx := context.Background()

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Error("Postgres auto migration failed", "error", err)
    os.Exit(1)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up repos from main...")
  userRepo := repos.NewUserRepo(thePG, log)
  patientRepo := repos.NewPatientRepo(thePG, log)
  recordRepo := repos.NewRecordRepo(thePG, log)
  recordTextRepo := repos.NewRecordTextRepo(thePG, log)
  recordEmbeddingRepo := repos.NewRecordEmbeddingRepo(thePG, log)
  sharedAccessRepo := repos.NewSharedAccessRepo(thePG, log)
  auditLogRepo := repos.NewAuditLogRepo(thePG, log)

  // Services
  log.Info("Setting up services from main...")
  // Bucket and OpenAI degrade rather than block startup; the agents report
  // the missing capability per request and /api/ai/agents/status surfaces it.
  bucketService, err := services.NewBucketService(log)
  if err != nil {
    log.Warn("BucketService unavailable, continuing without blob storage", "error", err)
    bucketService = nil
  }
  openaiClient, err := services.NewOpenAIClient(log)
  if err != nil {
    log.Warn("OpenAIClient unavailable, continuing without embeddings and completions", "error", err)
    openaiClient = nil
  }
  authService, err := services.NewAuthService(log)
  if err != nil {
    log.Error("Could not init AuthService", "error", err)
    os.Exit(1)
  }

  // Extraction strategies
  log.Info("Setting up extraction registry from main...")
  docaiProcessor, err := extract.NewDocAIProcessor(ctx, log)
  if err != nil {
    log.Warn("DocAI processor unavailable, scanned PDFs will yield no text", "error", err)
    docaiProcessor = nil
  }
  strategies := map[types.RecordKind]extract.Extractor{
    types.RecordKindDocument:    extract.NewPDFExtractor(log, docaiProcessor),
    types.RecordKindOtherReport: extract.NewNativeTextExtractor(log),
    // RecordKindScan (DICOM) has no strategy; those records get the
    // unsupported-format sentinel.
  }
  visionExtractor, err := extract.NewVisionImageExtractor(ctx, log)
  if err != nil {
    log.Warn("Vision OCR unavailable, image records get the unsupported-format sentinel", "error", err)
  } else {
    strategies[types.RecordKindImage] = visionExtractor
  }
  registry := extract.NewRegistry(log, strategies)

  // Task queue + worker
  log.Info("Setting up task queue from main...")
  redisQueue, err := tasks.NewRedisQueue(log)
  if err != nil {
    log.Error("Could not init Redis queue", "error", err)
    os.Exit(1)
  }

  // Agents
  log.Info("Setting up agents from main...")
  ingestionAgent := agents.NewIngestionAgent(log, patientRepo, recordRepo, auditLogRepo, bucketService)
  insightsAgent := agents.NewInsightsAgent(log, thePG, recordRepo, recordTextRepo, recordEmbeddingRepo, bucketService, openaiClient, registry)
  queryAgent := agents.NewQueryAgent(log, userRepo, patientRepo, recordRepo, recordTextRepo, recordEmbeddingRepo, sharedAccessRepo, auditLogRepo, openaiClient)
  manager := agents.NewManager(log, ingestionAgent, insightsAgent, queryAgent, postgresService, bucketService, openaiClient, redisQueue, registry)

  // Worker
  worker := tasks.NewWorker(log, redisQueue.Client())
  worker.Register(tasks.JobProcessRecord, func(ctx context.Context, payload map[string]string) error {
    recordID, err := tasks.RecordIDFromPayload(payload)
    if err != nil {
      return err
    }
    _, err = insightsAgent.Process(ctx, recordID)
    return err
  })
  go worker.Run(ctx)

  // Handlers
  log.Info("Setting up handlers from main...")
  authHandler := handlers.NewAuthHandler(log, authService, userRepo, patientRepo)
  recordsHandler := handlers.NewRecordsHandler(log, manager, redisQueue)
  aiHandler := handlers.NewAIHandler(log, manager, redisQueue)

  // Middleware
  authMiddleware := middleware.NewAuthMiddleware(log, authService)

  // Router
  log.Info("Setting up router from main...")
  router := server.NewRouter(server.RouterConfig{
    AuthHandler:    authHandler,
    AuthMiddleware: authMiddleware,
    RecordsHandler: recordsHandler,
    AIHandler:      aiHandler,
  })

  port := utils.GetEnv("PORT", "8080", log)
  log.Info("Server listening", "port", port)
  if err := router.Run(":" + port); err != nil {
    log.Error("Server failed", "error", err)
  }
}
