package server

import (
  "os"
  "strings"

  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"

  "github.com/medvault/medvault-backend/internal/handlers"
  "github.com/medvault/medvault-backend/internal/middleware"
)

type RouterConfig struct {
  AuthHandler    *handlers.AuthHandler
  AuthMiddleware *middleware.AuthMiddleware
  RecordsHandler *handlers.RecordsHandler
  AIHandler      *handlers.AIHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()

  router.Use(cors.New(cors.Config{
    AllowOrigins:     corsOrigins(),
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    AllowCredentials: true,
  }))

  // ===============
  // || Public    ||
  // ===============
  router.GET("/healthcheck", handlers.HealthCheck)
  api := router.Group("/api")
  {
    api.POST("/register", cfg.AuthHandler.Register)
    api.POST("/login", cfg.AuthHandler.Login)
  }

  // ===============
  // || Protected ||
  // ===============
  protected := router.Group("/api")
  protected.Use(cfg.AuthMiddleware.RequireAuth())
  // Records
  protected.POST("/records/upload", cfg.RecordsHandler.Upload)
  protected.GET("/records", cfg.RecordsHandler.List)
  protected.GET("/records/:id", cfg.RecordsHandler.Get)
  protected.GET("/records/:id/download", cfg.RecordsHandler.Download)
  // AI
  protected.POST("/ai/process/:record_id", cfg.AIHandler.TriggerProcessing)
  protected.POST("/ai/search", cfg.AIHandler.Search)
  protected.POST("/ai/ask", cfg.AIHandler.Ask)
  protected.GET("/ai/agents/status", cfg.AIHandler.Status)

  return router
}

func corsOrigins() []string {
  raw := os.Getenv("CORS_ALLOW_ORIGINS")
  if raw == "" {
    return []string{"http://localhost:3000", "http://localhost:5173"}
  }
  parts := strings.Split(raw, ",")
  out := make([]string, 0, len(parts))
  for _, p := range parts {
    if trimmed := strings.TrimSpace(p); trimmed != "" {
      out = append(out, trimmed)
    }
  }
  return out
}
