package agents

import (
  "context"

  "github.com/medvault/medvault-backend/internal/db"
  "github.com/medvault/medvault-backend/internal/extract"
  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/services"
  "github.com/medvault/medvault-backend/internal/tasks"
)

// ComponentStatus is one entry of the manager's health report.
type ComponentStatus struct {
  OK     bool   `json:"ok"`
  Detail string `json:"detail,omitempty"`
}

// Manager is the composition root for the three agents. It is constructed
// once at startup and handed to the HTTP layer; there is no package-level
// instance.
type Manager struct {
  log       *logger.Logger
  Ingestion *IngestionAgent
  Insights  *InsightsAgent
  Query     *QueryAgent

  postgres *db.PostgresService
  bucket   services.BucketService
  openai   services.OpenAIClient
  queue    tasks.Queue
  registry *extract.Registry
}

func NewManager(
  log *logger.Logger,
  ingestion *IngestionAgent,
  insights *InsightsAgent,
  query *QueryAgent,
  postgres *db.PostgresService,
  bucket services.BucketService,
  openai services.OpenAIClient,
  queue tasks.Queue,
  registry *extract.Registry,
) *Manager {
  return &Manager{
    log:       log.With("agent", "Manager"),
    Ingestion: ingestion,
    Insights:  insights,
    Query:     query,
    postgres:  postgres,
    bucket:    bucket,
    openai:    openai,
    queue:     queue,
    registry:  registry,
  }
}

// Status reports per-component health. A partially configured deployment
// degrades the relevant entries instead of failing.
func (m *Manager) Status(ctx context.Context) map[string]ComponentStatus {
  out := make(map[string]ComponentStatus)

  if m.postgres == nil {
    out["database"] = ComponentStatus{OK: false, Detail: "not configured"}
  } else if err := m.postgres.Ping(); err != nil {
    out["database"] = ComponentStatus{OK: false, Detail: err.Error()}
  } else {
    out["database"] = ComponentStatus{OK: true}
  }

  if m.bucket == nil {
    out["bucket"] = ComponentStatus{OK: false, Detail: "not configured"}
  } else {
    out["bucket"] = ComponentStatus{OK: true}
  }

  if m.openai == nil {
    out["openai"] = ComponentStatus{OK: false, Detail: "not configured"}
  } else {
    out["openai"] = ComponentStatus{OK: true}
  }

  if m.queue == nil {
    out["task_queue"] = ComponentStatus{OK: false, Detail: "not configured"}
  } else {
    out["task_queue"] = ComponentStatus{OK: true}
  }

  if m.registry == nil || len(m.registry.Kinds()) == 0 {
    out["extraction"] = ComponentStatus{OK: false, Detail: "no strategies registered"}
  } else {
    kinds := m.registry.Kinds()
    detail := ""
    for i, k := range kinds {
      if i > 0 {
        detail += ","
      }
      detail += string(k)
    }
    out["extraction"] = ComponentStatus{OK: true, Detail: detail}
  }

  return out
}
