package agents

import (
  "context"
  "time"

  "github.com/google/uuid"

  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/repos"
  "github.com/medvault/medvault-backend/internal/requestdata"
  "github.com/medvault/medvault-backend/internal/types"
)

// Audit actions written by the agents.
const (
  ActionUploadRecord   = "UPLOAD_RECORD"
  ActionSemanticSearch = "SEMANTIC_SEARCH"
  ActionAskQuestion    = "ASK_QUESTION"
)

// auditor writes append-only audit rows. Audit failures are logged and
// swallowed: a lost audit line must not fail the user-facing operation.
type auditor struct {
  log  *logger.Logger
  repo repos.AuditLogRepo
}

func (a *auditor) logAction(ctx context.Context, userID uuid.UUID, action, resource string, resourceID *uuid.UUID) {
  entry := &types.AuditLog{
    UserID:     userID,
    Action:     action,
    Resource:   resource,
    ResourceID: resourceID,
    Timestamp:  time.Now().UTC(),
  }
  if rd := requestdata.GetRequestData(ctx); rd != nil {
    entry.IPAddress = rd.IPAddress
    entry.UserAgent = rd.UserAgent
  }
  if _, err := a.repo.Create(ctx, nil, []*types.AuditLog{entry}); err != nil {
    a.log.Error("Failed to write audit log",
      "action", action,
      "user_id", userID.String(),
      "error", err.Error(),
    )
  }
}
