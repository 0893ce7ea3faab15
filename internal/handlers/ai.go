package handlers

import (
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/medvault/medvault-backend/internal/agents"
  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/requestdata"
  "github.com/medvault/medvault-backend/internal/tasks"
)

type AIHandler struct {
  log     *logger.Logger
  manager *agents.Manager
  queue   tasks.Queue
}

func NewAIHandler(log *logger.Logger, manager *agents.Manager, queue tasks.Queue) *AIHandler {
  return &AIHandler{
    log:     log.With("handler", "AIHandler"),
    manager: manager,
    queue:   queue,
  }
}

// POST /api/ai/process/:record_id retriggers the processing pipeline.
func (ah *AIHandler) TriggerProcessing(c *gin.Context) {
  recordID, err := uuid.Parse(c.Param("record_id"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
    return
  }

  // Confirm the record exists before enqueueing so the caller gets a 404
  // now instead of a silently dropped task.
  if _, err := ah.manager.Query.GetRecord(c.Request.Context(), recordID); err != nil {
    RespondAgentError(c, err)
    return
  }

  payload := map[string]string{"record_id": recordID.String()}
  if err := ah.queue.Enqueue(c.Request.Context(), tasks.JobProcessRecord, payload); err != nil {
    RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
    return
  }
  c.JSON(http.StatusAccepted, gin.H{"record_id": recordID, "queued": true})
}

// POST /api/ai/search
func (ah *AIHandler) Search(c *gin.Context) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil {
    c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
    return
  }

  var req struct {
    Query     string `json:"query"`
    PatientID string `json:"patient_id"`
    TopK      int    `json:"top_k"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  if req.Query == "" {
    c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
    return
  }

  var patientFilter *uuid.UUID
  if req.PatientID != "" {
    id, err := uuid.Parse(req.PatientID)
    if err != nil {
      c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patient_id"})
      return
    }
    patientFilter = &id
  }

  matches, err := ah.manager.Query.SemanticSearch(c.Request.Context(), rd.UserID, req.Query, req.TopK, patientFilter)
  if err != nil {
    RespondAgentError(c, err)
    return
  }
  RespondOK(c, gin.H{"matches": matches})
}

// POST /api/ai/ask
func (ah *AIHandler) Ask(c *gin.Context) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil {
    c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
    return
  }

  var req struct {
    RecordID string `json:"record_id"`
    Question string `json:"question"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  recordID, err := uuid.Parse(req.RecordID)
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record_id"})
    return
  }
  if req.Question == "" {
    c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
    return
  }

  answer, err := ah.manager.Query.AskQuestion(c.Request.Context(), rd.UserID, recordID, req.Question)
  if err != nil {
    RespondAgentError(c, err)
    return
  }
  RespondOK(c, answer)
}

// GET /api/ai/agents/status
func (ah *AIHandler) Status(c *gin.Context) {
  RespondOK(c, ah.manager.Status(c.Request.Context()))
}
