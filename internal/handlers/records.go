package handlers

import (
  "io"
  "net/http"
  "time"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/medvault/medvault-backend/internal/agents"
  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/requestdata"
  "github.com/medvault/medvault-backend/internal/tasks"
)

const maxUploadBytes = 50 << 20

const presignTTL = time.Hour

type RecordsHandler struct {
  log     *logger.Logger
  manager *agents.Manager
  queue   tasks.Queue
}

func NewRecordsHandler(log *logger.Logger, manager *agents.Manager, queue tasks.Queue) *RecordsHandler {
  return &RecordsHandler{
    log:     log.With("handler", "RecordsHandler"),
    manager: manager,
    queue:   queue,
  }
}

// POST /api/records/upload (multipart: patient_id, title, file)
func (rh *RecordsHandler) Upload(c *gin.Context) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil {
    c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
    return
  }

  patientID, err := uuid.Parse(c.PostForm("patient_id"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patient_id"})
    return
  }
  title := c.PostForm("title")
  if title == "" {
    c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
    return
  }

  fileHeader, err := c.FormFile("file")
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
    return
  }
  if fileHeader.Size > maxUploadBytes {
    c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
    return
  }
  f, err := fileHeader.Open()
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
    return
  }
  data, err := io.ReadAll(f)
  _ = f.Close()
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
    return
  }

  result, err := rh.manager.Ingestion.Ingest(c.Request.Context(), agents.IngestInput{
    PatientID:   patientID,
    UploaderID:  rd.UserID,
    Title:       title,
    Filename:    fileHeader.Filename,
    ContentType: fileHeader.Header.Get("Content-Type"),
    Data:        data,
  })
  if err != nil {
    RespondAgentError(c, err)
    return
  }

  if result.TriggerInsights {
    payload := map[string]string{"record_id": result.RecordID.String()}
    if err := rh.queue.Enqueue(c.Request.Context(), tasks.JobProcessRecord, payload); err != nil {
      // Upload succeeded; processing can be retriggered manually.
      rh.log.Error("Failed to enqueue processing",
        "record_id", result.RecordID.String(),
        "error", err.Error(),
      )
    }
  }

  c.JSON(http.StatusCreated, result)
}

// GET /api/records/:id/download
func (rh *RecordsHandler) Download(c *gin.Context) {
  recordID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
    return
  }

  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil {
    c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
    return
  }

  record, err := rh.manager.Query.GetRecord(c.Request.Context(), recordID)
  if err != nil {
    RespondAgentError(c, err)
    return
  }
  allowed, err := rh.manager.Query.CheckAccess(c.Request.Context(), rd.UserID, record)
  if err != nil {
    RespondAgentError(c, err)
    return
  }
  if !allowed {
    RespondError(c, http.StatusForbidden, string(agents.KindAccessDenied), nil)
    return
  }

  url, err := rh.manager.Ingestion.PresignedURL(c.Request.Context(), recordID, presignTTL)
  if err != nil {
    RespondAgentError(c, err)
    return
  }
  RespondOK(c, gin.H{"url": url, "expires_in_seconds": int(presignTTL.Seconds())})
}

// GET /api/records?patient_id=...
func (rh *RecordsHandler) List(c *gin.Context) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil {
    c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
    return
  }

  var patientFilter *uuid.UUID
  if raw := c.Query("patient_id"); raw != "" {
    id, err := uuid.Parse(raw)
    if err != nil {
      c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patient_id"})
      return
    }
    patientFilter = &id
  }

  records, err := rh.manager.Query.ListRecords(c.Request.Context(), rd.UserID, patientFilter)
  if err != nil {
    RespondAgentError(c, err)
    return
  }
  RespondOK(c, gin.H{"records": records})
}

// GET /api/records/:id
func (rh *RecordsHandler) Get(c *gin.Context) {
  recordID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
    return
  }

  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil {
    c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
    return
  }

  detail, err := rh.manager.Query.GetRecordDetail(c.Request.Context(), rd.UserID, recordID)
  if err != nil {
    RespondAgentError(c, err)
    return
  }
  RespondOK(c, detail)
}
