package agents

import (
  "context"
  "fmt"
  "path/filepath"
  "strings"
  "time"

  "github.com/google/uuid"

  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/repos"
  "github.com/medvault/medvault-backend/internal/services"
  "github.com/medvault/medvault-backend/internal/types"
)

// ClassifyKind maps a filename to its record kind by extension. Total and
// case-insensitive; anything unrecognized lands in other_report.
func ClassifyKind(filename string) types.RecordKind {
  ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
  switch ext {
  case "pdf":
    return types.RecordKindDocument
  case "jpg", "jpeg", "png", "tiff", "bmp":
    return types.RecordKindImage
  case "dcm", "dicom":
    return types.RecordKindScan
  default:
    return types.RecordKindOtherReport
  }
}

// IngestInput carries one upload through the ingestion flow.
type IngestInput struct {
  PatientID   uuid.UUID
  UploaderID  uuid.UUID
  Title       string
  Filename    string
  ContentType string
  Data        []byte
}

type IngestResult struct {
  RecordID        uuid.UUID          `json:"record_id"`
  PatientID       uuid.UUID          `json:"patient_id"`
  Kind            types.RecordKind   `json:"kind"`
  FileURL         string             `json:"file_url"`
  Status          types.RecordStatus `json:"status"`
  TriggerInsights bool               `json:"trigger_insights"`
}

// IngestionAgent validates uploads, persists the record row, moves the blob
// into the bucket, and hands the record off for insight extraction.
type IngestionAgent struct {
  log         *logger.Logger
  patientRepo repos.PatientRepo
  recordRepo  repos.RecordRepo
  bucket      services.BucketService
  audit       auditor
}

func NewIngestionAgent(
  log *logger.Logger,
  patientRepo repos.PatientRepo,
  recordRepo repos.RecordRepo,
  auditRepo repos.AuditLogRepo,
  bucket services.BucketService,
) *IngestionAgent {
  agentLog := log.With("agent", "IngestionAgent")
  return &IngestionAgent{
    log:         agentLog,
    patientRepo: patientRepo,
    recordRepo:  recordRepo,
    bucket:      bucket,
    audit:       auditor{log: agentLog, repo: auditRepo},
  }
}

func (a *IngestionAgent) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
  if a.bucket == nil {
    return nil, Ef(KindStorage, "bucket storage not configured")
  }
  patient, err := a.patientRepo.GetByID(ctx, nil, in.PatientID)
  if err != nil {
    return nil, Ef(KindProcessing, "look up patient %s: %w", in.PatientID, err)
  }
  if patient == nil {
    return nil, Ef(KindNotFound, "patient %s not found", in.PatientID)
  }

  kind := ClassifyKind(in.Filename)

  record := &types.Record{
    PatientID:  in.PatientID,
    Title:      in.Title,
    Kind:       kind,
    FileURL:    types.FileURLPending,
    UploadedBy: in.UploaderID,
    UploadDate: time.Now().UTC(),
    Status:     types.RecordStatusPending,
  }
  created, err := a.recordRepo.Create(ctx, nil, []*types.Record{record})
  if err != nil {
    return nil, Ef(KindProcessing, "create record: %w", err)
  }
  record = created[0]

  key := storageKey(in.PatientID, record.ID, in.Filename)
  metadata := map[string]string{
    "patient_id":        in.PatientID.String(),
    "record_id":         record.ID.String(),
    "original_filename": in.Filename,
  }
  if err := a.bucket.UploadFile(ctx, key, in.Data, in.ContentType, metadata); err != nil {
    // Record stays pending; the upload can be retried against the same row.
    a.log.Error("Blob upload failed", "record_id", record.ID.String(), "error", err.Error())
    return nil, Ef(KindStorage, "upload record %s: %w", record.ID, err)
  }

  fileURL := a.bucket.GetPublicURL(key)
  updates := map[string]interface{}{
    "file_url":    fileURL,
    "storage_key": key,
    "status":      types.RecordStatusProcessing,
  }
  if err := a.recordRepo.UpdateFields(ctx, nil, record.ID, updates); err != nil {
    return nil, Ef(KindProcessing, "finalize record %s: %w", record.ID, err)
  }

  a.audit.logAction(ctx, in.UploaderID, ActionUploadRecord, "record", &record.ID)

  a.log.Info("Record ingested",
    "record_id", record.ID.String(),
    "patient_id", in.PatientID.String(),
    "kind", string(kind),
  )

  return &IngestResult{
    RecordID:        record.ID,
    PatientID:       in.PatientID,
    Kind:            kind,
    FileURL:         fileURL,
    Status:          types.RecordStatusProcessing,
    TriggerInsights: true,
  }, nil
}

// PresignedURL returns a short-lived download link for the record's blob.
func (a *IngestionAgent) PresignedURL(ctx context.Context, recordID uuid.UUID, ttl time.Duration) (string, error) {
  record, err := a.recordRepo.GetByID(ctx, nil, recordID)
  if err != nil {
    return "", Ef(KindProcessing, "look up record %s: %w", recordID, err)
  }
  if record == nil {
    return "", Ef(KindNotFound, "record %s not found", recordID)
  }
  if record.StorageKey == "" {
    return "", Ef(KindStorage, "record %s has no stored blob", recordID)
  }
  if a.bucket == nil {
    return "", Ef(KindStorage, "bucket storage not configured")
  }
  url, err := a.bucket.SignedURL(record.StorageKey, ttl)
  if err != nil {
    return "", Ef(KindStorage, "sign url for record %s: %w", recordID, err)
  }
  return url, nil
}

func storageKey(patientID, recordID uuid.UUID, filename string) string {
  ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
  if ext == "" {
    ext = "bin"
  }
  return fmt.Sprintf("records/%s/%s.%s", patientID, recordID, ext)
}
