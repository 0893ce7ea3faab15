package agents_test

import (
  "context"
  "errors"
  "testing"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/medvault/medvault-backend/internal/agents"
  "github.com/medvault/medvault-backend/internal/extract"
  "github.com/medvault/medvault-backend/internal/repos"
  "github.com/medvault/medvault-backend/internal/testutil"
  "github.com/medvault/medvault-backend/internal/types"
)

type stubExtractor struct {
  segments []string
  err      error
}

func (s *stubExtractor) Extract(ctx context.Context, data []byte, filename string) ([]string, error) {
  return s.segments, s.err
}

func newInsightsAgent(t *testing.T, db *gorm.DB, bucket *testutil.FakeBucket, openai *testutil.FakeOpenAI, ex extract.Extractor) *agents.InsightsAgent {
  t.Helper()
  log := testutil.Logger(t)
  registry := extract.NewRegistry(log, map[types.RecordKind]extract.Extractor{
    types.RecordKindDocument: ex,
  })
  return agents.NewInsightsAgent(
    log,
    db,
    repos.NewRecordRepo(db, log),
    repos.NewRecordTextRepo(db, log),
    repos.NewRecordEmbeddingRepo(db, log),
    bucket,
    openai,
    registry,
  )
}

// cleanupRecord removes everything the pipeline may have written for the
// record. Pipeline tests commit real transactions, so rollback-based
// isolation does not apply to them.
func cleanupRecord(t *testing.T, db *gorm.DB, recordID, patientID, userID uuid.UUID) {
  t.Cleanup(func() {
    db.Where("record_id = ?", recordID).Delete(&types.RecordEmbedding{})
    db.Where("record_id = ?", recordID).Delete(&types.RecordText{})
    db.Where("id = ?", recordID).Delete(&types.Record{})
    db.Where("id = ?", patientID).Delete(&types.Patient{})
    db.Where("user_id = ?", userID).Delete(&types.UserRole{})
    db.Where("id = ?", userID).Delete(&types.User{})
  })
}

func seedProcessingRecord(t *testing.T, db *gorm.DB, bucket *testutil.FakeBucket) *types.Record {
  t.Helper()
  user := testutil.SeedUser(t, db, types.RolePatient)
  patient := testutil.SeedPatient(t, db, user.ID)
  record := testutil.SeedRecord(t, db, patient.ID, user.ID, types.RecordStatusProcessing, types.RecordKindDocument)
  cleanupRecord(t, db, record.ID, patient.ID, user.ID)
  bucket.Put(record.StorageKey, []byte("raw bytes"))
  return record
}

func TestIngestFlow(t *testing.T) {
  db := testutil.DB(t)
  tx := testutil.Tx(t, db)
  log := testutil.Logger(t)

  user := testutil.SeedUser(t, tx, types.RolePatient)
  patient := testutil.SeedPatient(t, tx, user.ID)

  bucket := testutil.NewFakeBucket()
  agent := agents.NewIngestionAgent(
    log,
    repos.NewPatientRepo(tx, log),
    repos.NewRecordRepo(tx, log),
    repos.NewAuditLogRepo(tx, log),
    bucket,
  )

  result, err := agent.Ingest(context.Background(), agents.IngestInput{
    PatientID:   patient.ID,
    UploaderID:  user.ID,
    Title:       "blood panel",
    Filename:    "panel.pdf",
    ContentType: "application/pdf",
    Data:        []byte("%PDF-1.4 fake"),
  })
  if err != nil {
    t.Fatalf("ingest: %v", err)
  }
  if result.Kind != types.RecordKindDocument {
    t.Fatalf("kind = %q, want document", result.Kind)
  }
  if result.Status != types.RecordStatusProcessing {
    t.Fatalf("status = %q, want processing", result.Status)
  }
  if !result.TriggerInsights {
    t.Fatal("ingest must request insight processing")
  }

  var record types.Record
  if err := tx.First(&record, "id = ?", result.RecordID).Error; err != nil {
    t.Fatalf("load record: %v", err)
  }
  if record.Status != types.RecordStatusProcessing {
    t.Fatalf("stored status = %q, want processing", record.Status)
  }
  if record.FileURL == types.FileURLPending || record.StorageKey == "" {
    t.Fatalf("record not finalized: url=%q key=%q", record.FileURL, record.StorageKey)
  }
  if _, err := bucket.DownloadFile(context.Background(), record.StorageKey); err != nil {
    t.Fatalf("blob missing from bucket: %v", err)
  }

  var auditCount int64
  tx.Model(&types.AuditLog{}).
    Where("action = ? AND resource_id = ?", agents.ActionUploadRecord, result.RecordID).
    Count(&auditCount)
  if auditCount != 1 {
    t.Fatalf("expected 1 audit row, got %d", auditCount)
  }
}

func TestIngestUnknownPatient(t *testing.T) {
  db := testutil.DB(t)
  tx := testutil.Tx(t, db)
  log := testutil.Logger(t)

  user := testutil.SeedUser(t, tx, types.RolePatient)
  bucket := testutil.NewFakeBucket()
  agent := agents.NewIngestionAgent(
    log,
    repos.NewPatientRepo(tx, log),
    repos.NewRecordRepo(tx, log),
    repos.NewAuditLogRepo(tx, log),
    bucket,
  )

  _, err := agent.Ingest(context.Background(), agents.IngestInput{
    PatientID:  uuid.New(),
    UploaderID: user.ID,
    Title:      "x",
    Filename:   "x.pdf",
    Data:       []byte("x"),
  })
  if agents.KindOf(err) != agents.KindNotFound {
    t.Fatalf("expected NotFound, got %v", err)
  }

  var count int64
  tx.Model(&types.Record{}).Count(&count)
  if count != 0 {
    t.Fatalf("no record should exist after failed ingest, found %d", count)
  }
}

func TestIngestUploadFailureKeepsPending(t *testing.T) {
  db := testutil.DB(t)
  tx := testutil.Tx(t, db)
  log := testutil.Logger(t)

  user := testutil.SeedUser(t, tx, types.RolePatient)
  patient := testutil.SeedPatient(t, tx, user.ID)

  bucket := testutil.NewFakeBucket()
  bucket.UploadErr = errors.New("gcs unavailable")
  agent := agents.NewIngestionAgent(
    log,
    repos.NewPatientRepo(tx, log),
    repos.NewRecordRepo(tx, log),
    repos.NewAuditLogRepo(tx, log),
    bucket,
  )

  _, err := agent.Ingest(context.Background(), agents.IngestInput{
    PatientID:  patient.ID,
    UploaderID: user.ID,
    Title:      "x",
    Filename:   "x.pdf",
    Data:       []byte("x"),
  })
  if agents.KindOf(err) != agents.KindStorage {
    t.Fatalf("expected StorageError, got %v", err)
  }

  var record types.Record
  if err := tx.First(&record, "patient_id = ?", patient.ID).Error; err != nil {
    t.Fatalf("record row should exist: %v", err)
  }
  if record.Status != types.RecordStatusPending {
    t.Fatalf("status = %q, want pending", record.Status)
  }
}

func TestProcessTwoPageDocument(t *testing.T) {
  db := testutil.DB(t)
  bucket := testutil.NewFakeBucket()
  openai := &testutil.FakeOpenAI{}
  record := seedProcessingRecord(t, db, bucket)

  agent := newInsightsAgent(t, db, bucket, openai, &stubExtractor{
    segments: []string{"page one findings", "page two findings"},
  })

  result, err := agent.Process(context.Background(), record.ID)
  if err != nil {
    t.Fatalf("process: %v", err)
  }
  if result.ChunkCount != 2 {
    t.Fatalf("chunk count = %d, want 2", result.ChunkCount)
  }
  if result.EmbeddingCount == 0 {
    t.Fatal("expected embeddings for real text")
  }

  var chunks []types.RecordText
  if err := db.Where("record_id = ?", record.ID).Order("chunk_index ASC").Find(&chunks).Error; err != nil {
    t.Fatalf("load chunks: %v", err)
  }
  if len(chunks) != 2 || chunks[0].ChunkIndex != 0 || chunks[1].ChunkIndex != 1 {
    t.Fatalf("unexpected chunk indices: %+v", chunks)
  }

  var stored types.Record
  if err := db.First(&stored, "id = ?", record.ID).Error; err != nil {
    t.Fatalf("load record: %v", err)
  }
  if stored.Status != types.RecordStatusProcessed {
    t.Fatalf("status = %q, want processed", stored.Status)
  }
}

func TestProcessNoTextStoresSentinel(t *testing.T) {
  db := testutil.DB(t)
  bucket := testutil.NewFakeBucket()
  openai := &testutil.FakeOpenAI{}
  record := seedProcessingRecord(t, db, bucket)

  agent := newInsightsAgent(t, db, bucket, openai, &stubExtractor{segments: nil})

  result, err := agent.Process(context.Background(), record.ID)
  if err != nil {
    t.Fatalf("process: %v", err)
  }
  if result.ChunkCount != 1 {
    t.Fatalf("chunk count = %d, want 1 sentinel", result.ChunkCount)
  }
  if result.EmbeddingCount != 0 {
    t.Fatalf("sentinel chunk must not be embedded, got %d", result.EmbeddingCount)
  }

  var chunk types.RecordText
  if err := db.First(&chunk, "record_id = ?", record.ID).Error; err != nil {
    t.Fatalf("load chunk: %v", err)
  }
  if chunk.ExtractedText != extract.SentinelNoText {
    t.Fatalf("chunk text = %q, want sentinel", chunk.ExtractedText)
  }
  if openai.CompleteCalls != 0 {
    t.Fatalf("sentinel-only record must not be summarized, got %d calls", openai.CompleteCalls)
  }
}

func TestProcessEmbeddingOutage(t *testing.T) {
  db := testutil.DB(t)
  bucket := testutil.NewFakeBucket()
  openai := &testutil.FakeOpenAI{EmbedErr: errors.New("embedding service down")}
  record := seedProcessingRecord(t, db, bucket)

  agent := newInsightsAgent(t, db, bucket, openai, &stubExtractor{
    segments: []string{"some clinical text"},
  })

  result, err := agent.Process(context.Background(), record.ID)
  if err != nil {
    t.Fatalf("embedding outage must not fail processing: %v", err)
  }
  if result.Status != types.RecordStatusProcessed {
    t.Fatalf("status = %q, want processed", result.Status)
  }
  if result.EmbeddingCount != 0 {
    t.Fatalf("expected 0 embeddings, got %d", result.EmbeddingCount)
  }
}

func TestProcessDoubleDispatch(t *testing.T) {
  db := testutil.DB(t)
  bucket := testutil.NewFakeBucket()
  openai := &testutil.FakeOpenAI{}
  record := seedProcessingRecord(t, db, bucket)

  agent := newInsightsAgent(t, db, bucket, openai, &stubExtractor{
    segments: []string{"only page"},
  })

  if _, err := agent.Process(context.Background(), record.ID); err != nil {
    t.Fatalf("first process: %v", err)
  }
  second, err := agent.Process(context.Background(), record.ID)
  if err != nil {
    t.Fatalf("second process: %v", err)
  }
  if !second.AlreadyProcessed {
    t.Fatal("second dispatch should be a no-op")
  }

  var count int64
  db.Model(&types.RecordText{}).Where("record_id = ?", record.ID).Count(&count)
  if count != 1 {
    t.Fatalf("double dispatch duplicated chunks: %d", count)
  }
}

func TestProcessStorageFailureLeavesStatus(t *testing.T) {
  db := testutil.DB(t)
  bucket := testutil.NewFakeBucket()
  openai := &testutil.FakeOpenAI{}
  record := seedProcessingRecord(t, db, bucket)
  bucket.DownloadErr = errors.New("object vanished")

  agent := newInsightsAgent(t, db, bucket, openai, &stubExtractor{})

  _, err := agent.Process(context.Background(), record.ID)
  if agents.KindOf(err) != agents.KindStorage {
    t.Fatalf("expected StorageError, got %v", err)
  }

  var stored types.Record
  if err := db.First(&stored, "id = ?", record.ID).Error; err != nil {
    t.Fatalf("load record: %v", err)
  }
  if stored.Status != types.RecordStatusProcessing {
    t.Fatalf("status = %q, want processing untouched", stored.Status)
  }
}

func TestProcessMissingRecord(t *testing.T) {
  db := testutil.DB(t)
  agent := newInsightsAgent(t, db, testutil.NewFakeBucket(), &testutil.FakeOpenAI{}, &stubExtractor{})

  _, err := agent.Process(context.Background(), uuid.New())
  if agents.KindOf(err) != agents.KindNotFound {
    t.Fatalf("expected NotFound, got %v", err)
  }
}

func TestProcessedStatusNeverRegressesToPending(t *testing.T) {
  db := testutil.DB(t)
  tx := testutil.Tx(t, db)
  log := testutil.Logger(t)
  recordRepo := repos.NewRecordRepo(tx, log)

  user := testutil.SeedUser(t, tx, types.RolePatient)
  patient := testutil.SeedPatient(t, tx, user.ID)
  record := testutil.SeedRecord(t, tx, patient.ID, user.ID, types.RecordStatusProcessed, types.RecordKindDocument)

  // A stale failure path resetting the record must lose against a
  // concurrent dispatch that already finished it.
  reset, err := recordRepo.SetStatusIf(context.Background(), tx, record.ID,
    types.RecordStatusProcessing, types.RecordStatusPending)
  if err != nil {
    t.Fatalf("SetStatusIf: %v", err)
  }
  if reset {
    t.Fatal("reset reported a row change on a processed record")
  }
  got, err := recordRepo.GetByID(context.Background(), tx, record.ID)
  if err != nil {
    t.Fatalf("GetByID: %v", err)
  }
  if got.Status != types.RecordStatusProcessed {
    t.Fatalf("status regressed to %q", got.Status)
  }

  // The transition still applies while the record is mid-flight.
  inFlight := testutil.SeedRecord(t, tx, patient.ID, user.ID, types.RecordStatusProcessing, types.RecordKindDocument)
  reset, err = recordRepo.SetStatusIf(context.Background(), tx, inFlight.ID,
    types.RecordStatusProcessing, types.RecordStatusPending)
  if err != nil {
    t.Fatalf("SetStatusIf: %v", err)
  }
  if !reset {
    t.Fatal("expected a processing record to reset")
  }
  got, err = recordRepo.GetByID(context.Background(), tx, inFlight.ID)
  if err != nil {
    t.Fatalf("GetByID: %v", err)
  }
  if got.Status != types.RecordStatusPending {
    t.Fatalf("expected pending, got %q", got.Status)
  }
}

func TestIngestWithoutStorageConfigured(t *testing.T) {
  log := testutil.Logger(t)
  agent := agents.NewIngestionAgent(log, nil, nil, nil, nil)

  _, err := agent.Ingest(context.Background(), agents.IngestInput{
    PatientID:  uuid.New(),
    UploaderID: uuid.New(),
    Title:      "Discharge summary",
    Filename:   "summary.pdf",
  })
  if agents.KindOf(err) != agents.KindStorage {
    t.Fatalf("expected StorageError, got %v", err)
  }
}
