package agents_test

import (
  "context"
  "encoding/json"
  "errors"
  "testing"

  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"

  "github.com/medvault/medvault-backend/internal/agents"
  "github.com/medvault/medvault-backend/internal/repos"
  "github.com/medvault/medvault-backend/internal/testutil"
  "github.com/medvault/medvault-backend/internal/types"
)

func newQueryAgent(t *testing.T, tx *gorm.DB, openai *testutil.FakeOpenAI) *agents.QueryAgent {
  t.Helper()
  log := testutil.Logger(t)
  return agents.NewQueryAgent(
    log,
    repos.NewUserRepo(tx, log),
    repos.NewPatientRepo(tx, log),
    repos.NewRecordRepo(tx, log),
    repos.NewRecordTextRepo(tx, log),
    repos.NewRecordEmbeddingRepo(tx, log),
    repos.NewSharedAccessRepo(tx, log),
    repos.NewAuditLogRepo(tx, log),
    openai,
  )
}

// seedChunkWithEmbedding stores one chunk and its deterministic embedding.
func seedChunkWithEmbedding(t *testing.T, tx *gorm.DB, record *types.Record, index int, text string) *types.RecordText {
  t.Helper()
  chunk := &types.RecordText{
    RecordID:      record.ID,
    ExtractedText: text,
    ChunkIndex:    index,
  }
  if err := tx.Create(chunk).Error; err != nil {
    t.Fatalf("seed chunk: %v", err)
  }
  raw, err := json.Marshal(testutil.DeterministicVector(text))
  if err != nil {
    t.Fatalf("marshal vector: %v", err)
  }
  emb := &types.RecordEmbedding{
    RecordID: record.ID,
    ChunkID:  chunk.ID,
    Vector:   datatypes.JSON(raw),
  }
  if err := tx.Create(emb).Error; err != nil {
    t.Fatalf("seed embedding: %v", err)
  }
  return chunk
}

func TestSemanticSearchScopedToAccessibleRecords(t *testing.T) {
  db := testutil.DB(t)
  tx := testutil.Tx(t, db)

  // Two patients, each with one embedded record.
  ownerUser := testutil.SeedUser(t, tx, types.RolePatient)
  owner := testutil.SeedPatient(t, tx, ownerUser.ID)
  ownRecord := testutil.SeedRecord(t, tx, owner.ID, ownerUser.ID, types.RecordStatusProcessed, types.RecordKindDocument)
  seedChunkWithEmbedding(t, tx, ownRecord, 0, "hemoglobin low, iron supplements prescribed")
  seedChunkWithEmbedding(t, tx, ownRecord, 1, "follow up visit scheduled for next month")

  otherUser := testutil.SeedUser(t, tx, types.RolePatient)
  other := testutil.SeedPatient(t, tx, otherUser.ID)
  otherRecord := testutil.SeedRecord(t, tx, other.ID, otherUser.ID, types.RecordStatusProcessed, types.RecordKindDocument)
  seedChunkWithEmbedding(t, tx, otherRecord, 0, "hemoglobin low, iron supplements prescribed")

  agent := newQueryAgent(t, tx, &testutil.FakeOpenAI{})

  matches, err := agent.SemanticSearch(context.Background(), ownerUser.ID, "hemoglobin iron", 10, nil)
  if err != nil {
    t.Fatalf("search: %v", err)
  }
  if len(matches) != 2 {
    t.Fatalf("expected 2 matches, got %d", len(matches))
  }
  for _, m := range matches {
    if m.RecordID == otherRecord.ID {
      t.Fatal("inaccessible record leaked into results")
    }
    if m.RecordID != ownRecord.ID {
      t.Fatalf("unexpected record %s in results", m.RecordID)
    }
  }
  // Descending order by score.
  for i := 1; i < len(matches); i++ {
    if matches[i].Score > matches[i-1].Score {
      t.Fatalf("scores not descending: %v then %v", matches[i-1].Score, matches[i].Score)
    }
  }

  var auditCount int64
  tx.Model(&types.AuditLog{}).
    Where("user_id = ? AND action = ?", ownerUser.ID, agents.ActionSemanticSearch).
    Count(&auditCount)
  if auditCount != 1 {
    t.Fatalf("expected 1 search audit row, got %d", auditCount)
  }
}

func TestSemanticSearchTopK(t *testing.T) {
  db := testutil.DB(t)
  tx := testutil.Tx(t, db)

  user := testutil.SeedUser(t, tx, types.RolePatient)
  patient := testutil.SeedPatient(t, tx, user.ID)
  record := testutil.SeedRecord(t, tx, patient.ID, user.ID, types.RecordStatusProcessed, types.RecordKindDocument)
  for i := 0; i < 5; i++ {
    seedChunkWithEmbedding(t, tx, record, i, "note number "+string(rune('a'+i)))
  }

  agent := newQueryAgent(t, tx, &testutil.FakeOpenAI{})
  matches, err := agent.SemanticSearch(context.Background(), user.ID, "note", 3, nil)
  if err != nil {
    t.Fatalf("search: %v", err)
  }
  if len(matches) != 3 {
    t.Fatalf("topK not applied: got %d matches", len(matches))
  }
}

func TestSemanticSearchEmbeddingFailureIsFatal(t *testing.T) {
  db := testutil.DB(t)
  tx := testutil.Tx(t, db)

  user := testutil.SeedUser(t, tx, types.RolePatient)
  patient := testutil.SeedPatient(t, tx, user.ID)
  record := testutil.SeedRecord(t, tx, patient.ID, user.ID, types.RecordStatusProcessed, types.RecordKindDocument)
  seedChunkWithEmbedding(t, tx, record, 0, "some text")

  agent := newQueryAgent(t, tx, &testutil.FakeOpenAI{EmbedErr: errors.New("down")})
  _, err := agent.SemanticSearch(context.Background(), user.ID, "query", 5, nil)
  if agents.KindOf(err) != agents.KindEmbeddingService {
    t.Fatalf("expected EmbeddingServiceError, got %v", err)
  }
}

func TestAskQuestionDeniedWithoutGrant(t *testing.T) {
  db := testutil.DB(t)
  tx := testutil.Tx(t, db)

  patientUser := testutil.SeedUser(t, tx, types.RolePatient)
  patient := testutil.SeedPatient(t, tx, patientUser.ID)
  record := testutil.SeedRecord(t, tx, patient.ID, patientUser.ID, types.RecordStatusProcessed, types.RecordKindDocument)
  seedChunkWithEmbedding(t, tx, record, 0, "diagnosis details")

  doctor := testutil.SeedUser(t, tx, types.RoleDoctor)

  openai := &testutil.FakeOpenAI{}
  agent := newQueryAgent(t, tx, openai)

  _, err := agent.AskQuestion(context.Background(), doctor.ID, record.ID, "what is the diagnosis?")
  if agents.KindOf(err) != agents.KindAccessDenied {
    t.Fatalf("expected AccessDenied, got %v", err)
  }
  if openai.CompleteCalls != 0 {
    t.Fatalf("denied request must not reach the model, got %d calls", openai.CompleteCalls)
  }
}

func TestAskQuestionWithGrant(t *testing.T) {
  db := testutil.DB(t)
  tx := testutil.Tx(t, db)

  patientUser := testutil.SeedUser(t, tx, types.RolePatient)
  patient := testutil.SeedPatient(t, tx, patientUser.ID)
  record := testutil.SeedRecord(t, tx, patient.ID, patientUser.ID, types.RecordStatusProcessed, types.RecordKindDocument)
  chunk := seedChunkWithEmbedding(t, tx, record, 0, "patient prescribed lisinopril 10mg daily")

  doctor := testutil.SeedUser(t, tx, types.RoleDoctor)
  grant := &types.SharedAccess{RecordID: record.ID, DoctorID: doctor.ID}
  if err := tx.Create(grant).Error; err != nil {
    t.Fatalf("seed grant: %v", err)
  }

  openai := &testutil.FakeOpenAI{Completion: "lisinopril 10mg daily"}
  agent := newQueryAgent(t, tx, openai)

  answer, err := agent.AskQuestion(context.Background(), doctor.ID, record.ID, "what medication?")
  if err != nil {
    t.Fatalf("ask: %v", err)
  }
  if answer.Answer != "lisinopril 10mg daily" {
    t.Fatalf("unexpected answer %q", answer.Answer)
  }
  if len(answer.ChunkIDs) != 1 || answer.ChunkIDs[0] != chunk.ID {
    t.Fatalf("unexpected supporting chunks %v", answer.ChunkIDs)
  }

  var auditCount int64
  tx.Model(&types.AuditLog{}).
    Where("user_id = ? AND action = ?", doctor.ID, agents.ActionAskQuestion).
    Count(&auditCount)
  if auditCount != 1 {
    t.Fatalf("expected 1 ask audit row, got %d", auditCount)
  }
}

func TestAskQuestionMissingRecord(t *testing.T) {
  db := testutil.DB(t)
  tx := testutil.Tx(t, db)

  admin := testutil.SeedUser(t, tx, types.RoleAdmin)
  agent := newQueryAgent(t, tx, &testutil.FakeOpenAI{})

  _, err := agent.AskQuestion(context.Background(), admin.ID, uuid.New(), "anything?")
  if agents.KindOf(err) != agents.KindNotFound {
    t.Fatalf("expected NotFound, got %v", err)
  }
}

func TestAccessibleRecordIDsByRole(t *testing.T) {
  db := testutil.DB(t)
  tx := testutil.Tx(t, db)

  patientUser := testutil.SeedUser(t, tx, types.RolePatient)
  patient := testutil.SeedPatient(t, tx, patientUser.ID)
  record := testutil.SeedRecord(t, tx, patient.ID, patientUser.ID, types.RecordStatusProcessed, types.RecordKindDocument)

  strangerUser := testutil.SeedUser(t, tx, types.RolePatient)
  stranger := testutil.SeedPatient(t, tx, strangerUser.ID)
  strangerRecord := testutil.SeedRecord(t, tx, stranger.ID, strangerUser.ID, types.RecordStatusProcessed, types.RecordKindDocument)

  doctor := testutil.SeedUser(t, tx, types.RoleDoctor)
  manager := testutil.SeedUser(t, tx, types.RoleHospitalManager)

  agent := newQueryAgent(t, tx, &testutil.FakeOpenAI{})
  ctx := context.Background()

  // Patient sees only their own record.
  ids, err := agent.AccessibleRecordIDs(ctx, patientUser.ID)
  if err != nil {
    t.Fatalf("patient ids: %v", err)
  }
  if len(ids) != 1 || ids[0] != record.ID {
    t.Fatalf("patient sees %v, want [%s]", ids, record.ID)
  }

  // Doctor with no grants sees nothing.
  ids, err = agent.AccessibleRecordIDs(ctx, doctor.ID)
  if err != nil {
    t.Fatalf("doctor ids: %v", err)
  }
  if len(ids) != 0 {
    t.Fatalf("ungranted doctor sees %v", ids)
  }

  // Grant the doctor one record.
  if err := tx.Create(&types.SharedAccess{RecordID: strangerRecord.ID, DoctorID: doctor.ID}).Error; err != nil {
    t.Fatalf("seed grant: %v", err)
  }
  ids, err = agent.AccessibleRecordIDs(ctx, doctor.ID)
  if err != nil {
    t.Fatalf("doctor ids after grant: %v", err)
  }
  if len(ids) != 1 || ids[0] != strangerRecord.ID {
    t.Fatalf("doctor sees %v, want [%s]", ids, strangerRecord.ID)
  }

  // Hospital manager sees everything.
  ids, err = agent.AccessibleRecordIDs(ctx, manager.ID)
  if err != nil {
    t.Fatalf("manager ids: %v", err)
  }
  if len(ids) < 2 {
    t.Fatalf("manager should see all records, got %v", ids)
  }
}

func TestListRecordsScopedByRole(t *testing.T) {
  db := testutil.DB(t)
  tx := testutil.Tx(t, db)

  patientUser := testutil.SeedUser(t, tx, types.RolePatient)
  patient := testutil.SeedPatient(t, tx, patientUser.ID)
  mine := testutil.SeedRecord(t, tx, patient.ID, patientUser.ID, types.RecordStatusProcessed, types.RecordKindDocument)
  testutil.SeedRecord(t, tx, patient.ID, patientUser.ID, types.RecordStatusPending, types.RecordKindImage)

  otherUser := testutil.SeedUser(t, tx, types.RolePatient)
  otherPatient := testutil.SeedPatient(t, tx, otherUser.ID)
  theirs := testutil.SeedRecord(t, tx, otherPatient.ID, otherUser.ID, types.RecordStatusProcessed, types.RecordKindDocument)

  agent := newQueryAgent(t, tx, &testutil.FakeOpenAI{})

  records, err := agent.ListRecords(context.Background(), patientUser.ID, nil)
  if err != nil {
    t.Fatalf("list: %v", err)
  }
  if len(records) != 2 {
    t.Fatalf("expected 2 records, got %d", len(records))
  }
  for _, r := range records {
    if r.ID == theirs.ID {
      t.Fatal("listing leaked another patient's record")
    }
  }

  // Doctor with a single-record grant sees only that record, even when
  // filtering by the granting patient.
  doctor := testutil.SeedUser(t, tx, types.RoleDoctor)
  grant := &types.SharedAccess{RecordID: mine.ID, DoctorID: doctor.ID}
  if err := tx.Create(grant).Error; err != nil {
    t.Fatalf("seed grant: %v", err)
  }
  records, err = agent.ListRecords(context.Background(), doctor.ID, &patient.ID)
  if err != nil {
    t.Fatalf("doctor list: %v", err)
  }
  if len(records) != 1 || records[0].ID != mine.ID {
    t.Fatalf("expected only the granted record, got %d records", len(records))
  }
}

func TestListRecordsPatientFilterDeniedWithoutGrant(t *testing.T) {
  db := testutil.DB(t)
  tx := testutil.Tx(t, db)

  patientUser := testutil.SeedUser(t, tx, types.RolePatient)
  patient := testutil.SeedPatient(t, tx, patientUser.ID)
  testutil.SeedRecord(t, tx, patient.ID, patientUser.ID, types.RecordStatusProcessed, types.RecordKindDocument)

  doctor := testutil.SeedUser(t, tx, types.RoleDoctor)
  agent := newQueryAgent(t, tx, &testutil.FakeOpenAI{})

  _, err := agent.ListRecords(context.Background(), doctor.ID, &patient.ID)
  if agents.KindOf(err) != agents.KindAccessDenied {
    t.Fatalf("expected AccessDenied, got %v", err)
  }
}

func TestGetRecordDetailCounts(t *testing.T) {
  db := testutil.DB(t)
  tx := testutil.Tx(t, db)

  patientUser := testutil.SeedUser(t, tx, types.RolePatient)
  patient := testutil.SeedPatient(t, tx, patientUser.ID)
  record := testutil.SeedRecord(t, tx, patient.ID, patientUser.ID, types.RecordStatusProcessed, types.RecordKindDocument)
  seedChunkWithEmbedding(t, tx, record, 0, "hemoglobin 13.1 within range")
  seedChunkWithEmbedding(t, tx, record, 1, "cholesterol slightly elevated")

  agent := newQueryAgent(t, tx, &testutil.FakeOpenAI{})

  detail, err := agent.GetRecordDetail(context.Background(), patientUser.ID, record.ID)
  if err != nil {
    t.Fatalf("detail: %v", err)
  }
  if detail.Record.ID != record.ID {
    t.Fatalf("unexpected record %s", detail.Record.ID)
  }
  if detail.ChunkCount != 2 || detail.EmbeddingCount != 2 {
    t.Fatalf("expected 2 chunks and 2 embeddings, got %d and %d", detail.ChunkCount, detail.EmbeddingCount)
  }

  stranger := testutil.SeedUser(t, tx, types.RoleDoctor)
  if _, err := agent.GetRecordDetail(context.Background(), stranger.ID, record.ID); agents.KindOf(err) != agents.KindAccessDenied {
    t.Fatalf("expected AccessDenied for ungranted doctor, got %v", err)
  }
}
