package agents

import (
  "context"
  "encoding/json"
  "fmt"
  "math"
  "sort"
  "strings"
  "time"
  "unicode/utf8"

  "github.com/google/uuid"

  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/repos"
  "github.com/medvault/medvault-backend/internal/services"
  "github.com/medvault/medvault-backend/internal/types"
)

const (
  DefaultTopK = 5
  MaxTopK     = 50

  excerptLimit     = 500
  answerContextMax = 4000
)

const answerSystemPrompt = "You are a medical records assistant. Answer the " +
  "user's question using only the provided record text. If the text does not " +
  "contain the answer, say so plainly. Do not speculate."

type SearchMatch struct {
  RecordID   uuid.UUID        `json:"record_id"`
  ChunkID    uuid.UUID        `json:"chunk_id"`
  ChunkIndex int              `json:"chunk_index"`
  Score      float64          `json:"score"`
  Excerpt    string           `json:"excerpt"`
  Title      string           `json:"title"`
  Kind       types.RecordKind `json:"kind"`
  UploadDate time.Time        `json:"upload_date"`
}

type Answer struct {
  RecordID uuid.UUID   `json:"record_id"`
  Question string      `json:"question"`
  Answer   string      `json:"answer"`
  ChunkIDs []uuid.UUID `json:"chunk_ids"`
}

// QueryAgent serves semantic search and question answering over records the
// caller is allowed to see. Access is resolved before any chunk or vector
// leaves the database.
type QueryAgent struct {
  log         *logger.Logger
  userRepo    repos.UserRepo
  patientRepo repos.PatientRepo
  recordRepo  repos.RecordRepo
  textRepo    repos.RecordTextRepo
  embRepo     repos.RecordEmbeddingRepo
  sharedRepo  repos.SharedAccessRepo
  openai      services.OpenAIClient
  audit       auditor
}

func NewQueryAgent(
  log *logger.Logger,
  userRepo repos.UserRepo,
  patientRepo repos.PatientRepo,
  recordRepo repos.RecordRepo,
  textRepo repos.RecordTextRepo,
  embRepo repos.RecordEmbeddingRepo,
  sharedRepo repos.SharedAccessRepo,
  auditRepo repos.AuditLogRepo,
  openai services.OpenAIClient,
) *QueryAgent {
  agentLog := log.With("agent", "QueryAgent")
  return &QueryAgent{
    log:         agentLog,
    userRepo:    userRepo,
    patientRepo: patientRepo,
    recordRepo:  recordRepo,
    textRepo:    textRepo,
    embRepo:     embRepo,
    sharedRepo:  sharedRepo,
    openai:      openai,
    audit:       auditor{log: agentLog, repo: auditRepo},
  }
}

// GetRecord looks up a record by id, mapping a missing row to NotFound.
func (a *QueryAgent) GetRecord(ctx context.Context, recordID uuid.UUID) (*types.Record, error) {
  record, err := a.recordRepo.GetByID(ctx, nil, recordID)
  if err != nil {
    return nil, Ef(KindProcessing, "look up record %s: %w", recordID, err)
  }
  if record == nil {
    return nil, Ef(KindNotFound, "record %s not found", recordID)
  }
  return record, nil
}

// ListRecords returns every record the user may read, newest upload first.
// With a patient filter the caller must have a relationship to that patient
// (own profile, an active grant, or an administrative role); the result is
// still narrowed to the individually accessible records, so a doctor with a
// single-record grant sees only that record.
func (a *QueryAgent) ListRecords(ctx context.Context, userID uuid.UUID, patientFilter *uuid.UUID) ([]*types.Record, error) {
  accessible, err := a.AccessibleRecordIDs(ctx, userID)
  if err != nil {
    return nil, err
  }

  if patientFilter != nil {
    allowed, err := a.canViewPatient(ctx, userID, *patientFilter)
    if err != nil {
      return nil, err
    }
    if !allowed {
      return nil, Ef(KindAccessDenied, "user %s may not list records of patient %s", userID, *patientFilter)
    }
    patientIDs, err := a.recordRepo.ListIDsByPatientIDs(ctx, nil, []uuid.UUID{*patientFilter})
    if err != nil {
      return nil, Ef(KindProcessing, "list patient records: %w", err)
    }
    accessible = intersect(accessible, patientIDs)
  }

  if len(accessible) == 0 {
    return []*types.Record{}, nil
  }
  records, err := a.recordRepo.GetByIDs(ctx, nil, accessible)
  if err != nil {
    return nil, Ef(KindProcessing, "load records: %w", err)
  }
  sort.SliceStable(records, func(i, j int) bool {
    return records[i].UploadDate.After(records[j].UploadDate)
  })
  return records, nil
}

// canViewPatient reports whether the user has any relationship to the
// patient: an administrative role, the patient's own profile, or (for
// doctors) at least one active grant from that patient.
func (a *QueryAgent) canViewPatient(ctx context.Context, userID, patientID uuid.UUID) (bool, error) {
  roles, err := a.userRepo.RolesForUser(ctx, nil, userID)
  if err != nil {
    return false, Ef(KindProcessing, "resolve roles for %s: %w", userID, err)
  }
  for _, role := range roles {
    switch role {
    case types.RoleAdmin, types.RoleHospitalManager:
      return true, nil
    case types.RolePatient:
      patient, err := a.patientRepo.GetByUserID(ctx, nil, userID)
      if err != nil {
        return false, Ef(KindProcessing, "resolve patient for %s: %w", userID, err)
      }
      if patient != nil && patient.ID == patientID {
        return true, nil
      }
    case types.RoleDoctor:
      shared, err := a.sharedRepo.ExistsForPatientDoctor(ctx, nil, patientID, userID)
      if err != nil {
        return false, Ef(KindProcessing, "check shared access: %w", err)
      }
      if shared {
        return true, nil
      }
    }
  }
  return false, nil
}

// RecordDetail is one record plus its processing footprint.
type RecordDetail struct {
  Record         *types.Record `json:"record"`
  ChunkCount     int64         `json:"chunk_count"`
  EmbeddingCount int64         `json:"embedding_count"`
}

// GetRecordDetail loads one accessible record with its chunk and embedding
// counts.
func (a *QueryAgent) GetRecordDetail(ctx context.Context, userID, recordID uuid.UUID) (*RecordDetail, error) {
  record, err := a.GetRecord(ctx, recordID)
  if err != nil {
    return nil, err
  }
  allowed, err := a.CheckAccess(ctx, userID, record)
  if err != nil {
    return nil, err
  }
  if !allowed {
    return nil, Ef(KindAccessDenied, "user %s may not read record %s", userID, recordID)
  }

  chunkCount, err := a.textRepo.CountByRecordID(ctx, nil, recordID)
  if err != nil {
    return nil, Ef(KindProcessing, "count chunks for %s: %w", recordID, err)
  }
  embeddingCount, err := a.embRepo.CountByRecordID(ctx, nil, recordID)
  if err != nil {
    return nil, Ef(KindProcessing, "count embeddings for %s: %w", recordID, err)
  }

  return &RecordDetail{
    Record:         record,
    ChunkCount:     chunkCount,
    EmbeddingCount: embeddingCount,
  }, nil
}

// AccessibleRecordIDs resolves the set of record ids the user may read,
// unioned across all of the user's roles.
func (a *QueryAgent) AccessibleRecordIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
  roles, err := a.userRepo.RolesForUser(ctx, nil, userID)
  if err != nil {
    return nil, Ef(KindProcessing, "resolve roles for %s: %w", userID, err)
  }

  seen := make(map[uuid.UUID]struct{})
  var out []uuid.UUID
  add := func(ids []uuid.UUID) {
    for _, id := range ids {
      if _, ok := seen[id]; ok {
        continue
      }
      seen[id] = struct{}{}
      out = append(out, id)
    }
  }

  for _, role := range roles {
    switch role {
    case types.RoleAdmin, types.RoleHospitalManager:
      ids, err := a.recordRepo.ListAllIDs(ctx, nil)
      if err != nil {
        return nil, Ef(KindProcessing, "list records: %w", err)
      }
      add(ids)
    case types.RolePatient:
      patient, err := a.patientRepo.GetByUserID(ctx, nil, userID)
      if err != nil {
        return nil, Ef(KindProcessing, "resolve patient for %s: %w", userID, err)
      }
      if patient == nil {
        continue
      }
      ids, err := a.recordRepo.ListIDsByPatientIDs(ctx, nil, []uuid.UUID{patient.ID})
      if err != nil {
        return nil, Ef(KindProcessing, "list patient records: %w", err)
      }
      add(ids)
    case types.RoleDoctor:
      ids, err := a.sharedRepo.ListRecordIDsByDoctor(ctx, nil, userID)
      if err != nil {
        return nil, Ef(KindProcessing, "list shared records: %w", err)
      }
      add(ids)
    }
  }
  return out, nil
}

// CheckAccess reports whether the user may read the record.
func (a *QueryAgent) CheckAccess(ctx context.Context, userID uuid.UUID, record *types.Record) (bool, error) {
  roles, err := a.userRepo.RolesForUser(ctx, nil, userID)
  if err != nil {
    return false, Ef(KindProcessing, "resolve roles for %s: %w", userID, err)
  }

  for _, role := range roles {
    switch role {
    case types.RoleAdmin, types.RoleHospitalManager:
      return true, nil
    case types.RolePatient:
      patient, err := a.patientRepo.GetByUserID(ctx, nil, userID)
      if err != nil {
        return false, Ef(KindProcessing, "resolve patient for %s: %w", userID, err)
      }
      if patient != nil && patient.ID == record.PatientID {
        return true, nil
      }
    case types.RoleDoctor:
      shared, err := a.sharedRepo.ExistsForRecordDoctor(ctx, nil, record.ID, userID)
      if err != nil {
        return false, Ef(KindProcessing, "check shared access: %w", err)
      }
      if shared {
        return true, nil
      }
    }
  }
  return false, nil
}

// SemanticSearch embeds the query and ranks every accessible embedding by
// cosine similarity. Records the caller cannot see never enter the candidate
// set. Ties keep the order the vectors came back from the database.
func (a *QueryAgent) SemanticSearch(ctx context.Context, userID uuid.UUID, query string, topK int, patientFilter *uuid.UUID) ([]SearchMatch, error) {
  if strings.TrimSpace(query) == "" {
    return nil, Ef(KindProcessing, "empty query")
  }
  if topK <= 0 {
    topK = DefaultTopK
  }
  if topK > MaxTopK {
    topK = MaxTopK
  }
  if a.openai == nil {
    return nil, Ef(KindEmbeddingService, "embedding service not configured")
  }

  accessible, err := a.AccessibleRecordIDs(ctx, userID)
  if err != nil {
    return nil, err
  }
  if patientFilter != nil {
    patientIDs, err := a.recordRepo.ListIDsByPatientIDs(ctx, nil, []uuid.UUID{*patientFilter})
    if err != nil {
      return nil, Ef(KindProcessing, "filter by patient: %w", err)
    }
    accessible = intersect(accessible, patientIDs)
  }
  if len(accessible) == 0 {
    a.audit.logAction(ctx, userID, ActionSemanticSearch, "records", nil)
    return []SearchMatch{}, nil
  }

  queryVecs, err := a.openai.Embed(ctx, []string{query})
  if err != nil {
    return nil, Ef(KindEmbeddingService, "embed query: %w", err)
  }
  queryVec := queryVecs[0]

  embeddings, err := a.embRepo.GetByRecordIDs(ctx, nil, accessible)
  if err != nil {
    return nil, Ef(KindProcessing, "load embeddings: %w", err)
  }

  candidates := make([]scoredEmbedding, 0, len(embeddings))
  for _, emb := range embeddings {
    var vec []float32
    if err := json.Unmarshal(emb.Vector, &vec); err != nil {
      a.log.Warn("Skipping undecodable vector", "embedding_id", emb.ID.String(), "error", err.Error())
      continue
    }
    candidates = append(candidates, scoredEmbedding{emb: emb, score: CosineSimilarity(queryVec, vec)})
  }

  sort.SliceStable(candidates, func(i, j int) bool {
    return candidates[i].score > candidates[j].score
  })
  if len(candidates) > topK {
    candidates = candidates[:topK]
  }

  matches, err := a.hydrateMatches(ctx, candidates)
  if err != nil {
    return nil, err
  }

  a.audit.logAction(ctx, userID, ActionSemanticSearch, "records", nil)
  return matches, nil
}

type scoredEmbedding struct {
  emb   *types.RecordEmbedding
  score float64
}

func (a *QueryAgent) hydrateMatches(ctx context.Context, candidates []scoredEmbedding) ([]SearchMatch, error) {
  chunkIDs := make([]uuid.UUID, 0, len(candidates))
  recordIDs := make([]uuid.UUID, 0, len(candidates))
  for _, c := range candidates {
    chunkIDs = append(chunkIDs, c.emb.ChunkID)
    recordIDs = append(recordIDs, c.emb.RecordID)
  }

  chunks, err := a.textRepo.GetByIDs(ctx, nil, chunkIDs)
  if err != nil {
    return nil, Ef(KindProcessing, "load chunks: %w", err)
  }
  chunkByID := make(map[uuid.UUID]*types.RecordText, len(chunks))
  for _, c := range chunks {
    chunkByID[c.ID] = c
  }

  records, err := a.recordRepo.GetByIDs(ctx, nil, recordIDs)
  if err != nil {
    return nil, Ef(KindProcessing, "load records: %w", err)
  }
  recordByID := make(map[uuid.UUID]*types.Record, len(records))
  for _, r := range records {
    recordByID[r.ID] = r
  }

  matches := make([]SearchMatch, 0, len(candidates))
  for _, c := range candidates {
    match := SearchMatch{
      RecordID: c.emb.RecordID,
      ChunkID:  c.emb.ChunkID,
      Score:    c.score,
    }
    if chunk, ok := chunkByID[c.emb.ChunkID]; ok {
      match.ChunkIndex = chunk.ChunkIndex
      match.Excerpt = excerpt(chunk.ExtractedText, excerptLimit)
    }
    if record, ok := recordByID[c.emb.RecordID]; ok {
      match.Title = record.Title
      match.Kind = record.Kind
      match.UploadDate = record.UploadDate
    }
    matches = append(matches, match)
  }
  return matches, nil
}

// AskQuestion answers a free-text question grounded in one record's chunks.
// The access check runs strictly before any chunk is read.
func (a *QueryAgent) AskQuestion(ctx context.Context, userID, recordID uuid.UUID, question string) (*Answer, error) {
  if strings.TrimSpace(question) == "" {
    return nil, Ef(KindProcessing, "empty question")
  }
  if a.openai == nil {
    return nil, Ef(KindGeneration, "completion service not configured")
  }

  record, err := a.recordRepo.GetByID(ctx, nil, recordID)
  if err != nil {
    return nil, Ef(KindProcessing, "look up record %s: %w", recordID, err)
  }
  if record == nil {
    return nil, Ef(KindNotFound, "record %s not found", recordID)
  }

  allowed, err := a.CheckAccess(ctx, userID, record)
  if err != nil {
    return nil, err
  }
  if !allowed {
    return nil, Ef(KindAccessDenied, "user %s may not read record %s", userID, recordID)
  }

  chunks, err := a.textRepo.GetByRecordID(ctx, nil, recordID)
  if err != nil {
    return nil, Ef(KindProcessing, "load chunks for %s: %w", recordID, err)
  }

  parts := make([]string, 0, len(chunks))
  chunkIDs := make([]uuid.UUID, 0, len(chunks))
  for _, c := range chunks {
    parts = append(parts, c.ExtractedText)
    chunkIDs = append(chunkIDs, c.ID)
  }
  contextText := clip(strings.Join(parts, "\n\n"), answerContextMax)

  prompt := fmt.Sprintf("Record text:\n\n%s\n\nQuestion: %s", contextText, question)
  answer, err := a.openai.Complete(ctx, answerSystemPrompt, prompt, 500)
  if err != nil {
    return nil, Ef(KindGeneration, "answer question for record %s: %w", recordID, err)
  }

  a.audit.logAction(ctx, userID, ActionAskQuestion, "record", &recordID)

  return &Answer{
    RecordID: recordID,
    Question: question,
    Answer:   answer,
    ChunkIDs: chunkIDs,
  }, nil
}

// CosineSimilarity over float32 vectors. Mismatched or zero-norm vectors
// score 0.
func CosineSimilarity(a, b []float32) float64 {
  if len(a) != len(b) || len(a) == 0 {
    return 0
  }
  var dot, na, nb float64
  for i := range a {
    x := float64(a[i])
    y := float64(b[i])
    dot += x * y
    na += x * x
    nb += y * y
  }
  if na == 0 || nb == 0 {
    return 0
  }
  return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func excerpt(s string, limit int) string {
  return clip(s, limit)
}

// clip truncates s to at most limit bytes, backing off to the nearest rune
// boundary so the result is always valid UTF-8.
func clip(s string, limit int) string {
  if len(s) <= limit {
    return s
  }
  cut := limit
  for cut > 0 && !utf8.RuneStart(s[cut]) {
    cut--
  }
  return s[:cut]
}

func intersect(a, b []uuid.UUID) []uuid.UUID {
  inB := make(map[uuid.UUID]struct{}, len(b))
  for _, id := range b {
    inB[id] = struct{}{}
  }
  out := make([]uuid.UUID, 0, len(a))
  for _, id := range a {
    if _, ok := inB[id]; ok {
      out = append(out, id)
    }
  }
  return out
}
