package agents

import (
  "context"
  "encoding/json"
  "fmt"
  "strings"

  "github.com/google/uuid"
  "golang.org/x/sync/errgroup"
  "gorm.io/datatypes"
  "gorm.io/gorm"

  "github.com/medvault/medvault-backend/internal/extract"
  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/repos"
  "github.com/medvault/medvault-backend/internal/services"
  "github.com/medvault/medvault-backend/internal/types"
)

// DefaultChunkThreshold is the target character size of one embedding sub-chunk.
const DefaultChunkThreshold = 1000

const embedConcurrency = 4

const summaryContextLimit = 4000

const summarySystemPrompt = "You are a medical records assistant. Summarize the " +
  "following medical record text in a few sentences for a clinician. Note key " +
  "findings, diagnoses, medications, and dates. Do not invent information that " +
  "is not in the text."

// ChunkForEmbedding splits text into sub-chunks by greedy word accumulation.
// Words are appended until the running size (each word plus one separator)
// reaches threshold, then the chunk is flushed. Every chunk except possibly
// the last reaches the threshold, and joining the chunks back with spaces
// preserves the exact word sequence of the input.
func ChunkForEmbedding(text string, threshold int) []string {
  if threshold <= 0 {
    threshold = DefaultChunkThreshold
  }
  words := strings.Fields(text)
  if len(words) == 0 {
    return nil
  }

  var chunks []string
  var current []string
  size := 0
  for _, w := range words {
    current = append(current, w)
    size += len(w) + 1
    if size >= threshold {
      chunks = append(chunks, strings.Join(current, " "))
      current = nil
      size = 0
    }
  }
  if len(current) > 0 {
    chunks = append(chunks, strings.Join(current, " "))
  }
  return chunks
}

type ProcessResult struct {
  RecordID         uuid.UUID          `json:"record_id"`
  Status           types.RecordStatus `json:"status"`
  AlreadyProcessed bool               `json:"already_processed"`
  ChunkCount       int                `json:"chunk_count"`
  EmbeddingCount   int                `json:"embedding_count"`
  Summary          string             `json:"summary,omitempty"`
}

// InsightsAgent runs the extraction pipeline for one record: download the
// blob, extract text, persist chunks, embed, summarize, mark processed.
type InsightsAgent struct {
  log        *logger.Logger
  db         *gorm.DB
  recordRepo repos.RecordRepo
  textRepo   repos.RecordTextRepo
  embRepo    repos.RecordEmbeddingRepo
  bucket     services.BucketService
  openai     services.OpenAIClient
  registry   *extract.Registry
  threshold  int
}

func NewInsightsAgent(
  log *logger.Logger,
  db *gorm.DB,
  recordRepo repos.RecordRepo,
  textRepo repos.RecordTextRepo,
  embRepo repos.RecordEmbeddingRepo,
  bucket services.BucketService,
  openai services.OpenAIClient,
  registry *extract.Registry,
) *InsightsAgent {
  return &InsightsAgent{
    log:        log.With("agent", "InsightsAgent"),
    db:         db,
    recordRepo: recordRepo,
    textRepo:   textRepo,
    embRepo:    embRepo,
    bucket:     bucket,
    openai:     openai,
    registry:   registry,
    threshold:  DefaultChunkThreshold,
  }
}

// Process extracts insights for the record. All row writes share one
// transaction; the row lock taken up front makes concurrent dispatches for
// the same record serialize, and the processed check makes the second one a
// no-op, so at-least-once delivery never duplicates chunks.
func (a *InsightsAgent) Process(ctx context.Context, recordID uuid.UUID) (*ProcessResult, error) {
  tx := a.db.WithContext(ctx).Begin()
  if tx.Error != nil {
    return nil, Ef(KindProcessing, "begin transaction: %w", tx.Error)
  }

  result, err := a.processInTx(ctx, tx, recordID)
  if err != nil {
    // Release the row lock before touching the row outside the transaction.
    tx.Rollback()
    if KindOf(err) == KindProcessing {
      a.resetToPending(recordID)
    }
    return nil, err
  }
  if result.AlreadyProcessed {
    tx.Rollback()
    return result, nil
  }

  if err := tx.Commit().Error; err != nil {
    a.resetToPending(recordID)
    return nil, Ef(KindProcessing, "commit record %s: %w", recordID, err)
  }

  a.log.Info("Record processed",
    "record_id", recordID.String(),
    "chunks", result.ChunkCount,
    "embeddings", result.EmbeddingCount,
  )
  return result, nil
}

func (a *InsightsAgent) processInTx(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) (*ProcessResult, error) {
  record, err := a.recordRepo.GetByIDForUpdate(ctx, tx, recordID)
  if err != nil {
    return nil, Ef(KindProcessing, "lock record %s: %w", recordID, err)
  }
  if record == nil {
    return nil, Ef(KindNotFound, "record %s not found", recordID)
  }
  if record.Status == types.RecordStatusProcessed {
    a.log.Info("Record already processed, skipping", "record_id", recordID.String())
    return &ProcessResult{
      RecordID:         recordID,
      Status:           types.RecordStatusProcessed,
      AlreadyProcessed: true,
    }, nil
  }

  if a.bucket == nil {
    return nil, Ef(KindStorage, "bucket storage not configured")
  }
  data, err := a.bucket.DownloadFile(ctx, record.StorageKey)
  if err != nil {
    // Status untouched: the blob may appear on retry.
    return nil, Ef(KindStorage, "download record %s: %w", recordID, err)
  }

  filename := record.StorageKey
  segments := a.registry.ExtractSegments(ctx, record.Kind, data, filename)

  chunkCount := 0
  embeddingCount := 0
  for i, segment := range segments {
    chunk := &types.RecordText{
      RecordID:      recordID,
      ExtractedText: segment,
      ChunkIndex:    i,
    }
    created, err := a.textRepo.Create(ctx, tx, []*types.RecordText{chunk})
    if err != nil {
      return nil, Ef(KindProcessing, "persist chunk %d of record %s: %w", i, recordID, err)
    }
    chunk = created[0]
    chunkCount++

    // Sentinel placeholders are stored but never embedded or summarized.
    if segment == extract.SentinelUnsupported || segment == extract.SentinelNoText {
      continue
    }

    embedded, err := a.embedChunk(ctx, tx, recordID, chunk.ID, segment)
    if err != nil {
      return nil, err
    }
    embeddingCount += embedded
  }

  summary := a.summarize(ctx, recordID, segments)

  if err := a.recordRepo.UpdateFields(ctx, tx, recordID, map[string]interface{}{
    "status": types.RecordStatusProcessed,
  }); err != nil {
    return nil, Ef(KindProcessing, "mark record %s processed: %w", recordID, err)
  }

  return &ProcessResult{
    RecordID:       recordID,
    Status:         types.RecordStatusProcessed,
    ChunkCount:     chunkCount,
    EmbeddingCount: embeddingCount,
    Summary:        summary,
  }, nil
}

// embedChunk embeds the sub-chunks of one stored chunk in parallel. Embedding
// is best effort: a failed sub-chunk is logged and skipped, never fatal. The
// returned count is the number of vectors actually stored. Errors only come
// from the row insert.
func (a *InsightsAgent) embedChunk(ctx context.Context, tx *gorm.DB, recordID, chunkID uuid.UUID, text string) (int, error) {
  subChunks := ChunkForEmbedding(text, a.threshold)
  if len(subChunks) == 0 {
    return 0, nil
  }
  if a.openai == nil {
    a.log.Warn("Embedding service not configured, storing chunk without vectors",
      "record_id", recordID.String(),
      "chunk_id", chunkID.String(),
    )
    return 0, nil
  }

  vectors := make([][]float32, len(subChunks))
  g, gctx := errgroup.WithContext(ctx)
  g.SetLimit(embedConcurrency)
  for i := range subChunks {
    i := i
    g.Go(func() error {
      out, err := a.openai.Embed(gctx, []string{subChunks[i]})
      if err != nil {
        a.log.Warn("Embedding failed for sub-chunk, skipping",
          "record_id", recordID.String(),
          "chunk_id", chunkID.String(),
          "sub_chunk", i,
          "error", err.Error(),
        )
        return nil
      }
      if len(out) == 1 {
        vectors[i] = out[0]
      }
      return nil
    })
  }
  _ = g.Wait()

  rows := make([]*types.RecordEmbedding, 0, len(vectors))
  for _, vec := range vectors {
    if vec == nil {
      continue
    }
    raw, err := json.Marshal(vec)
    if err != nil {
      return 0, Ef(KindProcessing, "encode vector for chunk %s: %w", chunkID, err)
    }
    rows = append(rows, &types.RecordEmbedding{
      RecordID: recordID,
      ChunkID:  chunkID,
      Vector:   datatypes.JSON(raw),
    })
  }
  if len(rows) == 0 {
    return 0, nil
  }
  if _, err := a.embRepo.Create(ctx, tx, rows); err != nil {
    return 0, Ef(KindProcessing, "persist embeddings for chunk %s: %w", chunkID, err)
  }
  return len(rows), nil
}

// summarize asks the completion model for a short clinical summary of the
// extracted text. Failures leave the summary empty.
func (a *InsightsAgent) summarize(ctx context.Context, recordID uuid.UUID, segments []string) string {
  real := make([]string, 0, len(segments))
  for _, s := range segments {
    if s == extract.SentinelUnsupported || s == extract.SentinelNoText {
      continue
    }
    real = append(real, s)
  }
  full := strings.Join(real, "\n\n")
  if strings.TrimSpace(full) == "" || a.openai == nil {
    return ""
  }
  full = clip(full, summaryContextLimit)
  prompt := fmt.Sprintf("Medical record text:\n\n%s", full)
  summary, err := a.openai.Complete(ctx, summarySystemPrompt, prompt, 300)
  if err != nil {
    a.log.Warn("Summary generation failed, omitting",
      "record_id", recordID.String(),
      "error", err.Error(),
    )
    return ""
  }
  return summary
}

func (a *InsightsAgent) resetToPending(recordID uuid.UUID) {
  // Runs outside the pipeline transaction, which is already doomed. The
  // transition is conditional on the row still being in processing: a
  // concurrent dispatch may have finished the record between our rollback
  // and this write, and a processed record must never regress.
  reset, err := a.recordRepo.SetStatusIf(context.Background(), nil, recordID,
    types.RecordStatusProcessing, types.RecordStatusPending)
  if err != nil {
    a.log.Error("Failed to reset record status to pending",
      "record_id", recordID.String(),
      "error", err.Error(),
    )
    return
  }
  if !reset {
    a.log.Info("Record no longer processing, leaving status as is",
      "record_id", recordID.String(),
    )
  }
}
