package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/types"
)

type RecordEmbeddingRepo interface {
  Create(ctx context.Context, tx *gorm.DB, embeddings []*types.RecordEmbedding) ([]*types.RecordEmbedding, error)
  // GetByRecordIDs returns embeddings in stable insertion order (created_at,
  // then id) so similarity ties rank deterministically.
  GetByRecordIDs(ctx context.Context, tx *gorm.DB, recordIDs []uuid.UUID) ([]*types.RecordEmbedding, error)
  CountByRecordID(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) (int64, error)
}

type recordEmbeddingRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewRecordEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) RecordEmbeddingRepo {
  return &recordEmbeddingRepo{db: db, log: baseLog.With("repo", "RecordEmbeddingRepo")}
}

func (r *recordEmbeddingRepo) Create(ctx context.Context, tx *gorm.DB, embeddings []*types.RecordEmbedding) ([]*types.RecordEmbedding, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(embeddings) == 0 {
    return []*types.RecordEmbedding{}, nil
  }

  const batchSize = 100

  if err := transaction.WithContext(ctx).CreateInBatches(embeddings, batchSize).Error; err != nil {
    return nil, err
  }
  return embeddings, nil
}

func (r *recordEmbeddingRepo) GetByRecordIDs(ctx context.Context, tx *gorm.DB, recordIDs []uuid.UUID) ([]*types.RecordEmbedding, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.RecordEmbedding
  if len(recordIDs) == 0 {
    return results, nil
  }
  if err := transaction.WithContext(ctx).
    Where("record_id IN ?", recordIDs).
    Order("created_at ASC, id ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *recordEmbeddingRepo) CountByRecordID(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var n int64
  if err := transaction.WithContext(ctx).
    Model(&types.RecordEmbedding{}).
    Where("record_id = ?", recordID).
    Count(&n).Error; err != nil {
    return 0, err
  }
  return n, nil
}
