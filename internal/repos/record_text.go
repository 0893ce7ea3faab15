package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/types"
)

type RecordTextRepo interface {
  Create(ctx context.Context, tx *gorm.DB, chunks []*types.RecordText) ([]*types.RecordText, error)
  GetByRecordID(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) ([]*types.RecordText, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.RecordText, error)
  CountByRecordID(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) (int64, error)
}

type recordTextRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewRecordTextRepo(db *gorm.DB, baseLog *logger.Logger) RecordTextRepo {
  return &recordTextRepo{db: db, log: baseLog.With("repo", "RecordTextRepo")}
}

func (r *recordTextRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*types.RecordText) ([]*types.RecordText, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(chunks) == 0 {
    return []*types.RecordText{}, nil
  }

  // Keep batches small because ExtractedText is large
  const batchSize = 100

  if err := transaction.WithContext(ctx).CreateInBatches(chunks, batchSize).Error; err != nil {
    return nil, err
  }
  return chunks, nil
}

func (r *recordTextRepo) GetByRecordID(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) ([]*types.RecordText, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.RecordText
  if err := transaction.WithContext(ctx).
    Where("record_id = ?", recordID).
    Order("chunk_index ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *recordTextRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.RecordText, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.RecordText
  if len(ids) == 0 {
    return results, nil
  }
  if err := transaction.WithContext(ctx).
    Where("id IN ?", ids).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *recordTextRepo) CountByRecordID(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var n int64
  if err := transaction.WithContext(ctx).
    Model(&types.RecordText{}).
    Where("record_id = ?", recordID).
    Count(&n).Error; err != nil {
    return 0, err
  }
  return n, nil
}
