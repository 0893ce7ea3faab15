package repos

import (
  "context"
  "errors"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/types"
)

type RecordRepo interface {
  Create(ctx context.Context, tx *gorm.DB, records []*types.Record) ([]*types.Record, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Record, error)
  // GetByIDForUpdate takes a row lock on the record. Callers use it as the
  // per-record mutual-exclusion guard for processing; it must run inside a
  // transaction.
  GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Record, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Record, error)
  UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
  // SetStatusIf moves the record from one status to another only when it
  // still holds the expected current status. Reports whether a row changed.
  SetStatusIf(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to types.RecordStatus) (bool, error)
  ListIDsByPatientIDs(ctx context.Context, tx *gorm.DB, patientIDs []uuid.UUID) ([]uuid.UUID, error)
  ListAllIDs(ctx context.Context, tx *gorm.DB) ([]uuid.UUID, error)
}

type recordRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewRecordRepo(db *gorm.DB, baseLog *logger.Logger) RecordRepo {
  return &recordRepo{db: db, log: baseLog.With("repo", "RecordRepo")}
}

func (r *recordRepo) Create(ctx context.Context, tx *gorm.DB, records []*types.Record) ([]*types.Record, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(records) == 0 {
    return []*types.Record{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&records).Error; err != nil {
    return nil, err
  }
  return records, nil
}

func (r *recordRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Record, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var rec types.Record
  err := transaction.WithContext(ctx).Where("id = ?", id).First(&rec).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &rec, nil
}

func (r *recordRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Record, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var rec types.Record
  err := transaction.WithContext(ctx).
    Clauses(clause.Locking{Strength: "UPDATE"}).
    Where("id = ?", id).
    First(&rec).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &rec, nil
}

func (r *recordRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Record, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var out []*types.Record
  if len(ids) == 0 {
    return out, nil
  }
  if err := transaction.WithContext(ctx).
    Where("id IN ?", ids).
    Find(&out).Error; err != nil {
    return nil, err
  }
  return out, nil
}

func (r *recordRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  return transaction.WithContext(ctx).
    Model(&types.Record{}).
    Where("id = ?", id).
    Updates(updates).Error
}

func (r *recordRepo) SetStatusIf(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to types.RecordStatus) (bool, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  res := transaction.WithContext(ctx).
    Model(&types.Record{}).
    Where("id = ? AND status = ?", id, from).
    Update("status", to)
  if res.Error != nil {
    return false, res.Error
  }
  return res.RowsAffected > 0, nil
}

func (r *recordRepo) ListIDsByPatientIDs(ctx context.Context, tx *gorm.DB, patientIDs []uuid.UUID) ([]uuid.UUID, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var ids []uuid.UUID
  if len(patientIDs) == 0 {
    return ids, nil
  }
  if err := transaction.WithContext(ctx).
    Model(&types.Record{}).
    Where("patient_id IN ?", patientIDs).
    Pluck("id", &ids).Error; err != nil {
    return nil, err
  }
  return ids, nil
}

func (r *recordRepo) ListAllIDs(ctx context.Context, tx *gorm.DB) ([]uuid.UUID, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var ids []uuid.UUID
  if err := transaction.WithContext(ctx).
    Model(&types.Record{}).
    Pluck("id", &ids).Error; err != nil {
    return nil, err
  }
  return ids, nil
}
