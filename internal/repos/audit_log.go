package repos

import (
  "context"
  "gorm.io/gorm"
  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/types"
)

type AuditLogRepo interface {
  Create(ctx context.Context, tx *gorm.DB, entries []*types.AuditLog) ([]*types.AuditLog, error)
}

type auditLogRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewAuditLogRepo(db *gorm.DB, baseLog *logger.Logger) AuditLogRepo {
  return &auditLogRepo{db: db, log: baseLog.With("repo", "AuditLogRepo")}
}

func (r *auditLogRepo) Create(ctx context.Context, tx *gorm.DB, entries []*types.AuditLog) ([]*types.AuditLog, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(entries) == 0 {
    return []*types.AuditLog{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&entries).Error; err != nil {
    return nil, err
  }
  return entries, nil
}
