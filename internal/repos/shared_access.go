package repos

import (
  "context"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/types"
)

type SharedAccessRepo interface {
  Create(ctx context.Context, tx *gorm.DB, grants []*types.SharedAccess) ([]*types.SharedAccess, error)
  // ListRecordIDsByDoctor returns ids of records currently shared with the
  // doctor (expired grants excluded).
  ListRecordIDsByDoctor(ctx context.Context, tx *gorm.DB, doctorID uuid.UUID) ([]uuid.UUID, error)
  // ExistsForPatientDoctor reports whether any record of the patient is
  // currently shared with the doctor.
  ExistsForPatientDoctor(ctx context.Context, tx *gorm.DB, patientID, doctorID uuid.UUID) (bool, error)
  // ExistsForRecordDoctor reports whether the specific record is currently
  // shared with the doctor.
  ExistsForRecordDoctor(ctx context.Context, tx *gorm.DB, recordID, doctorID uuid.UUID) (bool, error)
}

type sharedAccessRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewSharedAccessRepo(db *gorm.DB, baseLog *logger.Logger) SharedAccessRepo {
  return &sharedAccessRepo{db: db, log: baseLog.With("repo", "SharedAccessRepo")}
}

func (r *sharedAccessRepo) Create(ctx context.Context, tx *gorm.DB, grants []*types.SharedAccess) ([]*types.SharedAccess, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(grants) == 0 {
    return []*types.SharedAccess{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&grants).Error; err != nil {
    return nil, err
  }
  return grants, nil
}

func (r *sharedAccessRepo) ListRecordIDsByDoctor(ctx context.Context, tx *gorm.DB, doctorID uuid.UUID) ([]uuid.UUID, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var ids []uuid.UUID
  if err := transaction.WithContext(ctx).
    Model(&types.SharedAccess{}).
    Where("doctor_id = ? AND (expires_at IS NULL OR expires_at > ?)", doctorID, time.Now()).
    Pluck("record_id", &ids).Error; err != nil {
    return nil, err
  }
  return ids, nil
}

func (r *sharedAccessRepo) ExistsForPatientDoctor(ctx context.Context, tx *gorm.DB, patientID, doctorID uuid.UUID) (bool, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var n int64
  err := transaction.WithContext(ctx).
    Model(&types.SharedAccess{}).
    Joins("JOIN records ON records.id = shared_access.record_id").
    Where("records.patient_id = ? AND shared_access.doctor_id = ?", patientID, doctorID).
    Where("shared_access.expires_at IS NULL OR shared_access.expires_at > ?", time.Now()).
    Count(&n).Error
  if err != nil {
    return false, err
  }
  return n > 0, nil
}

func (r *sharedAccessRepo) ExistsForRecordDoctor(ctx context.Context, tx *gorm.DB, recordID, doctorID uuid.UUID) (bool, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var n int64
  err := transaction.WithContext(ctx).
    Model(&types.SharedAccess{}).
    Where("record_id = ? AND doctor_id = ?", recordID, doctorID).
    Where("expires_at IS NULL OR expires_at > ?", time.Now()).
    Count(&n).Error
  if err != nil {
    return false, err
  }
  return n > 0, nil
}
