package repos

import (
  "context"
  "errors"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/types"
)

type PatientRepo interface {
  Create(ctx context.Context, tx *gorm.DB, patients []*types.Patient) ([]*types.Patient, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Patient, error)
  GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.Patient, error)
}

type patientRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPatientRepo(db *gorm.DB, baseLog *logger.Logger) PatientRepo {
  return &patientRepo{db: db, log: baseLog.With("repo", "PatientRepo")}
}

func (r *patientRepo) Create(ctx context.Context, tx *gorm.DB, patients []*types.Patient) ([]*types.Patient, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(patients) == 0 {
    return []*types.Patient{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&patients).Error; err != nil {
    return nil, err
  }
  return patients, nil
}

func (r *patientRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Patient, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var p types.Patient
  err := transaction.WithContext(ctx).Where("id = ?", id).First(&p).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &p, nil
}

func (r *patientRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.Patient, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var p types.Patient
  err := transaction.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &p, nil
}
