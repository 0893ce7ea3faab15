package repos

import (
  "context"
  "errors"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/types"
)

type UserRepo interface {
  Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.User, error)
  GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.User, error)
  RolesForUser(ctx context.Context, tx *gorm.DB, id uuid.UUID) ([]types.Role, error)
}

type userRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
  return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

func (r *userRepo) Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(users) == 0 {
    return []*types.User{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&users).Error; err != nil {
    return nil, err
  }
  return users, nil
}

func (r *userRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.User, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var u types.User
  err := transaction.WithContext(ctx).
    Preload("Roles").
    Where("id = ?", id).
    First(&u).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.User, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var u types.User
  err := transaction.WithContext(ctx).
    Preload("Roles").
    Where("email = ?", email).
    First(&u).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &u, nil
}

func (r *userRepo) RolesForUser(ctx context.Context, tx *gorm.DB, id uuid.UUID) ([]types.Role, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var rows []types.UserRole
  if err := transaction.WithContext(ctx).
    Where("user_id = ?", id).
    Find(&rows).Error; err != nil {
    return nil, err
  }
  roles := make([]types.Role, 0, len(rows))
  for _, row := range rows {
    roles = append(roles, row.Role)
  }
  return roles, nil
}
