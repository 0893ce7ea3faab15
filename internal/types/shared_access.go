package types

import (
  "time"
  "github.com/google/uuid"
)

// SharedAccess grants a doctor read access to one record.
type SharedAccess struct {
  ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  RecordID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"record_id"`
  Record    *Record    `gorm:"constraint:OnDelete:CASCADE;foreignKey:RecordID;references:ID" json:"record,omitempty"`
  DoctorID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"doctor_id"`
  GrantedAt time.Time  `gorm:"column:granted_at;not null;default:now()" json:"granted_at"`
  ExpiresAt *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
}

func (SharedAccess) TableName() string { return "shared_access" }
