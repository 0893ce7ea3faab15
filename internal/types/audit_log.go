package types

import (
  "time"
  "github.com/google/uuid"
)

// AuditLog is append-only; rows are written by any component performing a
// security-relevant action and never updated.
type AuditLog struct {
  ID         uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
  Action     string     `gorm:"column:action;not null" json:"action"`
  Resource   string     `gorm:"column:resource;not null" json:"resource"`
  ResourceID *uuid.UUID `gorm:"type:uuid;column:resource_id" json:"resource_id,omitempty"`
  Timestamp  time.Time  `gorm:"column:timestamp;not null;default:now()" json:"timestamp"`
  IPAddress  string     `gorm:"column:ip_address" json:"ip_address,omitempty"`
  UserAgent  string     `gorm:"column:user_agent" json:"user_agent,omitempty"`
}

func (AuditLog) TableName() string { return "audit_logs" }
