package types

import (
  "time"
  "github.com/google/uuid"
)

type Role string

const (
  RolePatient         Role = "patient"
  RoleDoctor          Role = "doctor"
  RoleHospitalManager Role = "hospital_manager"
  RoleAdmin           Role = "admin"
)

type User struct {
  ID            uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  Email         string     `gorm:"column:email;uniqueIndex" json:"email"`
  Phone         string     `gorm:"column:phone" json:"phone,omitempty"`
  PasswordHash  string     `gorm:"column:password_hash" json:"-"`
  EmailVerified bool       `gorm:"column:email_verified;default:false" json:"email_verified"`
  CreatedAt     time.Time  `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt     time.Time  `gorm:"not null;default:now()" json:"updated_at"`

  Roles []UserRole `gorm:"foreignKey:UserID;references:ID" json:"roles,omitempty"`
}

func (User) TableName() string { return "users" }

type UserRole struct {
  ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
  Role   Role      `gorm:"column:role;not null" json:"role"`
}

func (UserRole) TableName() string { return "user_roles" }
