package types

import (
  "time"
  "github.com/google/uuid"
)

type Patient struct {
  ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  UserID      uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"user_id"`
  MedicalID   string    `gorm:"column:medical_id;uniqueIndex;not null" json:"medical_id"`
  FirstName   string    `gorm:"column:first_name;not null" json:"first_name"`
  LastName    string    `gorm:"column:last_name;not null" json:"last_name"`
  DateOfBirth time.Time `gorm:"column:date_of_birth" json:"date_of_birth"`
  Gender      string    `gorm:"column:gender" json:"gender"`
  BloodType   string    `gorm:"column:blood_type" json:"blood_type,omitempty"`
  CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Patient) TableName() string { return "patients" }
