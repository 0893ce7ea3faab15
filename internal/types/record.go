package types

import (
  "time"
  "github.com/google/uuid"
)

type RecordStatus string

const (
  RecordStatusPending    RecordStatus = "pending"
  RecordStatusProcessing RecordStatus = "processing"
  RecordStatusProcessed  RecordStatus = "processed"
)

type RecordKind string

const (
  RecordKindDocument    RecordKind = "document"
  RecordKindImage       RecordKind = "image"
  RecordKindScan        RecordKind = "scan"
  RecordKindOtherReport RecordKind = "other_report"
)

// FileURLPending is the placeholder blob location a record carries between
// row creation and a successful bucket upload.
const FileURLPending = "pending"

type Record struct {
  ID         uuid.UUID    `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  PatientID  uuid.UUID    `gorm:"type:uuid;not null;index" json:"patient_id"`
  Patient    *Patient     `gorm:"constraint:OnDelete:CASCADE;foreignKey:PatientID;references:ID" json:"patient,omitempty"`
  Title      string       `gorm:"column:title;not null" json:"title"`
  Kind       RecordKind   `gorm:"column:kind;not null" json:"kind"`
  FileURL    string       `gorm:"column:file_url;not null" json:"file_url"`
  StorageKey string       `gorm:"column:storage_key" json:"storage_key"`
  UploadedBy uuid.UUID    `gorm:"type:uuid;not null" json:"uploaded_by"`
  UploadDate time.Time    `gorm:"column:upload_date;not null;default:now()" json:"upload_date"`
  Status     RecordStatus `gorm:"column:status;not null;default:'pending'" json:"status"`
}

func (Record) TableName() string { return "records" }
