package types

import (
  "time"
  "github.com/google/uuid"
)

// RecordText is one structurally meaningful segment of extracted text
// (one page for PDFs). ChunkIndex reflects extraction order.
type RecordText struct {
  ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  RecordID      uuid.UUID `gorm:"type:uuid;not null;index" json:"record_id"`
  Record        *Record   `gorm:"constraint:OnDelete:CASCADE;foreignKey:RecordID;references:ID" json:"record,omitempty"`
  ExtractedText string    `gorm:"column:extracted_text;not null" json:"extracted_text"`
  ChunkIndex    int       `gorm:"column:chunk_index;not null" json:"chunk_index"`
  CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (RecordText) TableName() string { return "record_texts" }
