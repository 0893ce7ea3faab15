package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
)

// RecordEmbedding holds one embedding vector for a size-bounded slice of a
// RecordText. Embedding-chunk granularity is independent of text-chunk
// granularity, so a chunk may own zero or more embeddings.
type RecordEmbedding struct {
  ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  RecordID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"record_id"`
  Record    *Record        `gorm:"constraint:OnDelete:CASCADE;foreignKey:RecordID;references:ID" json:"record,omitempty"`
  ChunkID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"chunk_id"`
  Chunk     *RecordText    `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChunkID;references:ID" json:"chunk,omitempty"`
  Vector    datatypes.JSON `gorm:"type:jsonb;column:vector;not null" json:"vector"`
  CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (RecordEmbedding) TableName() string { return "record_embeddings" }
