package tasks

import (
  "fmt"

  "github.com/google/uuid"
)

// RecordIDFromPayload pulls the record id out of a process_record payload.
func RecordIDFromPayload(payload map[string]string) (uuid.UUID, error) {
  raw, ok := payload["record_id"]
  if !ok {
    return uuid.Nil, fmt.Errorf("payload missing record_id")
  }
  id, err := uuid.Parse(raw)
  if err != nil {
    return uuid.Nil, fmt.Errorf("payload record_id %q: %w", raw, err)
  }
  return id, nil
}
