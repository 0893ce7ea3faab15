package extract

import (
  "context"
  "strings"

  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/types"
)

// Sentinel texts stored verbatim when no real extraction happens. They keep
// the downstream pipeline total: every record gets at least one text row.
const (
  SentinelUnsupported = "[No text extraction available for this file type]"
  SentinelNoText      = "[No readable text found in document]"
)

// Extractor pulls readable text from one kind of record payload. Segments
// come back in document order (one per PDF page, a single segment for flat
// formats) and become the stored text chunks.
type Extractor interface {
  Extract(ctx context.Context, data []byte, filename string) ([]string, error)
}

// Registry maps record kinds to their extractor. Kinds with no entry fall
// back to SentinelUnsupported at call time.
type Registry struct {
  log        *logger.Logger
  extractors map[types.RecordKind]Extractor
}

func NewRegistry(log *logger.Logger, extractors map[types.RecordKind]Extractor) *Registry {
  return &Registry{
    log:        log.With("service", "ExtractRegistry"),
    extractors: extractors,
  }
}

// Kinds lists the registered record kinds.
func (r *Registry) Kinds() []types.RecordKind {
  out := make([]types.RecordKind, 0, len(r.extractors))
  for k := range r.extractors {
    out = append(out, k)
  }
  return out
}

// ExtractSegments runs the registered extractor for kind and always returns
// at least one segment. A missing extractor, an extractor failure, or an
// all-whitespace result collapses to a single sentinel segment so the
// pipeline still persists a text row for the record.
func (r *Registry) ExtractSegments(ctx context.Context, kind types.RecordKind, data []byte, filename string) []string {
  ex, ok := r.extractors[kind]
  if !ok {
    r.log.Info("No extractor registered for kind", "kind", string(kind), "filename", filename)
    return []string{SentinelUnsupported}
  }

  segments, err := ex.Extract(ctx, data, filename)
  if err != nil {
    r.log.Warn("Extraction failed, storing sentinel",
      "kind", string(kind),
      "filename", filename,
      "error", err.Error(),
    )
    return []string{SentinelNoText}
  }

  kept := make([]string, 0, len(segments))
  for _, s := range segments {
    if strings.TrimSpace(s) != "" {
      kept = append(kept, s)
    }
  }
  if len(kept) == 0 {
    return []string{SentinelNoText}
  }
  return kept
}
