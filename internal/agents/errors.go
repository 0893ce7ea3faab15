package agents

import (
  "errors"
  "fmt"
)

// Kind classifies agent failures so the HTTP layer can map them to statuses
// without string matching.
type Kind string

const (
  KindNotFound         Kind = "not_found"
  KindStorage          Kind = "storage_error"
  KindExtraction       Kind = "extraction_error"
  KindEmbeddingService Kind = "embedding_service_error"
  KindGeneration       Kind = "generation_error"
  KindAccessDenied     Kind = "access_denied"
  KindProcessing       Kind = "processing_error"
)

// Error wraps an underlying failure with its taxonomy kind.
type Error struct {
  Kind Kind
  Err  error
}

func (e *Error) Error() string {
  if e.Err == nil {
    return string(e.Kind)
  }
  return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
  return e.Err
}

// E wraps err with kind. A nil err yields a bare kind error.
func E(kind Kind, err error) error {
  return &Error{Kind: kind, Err: err}
}

// Ef builds a formatted error under kind.
func Ef(kind Kind, format string, args ...any) error {
  return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the taxonomy kind from err, or "" when err carries none.
func KindOf(err error) Kind {
  var ae *Error
  if errors.As(err, &ae) {
    return ae.Kind
  }
  return ""
}
