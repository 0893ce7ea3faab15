package extract

import (
  "bytes"
  "context"
  "fmt"
  "strings"

  "github.com/ledongthuc/pdf"

  "github.com/medvault/medvault-backend/internal/logger"
)

// PDFExtractor reads embedded text from PDF pages, one segment per page.
// Scanned PDFs carry no text layer, so when the native pass comes up empty
// and a Document AI processor is configured the document is rerun through
// OCR as a single segment.
type PDFExtractor struct {
  log   *logger.Logger
  docai DocAIProcessor
}

func NewPDFExtractor(log *logger.Logger, docai DocAIProcessor) *PDFExtractor {
  return &PDFExtractor{
    log:   log.With("service", "PDFExtractor"),
    docai: docai,
  }
}

func (e *PDFExtractor) Extract(ctx context.Context, data []byte, filename string) ([]string, error) {
  pages, err := nativePDFPages(data)
  if err != nil {
    return nil, fmt.Errorf("pdf parse %q: %w", filename, err)
  }
  if len(pages) > 0 {
    return pages, nil
  }

  if e.docai == nil {
    e.log.Info("PDF has no text layer and OCR fallback is disabled", "filename", filename)
    return nil, nil
  }

  e.log.Info("PDF has no text layer, falling back to OCR", "filename", filename)
  ocr, err := e.docai.ProcessRaw(ctx, data, "application/pdf")
  if err != nil {
    return nil, fmt.Errorf("pdf ocr fallback %q: %w", filename, err)
  }
  if strings.TrimSpace(ocr) == "" {
    return nil, nil
  }
  return []string{ocr}, nil
}

func nativePDFPages(data []byte) ([]string, error) {
  r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
  if err != nil {
    return nil, err
  }

  var pages []string
  for i := 1; i <= r.NumPage(); i++ {
    page := r.Page(i)
    if page.V.IsNull() {
      continue
    }
    content, err := page.GetPlainText(nil)
    if err != nil {
      // A single busted page should not sink the document.
      continue
    }
    if strings.TrimSpace(content) == "" {
      continue
    }
    pages = append(pages, content)
  }
  return pages, nil
}
